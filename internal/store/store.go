package store

import (
	"context"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// Ledger defines the reads and writes the reducer performs for one event.
// Getters return nil, nil when the record does not exist.
type Ledger interface {
	// GetSteward retrieves a steward by its canonical id
	GetSteward(ctx context.Context, id string) (*domain.Steward, error)
	// SaveSteward creates or replaces a steward
	SaveSteward(ctx context.Context, steward *domain.Steward) error
	// GetPatron retrieves a patron by its canonical id
	GetPatron(ctx context.Context, id string) (*domain.Patron, error)
	// SavePatron creates a patron if it does not exist
	SavePatron(ctx context.Context, patron *domain.Patron) error
	// GetPatronSteward retrieves a patron/steward relationship by its composite id
	GetPatronSteward(ctx context.Context, id string) (*domain.PatronSteward, error)
	// SavePatronSteward creates or replaces a patron/steward relationship
	SavePatronSteward(ctx context.Context, ps *domain.PatronSteward) error
	// RecordEvent journals an event under a steward.
	// It returns false when the event (chain, tx hash, log index) was already recorded.
	RecordEvent(ctx context.Context, stewardID string, event *domain.PatronageEvent) (bool, error)
}

// Store defines the interface for database operations
type Store interface {
	Ledger
	CursorStore

	// WithTransaction runs fn against a ledger whose writes are committed atomically when fn returns nil
	WithTransaction(ctx context.Context, fn func(ledger Ledger) error) error
	// IsEventRecorded reports whether the event (chain, tx hash, log index) is already journaled
	IsEventRecorded(ctx context.Context, event *domain.PatronageEvent) (bool, error)

	// GetPatronStewardsBySteward lists the relationships of a steward ordered by id.
	// A non-positive limit returns every row.
	GetPatronStewardsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronSteward, error)
	// GetPatronStewardsByPatron lists the relationships of a patron ordered by id
	GetPatronStewardsByPatron(ctx context.Context, patronID string, limit, offset int) ([]*domain.PatronSteward, error)
	// GetLedgerEventsBySteward lists the journaled events of a steward in chain order
	GetLedgerEventsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronageEvent, error)
}
