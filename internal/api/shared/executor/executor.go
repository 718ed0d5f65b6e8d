package executor

import (
	"context"
	"fmt"

	"github.com/feral-file/ff-patronage-indexer/internal/api/shared/dto"
	apierrors "github.com/feral-file/ff-patronage-indexer/internal/api/shared/errors"
	"github.com/feral-file/ff-patronage-indexer/internal/canonical"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

// Executor answers ledger queries. Ids are canonicalized before lookup,
// so an aliased steward address resolves to the canonical record.
type Executor interface {
	// GetSteward retrieves a steward, nil when it does not exist
	GetSteward(ctx context.Context, id string) (*dto.StewardResponse, error)

	// GetStewardPatrons lists the patrons that held a steward
	GetStewardPatrons(ctx context.Context, id string, limit, offset int) (*dto.PatronStewardListResponse, error)

	// GetStewardEvents lists the events recorded under a steward in chain order
	GetStewardEvents(ctx context.Context, id string, limit, offset int) (*dto.LedgerEventListResponse, error)

	// GetPatronStewards lists the stewards a patron held
	GetPatronStewards(ctx context.Context, id string, limit, offset int) (*dto.PatronStewardListResponse, error)
}

type executor struct {
	store         store.Store
	canonicalizer *canonical.Canonicalizer
}

func NewExecutor(store store.Store, canonicalizer *canonical.Canonicalizer) Executor {
	return &executor{store: store, canonicalizer: canonicalizer}
}

func (e *executor) GetSteward(ctx context.Context, id string) (*dto.StewardResponse, error) {
	steward, err := e.store.GetSteward(ctx, e.canonicalizer.Canonicalize(id))
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to get steward: %v", err))
	}
	if steward == nil {
		return nil, nil
	}

	return dto.MapStewardToDTO(steward), nil
}

func (e *executor) GetStewardPatrons(ctx context.Context, id string, limit, offset int) (*dto.PatronStewardListResponse, error) {
	items, err := e.store.GetPatronStewardsBySteward(ctx, e.canonicalizer.Canonicalize(id), limit, offset)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to list steward patrons: %v", err))
	}

	return &dto.PatronStewardListResponse{
		Items:  dto.MapPatronStewardsToDTO(items),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (e *executor) GetStewardEvents(ctx context.Context, id string, limit, offset int) (*dto.LedgerEventListResponse, error) {
	events, err := e.store.GetLedgerEventsBySteward(ctx, e.canonicalizer.Canonicalize(id), limit, offset)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to list steward events: %v", err))
	}

	return &dto.LedgerEventListResponse{
		Items:  dto.MapLedgerEventsToDTO(events),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (e *executor) GetPatronStewards(ctx context.Context, id string, limit, offset int) (*dto.PatronStewardListResponse, error) {
	items, err := e.store.GetPatronStewardsByPatron(ctx, e.canonicalizer.Canonicalize(id), limit, offset)
	if err != nil {
		return nil, apierrors.NewDatabaseError(fmt.Sprintf("Failed to list patron stewards: %v", err))
	}

	return &dto.PatronStewardListResponse{
		Items:  dto.MapPatronStewardsToDTO(items),
		Limit:  limit,
		Offset: offset,
	}, nil
}
