package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// If any of the pool settings are 0, the defaults of NormalizeConnectionPoolSettings are used.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// WithTransaction runs fn inside a database transaction
func (s *pgStore) WithTransaction(ctx context.Context, fn func(ledger Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}

// GetSteward retrieves a steward by its canonical id
func (s *pgStore) GetSteward(ctx context.Context, id string) (*domain.Steward, error) {
	var steward schema.Steward
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&steward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get steward: %w", err)
	}

	return stewardFromSchema(&steward)
}

// SaveSteward creates or replaces a steward
func (s *pgStore) SaveSteward(ctx context.Context, steward *domain.Steward) error {
	row := stewardToSchema(steward)
	row.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_patron",
			"previous_patron",
			"current_deposit",
			"current_price",
			"time_acquired",
			"time_last_collected",
			"total_collected",
			"foreclosure_time",
			"updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save steward: %w", err)
	}

	return nil
}

// GetPatron retrieves a patron by its canonical id
func (s *pgStore) GetPatron(ctx context.Context, id string) (*domain.Patron, error) {
	var patron schema.Patron
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&patron).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patron: %w", err)
	}

	return &domain.Patron{ID: patron.ID}, nil
}

// SavePatron creates a patron if it does not exist
func (s *pgStore) SavePatron(ctx context.Context, patron *domain.Patron) error {
	row := schema.Patron{ID: patron.ID}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save patron: %w", err)
	}

	return nil
}

// GetPatronSteward retrieves a patron/steward relationship by its composite id
func (s *pgStore) GetPatronSteward(ctx context.Context, id string) (*domain.PatronSteward, error) {
	var ps schema.PatronSteward
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&ps).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patron steward: %w", err)
	}

	return patronStewardFromSchema(&ps)
}

// SavePatronSteward creates or replaces a patron/steward relationship
func (s *pgStore) SavePatronSteward(ctx context.Context, ps *domain.PatronSteward) error {
	row := patronStewardToSchema(ps)
	row.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"time_held", "collected", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save patron steward: %w", err)
	}

	return nil
}

// RecordEvent journals an event, reporting false for a duplicate
func (s *pgStore) RecordEvent(ctx context.Context, stewardID string, event *domain.PatronageEvent) (bool, error) {
	row, err := ledgerEventToSchema(stewardID, event)
	if err != nil {
		return false, err
	}

	// Use ON CONFLICT DO NOTHING to skip redelivered events based on (chain, tx_hash, log_index)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&row).Error; err != nil {
		return false, fmt.Errorf("failed to record ledger event: %w", err)
	}

	// If the event was a duplicate (ID == 0), nothing was inserted
	return row.ID != 0, nil
}

// IsEventRecorded reports whether the event is already journaled
func (s *pgStore) IsEventRecorded(ctx context.Context, event *domain.PatronageEvent) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.LedgerEvent{}).
		Where("chain = ? AND tx_hash = ? AND log_index = ?", event.Chain, strings.ToLower(event.TxHash), event.LogIndex).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check ledger event: %w", err)
	}

	return count > 0, nil
}

// GetPatronStewardsBySteward lists the relationships of a steward ordered by id
func (s *pgStore) GetPatronStewardsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronSteward, error) {
	return s.listPatronStewards(ctx, "steward_id = ?", stewardID, limit, offset)
}

// GetPatronStewardsByPatron lists the relationships of a patron ordered by id
func (s *pgStore) GetPatronStewardsByPatron(ctx context.Context, patronID string, limit, offset int) ([]*domain.PatronSteward, error) {
	return s.listPatronStewards(ctx, "patron_id = ?", patronID, limit, offset)
}

func (s *pgStore) listPatronStewards(ctx context.Context, where string, arg string, limit, offset int) ([]*domain.PatronSteward, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []schema.PatronSteward
	err := s.db.WithContext(ctx).
		Where(where, arg).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list patron stewards: %w", err)
	}

	result := make([]*domain.PatronSteward, 0, len(rows))
	for i := range rows {
		ps, err := patronStewardFromSchema(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, ps)
	}

	return result, nil
}

// GetLedgerEventsBySteward lists the journaled events of a steward in chain order
func (s *pgStore) GetLedgerEventsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronageEvent, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []schema.LedgerEvent
	err := s.db.WithContext(ctx).
		Where("steward_id = ?", stewardID).
		Order("block_number ASC, log_index ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}

	result := make([]*domain.PatronageEvent, 0, len(rows))
	for i := range rows {
		e, err := ledgerEventFromSchema(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	return result, nil
}

// GetBlockCursor retrieves the last processed block number for a chain
func (s *pgStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	return NewCursorStore(s.db).GetBlockCursor(ctx, chain)
}

// SetBlockCursor stores the last processed block number for a chain
func (s *pgStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	return NewCursorStore(s.db).SetBlockCursor(ctx, chain, blockNumber)
}

// blockCursorKey is the key_value_store key holding a chain's cursor
func blockCursorKey(chain string) string {
	return "block_cursor:" + chain
}

// parseBlockCursor parses a stored cursor value
func parseBlockCursor(value string) (uint64, error) {
	blockNumber, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}
	return blockNumber, nil
}
