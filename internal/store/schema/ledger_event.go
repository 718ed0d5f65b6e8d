package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// LedgerEvent represents the ledger_events table - journal of every event the reducer has consumed.
// The unique (chain, tx_hash, log_index) index makes redelivered events detectable.
type LedgerEvent struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Chain identifies the blockchain network where this event occurred
	Chain domain.Chain `gorm:"column:chain;not null;type:text;uniqueIndex:idx_ledger_events_chain_tx_log,priority:1"`
	// TxHash is the transaction hash that emitted the event
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_ledger_events_chain_tx_log,priority:2"`
	// LogIndex is the position of the log within the block
	LogIndex uint64 `gorm:"column:log_index;not null;type:bigint;uniqueIndex:idx_ledger_events_chain_tx_log,priority:3"`
	// Kind is the patronage event kind
	Kind domain.EventKind `gorm:"column:kind;not null;type:text"`
	// ContractAddress is the emitting contract
	ContractAddress string `gorm:"column:contract_address;not null;type:text"`
	// StewardID is the canonical steward the event was attributed to
	StewardID string `gorm:"column:steward_id;not null;type:text;index:idx_ledger_events_steward_id"`
	// BlockNumber is the block number where this event was recorded
	BlockNumber uint64 `gorm:"column:block_number;not null;type:bigint"`
	// Timestamp is the block timestamp
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// Raw contains the complete event as JSON
	Raw datatypes.JSON `gorm:"column:raw;type:jsonb"`
	// CreatedAt is the timestamp when this record was indexed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerEvent model
func (LedgerEvent) TableName() string {
	return "ledger_events"
}
