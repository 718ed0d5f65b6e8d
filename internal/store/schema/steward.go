package schema

import "time"

// Steward represents the stewards table - the Harberger-taxed stewardship of one artwork
type Steward struct {
	// ID is the canonical steward contract address
	ID string `gorm:"column:id;primaryKey;type:text"`
	// CurrentPatron is the canonical address currently holding the artwork (the steward itself when unowned)
	CurrentPatron string `gorm:"column:current_patron;not null;type:text;index:idx_stewards_current_patron"`
	// PreviousPatron is the canonical address that held the artwork before the current patron
	PreviousPatron string `gorm:"column:previous_patron;not null;type:text"`
	// CurrentDeposit is the deposit read from the contract (stored as string to support up to 78 digits)
	CurrentDeposit string `gorm:"column:current_deposit;not null;type:numeric(78,0)"`
	// CurrentPrice is the self-assessed price in wei
	CurrentPrice string `gorm:"column:current_price;not null;type:numeric(78,0)"`
	// TimeAcquired is the unix time the current patron bought the artwork
	TimeAcquired int64 `gorm:"column:time_acquired;not null;type:bigint"`
	// TimeLastCollected is the unix time of the last patronage collection
	TimeLastCollected int64 `gorm:"column:time_last_collected;not null;type:bigint"`
	// TotalCollected is the sum of all collected patronage in wei
	TotalCollected string `gorm:"column:total_collected;not null;type:numeric(78,0)"`
	// ForeclosureTime is the unix time at which the deposit runs out
	ForeclosureTime int64 `gorm:"column:foreclosure_time;not null;type:bigint"`
	// CreatedAt is the timestamp when this record was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Steward model
func (Steward) TableName() string {
	return "stewards"
}
