package schema

import "time"

// PatronSteward represents the patron_stewards table - the accumulated relationship between a patron and a steward
type PatronSteward struct {
	// ID is the concatenation of the canonical patron and steward ids
	ID string `gorm:"column:id;primaryKey;type:text"`
	// PatronID references the patron
	PatronID string `gorm:"column:patron_id;not null;type:text;index:idx_patron_stewards_patron_id"`
	// StewardID references the steward
	StewardID string `gorm:"column:steward_id;not null;type:text;index:idx_patron_stewards_steward_id"`
	// TimeHeld is the number of seconds the patron held the artwork
	TimeHeld string `gorm:"column:time_held;not null;type:numeric(78,0)"`
	// Collected is the patronage collected from the patron in wei
	Collected string `gorm:"column:collected;not null;type:numeric(78,0)"`
	// CreatedAt is the timestamp when this record was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the PatronSteward model
func (PatronSteward) TableName() string {
	return "patron_stewards"
}
