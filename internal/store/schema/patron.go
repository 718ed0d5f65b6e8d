package schema

import "time"

// Patron represents the patrons table - every address that ever held an artwork
type Patron struct {
	// ID is the canonical patron address
	ID string `gorm:"column:id;primaryKey;type:text"`
	// CreatedAt is the timestamp when this record was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Patron model
func (Patron) TableName() string {
	return "patrons"
}
