package domain

import "math/big"

// Steward is one stewardable asset under patronage
type Steward struct {
	ID                string
	CurrentPatron     string
	PreviousPatron    string
	CurrentDeposit    *big.Int
	CurrentPrice      *big.Int // zero while in foreclosure
	TimeAcquired      int64
	TimeLastCollected int64
	TotalCollected    *big.Int
	ForeclosureTime   int64
}

// NewSteward returns a self-held steward with zeroed counters
func NewSteward(id string) *Steward {
	return &Steward{
		ID:             id,
		CurrentPatron:  id,
		PreviousPatron: id,
		CurrentDeposit: new(big.Int),
		CurrentPrice:   new(big.Int),
		TotalCollected: new(big.Int),
	}
}

// InForeclosure reports whether nobody holds the steward at a price
func (s *Steward) InForeclosure() bool {
	return s.CurrentPrice == nil || s.CurrentPrice.Sign() == 0
}

// Clone returns a deep copy
func (s *Steward) Clone() *Steward {
	c := *s
	c.CurrentDeposit = cloneInt(s.CurrentDeposit)
	c.CurrentPrice = cloneInt(s.CurrentPrice)
	c.TotalCollected = cloneInt(s.TotalCollected)
	return &c
}

// Patron is an address capable of holding stewardship
type Patron struct {
	ID string
}

// PatronSteward is the cumulative history of one patron holding one steward
type PatronSteward struct {
	ID        string
	Patron    string
	Steward   string
	TimeHeld  *big.Int
	Collected *big.Int
}

// NewPatronSteward returns an empty relationship record
func NewPatronSteward(id, patron, steward string) *PatronSteward {
	return &PatronSteward{
		ID:        id,
		Patron:    patron,
		Steward:   steward,
		TimeHeld:  new(big.Int),
		Collected: new(big.Int),
	}
}

// Clone returns a deep copy
func (ps *PatronSteward) Clone() *PatronSteward {
	c := *ps
	c.TimeHeld = cloneInt(ps.TimeHeld)
	c.Collected = cloneInt(ps.Collected)
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
