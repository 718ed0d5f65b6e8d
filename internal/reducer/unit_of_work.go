package reducer

import (
	"context"
	"fmt"
	"sort"

	"github.com/feral-file/ff-patronage-indexer/internal/canonical"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

// Lookup tells whether a get-or-create found the record or created it
type Lookup int

const (
	// Existing means the record was loaded from the ledger or earlier in the same unit
	Existing Lookup = iota
	// Created means the record did not exist and was initialised with defaults
	Created
)

func (l Lookup) String() string {
	if l == Created {
		return "created"
	}
	return "existing"
}

// UnitOfWork collects the records one reduction touches and writes them in a single commit.
// Every id passed in is canonicalized before lookup.
type UnitOfWork struct {
	ledger        store.Ledger
	canonicalizer *canonical.Canonicalizer

	stewards       map[string]*domain.Steward
	patrons        map[string]*domain.Patron
	patronStewards map[string]*domain.PatronSteward
	dirtyPatrons   map[string]bool
}

// NewUnitOfWork creates a unit of work over a ledger
func NewUnitOfWork(ledger store.Ledger, canonicalizer *canonical.Canonicalizer) *UnitOfWork {
	return &UnitOfWork{
		ledger:         ledger,
		canonicalizer:  canonicalizer,
		stewards:       make(map[string]*domain.Steward),
		patrons:        make(map[string]*domain.Patron),
		patronStewards: make(map[string]*domain.PatronSteward),
		dirtyPatrons:   make(map[string]bool),
	}
}

// Steward returns the steward with the given id, creating a self-held one if missing
func (u *UnitOfWork) Steward(ctx context.Context, id string) (*domain.Steward, Lookup, error) {
	id = u.canonicalizer.Canonicalize(id)
	if s, ok := u.stewards[id]; ok {
		return s, Existing, nil
	}

	s, err := u.ledger.GetSteward(ctx, id)
	if err != nil {
		return nil, Existing, fmt.Errorf("failed to load steward %s: %w", id, err)
	}

	lookup := Existing
	if s == nil {
		s = domain.NewSteward(id)
		lookup = Created
	}
	u.stewards[id] = s

	return s, lookup, nil
}

// Patron returns the patron with the given id, creating it if missing
func (u *UnitOfWork) Patron(ctx context.Context, id string) (*domain.Patron, Lookup, error) {
	id = u.canonicalizer.Canonicalize(id)
	if p, ok := u.patrons[id]; ok {
		return p, Existing, nil
	}

	p, err := u.ledger.GetPatron(ctx, id)
	if err != nil {
		return nil, Existing, fmt.Errorf("failed to load patron %s: %w", id, err)
	}

	lookup := Existing
	if p == nil {
		p = &domain.Patron{ID: id}
		lookup = Created
		u.dirtyPatrons[id] = true
	}
	u.patrons[id] = p

	return p, lookup, nil
}

// PatronSteward returns the relationship of a patron and a steward, creating it if missing.
// Both ends are ensured to exist.
func (u *UnitOfWork) PatronSteward(ctx context.Context, patron, steward string) (*domain.PatronSteward, Lookup, error) {
	patron = u.canonicalizer.Canonicalize(patron)
	steward = u.canonicalizer.Canonicalize(steward)
	id := u.canonicalizer.PatronStewardID(patron, steward)

	if ps, ok := u.patronStewards[id]; ok {
		return ps, Existing, nil
	}

	if _, _, err := u.Patron(ctx, patron); err != nil {
		return nil, Existing, err
	}
	if _, _, err := u.Steward(ctx, steward); err != nil {
		return nil, Existing, err
	}

	ps, err := u.ledger.GetPatronSteward(ctx, id)
	if err != nil {
		return nil, Existing, fmt.Errorf("failed to load patron steward %s: %w", id, err)
	}

	lookup := Existing
	if ps == nil {
		ps = domain.NewPatronSteward(id, patron, steward)
		lookup = Created
	}
	u.patronStewards[id] = ps

	return ps, lookup, nil
}

// Commit writes every touched record.
// Stewards and patrons are written before relationships that reference them.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	for _, id := range sortedKeys(u.stewards) {
		if err := u.ledger.SaveSteward(ctx, u.stewards[id]); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(u.patrons) {
		if !u.dirtyPatrons[id] {
			continue
		}
		if err := u.ledger.SavePatron(ctx, u.patrons[id]); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(u.patronStewards) {
		if err := u.ledger.SavePatronSteward(ctx, u.patronStewards[id]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
