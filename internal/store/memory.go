package store

import (
	"context"
	"sort"
	"sync"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

type journalEntry struct {
	stewardID string
	event     domain.PatronageEvent
}

type memoryState struct {
	stewards       map[string]*domain.Steward
	patrons        map[string]*domain.Patron
	patronStewards map[string]*domain.PatronSteward
	events         map[string]journalEntry
	cursors        map[string]uint64
}

func newMemoryState() *memoryState {
	return &memoryState{
		stewards:       make(map[string]*domain.Steward),
		patrons:        make(map[string]*domain.Patron),
		patronStewards: make(map[string]*domain.PatronSteward),
		events:         make(map[string]journalEntry),
		cursors:        make(map[string]uint64),
	}
}

func (m *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range m.stewards {
		c.stewards[k] = v.Clone()
	}
	for k, v := range m.patrons {
		p := *v
		c.patrons[k] = &p
	}
	for k, v := range m.patronStewards {
		c.patronStewards[k] = v.Clone()
	}
	for k, v := range m.events {
		c.events[k] = v
	}
	for k, v := range m.cursors {
		c.cursors[k] = v
	}
	return c
}

type memoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStore creates an in-memory store, used by the replay dry-run and tests.
// Transactions are serialized and rolled back by discarding a working copy.
func NewMemoryStore() Store {
	return &memoryStore{state: newMemoryState()}
}

// WithTransaction runs fn against a working copy that replaces the state when fn succeeds
func (s *memoryStore) WithTransaction(ctx context.Context, fn func(ledger Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &memoryLedger{state: s.state.clone()}
	if err := fn(work); err != nil {
		return err
	}
	s.state = work.state
	return nil
}

func (s *memoryStore) read() *memoryLedger {
	return &memoryLedger{state: s.state}
}

func (s *memoryStore) GetSteward(ctx context.Context, id string) (*domain.Steward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetSteward(ctx, id)
}

func (s *memoryStore) SaveSteward(ctx context.Context, steward *domain.Steward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveSteward(ctx, steward)
}

func (s *memoryStore) GetPatron(ctx context.Context, id string) (*domain.Patron, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPatron(ctx, id)
}

func (s *memoryStore) SavePatron(ctx context.Context, patron *domain.Patron) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SavePatron(ctx, patron)
}

func (s *memoryStore) GetPatronSteward(ctx context.Context, id string) (*domain.PatronSteward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetPatronSteward(ctx, id)
}

func (s *memoryStore) SavePatronSteward(ctx context.Context, ps *domain.PatronSteward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SavePatronSteward(ctx, ps)
}

func (s *memoryStore) RecordEvent(ctx context.Context, stewardID string, event *domain.PatronageEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().RecordEvent(ctx, stewardID, event)
}

func (s *memoryStore) IsEventRecorded(ctx context.Context, event *domain.PatronageEvent) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.events[event.Key()]
	return ok, nil
}

func (s *memoryStore) GetPatronStewardsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronSteward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPatronStewards(func(ps *domain.PatronSteward) bool { return ps.Steward == stewardID }, limit, offset), nil
}

func (s *memoryStore) GetPatronStewardsByPatron(ctx context.Context, patronID string, limit, offset int) ([]*domain.PatronSteward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listPatronStewards(func(ps *domain.PatronSteward) bool { return ps.Patron == patronID }, limit, offset), nil
}

func (s *memoryStore) listPatronStewards(match func(*domain.PatronSteward) bool, limit, offset int) []*domain.PatronSteward {
	var result []*domain.PatronSteward
	for _, ps := range s.state.patronStewards {
		if match(ps) {
			result = append(result, ps.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return paginate(result, limit, offset)
}

func (s *memoryStore) GetLedgerEventsBySteward(ctx context.Context, stewardID string, limit, offset int) ([]*domain.PatronageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PatronageEvent
	for _, entry := range s.state.events {
		if entry.stewardID == stewardID {
			e := entry.event
			result = append(result, &e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return paginate(result, limit, offset), nil
}

func (s *memoryStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.cursors[chain], nil
}

func (s *memoryStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.cursors[chain] = blockNumber
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// memoryLedger operates on a state without locking; callers hold the store lock
type memoryLedger struct {
	state *memoryState
}

func (l *memoryLedger) GetSteward(_ context.Context, id string) (*domain.Steward, error) {
	s, ok := l.state.stewards[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (l *memoryLedger) SaveSteward(_ context.Context, steward *domain.Steward) error {
	l.state.stewards[steward.ID] = steward.Clone()
	return nil
}

func (l *memoryLedger) GetPatron(_ context.Context, id string) (*domain.Patron, error) {
	p, ok := l.state.patrons[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (l *memoryLedger) SavePatron(_ context.Context, patron *domain.Patron) error {
	if _, ok := l.state.patrons[patron.ID]; ok {
		return nil
	}
	c := *patron
	l.state.patrons[patron.ID] = &c
	return nil
}

func (l *memoryLedger) GetPatronSteward(_ context.Context, id string) (*domain.PatronSteward, error) {
	ps, ok := l.state.patronStewards[id]
	if !ok {
		return nil, nil
	}
	return ps.Clone(), nil
}

func (l *memoryLedger) SavePatronSteward(_ context.Context, ps *domain.PatronSteward) error {
	l.state.patronStewards[ps.ID] = ps.Clone()
	return nil
}

func (l *memoryLedger) RecordEvent(_ context.Context, stewardID string, event *domain.PatronageEvent) (bool, error) {
	key := event.Key()
	if _, ok := l.state.events[key]; ok {
		return false, nil
	}
	l.state.events[key] = journalEntry{stewardID: stewardID, event: *event}
	return true, nil
}
