package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hedgex/options-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	options map[uint64]*model.Option
	journal []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		options: make(map[uint64]*model.Option),
	}
}

func (s *MemoryStore) SaveOption(_ context.Context, opt *model.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *opt
	s.options[opt.ID] = &copy
	return nil
}

func (s *MemoryStore) GetOption(_ context.Context, id uint64) (*model.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	opt, ok := s.options[id]
	if !ok {
		return nil, ErrOptionNotFound
	}
	copy := *opt
	return &copy, nil
}

func (s *MemoryStore) ListOptions(_ context.Context) ([]model.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	options := make([]model.Option, 0, len(s.options))
	for _, opt := range s.options {
		options = append(options, *opt)
	}
	sort.Slice(options, func(i, j int) bool { return options[i].ID > options[j].ID })
	return options, nil
}

func (s *MemoryStore) ListOptionsByHolder(_ context.Context, holder string) ([]model.Option, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var options []model.Option
	for _, opt := range s.options {
		if opt.Holder == holder {
			options = append(options, *opt)
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].ID > options[j].ID })
	return options, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *e)
	return nil
}

func (s *MemoryStore) GetEventsByOption(_ context.Context, optionID uint64) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.journal {
		if e.OptionID == optionID && optionEventType(e.Type) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetEventsByAccount(_ context.Context, account string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Event
	for _, e := range s.journal {
		if e.Account == account || e.From == account || e.To == account {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.journal)
	if limit <= 0 || limit > n {
		limit = n
	}
	result := make([]model.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		result = append(result, s.journal[i])
	}
	return result, nil
}

// optionEventType reports whether the event type is keyed to an option id.
// Pool and staking events carry OptionID zero and would alias option 0.
func optionEventType(t string) bool {
	switch t {
	case "Create", "Exercise", "Expire", "Transfer":
		return true
	default:
		return false
	}
}
