package inventory

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory [Store].
type MemStore struct {
	mu    sync.RWMutex
	items map[string]map[string]Item // owner -> id -> item
	now   func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]map[string]Item), now: time.Now}
}

func (s *MemStore) Add(_ context.Context, item *Item) error {
	if err := prepare(item, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.items[item.OwnerID]
	if !ok {
		owned = make(map[string]Item)
		s.items[item.OwnerID] = owned
	}
	owned[item.ID] = *item
	return nil
}

func (s *MemStore) Get(_ context.Context, owner, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[owner][id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (s *MemStore) List(_ context.Context, owner string, opts ListOptions) ([]Item, error) {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items[owner]))
	for _, it := range s.items[owner] {
		if opts.match(it) {
			out = append(out, it)
		}
	}
	s.mu.RUnlock()
	sortItems(out)
	return out, nil
}

func (s *MemStore) Remove(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[owner][id]; !ok {
		return ErrNotFound
	}
	delete(s.items[owner], id)
	return nil
}

func (s *MemStore) Ping(context.Context) error { return nil }
