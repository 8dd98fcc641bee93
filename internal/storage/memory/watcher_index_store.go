package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// WatcherIndexStore is an in-memory implementation of storage.WatcherIndexStore.
type WatcherIndexStore struct {
	mu        sync.RWMutex
	byAddress map[string]map[string]*string // address -> subscriber_id -> nickname
}

// NewWatcherIndexStore creates a new in-memory reverse index.
func NewWatcherIndexStore() *WatcherIndexStore {
	return &WatcherIndexStore{
		byAddress: make(map[string]map[string]*string),
	}
}

// GetWatchers returns watchers under address. Returns ErrNotFound if no entry exists.
func (s *WatcherIndexStore) GetWatchers(_ context.Context, address string) ([]domain.Watcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.byAddress[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	watchers := make([]domain.Watcher, 0, len(entry))
	for id, nick := range entry {
		watchers = append(watchers, domain.Watcher{SubscriberID: id, Nickname: copyString(nick)})
	}
	sort.Slice(watchers, func(i, j int) bool {
		return watchers[i].SubscriberID < watchers[j].SubscriberID
	})
	return watchers, nil
}

// Put adds or replaces one watcher under address.
func (s *WatcherIndexStore) Put(_ context.Context, address string, w domain.Watcher) error {
	if address == "" || w.SubscriberID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.byAddress[address]
	if !exists {
		entry = make(map[string]*string)
		s.byAddress[address] = entry
	}
	entry[w.SubscriberID] = copyString(w.Nickname)
	return nil
}

// Remove deletes one watcher from address, keeping the (possibly empty) entry.
func (s *WatcherIndexStore) Remove(_ context.Context, address, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.byAddress[address]; exists {
		delete(entry, subscriberID)
	}
	return nil
}

// PutEmpty creates an entry with no watchers. Used to model entries whose
// watchers were all removed.
func (s *WatcherIndexStore) PutEmpty(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[address]; !exists {
		s.byAddress[address] = make(map[string]*string)
	}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ storage.WatcherIndexStore = (*WatcherIndexStore)(nil)
