package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// WatchlistStore is an in-memory implementation of storage.WatchlistStore.
type WatchlistStore struct {
	mu      sync.RWMutex
	entries map[watchlistKey]*domain.WatchlistEntry
}

type watchlistKey struct {
	subscriberID string
	address      string
}

// NewWatchlistStore creates a new in-memory watch list store.
func NewWatchlistStore() *WatchlistStore {
	return &WatchlistStore{
		entries: make(map[watchlistKey]*domain.WatchlistEntry),
	}
}

// Insert adds an entry. Returns ErrDuplicateKey if (subscriber_id, address) exists.
func (s *WatchlistStore) Insert(_ context.Context, e *domain.WatchlistEntry) error {
	if e == nil || e.SubscriberID == "" || e.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := watchlistKey{e.SubscriberID, e.Address}
	if _, exists := s.entries[key]; exists {
		return storage.ErrDuplicateKey
	}

	eCopy := *e
	eCopy.Nickname = copyString(e.Nickname)
	s.entries[key] = &eCopy
	return nil
}

// Scan calls fn for every entry ordered by (subscriber_id, address).
func (s *WatchlistStore) Scan(ctx context.Context, fn func(e *domain.WatchlistEntry) error) error {
	s.mu.RLock()
	snapshot := make([]domain.WatchlistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, *e)
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].SubscriberID != snapshot[j].SubscriberID {
			return snapshot[i].SubscriberID < snapshot[j].SubscriberID
		}
		return snapshot[i].Address < snapshot[j].Address
	})

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

var _ storage.WatchlistStore = (*WatchlistStore)(nil)
