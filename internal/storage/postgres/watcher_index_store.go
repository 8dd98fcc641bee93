package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// WatcherIndexStore implements storage.WatcherIndexStore using a JSONB map per address.
type WatcherIndexStore struct {
	pool *Pool
}

// NewWatcherIndexStore creates a new WatcherIndexStore.
func NewWatcherIndexStore(pool *Pool) *WatcherIndexStore {
	return &WatcherIndexStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WatcherIndexStore = (*WatcherIndexStore)(nil)

// GetWatchers returns watchers under address. Returns ErrNotFound if no entry exists.
func (s *WatcherIndexStore) GetWatchers(ctx context.Context, address string) ([]domain.Watcher, error) {
	query := `SELECT watchers FROM watch_index WHERE address = $1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, address).Scan(&raw); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get watchers: %w", err)
	}

	var entry map[string]*string
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode watchers of %s: %w", address, err)
	}

	watchers := make([]domain.Watcher, 0, len(entry))
	for id, nick := range entry {
		watchers = append(watchers, domain.Watcher{SubscriberID: id, Nickname: nick})
	}
	sort.Slice(watchers, func(i, j int) bool {
		return watchers[i].SubscriberID < watchers[j].SubscriberID
	})
	return watchers, nil
}

// Put adds or replaces one watcher under address in a single upsert.
func (s *WatcherIndexStore) Put(ctx context.Context, address string, w domain.Watcher) error {
	if address == "" || w.SubscriberID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO watch_index (address, watchers, updated_at)
		VALUES ($1, jsonb_build_object($2::text, $3::text), NOW())
		ON CONFLICT (address) DO UPDATE SET
			watchers = watch_index.watchers || EXCLUDED.watchers,
			updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, address, w.SubscriberID, w.Nickname); err != nil {
		return fmt.Errorf("put watcher: %w", err)
	}
	return nil
}

// Remove deletes one watcher from address. The row is kept even when it becomes empty.
func (s *WatcherIndexStore) Remove(ctx context.Context, address, subscriberID string) error {
	query := `
		UPDATE watch_index
		SET watchers = watchers - $2::text, updated_at = NOW()
		WHERE address = $1
	`

	if _, err := s.pool.Exec(ctx, query, address, subscriberID); err != nil {
		return fmt.Errorf("remove watcher: %w", err)
	}
	return nil
}
