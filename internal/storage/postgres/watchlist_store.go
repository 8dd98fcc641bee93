package postgres

import (
	"context"
	"fmt"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// WatchlistStore implements storage.WatchlistStore using PostgreSQL.
type WatchlistStore struct {
	pool *Pool
}

// NewWatchlistStore creates a new WatchlistStore.
func NewWatchlistStore(pool *Pool) *WatchlistStore {
	return &WatchlistStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WatchlistStore = (*WatchlistStore)(nil)

// Insert adds a watch list entry. Returns ErrDuplicateKey if (subscriber_id, address) exists.
func (s *WatchlistStore) Insert(ctx context.Context, e *domain.WatchlistEntry) error {
	query := `
		INSERT INTO watchlist_entries (subscriber_id, address, nickname, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, e.SubscriberID, e.Address, e.Nickname, e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert watchlist entry: %w", err)
	}
	return nil
}

// Scan calls fn for every entry ordered by (subscriber_id, address).
func (s *WatchlistStore) Scan(ctx context.Context, fn func(e *domain.WatchlistEntry) error) error {
	query := `
		SELECT subscriber_id, address, nickname, created_at
		FROM watchlist_entries
		ORDER BY subscriber_id, address
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query watchlist entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.WatchlistEntry
		if err := rows.Scan(&e.SubscriberID, &e.Address, &e.Nickname, &e.CreatedAt); err != nil {
			return fmt.Errorf("scan watchlist entry: %w", err)
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate watchlist entries: %w", err)
	}
	return nil
}
