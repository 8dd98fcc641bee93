package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// NotificationStore implements storage.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *Pool
}

// NewNotificationStore creates a new NotificationStore.
func NewNotificationStore(pool *Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.NotificationStore = (*NotificationStore)(nil)

// Insert adds a new notification. Returns ErrDuplicateKey if id exists.
// The primary key makes concurrent inserts of the same id safe: exactly one wins.
func (s *NotificationStore) Insert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (
			id, subscriber_id, watched_address, type, title, message,
			signature, asset_id, amount, value_usd, read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		n.ID,
		n.SubscriberID,
		n.WatchedAddress,
		string(n.Type),
		n.Title,
		n.Message,
		n.Signature,
		n.AssetID,
		n.Amount,
		n.ValueUSD,
		n.Read,
		n.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by ID. Returns ErrNotFound if not exists.
func (s *NotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `
		SELECT id, subscriber_id, watched_address, type, title, message,
		       signature, asset_id, amount, value_usd, read, created_at
		FROM notifications
		WHERE id = $1
	`

	n, err := scanNotification(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get notification by id: %w", err)
	}
	return n, nil
}

// GetBySubscriber retrieves the newest notifications of a subscriber.
func (s *NotificationStore) GetBySubscriber(ctx context.Context, subscriberID string, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, subscriber_id, watched_address, type, title, message,
		       signature, asset_id, amount, value_usd, read, created_at
		FROM notifications
		WHERE subscriber_id = $1
		ORDER BY created_at DESC, id ASC
	`
	args := []any{subscriberID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications by subscriber: %w", err)
	}
	defer rows.Close()

	var result []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	var typ string

	err := row.Scan(
		&n.ID,
		&n.SubscriberID,
		&n.WatchedAddress,
		&typ,
		&n.Title,
		&n.Message,
		&n.Signature,
		&n.AssetID,
		&n.Amount,
		&n.ValueUSD,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = domain.NotificationType(typ)
	return &n, nil
}
