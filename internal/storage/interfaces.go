package storage

import (
	"context"

	"wallet-alerts/internal/domain"
)

// NotificationStore provides access to notifications storage.
type NotificationStore interface {
	// Insert adds a new notification atomically. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, n *domain.Notification) error

	// GetByID retrieves a notification by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Notification, error)

	// GetBySubscriber retrieves the newest notifications of a subscriber, newest first.
	GetBySubscriber(ctx context.Context, subscriberID string, limit int) ([]*domain.Notification, error)
}

// WatcherIndexStore provides access to the address -> watchers reverse index.
type WatcherIndexStore interface {
	// GetWatchers returns the watchers stored under address, ordered by subscriber_id.
	// Returns ErrNotFound if the address has no index entry. An entry may exist and be empty.
	GetWatchers(ctx context.Context, address string) ([]domain.Watcher, error)

	// Put adds or replaces one watcher under address, creating the entry if needed.
	Put(ctx context.Context, address string, w domain.Watcher) error

	// Remove deletes one watcher from address. The entry itself is kept.
	Remove(ctx context.Context, address, subscriberID string) error
}

// WatchlistStore provides access to per-subscriber watch lists.
type WatchlistStore interface {
	// Insert adds a watch list entry. Returns ErrDuplicateKey if (subscriber_id, address) exists.
	Insert(ctx context.Context, e *domain.WatchlistEntry) error

	// Scan calls fn for every entry of every subscriber. Iteration stops at the first fn error.
	Scan(ctx context.Context, fn func(e *domain.WatchlistEntry) error) error
}

// EndpointStore provides access to push_endpoints storage.
type EndpointStore interface {
	// Insert adds an endpoint. Returns ErrDuplicateKey if (subscriber_id, id) exists.
	Insert(ctx context.Context, e *domain.PushEndpoint) error

	// GetBySubscriber retrieves all endpoints of a subscriber, ordered by creation.
	GetBySubscriber(ctx context.Context, subscriberID string) ([]*domain.PushEndpoint, error)

	// Delete removes one endpoint. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, subscriberID, endpointID string) error
}

// DeliveryLogStore provides access to push_deliveries storage.
type DeliveryLogStore interface {
	// InsertBulk appends delivery records. Append-only, duplicates are allowed.
	InsertBulk(ctx context.Context, records []*domain.DeliveryRecord) error

	// GetByNotification retrieves all attempts for a notification, ordered by time ASC.
	GetByNotification(ctx context.Context, notificationID string) ([]*domain.DeliveryRecord, error)
}

// SharedPriceCache is the cross-process price tier.
type SharedPriceCache interface {
	// Get returns the cached entry. Returns ErrNotFound if absent.
	Get(ctx context.Context, assetID string) (*domain.PriceEntry, error)

	// Set stores the entry, replacing any previous value.
	Set(ctx context.Context, assetID string, entry *domain.PriceEntry) error
}
