package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// NotificationStore is an in-memory implementation of storage.NotificationStore.
type NotificationStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Notification
}

// NewNotificationStore creates a new in-memory notification store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		byID: make(map[string]*domain.Notification),
	}
}

// Insert adds a new notification. Returns ErrDuplicateKey if id already exists.
func (s *NotificationStore) Insert(_ context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[n.ID]; exists {
		return storage.ErrDuplicateKey
	}

	nCopy := *n
	s.byID[n.ID] = &nCopy
	return nil
}

// GetByID retrieves a notification by ID. Returns ErrNotFound if not exists.
func (s *NotificationStore) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	nCopy := *n
	return &nCopy, nil
}

// GetBySubscriber retrieves the newest notifications of a subscriber, newest first.
func (s *NotificationStore) GetBySubscriber(_ context.Context, subscriberID string, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Notification
	for _, n := range s.byID {
		if n.SubscriberID == subscriberID {
			nCopy := *n
			result = append(result, &nCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the number of stored notifications.
func (s *NotificationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

var _ storage.NotificationStore = (*NotificationStore)(nil)
