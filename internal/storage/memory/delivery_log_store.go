package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// DeliveryLogStore is an in-memory implementation of storage.DeliveryLogStore.
type DeliveryLogStore struct {
	mu      sync.RWMutex
	records []*domain.DeliveryRecord
}

// NewDeliveryLogStore creates a new in-memory delivery log.
func NewDeliveryLogStore() *DeliveryLogStore {
	return &DeliveryLogStore{}
}

// InsertBulk appends delivery records.
func (s *DeliveryLogStore) InsertBulk(_ context.Context, records []*domain.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
	}
	for _, r := range records {
		rCopy := *r
		s.records = append(s.records, &rCopy)
	}
	return nil
}

// GetByNotification retrieves all attempts for a notification ordered by time ASC.
func (s *DeliveryLogStore) GetByNotification(_ context.Context, notificationID string) ([]*domain.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DeliveryRecord
	for _, r := range s.records {
		if r.NotificationID == notificationID {
			rCopy := *r
			result = append(result, &rCopy)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].At < result[j].At
	})
	return result, nil
}

// All returns a copy of every record in insertion order.
func (s *DeliveryLogStore) All() []*domain.DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DeliveryRecord, 0, len(s.records))
	for _, r := range s.records {
		rCopy := *r
		result = append(result, &rCopy)
	}
	return result
}

var _ storage.DeliveryLogStore = (*DeliveryLogStore)(nil)
