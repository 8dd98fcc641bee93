package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// EndpointStore is an in-memory implementation of storage.EndpointStore.
type EndpointStore struct {
	mu           sync.RWMutex
	bySubscriber map[string]map[string]*domain.PushEndpoint // subscriber_id -> endpoint_id -> endpoint
}

// NewEndpointStore creates a new in-memory endpoint store.
func NewEndpointStore() *EndpointStore {
	return &EndpointStore{
		bySubscriber: make(map[string]map[string]*domain.PushEndpoint),
	}
}

// Insert adds an endpoint. Returns ErrDuplicateKey if (subscriber_id, id) exists.
func (s *EndpointStore) Insert(_ context.Context, e *domain.PushEndpoint) error {
	if e == nil || e.ID == "" || e.SubscriberID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints, exists := s.bySubscriber[e.SubscriberID]
	if !exists {
		endpoints = make(map[string]*domain.PushEndpoint)
		s.bySubscriber[e.SubscriberID] = endpoints
	}
	if _, exists := endpoints[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	endpoints[e.ID] = copyEndpoint(e)
	return nil
}

// GetBySubscriber retrieves all endpoints of a subscriber ordered by (created_at, id).
func (s *EndpointStore) GetBySubscriber(_ context.Context, subscriberID string) ([]*domain.PushEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PushEndpoint
	for _, e := range s.bySubscriber[subscriberID] {
		result = append(result, copyEndpoint(e))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Delete removes one endpoint. Returns ErrNotFound if not exists.
func (s *EndpointStore) Delete(_ context.Context, subscriberID, endpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints, exists := s.bySubscriber[subscriberID]
	if !exists {
		return storage.ErrNotFound
	}
	if _, exists := endpoints[endpointID]; !exists {
		return storage.ErrNotFound
	}
	delete(endpoints, endpointID)
	return nil
}

func copyEndpoint(e *domain.PushEndpoint) *domain.PushEndpoint {
	eCopy := *e
	if e.Subscription != nil {
		sub := *e.Subscription
		eCopy.Subscription = &sub
	}
	return &eCopy
}

var _ storage.EndpointStore = (*EndpointStore)(nil)
