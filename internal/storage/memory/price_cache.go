package memory

import (
	"context"
	"sync"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// PriceCache is an in-memory implementation of storage.SharedPriceCache.
// It stands in for the shared tier in single-process and test setups.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]domain.PriceEntry
}

// NewPriceCache creates a new in-memory shared price cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		entries: make(map[string]domain.PriceEntry),
	}
}

// Get returns the cached entry. Returns ErrNotFound if absent.
func (c *PriceCache) Get(_ context.Context, assetID string) (*domain.PriceEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[assetID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

// Set stores the entry.
func (c *PriceCache) Set(_ context.Context, assetID string, entry *domain.PriceEntry) error {
	if entry == nil || assetID == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[assetID] = *entry
	return nil
}

var _ storage.SharedPriceCache = (*PriceCache)(nil)
