package memory

import (
	"context"
	"errors"
	"testing"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

func TestPriceCache_SetAndGet(t *testing.T) {
	cache := NewPriceCache()
	ctx := context.Background()

	if _, err := cache.Get(ctx, domain.NativeMint); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := cache.Set(ctx, domain.NativeMint, &domain.PriceEntry{Price: 150, UpdatedAt: 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, err := cache.Get(ctx, domain.NativeMint)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Price != 150 || entry.UpdatedAt != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}
}
