package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

func testNotification(id, subscriberID string, createdAt int64) *domain.Notification {
	return &domain.Notification{
		ID:             id,
		SubscriberID:   subscriberID,
		WatchedAddress: "WalletAddr1111",
		Type:           domain.NotificationTypeBuy,
		Title:          "Buy Transaction",
		Message:        "Whale bought $150 of BONK",
		Signature:      "sig-" + id,
		AssetID:        ptr("BonkMint"),
		Amount:         1000,
		ValueUSD:       150,
		CreatedAt:      createdAt,
	}
}

func TestNotificationStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNotificationStore(pool)

	n := testNotification("n1", "sub1", 1700000000000)
	require.NoError(t, store.Insert(ctx, n))

	got, err := store.GetByID(ctx, "n1")
	require.NoError(t, err)

	assert.Equal(t, n.SubscriberID, got.SubscriberID)
	assert.Equal(t, n.Type, got.Type)
	assert.Equal(t, n.Message, got.Message)
	require.NotNil(t, got.AssetID)
	assert.Equal(t, "BonkMint", *got.AssetID)
	assert.InDelta(t, 150.0, got.ValueUSD, 0.0001)
	assert.False(t, got.Read)
}

func TestNotificationStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNotificationStore(pool)

	n := testNotification("dup", "sub1", 1700000000000)
	require.NoError(t, store.Insert(ctx, n))

	err := store.Insert(ctx, n)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestNotificationStore_ConcurrentInsertSingleWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNotificationStore(pool)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Insert(ctx, testNotification("race", "sub1", 1700000000000))
		}(i)
	}
	wg.Wait()

	var created, duplicates int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, storage.ErrDuplicateKey):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
}

func TestNotificationStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewNotificationStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNotificationStore_GetBySubscriber(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNotificationStore(pool)

	require.NoError(t, store.Insert(ctx, testNotification("a", "sub1", 1000)))
	require.NoError(t, store.Insert(ctx, testNotification("b", "sub1", 3000)))
	require.NoError(t, store.Insert(ctx, testNotification("c", "sub1", 2000)))
	require.NoError(t, store.Insert(ctx, testNotification("d", "sub2", 4000)))

	got, err := store.GetBySubscriber(ctx, "sub1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	all, err := store.GetBySubscriber(ctx, "sub1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
