package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

func TestEndpointStore_InsertAndGetBySubscriber(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEndpointStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.PushEndpoint{
		ID: "e2", SubscriberID: "sub1", Kind: domain.EndpointKindSubscription,
		Subscription: &domain.BrowserSubscription{Endpoint: "https://push.example/abc", P256dh: "key", Auth: "auth"},
		CreatedAt:    2000,
	}))
	require.NoError(t, store.Insert(ctx, &domain.PushEndpoint{
		ID: "e1", SubscriberID: "sub1", Kind: domain.EndpointKindToken, Token: "tok-1", CreatedAt: 1000,
	}))

	got, err := store.GetBySubscriber(ctx, "sub1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, domain.EndpointKindToken, got[0].Kind)
	assert.Equal(t, "tok-1", got[0].Token)
	assert.Nil(t, got[0].Subscription)

	assert.Equal(t, "e2", got[1].ID)
	require.NotNil(t, got[1].Subscription)
	assert.Equal(t, "https://push.example/abc", got[1].Subscription.Endpoint)
	assert.Equal(t, "key", got[1].Subscription.P256dh)
}

func TestEndpointStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEndpointStore(pool)

	e := &domain.PushEndpoint{ID: "e1", SubscriberID: "sub1", Kind: domain.EndpointKindToken, Token: "t", CreatedAt: 1}
	require.NoError(t, store.Insert(ctx, e))
	assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrDuplicateKey)
}

func TestEndpointStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEndpointStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.PushEndpoint{
		ID: "e1", SubscriberID: "sub1", Kind: domain.EndpointKindToken, Token: "t", CreatedAt: 1,
	}))

	require.NoError(t, store.Delete(ctx, "sub1", "e1"))
	assert.ErrorIs(t, store.Delete(ctx, "sub1", "e1"), storage.ErrNotFound)

	got, err := store.GetBySubscriber(ctx, "sub1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
