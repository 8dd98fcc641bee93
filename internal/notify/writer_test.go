package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/classify"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/idhash"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/storage/memory"
)

type brokenStore struct{ *memory.NotificationStore }

func (brokenStore) Insert(context.Context, *domain.Notification) error {
	return errors.New("connection refused")
}

func sample() *domain.Notification {
	return &domain.Notification{
		ID:           idhash.ComputeNotificationID("sig1", "A"),
		SubscriberID: "A",
		Signature:    "sig1",
		Title:        "Buy Transaction",
	}
}

func TestCreateIfAbsent(t *testing.T) {
	store := memory.NewNotificationStore()
	w := NewWriter(store, nil, observability.NewTestMetrics())
	ctx := context.Background()

	created, err := w.CreateIfAbsent(ctx, sample())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = w.CreateIfAbsent(ctx, sample())
	require.NoError(t, err)
	assert.False(t, created, "second write of the same id is a no-op")

	assert.Equal(t, 1, store.Count())
}

func TestCreateIfAbsent_FillsMissingID(t *testing.T) {
	store := memory.NewNotificationStore()
	w := NewWriter(store, nil, observability.NewTestMetrics())

	n := sample()
	n.ID = ""
	created, err := w.CreateIfAbsent(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, idhash.ComputeNotificationID("sig1", "A"), n.ID)
}

func TestCreateIfAbsent_StoreErrorPropagates(t *testing.T) {
	w := NewWriter(brokenStore{memory.NewNotificationStore()}, nil, observability.NewTestMetrics())

	created, err := w.CreateIfAbsent(context.Background(), sample())
	require.Error(t, err)
	assert.False(t, created)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBuild(t *testing.T) {
	mint := "XmintXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	nick := "Whale"
	e := &domain.TransactionEvent{Signature: "sig1", Signer: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"}
	c := classify.Classification{
		Analysis: classify.Analysis{Direction: domain.NotificationTypeBuy, PrimaryAsset: mint, Amount: 1000},
		ValueUSD: 300,
	}
	now := time.UnixMilli(1_700_000_000_000)

	n := Build(e, domain.Watcher{SubscriberID: "A", Nickname: &nick}, c, "BONK", now)

	assert.Equal(t, idhash.ComputeNotificationID("sig1", "A"), n.ID)
	assert.Equal(t, "A", n.SubscriberID)
	assert.Equal(t, e.Signer, n.WatchedAddress)
	assert.Equal(t, domain.NotificationTypeBuy, n.Type)
	assert.Equal(t, "Buy Transaction", n.Title)
	assert.Equal(t, "Whale bought $300 of BONK", n.Message)
	require.NotNil(t, n.AssetID)
	assert.Equal(t, mint, *n.AssetID)
	assert.Equal(t, 1000.0, n.Amount)
	assert.False(t, n.Read)
	assert.Equal(t, int64(1_700_000_000_000), n.CreatedAt)

	anon := Build(e, domain.Watcher{SubscriberID: "B"}, classify.Classification{
		Analysis: classify.Analysis{Direction: domain.NotificationTypeOther},
		ValueUSD: 0.5,
	}, "", now)
	assert.Nil(t, anon.AssetID)
	assert.Equal(t, "New Transaction", anon.Title)
	assert.Equal(t, "7xKX...gAsU made a transaction worth $0.50", anon.Message)
}
