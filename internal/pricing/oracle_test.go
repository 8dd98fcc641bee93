package pricing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/cache"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/retry"
	"wallet-alerts/internal/storage/memory"
)

// fakeQuotes answers from prices and pops one scripted error per call first.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   []error
	calls  [][]string
}

func (f *fakeQuotes) Quote(_ context.Context, ids []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), ids...))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	out := make(map[string]float64)
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func newTestOracle(t *testing.T, quotes QuoteClient, shared *memory.PriceCache, clock *cache.ManualClock) (*Oracle, *sleepRecorder) {
	t.Helper()

	rec := &sleepRecorder{}
	policy := retry.RateLimitPolicy(DefaultRetryWait, DefaultMaxRetryWait)
	policy.Sleep = rec.sleep

	opts := Options{
		Quotes:  quotes,
		TTL:     5 * time.Minute,
		Retry:   &policy,
		Clock:   clock.Now,
		Metrics: observability.NewTestMetrics(),
	}
	if shared != nil {
		opts.Shared = shared
	}
	return NewOracle(opts), rec
}

func TestOracle_CachesWithinTTL(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{prices: map[string]float64{"X": 2.5}}
	oracle, _ := newTestOracle(t, quotes, nil, clock)
	ctx := context.Background()

	assert.Equal(t, 2.5, oracle.GetPrice(ctx, "X"))
	clock.Advance(4 * time.Minute)
	assert.Equal(t, 2.5, oracle.GetPrice(ctx, "X"))
	assert.Equal(t, 1, quotes.callCount(), "second call within TTL must be served from cache")

	clock.Advance(2 * time.Minute)
	quotes.prices["X"] = 3.0
	assert.Equal(t, 3.0, oracle.GetPrice(ctx, "X"))
	assert.Equal(t, 2, quotes.callCount(), "expired entry triggers exactly one upstream call")
}

func TestOracle_RateLimitedOnceThenSucceeds(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{
		prices: map[string]float64{domain.NativeMint: 150},
		errs:   []error{&retry.RateLimitError{}},
	}
	oracle, rec := newTestOracle(t, quotes, nil, clock)

	price := oracle.GetPrice(context.Background(), domain.NativeMint)

	assert.Equal(t, 150.0, price)
	assert.Equal(t, 2, quotes.callCount())
	assert.Equal(t, []time.Duration{DefaultRetryWait}, rec.waits, "exactly one backoff delay")
}

func TestOracle_RateLimitedTwiceFallsBackToZero(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{
		prices: map[string]float64{"X": 1},
		errs:   []error{&retry.RateLimitError{RetryAfter: time.Minute}, &retry.RateLimitError{}},
	}
	oracle, rec := newTestOracle(t, quotes, nil, clock)

	assert.Equal(t, 0.0, oracle.GetPrice(context.Background(), "X"))
	assert.Equal(t, 2, quotes.callCount(), "one retry only")
	assert.Equal(t, []time.Duration{DefaultMaxRetryWait}, rec.waits, "server hint is capped")
}

func TestOracle_FallsBackToStaleValue(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{prices: map[string]float64{"X": 4}}
	oracle, _ := newTestOracle(t, quotes, nil, clock)
	ctx := context.Background()

	require.Equal(t, 4.0, oracle.GetPrice(ctx, "X"))

	clock.Advance(10 * time.Minute)
	quotes.errs = []error{errors.New("upstream down")}

	assert.Equal(t, 4.0, oracle.GetPrice(ctx, "X"))
}

func TestOracle_GetPricesCompleteMapSingleCall(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{prices: map[string]float64{"A": 1, "B": 2}}
	oracle, _ := newTestOracle(t, quotes, nil, clock)

	prices := oracle.GetPrices(context.Background(), []string{"A", "B", "unknown", "A"})

	assert.Equal(t, map[string]float64{"A": 1, "B": 2, "unknown": 0}, prices)
	require.Equal(t, 1, quotes.callCount())

	got := quotes.calls[0]
	sort.Strings(got)
	assert.Equal(t, []string{"A", "B", "unknown"}, got)
}

func TestOracle_ChunksLargeBatches(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	quotes := &fakeQuotes{prices: map[string]float64{}}
	oracle := NewOracle(Options{
		Quotes:   quotes,
		MaxBatch: 2,
		Clock:    clock.Now,
		Metrics:  observability.NewTestMetrics(),
	})

	prices := oracle.GetPrices(context.Background(), []string{"a", "b", "c", "d", "e"})

	assert.Len(t, prices, 5)
	assert.Equal(t, 3, quotes.callCount())
}

func TestOracle_SharedTierForHotAssets(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	shared := memory.NewPriceCache()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, domain.NativeMint, &domain.PriceEntry{
		Price:     151,
		UpdatedAt: clock.Now().Add(-time.Minute).UnixMilli(),
	}))

	quotes := &fakeQuotes{prices: map[string]float64{domain.NativeMint: 999, "X": 1}}
	oracle, _ := newTestOracle(t, quotes, shared, clock)

	assert.Equal(t, 151.0, oracle.GetPrice(ctx, domain.NativeMint))
	assert.Equal(t, 0, quotes.callCount(), "fresh shared entry avoids upstream")

	// non-hot assets never touch the shared tier
	assert.Equal(t, 1.0, oracle.GetPrice(ctx, "X"))
	_, err := shared.Get(ctx, "X")
	assert.Error(t, err)
}

func TestOracle_StaleSharedEntryRefreshed(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	shared := memory.NewPriceCache()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, domain.NativeMint, &domain.PriceEntry{
		Price:     100,
		UpdatedAt: clock.Now().Add(-time.Hour).UnixMilli(),
	}))

	quotes := &fakeQuotes{prices: map[string]float64{domain.NativeMint: 150}}
	oracle, _ := newTestOracle(t, quotes, shared, clock)

	assert.Equal(t, 150.0, oracle.GetPrice(ctx, domain.NativeMint))
	assert.Equal(t, 1, quotes.callCount())

	entry, err := shared.Get(ctx, domain.NativeMint)
	require.NoError(t, err)
	assert.Equal(t, 150.0, entry.Price)
	assert.Equal(t, clock.Now().UnixMilli(), entry.UpdatedAt)
}

func TestOracle_StaleSharedUsedWhenUpstreamFails(t *testing.T) {
	clock := cache.NewManualClock(time.Unix(1700000000, 0))
	shared := memory.NewPriceCache()
	ctx := context.Background()

	require.NoError(t, shared.Set(ctx, domain.NativeMint, &domain.PriceEntry{
		Price:     100,
		UpdatedAt: clock.Now().Add(-time.Hour).UnixMilli(),
	}))

	quotes := &fakeQuotes{errs: []error{errors.New("down")}}
	oracle, _ := newTestOracle(t, quotes, shared, clock)

	assert.Equal(t, 100.0, oracle.GetPrice(ctx, domain.NativeMint))
}
