// Package pricing resolves fiat unit prices through a process-local cache,
// a shared tier for hot assets, and a rate-limited upstream.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wallet-alerts/internal/cache"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/retry"
	"wallet-alerts/internal/storage"
)

// Defaults.
const (
	DefaultTTL          = 5 * time.Minute
	DefaultCapacity     = 10_000
	DefaultMaxBatch     = 100
	DefaultRetryWait    = 2 * time.Second
	DefaultMaxRetryWait = 10 * time.Second
)

// Options configures an Oracle.
type Options struct {
	Quotes QuoteClient
	// Shared is the cross-process tier. Nil disables it.
	Shared storage.SharedPriceCache
	// HotAssets are read from and written to Shared. Defaults to the native asset.
	HotAssets []string
	TTL       time.Duration
	Capacity  int
	// MaxBatch bounds ids per upstream request.
	MaxBatch int
	// Retry defaults to one retry on rate limit.
	Retry   *retry.Policy
	Clock   cache.Clock
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Oracle resolves prices. It never returns an error: unresolved ids fall
// back to the last known value, or zero.
type Oracle struct {
	quotes   QuoteClient
	shared   storage.SharedPriceCache
	hot      map[string]bool
	local    *cache.TTL[string, float64]
	maxBatch int
	policy   retry.Policy
	log      logrus.FieldLogger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewOracle creates an Oracle.
func NewOracle(opts Options) *Oracle {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.HotAssets == nil {
		opts.HotAssets = []string{domain.NativeMint}
	}
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer("pricing")
	}

	policy := retry.RateLimitPolicy(DefaultRetryWait, DefaultMaxRetryWait)
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	metrics := opts.Metrics
	prev := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.UpstreamRetries.WithLabelValues("price").Inc()
		if prev != nil {
			prev(attempt, err, wait)
		}
	}

	hot := make(map[string]bool, len(opts.HotAssets))
	for _, id := range opts.HotAssets {
		hot[id] = true
	}

	return &Oracle{
		quotes:   opts.Quotes,
		shared:   opts.Shared,
		hot:      hot,
		local:    cache.New[string, float64](opts.Capacity, opts.TTL, opts.Clock),
		maxBatch: opts.MaxBatch,
		policy:   policy,
		log:      opts.Logger.WithField("component", "pricing"),
		metrics:  metrics,
		tracer:   opts.Tracer,
	}
}

// GetPrice returns the fiat unit price of assetID.
func (o *Oracle) GetPrice(ctx context.Context, assetID string) float64 {
	return o.GetPrices(ctx, []string{assetID})[assetID]
}

// GetPrices returns a map holding every input id. Cache misses are fetched
// in as few upstream requests as MaxBatch allows.
func (o *Oracle) GetPrices(ctx context.Context, assetIDs []string) map[string]float64 {
	ctx, span := o.tracer.Start(ctx, "pricing.GetPrices")
	defer span.End()

	result := make(map[string]float64, len(assetIDs))
	staleShared := make(map[string]float64)
	var missing []string

	for _, id := range assetIDs {
		if _, seen := result[id]; seen {
			continue
		}
		result[id] = 0

		if price, ok := o.local.Get(id); ok {
			o.metrics.RecordCache("price", "local", true)
			result[id] = price
			continue
		}
		o.metrics.RecordCache("price", "local", false)

		if o.hot[id] && o.shared != nil {
			if price, fresh, found := o.readShared(ctx, id); found {
				if fresh {
					result[id] = price
					continue
				}
				staleShared[id] = price
			}
		}
		missing = append(missing, id)
	}

	span.SetAttributes(
		attribute.Int("pricing.requested", len(result)),
		attribute.Int("pricing.missing", len(missing)),
	)

	for start := 0; start < len(missing); start += o.maxBatch {
		end := start + o.maxBatch
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]

		fetched, err := o.fetch(ctx, chunk)
		if err != nil {
			o.log.WithError(err).WithField("ids", len(chunk)).Warn("price upstream failed, using fallback")
		}

		for _, id := range chunk {
			if price, ok := fetched[id]; ok {
				result[id] = price
				o.store(ctx, id, price)
				continue
			}
			result[id] = o.fallback(id, staleShared)
		}
	}

	return result
}

func (o *Oracle) fetch(ctx context.Context, ids []string) (map[string]float64, error) {
	if o.quotes == nil {
		return nil, errors.New("no quote client configured")
	}

	var prices map[string]float64
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		start := time.Now()
		var err error
		prices, err = o.quotes.Quote(ctx, ids)
		o.metrics.RecordUpstream("price", start, err)
		return err
	})
	return prices, err
}

// readShared returns the shared entry and whether it is within TTL.
func (o *Oracle) readShared(ctx context.Context, id string) (price float64, fresh, found bool) {
	entry, err := o.shared.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.log.WithError(err).WithField("asset_id", id).Warn("shared price read failed")
		}
		o.metrics.RecordCache("price", "shared", false)
		return 0, false, false
	}

	updated := time.UnixMilli(entry.UpdatedAt)
	if !o.local.Fresh(updated) {
		o.metrics.RecordCache("price", "shared", false)
		return entry.Price, false, true
	}

	o.metrics.RecordCache("price", "shared", true)
	o.local.PutAt(id, entry.Price, updated)
	return entry.Price, true, true
}

func (o *Oracle) store(ctx context.Context, id string, price float64) {
	now := o.local.Now()
	o.local.PutAt(id, price, now)

	if o.hot[id] && o.shared != nil {
		entry := &domain.PriceEntry{Price: price, UpdatedAt: now.UnixMilli()}
		if err := o.shared.Set(ctx, id, entry); err != nil {
			o.log.WithError(err).WithField("asset_id", id).Warn("shared price write failed")
		}
	}
}

func (o *Oracle) fallback(id string, staleShared map[string]float64) float64 {
	o.metrics.PriceFallbacks.Inc()
	if price, ok := o.local.GetStale(id); ok {
		return price
	}
	if price, ok := staleShared[id]; ok {
		return price
	}
	return 0
}
