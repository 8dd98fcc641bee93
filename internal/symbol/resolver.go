// Package symbol resolves display symbols for asset ids.
package symbol

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/cache"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
)

// ErrNoMetadata is returned by a Source when the asset definitively has no
// usable name or symbol.
var ErrNoMetadata = errors.New("no metadata")

// Source looks up the display symbol of an asset upstream.
type Source interface {
	Lookup(ctx context.Context, assetID string) (string, error)
}

// Defaults.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 10_000
)

// Options configures a Resolver.
type Options struct {
	Source   Source
	TTL      time.Duration
	Capacity int
	// Known maps ids to fixed symbols that skip the upstream.
	Known   map[string]string
	Clock   cache.Clock
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
}

// Resolver resolves symbols through a process-local TTL cache. It never
// fails: unknown assets render as FallbackLabel(id).
type Resolver struct {
	source  Source
	known   map[string]string
	local   *cache.TTL[string, string]
	log     logrus.FieldLogger
	metrics *observability.Metrics
}

// NewResolver creates a Resolver.
func NewResolver(opts Options) *Resolver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics()
	}

	known := map[string]string{domain.NativeMint: "SOL"}
	for id, sym := range opts.Known {
		known[id] = sym
	}

	return &Resolver{
		source:  opts.Source,
		known:   known,
		local:   cache.New[string, string](opts.Capacity, opts.TTL, opts.Clock),
		log:     opts.Logger.WithField("component", "symbol"),
		metrics: opts.Metrics,
	}
}

// GetSymbol returns a display string for assetID.
func (r *Resolver) GetSymbol(ctx context.Context, assetID string) string {
	if sym, ok := r.known[assetID]; ok {
		return sym
	}

	if sym, ok := r.local.Get(assetID); ok {
		r.metrics.RecordCache("symbol", "local", true)
		return sym
	}
	r.metrics.RecordCache("symbol", "local", false)

	if r.source == nil {
		r.metrics.SymbolFallbacks.Inc()
		return FallbackLabel(assetID)
	}

	start := time.Now()
	sym, err := r.source.Lookup(ctx, assetID)
	r.metrics.RecordUpstream("symbol", start, err)

	switch {
	case err == nil && sym != "":
		r.local.Put(assetID, sym)
		return sym
	case err == nil || errors.Is(err, ErrNoMetadata):
		// definitive answer, cache the fallback so the upstream is not asked again within TTL
		r.metrics.SymbolFallbacks.Inc()
		label := FallbackLabel(assetID)
		r.local.Put(assetID, label)
		return label
	default:
		r.log.WithError(err).WithField("asset_id", assetID).Warn("symbol lookup failed")
		r.metrics.SymbolFallbacks.Inc()
		if stale, ok := r.local.GetStale(assetID); ok {
			return stale
		}
		return FallbackLabel(assetID)
	}
}

// FallbackLabel shortens an id to its first and last four characters joined
// by "...". Ids of 11 characters or fewer are returned unchanged.
func FallbackLabel(id string) string {
	r := []rune(id)
	if len(r) <= 11 {
		return id
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}
