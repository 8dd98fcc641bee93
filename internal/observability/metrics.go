// Package observability provides Prometheus metrics, tracing and logging setup.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Webhook metrics
	WebhookRequests *prometheus.CounterVec
	EventsReceived  prometheus.Counter
	EventsSkipped   *prometheus.CounterVec

	// Pipeline metrics
	PipelineDuration     prometheus.Histogram
	NotificationsCreated prometheus.Counter
	NotificationDupes    prometheus.Counter
	NotificationErrors   prometheus.Counter

	// Cache and upstream metrics
	CacheLookups     *prometheus.CounterVec
	UpstreamCalls    *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec
	PriceFallbacks   prometheus.Counter
	SymbolFallbacks  prometheus.Counter
	DirectoryLookups *prometheus.CounterVec

	// Push metrics
	PushAttempts     *prometheus.CounterVec
	EndpointsPruned  prometheus.Counter
	LiveBroadcasts   prometheus.Counter
	LiveSubscribers  prometheus.Gauge
	DeliveryLogFails prometheus.Counter

	// Health
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg. A nil reg uses
// the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wallet_alerts"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		WebhookRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Webhook requests by response status",
		}, []string{"status"}),
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_received_total",
			Help:      "Events received in webhook batches, malformed ones included",
		}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_skipped_total",
			Help:      "Events not notified by reason",
		}, []string{"reason"}),

		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Batch processing duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		NotificationsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notifications_created_total",
			Help:      "Notifications newly created",
		}),
		NotificationDupes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notifications_duplicate_total",
			Help:      "Create attempts that found an existing notification",
		}),
		NotificationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "notification_errors_total",
			Help:      "Notification writes that failed with a storage error",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache, tier and result",
		}, []string{"cache", "tier", "result"}),
		UpstreamCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Upstream calls by service and status",
		}, []string{"service", "status"}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Upstream call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		UpstreamRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Upstream retries after rate limiting",
		}, []string{"service"}),
		PriceFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fallbacks_total",
			Help:      "Prices answered from a stale or zero fallback",
		}),
		SymbolFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "symbol",
			Name:      "fallbacks_total",
			Help:      "Symbols answered with the shortened id",
		}),
		DirectoryLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "lookups_total",
			Help:      "Watcher lookups by path (index, scan) and status",
		}, []string{"path", "status"}),

		PushAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "attempts_total",
			Help:      "Push attempts by endpoint kind and outcome",
		}, []string{"kind", "outcome"}),
		EndpointsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "endpoints_pruned_total",
			Help:      "Invalid push endpoints deleted",
		}),
		LiveBroadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "broadcasts_total",
			Help:      "Notifications written to live websocket clients",
		}),
		LiveSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connections",
			Help:      "Open live websocket connections",
		}),
		DeliveryLogFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "delivery_log_errors_total",
			Help:      "Delivery log appends that failed",
		}),

		LastSuccessfulBatch: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last successfully processed batch",
		}),
	}
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// DefaultMetrics returns the process-wide metrics registered on the default registry.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics("", nil)
	})
	return defaultMetrics
}

// NewTestMetrics returns metrics on a private registry so tests can build
// many instances.
func NewTestMetrics() *Metrics {
	return NewMetrics("test", prometheus.NewRegistry())
}

// Handler returns HTTP handler for Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCache records one cache lookup.
func (m *Metrics) RecordCache(cache, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, tier, result).Inc()
}

// RecordUpstream records one upstream call.
func (m *Metrics) RecordUpstream(service string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamCalls.WithLabelValues(service, status).Inc()
	m.UpstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// RecordPush records one push attempt outcome.
func (m *Metrics) RecordPush(kind, outcome string) {
	m.PushAttempts.WithLabelValues(kind, outcome).Inc()
}

// RecordBatch records a finished batch.
func (m *Metrics) RecordBatch(duration time.Duration, ok bool) {
	m.PipelineDuration.Observe(duration.Seconds())
	if ok {
		m.LastSuccessfulBatch.SetToCurrentTime()
	}
}
