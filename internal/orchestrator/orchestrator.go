// Package orchestrator runs the transaction-notification pipeline for one
// webhook batch.
// Flow: filter → price & resolve → lookup watchers → write → dispatch → prune
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"wallet-alerts/internal/classify"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/ingest"
	"wallet-alerts/internal/notify"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/push"
	"wallet-alerts/internal/storage"
)

// Defaults.
const DefaultConcurrency = 8

// DefaultClassifiableTypes are the event types that produce notifications.
var DefaultClassifiableTypes = []domain.EventType{
	domain.EventTypeSwap,
	domain.EventTypeBuy,
	domain.EventTypeSell,
}

// Directory resolves the watchers of an address. It never fails.
type Directory interface {
	GetWatchers(ctx context.Context, address string) []domain.Watcher
}

// PriceOracle returns a price for every requested id.
type PriceOracle interface {
	GetPrices(ctx context.Context, assetIDs []string) map[string]float64
}

// SymbolResolver returns a display symbol, never failing.
type SymbolResolver interface {
	GetSymbol(ctx context.Context, assetID string) string
}

// Dispatcher delivers a payload to endpoints.
type Dispatcher interface {
	Send(ctx context.Context, endpoints []*domain.PushEndpoint, p push.Payload) push.Report
}

// Broadcaster pushes a notification to live in-app clients.
type Broadcaster interface {
	Broadcast(subscriberID string, n *domain.Notification) int
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	Directory  Directory
	Prices     PriceOracle
	Symbols    SymbolResolver
	Writer     *notify.Writer
	Endpoints  storage.EndpointStore
	Dispatcher Dispatcher

	// Optional collaborators
	Classifier  *classify.Classifier
	Live        Broadcaster
	DeliveryLog storage.DeliveryLogStore

	// Tuning
	Concurrency       int
	ClassifiableTypes []domain.EventType
	Now               func() time.Time

	Logger  logrus.FieldLogger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Orchestrator coordinates one pipeline invocation per batch.
type Orchestrator struct {
	directory   Directory
	prices      PriceOracle
	symbols     SymbolResolver
	writer      *notify.Writer
	endpoints   storage.EndpointStore
	dispatcher  Dispatcher
	classifier  *classify.Classifier
	live        Broadcaster
	deliveryLog storage.DeliveryLogStore

	concurrency  int
	classifiable map[domain.EventType]bool
	now          func() time.Time

	log     logrus.FieldLogger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Classifier == nil {
		opts.Classifier = classify.New("")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if len(opts.ClassifiableTypes) == 0 {
		opts.ClassifiableTypes = DefaultClassifiableTypes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer("orchestrator")
	}

	classifiable := make(map[domain.EventType]bool, len(opts.ClassifiableTypes))
	for _, t := range opts.ClassifiableTypes {
		classifiable[t] = true
	}

	return &Orchestrator{
		directory:    opts.Directory,
		prices:       opts.Prices,
		symbols:      opts.Symbols,
		writer:       opts.Writer,
		endpoints:    opts.Endpoints,
		dispatcher:   opts.Dispatcher,
		classifier:   opts.Classifier,
		live:         opts.Live,
		deliveryLog:  opts.DeliveryLog,
		concurrency:  opts.Concurrency,
		classifiable: classifiable,
		now:          opts.Now,
		log:          opts.Logger.WithField("component", "orchestrator"),
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
	}
}

// RunResult contains results from one pipeline invocation.
type RunResult struct {
	// Processed counts every input item, including rejected and skipped ones.
	Processed int
	Rejected  int
	Skipped   int
	Watched   int

	Created    int
	Duplicates int
	Failed     int

	Delivered int
	Pruned    int
	Errors    []string
}

// ProcessBatch runs a decoded webhook batch. Rejected items still count
// towards Processed.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batch *ingest.Batch) (*RunResult, error) {
	for _, r := range batch.Rejected {
		o.log.WithError(r.Err).WithFields(logrus.Fields{"index": r.Index, "shape": r.Shape}).Warn("item rejected")
		o.metrics.EventsSkipped.WithLabelValues("malformed").Inc()
	}

	result, err := o.Process(ctx, batch.Events)
	if result != nil {
		result.Processed = batch.Total
		result.Rejected = len(batch.Rejected)
	}
	return result, err
}

// Process runs the pipeline over events. Per-event and per-pair failures
// are collected in RunResult.Errors; the only error returned is the
// context's, when the invocation ran out of time or was cancelled.
//
// Phases:
//  1. Filter to classifiable event types
//  2. Resolve prices and symbols once per distinct asset
//  3. Per event: lookup watchers, classify, create notifications
//  4. Per subscriber with new notifications: fetch endpoints once, dispatch, prune
func (o *Orchestrator) Process(ctx context.Context, events []*domain.TransactionEvent) (*RunResult, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(attribute.Int("pipeline.events", len(events))))
	defer span.End()

	o.metrics.EventsReceived.Add(float64(len(events)))
	t := &tally{result: RunResult{Processed: len(events)}}

	// Phase 1
	selected := o.filter(events, t)

	// Phase 2
	analyses := make([]classify.Analysis, len(selected))
	for i, ev := range selected {
		analyses[i] = o.classifier.Analyze(ev)
	}
	prices, symbols := o.resolve(ctx, selected, analyses)

	// Phase 3
	created := o.writeAll(ctx, selected, prices, symbols, t)

	// Phase 4
	o.dispatchAll(ctx, created, t)

	result := t.snapshot()
	err := ctx.Err()
	o.metrics.RecordBatch(time.Since(start), err == nil)
	span.SetAttributes(
		attribute.Int("pipeline.created", result.Created),
		attribute.Int("pipeline.failed", result.Failed),
	)

	entry := o.log.WithFields(logrus.Fields{
		"processed":  result.Processed,
		"skipped":    result.Skipped,
		"created":    result.Created,
		"duplicates": result.Duplicates,
		"failed":     result.Failed,
		"delivered":  result.Delivered,
		"pruned":     result.Pruned,
		"duration":   time.Since(start).String(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline interrupted")
		entry.WithError(err).Error("pipeline interrupted")
		return &result, fmt.Errorf("pipeline interrupted: %w", err)
	}
	entry.Info("pipeline completed")
	return &result, nil
}

func (o *Orchestrator) filter(events []*domain.TransactionEvent, t *tally) []*domain.TransactionEvent {
	selected := make([]*domain.TransactionEvent, 0, len(events))
	for _, ev := range events {
		if ev == nil || !o.classifiable[ev.Type] {
			t.skip()
			o.metrics.EventsSkipped.WithLabelValues("type").Inc()
			continue
		}
		selected = append(selected, ev)
	}
	return selected
}

// resolve prices every asset the batch references and symbols every
// primary asset, each id exactly once.
func (o *Orchestrator) resolve(ctx context.Context, events []*domain.TransactionEvent, analyses []classify.Analysis) (map[string]float64, map[string]string) {
	if len(events) == 0 {
		return map[string]float64{}, map[string]string{}
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.resolve")
	defer span.End()

	priceIDs := []string{o.classifier.NativeAsset()}
	seen := map[string]bool{o.classifier.NativeAsset(): true}
	for _, ev := range events {
		for _, id := range ev.AssetIDs() {
			if !seen[id] {
				seen[id] = true
				priceIDs = append(priceIDs, id)
			}
		}
	}

	var symbolIDs []string
	seenSym := make(map[string]bool)
	for _, a := range analyses {
		if a.PrimaryAsset != "" && !seenSym[a.PrimaryAsset] {
			seenSym[a.PrimaryAsset] = true
			symbolIDs = append(symbolIDs, a.PrimaryAsset)
		}
	}
	span.SetAttributes(attribute.Int("pipeline.price_ids", len(priceIDs)), attribute.Int("pipeline.symbol_ids", len(symbolIDs)))

	var (
		prices  map[string]float64
		symbols = make(map[string]string, len(symbolIDs))
		mu      sync.Mutex
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency + 1)
	g.Go(func() error {
		prices = o.prices.GetPrices(ctx, priceIDs)
		return nil
	})
	for _, id := range symbolIDs {
		g.Go(func() error {
			sym := o.symbols.GetSymbol(ctx, id)
			mu.Lock()
			symbols[id] = sym
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if prices == nil {
		prices = map[string]float64{}
	}
	return prices, symbols
}

// writeAll handles events concurrently. Watchers of one event are written
// sequentially.
func (o *Orchestrator) writeAll(ctx context.Context, events []*domain.TransactionEvent, prices map[string]float64, symbols map[string]string, t *tally) []*domain.Notification {
	var (
		mu      sync.Mutex
		created []*domain.Notification
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, ev := range events {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ns := o.processEvent(ctx, ev, prices, symbols, t)
			if len(ns) > 0 {
				mu.Lock()
				created = append(created, ns...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return created
}

func (o *Orchestrator) processEvent(ctx context.Context, ev *domain.TransactionEvent, prices map[string]float64, symbols map[string]string, t *tally) []*domain.Notification {
	ctx, span := o.tracer.Start(ctx, "pipeline.event", trace.WithAttributes(attribute.String("tx.signature", ev.Signature)))
	defer span.End()

	log := o.log.WithField("signature", ev.Signature)

	watchers := o.directory.GetWatchers(ctx, ev.Signer)
	if len(watchers) == 0 {
		t.skip()
		o.metrics.EventsSkipped.WithLabelValues("no_watchers").Inc()
		return nil
	}
	t.watched()

	c := o.classifier.Classify(ev, prices)
	sym := symbols[c.PrimaryAsset]
	now := o.now()

	var created []*domain.Notification
	for _, w := range watchers {
		if ctx.Err() != nil {
			break
		}
		n := notify.Build(ev, w, c, sym, now)
		ok, err := o.writer.CreateIfAbsent(ctx, n)
		switch {
		case err != nil:
			t.fail(fmt.Sprintf("create %s/%s: %v", ev.Signature, w.SubscriberID, err))
			log.WithError(err).WithField("subscriber_id", w.SubscriberID).Error("notification write failed")
		case ok:
			t.created()
			created = append(created, n)
		default:
			t.duplicate()
		}
	}
	span.SetAttributes(attribute.Int("pipeline.watchers", len(watchers)), attribute.Int("pipeline.created", len(created)))
	return created
}

// dispatchAll groups new notifications by subscriber so endpoints are
// fetched once per subscriber.
func (o *Orchestrator) dispatchAll(ctx context.Context, created []*domain.Notification, t *tally) {
	if len(created) == 0 {
		return
	}
	ctx, span := o.tracer.Start(ctx, "pipeline.dispatch")
	defer span.End()

	bySubscriber := make(map[string][]*domain.Notification)
	for _, n := range created {
		bySubscriber[n.SubscriberID] = append(bySubscriber[n.SubscriberID], n)
	}
	subscribers := make([]string, 0, len(bySubscriber))
	for id := range bySubscriber {
		subscribers = append(subscribers, id)
	}
	sort.Strings(subscribers)
	span.SetAttributes(attribute.Int("pipeline.subscribers", len(subscribers)))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, id := range subscribers {
		g.Go(func() error {
			o.dispatchSubscriber(ctx, id, bySubscriber[id], t)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) dispatchSubscriber(ctx context.Context, subscriberID string, notifications []*domain.Notification, t *tally) {
	log := o.log.WithField("subscriber_id", subscriberID)

	if o.live != nil {
		for _, n := range notifications {
			o.live.Broadcast(subscriberID, n)
		}
	}

	endpoints, err := o.endpoints.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		t.fail(fmt.Sprintf("endpoints %s: %v", subscriberID, err))
		log.WithError(err).Error("endpoint lookup failed")
		return
	}
	if len(endpoints) == 0 {
		return
	}

	invalid := make(map[string]*domain.PushEndpoint)
	for _, n := range notifications {
		if ctx.Err() != nil {
			break
		}
		active := make([]*domain.PushEndpoint, 0, len(endpoints))
		for _, e := range endpoints {
			if _, gone := invalid[e.ID]; !gone {
				active = append(active, e)
			}
		}
		if len(active) == 0 {
			break
		}

		report := o.dispatcher.Send(ctx, active, payload(n))
		t.delivered(report.Delivered())
		for _, e := range report.Invalid {
			invalid[e.ID] = e
		}
		o.recordDeliveries(ctx, n, report)
	}

	// sorted so pruning order is stable in logs
	ids := make([]string, 0, len(invalid))
	for id := range invalid {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		err := o.endpoints.Delete(ctx, subscriberID, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			t.fail(fmt.Sprintf("prune %s/%s: %v", subscriberID, id, err))
			log.WithError(err).WithField("endpoint_id", id).Error("endpoint prune failed")
			continue
		}
		t.pruned()
		o.metrics.EndpointsPruned.Inc()
		log.WithField("endpoint_id", id).Info("pruned invalid push endpoint")
	}
}

func (o *Orchestrator) recordDeliveries(ctx context.Context, n *domain.Notification, report push.Report) {
	if o.deliveryLog == nil || len(report.Results) == 0 {
		return
	}
	if err := o.deliveryLog.InsertBulk(ctx, report.Records(n.ID, o.now())); err != nil {
		o.metrics.DeliveryLogFails.Inc()
		o.log.WithError(err).WithField("notification_id", n.ID).Warn("delivery log write failed")
	}
}

func payload(n *domain.Notification) push.Payload {
	data := map[string]string{
		"notification_id": n.ID,
		"type":            string(n.Type),
		"signature":       n.Signature,
		"watched_address": n.WatchedAddress,
	}
	if n.AssetID != nil {
		data["asset_id"] = *n.AssetID
	}
	return push.Payload{Title: n.Title, Body: n.Message, Data: data}
}

// tally accumulates counters from concurrent workers.
type tally struct {
	mu     sync.Mutex
	result RunResult
}

func (t *tally) update(fn func(r *RunResult)) {
	t.mu.Lock()
	fn(&t.result)
	t.mu.Unlock()
}

func (t *tally) skip()      { t.update(func(r *RunResult) { r.Skipped++ }) }
func (t *tally) watched()   { t.update(func(r *RunResult) { r.Watched++ }) }
func (t *tally) created()   { t.update(func(r *RunResult) { r.Created++ }) }
func (t *tally) duplicate() { t.update(func(r *RunResult) { r.Duplicates++ }) }
func (t *tally) pruned()    { t.update(func(r *RunResult) { r.Pruned++ }) }

func (t *tally) delivered(n int) { t.update(func(r *RunResult) { r.Delivered += n }) }

func (t *tally) fail(msg string) {
	t.mu.Lock()
	t.result.Failed++
	t.result.Errors = append(t.result.Errors, msg)
	t.mu.Unlock()
}

func (t *tally) snapshot() RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.result
	r.Errors = append([]string(nil), t.result.Errors...)
	return r
}
