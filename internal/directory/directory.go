// Package directory answers which subscribers watch a wallet address.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/storage"
)

// IndexStatus describes what the reverse index held for an address.
type IndexStatus int

const (
	// IndexFound means the index entry exists and lists at least one watcher.
	IndexFound IndexStatus = iota
	// IndexMissing means the address has no index entry.
	IndexMissing
	// IndexEmpty means the entry exists but lists nobody.
	IndexEmpty
	// IndexError means the index could not be read.
	IndexError
)

func (s IndexStatus) String() string {
	switch s {
	case IndexFound:
		return "found"
	case IndexMissing:
		return "not_found"
	case IndexEmpty:
		return "empty_index"
	default:
		return "error"
	}
}

// LookupResult is the outcome of one watcher lookup.
type LookupResult struct {
	Index    IndexStatus
	Watchers []domain.Watcher
	// Degraded is set when the watchers came from the full scan.
	Degraded bool
	// NeedsBackfill is set when the scan found watchers the index lacks.
	NeedsBackfill bool
}

// Directory reads the reverse index and falls back to scanning watch lists.
type Directory struct {
	index     storage.WatcherIndexStore
	watchlist storage.WatchlistStore
	log       logrus.FieldLogger
	metrics   *observability.Metrics
}

// New creates a Directory. watchlist may be nil to disable the scan path.
func New(index storage.WatcherIndexStore, watchlist storage.WatchlistStore, log logrus.FieldLogger, metrics *observability.Metrics) *Directory {
	if log == nil {
		log = observability.DiscardLogger()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	return &Directory{
		index:     index,
		watchlist: watchlist,
		log:       log.WithField("component", "directory"),
		metrics:   metrics,
	}
}

// GetWatchers returns the watchers of address, possibly none. It never fails;
// read errors are logged and yield an empty set.
func (d *Directory) GetWatchers(ctx context.Context, address string) []domain.Watcher {
	return d.Lookup(ctx, address).Watchers
}

// Lookup resolves watchers and reports which path produced them.
func (d *Directory) Lookup(ctx context.Context, address string) LookupResult {
	watchers, err := d.index.GetWatchers(ctx, address)

	var res LookupResult
	switch {
	case err == nil && len(watchers) > 0:
		d.metrics.DirectoryLookups.WithLabelValues("index", IndexFound.String()).Inc()
		return LookupResult{Index: IndexFound, Watchers: watchers}
	case err == nil:
		res.Index = IndexEmpty
	case errors.Is(err, storage.ErrNotFound):
		res.Index = IndexMissing
	default:
		res.Index = IndexError
		d.log.WithError(err).WithField("address", address).Warn("watcher index read failed, scanning watch lists")
	}
	d.metrics.DirectoryLookups.WithLabelValues("index", res.Index.String()).Inc()

	if d.watchlist == nil {
		return res
	}

	scanned, err := d.scan(ctx, address)
	if err != nil {
		d.metrics.DirectoryLookups.WithLabelValues("scan", "error").Inc()
		d.log.WithError(err).WithField("address", address).Error("watch list scan failed")
		return res
	}

	res.Degraded = true
	res.Watchers = scanned
	if len(scanned) > 0 {
		res.NeedsBackfill = true
		d.metrics.DirectoryLookups.WithLabelValues("scan", "found").Inc()
		d.log.WithFields(logrus.Fields{
			"address":  address,
			"index":    res.Index.String(),
			"watchers": len(scanned),
		}).Warn("watchers found only by full scan, address needs backfill")
	} else {
		d.metrics.DirectoryLookups.WithLabelValues("scan", "none").Inc()
	}
	return res
}

func (d *Directory) scan(ctx context.Context, address string) ([]domain.Watcher, error) {
	var watchers []domain.Watcher
	err := d.watchlist.Scan(ctx, func(e *domain.WatchlistEntry) error {
		if e.Address == address {
			watchers = append(watchers, domain.Watcher{SubscriberID: e.SubscriberID, Nickname: e.Nickname})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(watchers, func(i, j int) bool {
		return watchers[i].SubscriberID < watchers[j].SubscriberID
	})
	return watchers, nil
}

// BackfillResult summarizes a Backfill run.
type BackfillResult struct {
	Entries   int
	Addresses int
	Errors    []string
}

// Backfill writes every watch list entry into the reverse index. Put is an
// upsert, so reruns are safe.
func (d *Directory) Backfill(ctx context.Context) (*BackfillResult, error) {
	if d.watchlist == nil {
		return nil, fmt.Errorf("backfill: no watch list store configured")
	}

	result := &BackfillResult{}
	addresses := make(map[string]struct{})

	err := d.watchlist.Scan(ctx, func(e *domain.WatchlistEntry) error {
		result.Entries++
		w := domain.Watcher{SubscriberID: e.SubscriberID, Nickname: e.Nickname}
		if err := d.index.Put(ctx, e.Address, w); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", e.Address, e.SubscriberID, err))
			return nil
		}
		addresses[e.Address] = struct{}{}
		return nil
	})
	result.Addresses = len(addresses)
	if err != nil {
		return result, fmt.Errorf("scan watch lists: %w", err)
	}

	d.log.WithFields(logrus.Fields{
		"entries":   result.Entries,
		"addresses": result.Addresses,
		"errors":    len(result.Errors),
	}).Info("reverse index backfill finished")
	return result, nil
}
