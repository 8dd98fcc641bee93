// Package notify builds notification records and writes them idempotently.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/classify"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/idhash"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/storage"
)

// Writer creates notifications under their deterministic id.
type Writer struct {
	store   storage.NotificationStore
	log     logrus.FieldLogger
	metrics *observability.Metrics
}

// NewWriter creates a Writer.
func NewWriter(store storage.NotificationStore, log logrus.FieldLogger, metrics *observability.Metrics) *Writer {
	if log == nil {
		log = observability.DiscardLogger()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}
	return &Writer{
		store:   store,
		log:     log.WithField("component", "notify"),
		metrics: metrics,
	}
}

// CreateIfAbsent inserts n. An existing record with the same id is reported
// as created=false with a nil error; any other store failure is returned.
func (w *Writer) CreateIfAbsent(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = idhash.ComputeNotificationID(n.Signature, n.SubscriberID)
	}

	err := w.store.Insert(ctx, n)
	switch {
	case err == nil:
		w.metrics.NotificationsCreated.Inc()
		return true, nil
	case errors.Is(err, storage.ErrDuplicateKey):
		w.metrics.NotificationDupes.Inc()
		w.log.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"signature":       n.Signature,
			"subscriber_id":   n.SubscriberID,
		}).Debug("notification already exists")
		return false, nil
	default:
		w.metrics.NotificationErrors.Inc()
		return false, fmt.Errorf("insert notification %s: %w", n.ID, err)
	}
}

// Build assembles the notification for one (event, watcher) pair.
func Build(e *domain.TransactionEvent, w domain.Watcher, c classify.Classification, sym string, now time.Time) *domain.Notification {
	var asset *string
	if c.PrimaryAsset != "" {
		a := c.PrimaryAsset
		asset = &a
	}

	return &domain.Notification{
		ID:             idhash.ComputeNotificationID(e.Signature, w.SubscriberID),
		SubscriberID:   w.SubscriberID,
		WatchedAddress: e.Signer,
		Type:           c.Direction,
		Title:          classify.Title(c.Direction),
		Message:        classify.Message(classify.DisplayName(w, e.Signer), c.Direction, c.ValueUSD, sym),
		Signature:      e.Signature,
		AssetID:        asset,
		Amount:         c.Amount,
		ValueUSD:       c.ValueUSD,
		CreatedAt:      now.UnixMilli(),
	}
}
