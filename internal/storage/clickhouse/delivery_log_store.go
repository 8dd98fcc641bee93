package clickhouse

import (
	"context"
	"fmt"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// DeliveryLogStore implements storage.DeliveryLogStore using ClickHouse.
type DeliveryLogStore struct {
	conn *Conn
}

// NewDeliveryLogStore creates a new DeliveryLogStore.
func NewDeliveryLogStore(conn *Conn) *DeliveryLogStore {
	return &DeliveryLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DeliveryLogStore = (*DeliveryLogStore)(nil)

// InsertBulk appends delivery records in one batch.
func (s *DeliveryLogStore) InsertBulk(ctx context.Context, records []*domain.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO push_deliveries (
			notification_id, subscriber_id, endpoint_id, kind, outcome, error, at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			r.NotificationID, r.SubscriberID, r.EndpointID,
			string(r.Kind), string(r.Outcome), r.Error, r.At,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByNotification retrieves all attempts for a notification ordered by time ASC.
func (s *DeliveryLogStore) GetByNotification(ctx context.Context, notificationID string) ([]*domain.DeliveryRecord, error) {
	query := `
		SELECT notification_id, subscriber_id, endpoint_id, kind, outcome, error, at_ms
		FROM push_deliveries
		WHERE notification_id = ?
		ORDER BY at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		var kind, outcome string
		if err := rows.Scan(
			&r.NotificationID, &r.SubscriberID, &r.EndpointID,
			&kind, &outcome, &r.Error, &r.At,
		); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		r.Kind = domain.EndpointKind(kind)
		r.Outcome = domain.DeliveryOutcome(outcome)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}
	return records, nil
}
