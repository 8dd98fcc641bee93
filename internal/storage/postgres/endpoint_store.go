package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/storage"
)

// EndpointStore implements storage.EndpointStore using PostgreSQL.
type EndpointStore struct {
	pool *Pool
}

// NewEndpointStore creates a new EndpointStore.
func NewEndpointStore(pool *Pool) *EndpointStore {
	return &EndpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EndpointStore = (*EndpointStore)(nil)

// Insert adds an endpoint. Returns ErrDuplicateKey if (subscriber_id, id) exists.
func (s *EndpointStore) Insert(ctx context.Context, e *domain.PushEndpoint) error {
	query := `
		INSERT INTO push_endpoints (
			subscriber_id, id, kind, token, endpoint, p256dh, auth, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var token, endpoint, p256dh, auth *string
	switch e.Kind {
	case domain.EndpointKindToken:
		token = &e.Token
	case domain.EndpointKindSubscription:
		if e.Subscription == nil {
			return storage.ErrInvalidInput
		}
		endpoint = &e.Subscription.Endpoint
		p256dh = &e.Subscription.P256dh
		auth = &e.Subscription.Auth
	default:
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, query,
		e.SubscriberID, e.ID, string(e.Kind), token, endpoint, p256dh, auth, e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert push endpoint: %w", err)
	}
	return nil
}

// GetBySubscriber retrieves all endpoints of a subscriber ordered by (created_at, id).
func (s *EndpointStore) GetBySubscriber(ctx context.Context, subscriberID string) ([]*domain.PushEndpoint, error) {
	query := `
		SELECT subscriber_id, id, kind, token, endpoint, p256dh, auth, created_at
		FROM push_endpoints
		WHERE subscriber_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("query push endpoints: %w", err)
	}
	defer rows.Close()

	var result []*domain.PushEndpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push endpoint: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push endpoints: %w", err)
	}
	return result, nil
}

// Delete removes one endpoint. Returns ErrNotFound if not exists.
func (s *EndpointStore) Delete(ctx context.Context, subscriberID, endpointID string) error {
	query := `DELETE FROM push_endpoints WHERE subscriber_id = $1 AND id = $2`

	tag, err := s.pool.Exec(ctx, query, subscriberID, endpointID)
	if err != nil {
		return fmt.Errorf("delete push endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanEndpoint(row pgx.Row) (*domain.PushEndpoint, error) {
	var e domain.PushEndpoint
	var kind string
	var token, endpoint, p256dh, auth *string

	if err := row.Scan(&e.SubscriberID, &e.ID, &kind, &token, &endpoint, &p256dh, &auth, &e.CreatedAt); err != nil {
		return nil, err
	}

	e.Kind = domain.EndpointKind(kind)
	switch e.Kind {
	case domain.EndpointKindToken:
		if token != nil {
			e.Token = *token
		}
	case domain.EndpointKindSubscription:
		e.Subscription = &domain.BrowserSubscription{
			Endpoint: deref(endpoint),
			P256dh:   deref(p256dh),
			Auth:     deref(auth),
		}
	}
	return &e, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
