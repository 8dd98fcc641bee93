package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"wallet-alerts/internal/domain"
)

// DefaultWebPushTTL is how long the push service may hold a message, seconds.
const DefaultWebPushTTL = 3600

// WebPushConfig holds VAPID credentials.
type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact for the push service.
	Subject    string
	TTL        int
	HTTPClient *http.Client
}

// WebPushGateway sends encrypted browser pushes signed with VAPID.
type WebPushGateway struct {
	cfg WebPushConfig
}

// NewWebPushGateway creates a WebPushGateway.
func NewWebPushGateway(cfg WebPushConfig) (*WebPushGateway, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultWebPushTTL
	}
	return &WebPushGateway{cfg: cfg}, nil
}

type webPushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// SendToSubscription sends p and returns the push service status.
func (g *WebPushGateway) SendToSubscription(ctx context.Context, sub *domain.BrowserSubscription, p Payload) (int, error) {
	body, err := json.Marshal(webPushMessage{Title: p.Title, Body: p.Body, Data: p.Data})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	opts := &webpush.Options{
		Subscriber:      g.cfg.Subject,
		VAPIDPublicKey:  g.cfg.PublicKey,
		VAPIDPrivateKey: g.cfg.PrivateKey,
		TTL:             g.cfg.TTL,
	}
	if g.cfg.HTTPClient != nil {
		opts.HTTPClient = g.cfg.HTTPClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, opts)
	if err != nil {
		return 0, fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

var _ SubscriptionGateway = (*WebPushGateway)(nil)
