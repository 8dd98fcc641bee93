package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// multicastSender is the part of *messaging.Client the gateway needs.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMGateway sends token-addressed pushes through Firebase Cloud Messaging.
type FCMGateway struct {
	client multicastSender
}

// NewFCMGateway creates a gateway from a service account file. An empty
// path uses application default credentials.
func NewFCMGateway(ctx context.Context, credentialsFile string) (*FCMGateway, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCMGateway{client: client}, nil
}

// SendMulticast sends p to tokens in one call.
func (g *FCMGateway) SendMulticast(ctx context.Context, tokens []string, p Payload) ([]TokenResult, error) {
	br, err := g.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: p.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("fcm multicast: %w", err)
	}

	out := make([]TokenResult, len(br.Responses))
	for i, r := range br.Responses {
		if r.Success {
			continue
		}
		out[i] = TokenResult{Err: r.Error, Unregistered: messaging.IsUnregistered(r.Error)}
	}
	return out, nil
}

var _ TokenGateway = (*FCMGateway)(nil)
