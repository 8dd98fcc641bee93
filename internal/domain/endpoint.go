package domain

// EndpointKind is the push delivery family of an endpoint.
type EndpointKind string

// Endpoint kinds.
const (
	EndpointKindToken        EndpointKind = "token"        // token-addressed mobile push
	EndpointKindSubscription EndpointKind = "subscription" // browser push subscription object
)

// PushEndpoint is a registered delivery target of one subscriber.
// Corresponds to push_endpoints table in PostgreSQL.
type PushEndpoint struct {
	ID           string
	SubscriberID string
	Kind         EndpointKind
	Token        string               // set for EndpointKindToken
	Subscription *BrowserSubscription // set for EndpointKindSubscription
	CreatedAt    int64                // ms
}

// BrowserSubscription is a web push subscription object.
type BrowserSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// DeliveryOutcome is the result class of one push attempt.
type DeliveryOutcome string

// Delivery outcomes.
const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryFailed    DeliveryOutcome = "failed"
	DeliveryInvalid   DeliveryOutcome = "invalid"
)

// DeliveryRecord is one push attempt outcome.
// Corresponds to push_deliveries table in ClickHouse.
type DeliveryRecord struct {
	NotificationID string
	SubscriberID   string
	EndpointID     string
	Kind           EndpointKind
	Outcome        DeliveryOutcome
	Error          string
	At             int64 // ms
}
