package domain

// NotificationType is the classified meaning of a notification.
type NotificationType string

// Notification type constants.
const (
	NotificationTypeBuy   NotificationType = "buy"
	NotificationTypeSell  NotificationType = "sell"
	NotificationTypeSwap  NotificationType = "swap"
	NotificationTypeOther NotificationType = "transaction"
)

// Notification is a per-subscriber record of one watched-wallet transaction.
// Corresponds to notifications table in PostgreSQL.
type Notification struct {
	ID             string           // deterministic hash of (signature, subscriber_id)
	SubscriberID   string           // recipient
	WatchedAddress string           // wallet that transacted
	Type           NotificationType // buy | sell | swap | transaction
	Title          string
	Message        string
	Signature      string           // source transaction signature
	AssetID        *string          // primary asset mint (nullable)
	Amount         float64          // primary asset amount (UI units)
	ValueUSD       float64          // fiat value
	Read           bool             // default false
	CreatedAt      int64            // ms
}
