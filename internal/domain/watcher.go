package domain

// Watcher is a subscriber watching one address.
type Watcher struct {
	SubscriberID string
	Nickname     *string // watcher-chosen label for the address (nullable)
}

// WatchlistEntry is one address on a subscriber's watch list.
// Corresponds to watchlist_entries table in PostgreSQL.
type WatchlistEntry struct {
	SubscriberID string
	Address      string
	Nickname     *string
	CreatedAt    int64 // ms
}
