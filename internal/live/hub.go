// Package live pushes newly created notifications to connected in-app
// clients over websockets.
package live

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Message is the frame sent for each notification.
type Message struct {
	Type         string  `json:"type"`
	ID           string  `json:"id"`
	SubscriberID string  `json:"subscriber_id"`
	Kind         string  `json:"kind"`
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	Signature    string  `json:"signature"`
	AssetID      *string `json:"asset_id,omitempty"`
	ValueUSD     float64 `json:"value_usd"`
	CreatedAt    int64   `json:"created_at"`
}

// Options configures a Hub.
type Options struct {
	// Secret signs subscriber tokens. An empty secret rejects every
	// upgrade.
	Secret string
	// AllowedOrigins lists browser origins permitted to connect. When
	// empty only same-origin requests are accepted.
	AllowedOrigins []string
	Logger         logrus.FieldLogger
	Metrics        *observability.Metrics
}

type client struct {
	conn         *websocket.Conn
	subscriberID string
	send         chan []byte
}

// Hub tracks connections per subscriber. Broadcast never blocks: a client
// whose buffer is full misses the frame.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	secret   []byte
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	log := opts.Logger
	if log == nil {
		log = observability.DiscardLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(opts.AllowedOrigins) > 0 {
		allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
		for _, o := range opts.AllowedOrigins {
			allowed[strings.TrimSuffix(o, "/")] = struct{}{}
		}
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}

	return &Hub{
		clients:  make(map[string]map[*client]struct{}),
		secret:   []byte(opts.Secret),
		upgrader: upgrader,
		log:      log.WithField("component", "live"),
		metrics:  metrics,
	}
}

// SubscriberToken returns the credential a client presents to stream the
// notifications of subscriberID: hex HMAC-SHA256 of the id under secret.
func SubscriberToken(secret, subscriberID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(subscriberID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ServeHTTP upgrades the request. The subscriber is named by the
// "subscriber" query parameter and proven by a token, taken from the
// "token" query parameter or an Authorization bearer header.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber")
	if subscriberID == "" {
		http.Error(w, "subscriber is required", http.StatusBadRequest)
		return
	}
	if !h.authorized(r, subscriberID) {
		h.log.WithField("subscriber_id", subscriberID).Warn("live upgrade rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, subscriberID: subscriberID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) authorized(r *http.Request, subscriberID string) bool {
	if len(h.secret) == 0 {
		return false
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	}
	if token == "" {
		return false
	}
	want := SubscriberToken(string(h.secret), subscriberID)
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}

// Broadcast sends n to every connection of subscriberID and returns how
// many connections accepted the frame.
func (h *Hub) Broadcast(subscriberID string, n *domain.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[subscriberID]
	if len(conns) == 0 {
		return 0
	}

	msg, err := json.Marshal(Message{
		Type:         "notification",
		ID:           n.ID,
		SubscriberID: n.SubscriberID,
		Kind:         string(n.Type),
		Title:        n.Title,
		Body:         n.Message,
		Signature:    n.Signature,
		AssetID:      n.AssetID,
		ValueUSD:     n.ValueUSD,
		CreatedAt:    n.CreatedAt,
	})
	if err != nil {
		h.log.WithError(err).Error("marshal live message")
		return 0
	}

	sent := 0
	for c := range conns {
		select {
		case c.send <- msg:
			sent++
		default:
			h.log.WithField("subscriber_id", subscriberID).Warn("live client too slow, frame dropped")
		}
	}
	h.metrics.LiveBroadcasts.Add(float64(sent))
	return sent
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.clients {
		for c := range conns {
			close(c.send)
		}
		delete(h.clients, id)
	}
	h.metrics.LiveSubscribers.Set(0)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.subscriberID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.subscriberID] = conns
	}
	conns[c] = struct{}{}
	h.metrics.LiveSubscribers.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.subscriberID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.subscriberID)
	}
	h.metrics.LiveSubscribers.Dec()
}

// readPump drains client frames so pongs and close messages are processed.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
