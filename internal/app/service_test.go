package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/config"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/idhash"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/push"
	"wallet-alerts/internal/symbol"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func addr(b byte) string {
	var raw [32]byte
	for i := range raw {
		raw[i] = b
	}
	return base58.Encode(raw[:])
}

type recordingTokens struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingTokens) SendMulticast(_ context.Context, tokens []string, _ push.Payload) ([]push.TokenResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, tokens...)
	return make([]push.TokenResult, len(tokens)), nil
}

func testConfig(priceURL, rpcURL string) *config.Config {
	return &config.Config{
		WebhookSecret:       "s3cret",
		UseMemory:           true,
		SolanaRPCEndpoint:   rpcURL,
		PriceAPIURL:         priceURL,
		RateLimitWait:       10 * time.Millisecond,
		RateLimitMaxWait:    20 * time.Millisecond,
		PriceTTL:            time.Minute,
		SymbolTTL:           time.Minute,
		CacheCapacity:       100,
		HotAssets:           []string{domain.NativeMint},
		PipelineTimeout:     5 * time.Second,
		PipelineConcurrency: 4,
		ClassifiableTypes:   []string{"SWAP", "BUY", "SELL"},
		PushConcurrency:     2,
	}
}

func TestService_WebhookEndToEnd(t *testing.T) {
	ctx := context.Background()
	signer := addr(1)
	mint := addr(2)

	prices := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":{%q:{"id":%q,"price":"150"},%q:{"id":%q,"price":"0.3"}}}`,
			domain.NativeMint, domain.NativeMint, mint, mint)
	}))
	defer prices.Close()

	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":null}}`))
	}))
	defer rpc.Close()

	cfg := testConfig(prices.URL, rpc.URL)
	log := observability.DiscardLogger()

	stores, cleanup, err := OpenStores(ctx, cfg, log)
	require.NoError(t, err)
	defer cleanup()

	nick := "Whale"
	require.NoError(t, stores.Index.Put(ctx, signer, domain.Watcher{SubscriberID: "A", Nickname: &nick}))
	require.NoError(t, stores.Endpoints.Insert(ctx, &domain.PushEndpoint{
		ID: "e1", SubscriberID: "A", Kind: domain.EndpointKindToken, Token: "tok-a", CreatedAt: 1,
	}))

	tokens := &recordingTokens{}
	svc, err := NewService(ctx, cfg, stores, &Gateways{Tokens: tokens}, log, observability.NewTestMetrics())
	require.NoError(t, err)
	router := svc.Router()

	body := fmt.Sprintf(`[{
		"signature": "sig1",
		"type": "SWAP",
		"feePayer": %q,
		"events": {"swap": {
			"nativeInput": {"account": %q, "amount": "2000000000"},
			"tokenOutputs": [{"userAccount": %q, "mint": %q, "rawTokenAmount": {"tokenAmount": "1000000", "decimals": 3}}]
		}}
	}, {"type": "SWAP"}]`, signer, signer, signer, mint)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer s3cret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success   bool `json:"success"`
		Processed int  `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Processed)

	n, err := stores.Notifications.GetByID(ctx, idhash.ComputeNotificationID("sig1", "A"))
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationTypeBuy, n.Type)
	assert.Equal(t, "Buy Transaction", n.Title)
	assert.InDelta(t, 300, n.ValueUSD, 0.01)
	assert.InDelta(t, 1000, n.Amount, 1e-9)
	assert.Equal(t, "Whale bought $300 of "+symbol.FallbackLabel(mint), n.Message)
	assert.Equal(t, []string{"tok-a"}, tokens.sent)

	rec = post()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, tokens.sent, 1, "redelivery must not push again")

	recs, err := stores.Deliveries.GetByNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.DeliveryDelivered, recs[0].Outcome)
}

func TestService_Unauthorized(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0", "http://127.0.0.1:0")
	stores, cleanup, err := OpenStores(context.Background(), cfg, observability.DiscardLogger())
	require.NoError(t, err)
	defer cleanup()

	svc, err := NewService(context.Background(), cfg, stores, &Gateways{}, observability.DiscardLogger(), observability.NewTestMetrics())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestService_LiveFeed(t *testing.T) {
	newRouter := func(t *testing.T, enabled bool) *gin.Engine {
		cfg := testConfig("http://127.0.0.1:0", "http://127.0.0.1:0")
		cfg.LiveEnabled = enabled
		cfg.LiveTokenSecret = "live"
		stores, cleanup, err := OpenStores(context.Background(), cfg, observability.DiscardLogger())
		require.NoError(t, err)
		t.Cleanup(cleanup)

		svc, err := NewService(context.Background(), cfg, stores, &Gateways{}, observability.DiscardLogger(), observability.NewTestMetrics())
		require.NoError(t, err)
		return svc.Router()
	}

	rec := httptest.NewRecorder()
	newRouter(t, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?subscriber=A", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "disabled by default")

	rec = httptest.NewRecorder()
	newRouter(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?subscriber=A", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildGateways_NoneConfigured(t *testing.T) {
	g, err := buildGateways(context.Background(), &config.Config{}, observability.DiscardLogger())
	require.NoError(t, err)
	assert.Nil(t, g.Tokens)
	assert.Nil(t, g.Subscriptions)
}
