package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wallet-alerts/internal/retry"
	"wallet-alerts/internal/solana"
)

// QuoteClient fetches current fiat unit prices. Ids the upstream does not
// know are absent from the returned map. A 429 is reported as *retry.RateLimitError.
type QuoteClient interface {
	Quote(ctx context.Context, ids []string) (map[string]float64, error)
}

// HTTPQuoteClient queries a price API of the form GET <base>?ids=a,b that
// answers {"data": {"<id>": {"price": "1.23"}}}.
type HTTPQuoteClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// QuoteOption configures HTTPQuoteClient.
type QuoteOption func(*HTTPQuoteClient)

// WithAPIKey sends key in the x-api-key header.
func WithAPIKey(key string) QuoteOption {
	return func(c *HTTPQuoteClient) {
		c.apiKey = key
	}
}

// WithRateLimit throttles outgoing requests client-side. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) QuoteOption {
	return func(c *HTTPQuoteClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithQuoteHTTPClient sets custom http.Client.
func WithQuoteHTTPClient(client *http.Client) QuoteOption {
	return func(c *HTTPQuoteClient) {
		c.client = client
	}
}

// NewHTTPQuoteClient creates a price API client.
func NewHTTPQuoteClient(baseURL string, opts ...QuoteOption) *HTTPQuoteClient {
	c := &HTTPQuoteClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	Data map[string]*struct {
		ID    string          `json:"id"`
		Price json.RawMessage `json:"price"`
	} `json:"data"`
}

// Quote fetches prices for ids in one request.
func (c *HTTPQuoteClient) Quote(ctx context.Context, ids []string) (map[string]float64, error) {
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse price url: %w", err)
	}
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retry.RateLimitError{RetryAfter: solana.ParseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	prices := make(map[string]float64, len(decoded.Data))
	for id, item := range decoded.Data {
		if item == nil {
			continue
		}
		price, ok := parsePrice(item.Price)
		if !ok {
			continue
		}
		prices[id] = price
	}
	return prices, nil
}

// parsePrice accepts a JSON number or a numeric string.
func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	s := strings.Trim(string(raw), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

var _ QuoteClient = (*HTTPQuoteClient)(nil)
