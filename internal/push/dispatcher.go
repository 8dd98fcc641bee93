// Package push delivers notifications to registered endpoints and reports
// which endpoints are permanently invalid.
package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/observability"
)

// Defaults.
const (
	DefaultConcurrency  = 8
	DefaultMulticastMax = 500
)

var errNoGateway = errors.New("no gateway configured")

// Payload is what every endpoint family receives.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// TokenResult is the outcome for one token of a multicast, in request order.
type TokenResult struct {
	Err error
	// Unregistered is set when the push service no longer knows the token.
	Unregistered bool
}

// TokenGateway sends one payload to many token-addressed devices.
type TokenGateway interface {
	SendMulticast(ctx context.Context, tokens []string, p Payload) ([]TokenResult, error)
}

// SubscriptionGateway sends to one browser push subscription and returns
// the push service's HTTP status.
type SubscriptionGateway interface {
	SendToSubscription(ctx context.Context, sub *domain.BrowserSubscription, p Payload) (int, error)
}

// Result is the outcome of one endpoint.
type Result struct {
	Endpoint *domain.PushEndpoint
	Outcome  domain.DeliveryOutcome
	Err      error
}

// Report summarizes a Send call.
type Report struct {
	Results []Result
	// Invalid lists endpoints the caller should delete.
	Invalid []*domain.PushEndpoint
}

// Delivered counts successful deliveries.
func (r Report) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == domain.DeliveryDelivered {
			n++
		}
	}
	return n
}

// Records converts the report into delivery log rows.
func (r Report) Records(notificationID string, at time.Time) []*domain.DeliveryRecord {
	out := make([]*domain.DeliveryRecord, 0, len(r.Results))
	for _, res := range r.Results {
		rec := &domain.DeliveryRecord{
			NotificationID: notificationID,
			SubscriberID:   res.Endpoint.SubscriberID,
			EndpointID:     res.Endpoint.ID,
			Kind:           res.Endpoint.Kind,
			Outcome:        res.Outcome,
			At:             at.UnixMilli(),
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

// Options configures a Dispatcher.
type Options struct {
	Tokens        TokenGateway
	Subscriptions SubscriptionGateway
	// Concurrency bounds parallel subscription sends.
	Concurrency int
	// MulticastMax bounds tokens per multicast call.
	MulticastMax int
	Logger       logrus.FieldLogger
	Metrics      *observability.Metrics
}

// Dispatcher fans a payload out over both endpoint families.
type Dispatcher struct {
	tokens       TokenGateway
	subs         SubscriptionGateway
	concurrency  int
	multicastMax int
	log          logrus.FieldLogger
	metrics      *observability.Metrics
}

// NewDispatcher creates a Dispatcher. A nil gateway marks its family's
// endpoints as failed, never as invalid.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MulticastMax <= 0 {
		opts.MulticastMax = DefaultMulticastMax
	}
	if opts.Logger == nil {
		opts.Logger = observability.DiscardLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics()
	}
	return &Dispatcher{
		tokens:       opts.Tokens,
		subs:         opts.Subscriptions,
		concurrency:  opts.Concurrency,
		multicastMax: opts.MulticastMax,
		log:          opts.Logger.WithField("component", "push"),
		metrics:      opts.Metrics,
	}
}

// Send delivers p to every endpoint. It never fails; push errors only
// lower the delivered count. Results follow the order of endpoints.
func (d *Dispatcher) Send(ctx context.Context, endpoints []*domain.PushEndpoint, p Payload) Report {
	results := make([]Result, len(endpoints))

	var tokenIdx, subIdx []int
	for i, e := range endpoints {
		results[i].Endpoint = e
		switch {
		case e.Kind == domain.EndpointKindToken && e.Token != "":
			tokenIdx = append(tokenIdx, i)
		case e.Kind == domain.EndpointKindSubscription && e.Subscription != nil && e.Subscription.Endpoint != "":
			subIdx = append(subIdx, i)
		default:
			results[i].Outcome = domain.DeliveryInvalid
			results[i].Err = fmt.Errorf("malformed %s endpoint", e.Kind)
		}
	}

	d.sendTokens(ctx, endpoints, tokenIdx, p, results)
	d.sendSubscriptions(ctx, endpoints, subIdx, p, results)

	report := Report{Results: results}
	for _, res := range results {
		d.metrics.RecordPush(string(res.Endpoint.Kind), string(res.Outcome))
		if res.Outcome == domain.DeliveryInvalid {
			report.Invalid = append(report.Invalid, res.Endpoint)
		}
		if res.Outcome == domain.DeliveryFailed {
			d.log.WithError(res.Err).WithFields(logrus.Fields{
				"subscriber_id": res.Endpoint.SubscriberID,
				"endpoint_id":   res.Endpoint.ID,
				"kind":          res.Endpoint.Kind,
			}).Warn("push delivery failed")
		}
	}
	return report
}

func (d *Dispatcher) sendTokens(ctx context.Context, endpoints []*domain.PushEndpoint, idx []int, p Payload, results []Result) {
	if len(idx) == 0 {
		return
	}
	if d.tokens == nil {
		for _, i := range idx {
			results[i].Outcome, results[i].Err = domain.DeliveryFailed, errNoGateway
		}
		return
	}

	for start := 0; start < len(idx); start += d.multicastMax {
		end := min(start+d.multicastMax, len(idx))
		chunk := idx[start:end]

		tokens := make([]string, len(chunk))
		for j, i := range chunk {
			tokens[j] = endpoints[i].Token
		}

		resp, err := d.tokens.SendMulticast(ctx, tokens, p)
		for j, i := range chunk {
			switch {
			case err != nil:
				results[i].Outcome, results[i].Err = domain.DeliveryFailed, err
			case j >= len(resp):
				results[i].Outcome, results[i].Err = domain.DeliveryFailed, errors.New("missing multicast response")
			case resp[j].Unregistered:
				results[i].Outcome, results[i].Err = domain.DeliveryInvalid, resp[j].Err
			case resp[j].Err != nil:
				results[i].Outcome, results[i].Err = domain.DeliveryFailed, resp[j].Err
			default:
				results[i].Outcome = domain.DeliveryDelivered
			}
		}
	}
}

func (d *Dispatcher) sendSubscriptions(ctx context.Context, endpoints []*domain.PushEndpoint, idx []int, p Payload, results []Result) {
	if len(idx) == 0 {
		return
	}
	if d.subs == nil {
		for _, i := range idx {
			results[i].Outcome, results[i].Err = domain.DeliveryFailed, errNoGateway
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, i := range idx {
		g.Go(func() error {
			status, err := d.subs.SendToSubscription(ctx, endpoints[i].Subscription, p)
			results[i].Outcome, results[i].Err = subscriptionOutcome(status, err)
			return nil
		})
	}
	_ = g.Wait()
}

// subscriptionOutcome maps a push service status. 400, 404 and 410 mean
// the subscription is gone for good.
func subscriptionOutcome(status int, err error) (domain.DeliveryOutcome, error) {
	if err != nil {
		return domain.DeliveryFailed, err
	}
	switch {
	case status >= 200 && status < 300:
		return domain.DeliveryDelivered, nil
	case status == 400 || status == 404 || status == 410:
		return domain.DeliveryInvalid, fmt.Errorf("push service status %d", status)
	default:
		return domain.DeliveryFailed, fmt.Errorf("push service status %d", status)
	}
}
