package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wallet-alerts/internal/config"
	"wallet-alerts/internal/directory"
	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/live"
	"wallet-alerts/internal/notify"
	"wallet-alerts/internal/observability"
	"wallet-alerts/internal/orchestrator"
	"wallet-alerts/internal/pricing"
	"wallet-alerts/internal/push"
	"wallet-alerts/internal/retry"
	"wallet-alerts/internal/solana"
	"wallet-alerts/internal/symbol"
	"wallet-alerts/internal/webhook"
)

// Service is the assembled pipeline.
type Service struct {
	Config    *config.Config
	Stores    *Stores
	RPC       *solana.HTTPClient
	Directory *directory.Directory
	Pipeline  *orchestrator.Orchestrator
	Live      *live.Hub

	log     logrus.FieldLogger
	metrics *observability.Metrics
}

// Gateways overrides the push gateways built from cfg. Tests use it to
// avoid real push services.
type Gateways struct {
	Tokens        push.TokenGateway
	Subscriptions push.SubscriptionGateway
}

// NewService builds every pipeline component on top of stores. A nil
// gateways builds FCM when credentials are configured and Web Push when a
// VAPID key pair is configured; a missing gateway only fails its family.
func NewService(ctx context.Context, cfg *config.Config, stores *Stores, gateways *Gateways, log logrus.FieldLogger, metrics *observability.Metrics) (*Service, error) {
	if gateways == nil {
		g, err := buildGateways(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		gateways = g
	}

	rpc := solana.NewHTTPClient(cfg.SolanaRPCEndpoint)

	policy := retry.RateLimitPolicy(cfg.RateLimitWait, cfg.RateLimitMaxWait)
	prices := pricing.NewOracle(pricing.Options{
		Quotes: pricing.NewHTTPQuoteClient(cfg.PriceAPIURL,
			pricing.WithAPIKey(cfg.PriceAPIKey),
			pricing.WithRateLimit(cfg.PriceRPS, cfg.PriceBurst),
		),
		Shared:    stores.Shared,
		HotAssets: cfg.HotAssets,
		TTL:       cfg.PriceTTL,
		Capacity:  cfg.CacheCapacity,
		Retry:     &policy,
		Logger:    log,
		Metrics:   metrics,
	})

	symbols := symbol.NewResolver(symbol.Options{
		Source:   symbol.NewMetaplexSource(rpc),
		TTL:      cfg.SymbolTTL,
		Capacity: cfg.CacheCapacity,
		Logger:   log,
		Metrics:  metrics,
	})

	dir := directory.New(stores.Index, stores.Watchlist, log, metrics)
	hub := live.NewHub(live.Options{
		Secret:         cfg.LiveTokenSecret,
		AllowedOrigins: cfg.LiveAllowedOrigins,
		Logger:         log,
		Metrics:        metrics,
	})

	dispatcher := push.NewDispatcher(push.Options{
		Tokens:        gateways.Tokens,
		Subscriptions: gateways.Subscriptions,
		Concurrency:   cfg.PushConcurrency,
		Logger:        log,
		Metrics:       metrics,
	})

	types := make([]domain.EventType, len(cfg.ClassifiableTypes))
	for i, t := range cfg.ClassifiableTypes {
		types[i] = domain.EventType(t)
	}

	orch := orchestrator.New(orchestrator.Options{
		Directory:         dir,
		Prices:            prices,
		Symbols:           symbols,
		Writer:            notify.NewWriter(stores.Notifications, log, metrics),
		Endpoints:         stores.Endpoints,
		Dispatcher:        dispatcher,
		Live:              hub,
		DeliveryLog:       stores.Deliveries,
		Concurrency:       cfg.PipelineConcurrency,
		ClassifiableTypes: types,
		Logger:            log,
		Metrics:           metrics,
	})

	return &Service{
		Config:    cfg,
		Stores:    stores,
		RPC:       rpc,
		Directory: dir,
		Pipeline:  orch,
		Live:      hub,
		log:       log,
		metrics:   metrics,
	}, nil
}

// Router returns the HTTP surface of the service. /ws is mounted only
// when the live feed is enabled.
func (s *Service) Router() *gin.Engine {
	opts := webhook.Options{
		Pipeline:     s.Pipeline,
		Secret:       s.Config.WebhookSecret,
		MaxBodyBytes: s.Config.MaxBodyBytes,
		Timeout:      s.Config.PipelineTimeout,
		Ready:        s.Stores.Ready,
		Logger:       s.log,
		Metrics:      s.metrics,
	}
	if s.Config.LiveEnabled {
		opts.Live = s.Live
	}
	return webhook.NewRouter(opts)
}

func buildGateways(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Gateways, error) {
	g := &Gateways{}

	if cfg.FCMCredentialsFile != "" {
		fcm, err := push.NewFCMGateway(ctx, cfg.FCMCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("fcm gateway: %w", err)
		}
		g.Tokens = fcm
	} else {
		log.Warn("FCM_CREDENTIALS_FILE not set, token pushes will fail")
	}

	if cfg.VAPIDPublicKey != "" {
		wp, err := push.NewWebPushGateway(push.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		})
		if err != nil {
			return nil, fmt.Errorf("web push gateway: %w", err)
		}
		g.Subscriptions = wp
	} else {
		log.Warn("VAPID keys not set, browser pushes will fail")
	}

	return g, nil
}
