// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr      string `mapstructure:"HTTP_ADDR"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`
	MaxBodyBytes  int64  `mapstructure:"WEBHOOK_MAX_BODY_BYTES"`

	// Storage
	UseMemory     bool   `mapstructure:"USE_MEMORY"`
	PostgresDSN   string `mapstructure:"POSTGRES_DSN"`
	PostgresConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	ClickhouseDSN string `mapstructure:"CLICKHOUSE_DSN"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`

	// Upstreams
	SolanaRPCEndpoint string        `mapstructure:"SOLANA_RPC_ENDPOINT"`
	PriceAPIURL       string        `mapstructure:"PRICE_API_URL"`
	PriceAPIKey       string        `mapstructure:"PRICE_API_KEY"`
	PriceRPS          float64       `mapstructure:"PRICE_RPS"`
	PriceBurst        int           `mapstructure:"PRICE_BURST"`
	RateLimitWait     time.Duration `mapstructure:"RATE_LIMIT_WAIT"`
	RateLimitMaxWait  time.Duration `mapstructure:"RATE_LIMIT_MAX_WAIT"`

	// Caches
	PriceTTL       time.Duration `mapstructure:"PRICE_CACHE_TTL"`
	SymbolTTL      time.Duration `mapstructure:"SYMBOL_CACHE_TTL"`
	CacheCapacity  int           `mapstructure:"CACHE_CAPACITY"`
	SharedPriceTTL time.Duration `mapstructure:"SHARED_PRICE_TTL"`
	HotAssets      []string      `mapstructure:"HOT_ASSETS"`

	// Pipeline
	PipelineTimeout     time.Duration `mapstructure:"PIPELINE_TIMEOUT"`
	PipelineConcurrency int           `mapstructure:"PIPELINE_CONCURRENCY"`
	ClassifiableTypes   []string      `mapstructure:"CLASSIFIABLE_TYPES"`

	// Push
	FCMCredentialsFile string `mapstructure:"FCM_CREDENTIALS_FILE"`
	VAPIDPublicKey     string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey    string `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject       string `mapstructure:"VAPID_SUBJECT"`
	PushConcurrency    int    `mapstructure:"PUSH_CONCURRENCY"`

	// In-app live feed
	LiveEnabled        bool     `mapstructure:"LIVE_ENABLED"`
	LiveTokenSecret    string   `mapstructure:"LIVE_TOKEN_SECRET"`
	LiveAllowedOrigins []string `mapstructure:"LIVE_ALLOWED_ORIGINS"`

	// Observability
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"HTTP_ADDR":              ":8080",
	"WEBHOOK_SECRET":         "",
	"WEBHOOK_MAX_BODY_BYTES": int64(5 << 20),

	"USE_MEMORY":         false,
	"POSTGRES_DSN":       "",
	"POSTGRES_MAX_CONNS": int32(10),
	"CLICKHOUSE_DSN":     "",
	"REDIS_URL":          "",
	"RUN_MIGRATIONS":     false,

	"SOLANA_RPC_ENDPOINT": "https://api.mainnet-beta.solana.com",
	"PRICE_API_URL":       "https://api.jup.ag/price/v2",
	"PRICE_API_KEY":       "",
	"PRICE_RPS":           5.0,
	"PRICE_BURST":         5,
	"RATE_LIMIT_WAIT":     2 * time.Second,
	"RATE_LIMIT_MAX_WAIT": 10 * time.Second,

	"PRICE_CACHE_TTL":  5 * time.Minute,
	"SYMBOL_CACHE_TTL": 5 * time.Minute,
	"CACHE_CAPACITY":   10_000,
	"SHARED_PRICE_TTL": time.Hour,
	"HOT_ASSETS":       []string{"So11111111111111111111111111111111111111112"},

	"PIPELINE_TIMEOUT":     60 * time.Second,
	"PIPELINE_CONCURRENCY": 8,
	"CLASSIFIABLE_TYPES":   []string{"SWAP", "BUY", "SELL"},

	"FCM_CREDENTIALS_FILE": "",
	"VAPID_PUBLIC_KEY":     "",
	"VAPID_PRIVATE_KEY":    "",
	"VAPID_SUBJECT":        "",
	"PUSH_CONCURRENCY":     8,

	"LIVE_ENABLED":         false,
	"LIVE_TOKEN_SECRET":    "",
	"LIVE_ALLOWED_ORIGINS": []string{},

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
	"LOG_LEVEL":                   "info",
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables already set, then resolves every setting.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HotAssets = splitList(cfg.HotAssets)
	cfg.ClassifiableTypes = splitList(cfg.ClassifiableTypes)
	cfg.LiveAllowedOrigins = splitList(cfg.LiveAllowedOrigins)
	for i, t := range cfg.ClassifiableTypes {
		cfg.ClassifiableTypes[i] = strings.ToUpper(t)
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if !c.UseMemory && c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required unless USE_MEMORY is set"))
	}
	if c.PipelineTimeout <= 0 {
		errs = append(errs, errors.New("PIPELINE_TIMEOUT must be positive"))
	}
	if c.PipelineConcurrency <= 0 {
		errs = append(errs, errors.New("PIPELINE_CONCURRENCY must be positive"))
	}
	if len(c.ClassifiableTypes) == 0 {
		errs = append(errs, errors.New("CLASSIFIABLE_TYPES must not be empty"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together"))
	}
	if c.LiveEnabled && c.LiveTokenSecret == "" {
		errs = append(errs, errors.New("LIVE_TOKEN_SECRET is required when LIVE_ENABLED is set"))
	}
	if c.RateLimitMaxWait < c.RateLimitWait {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_WAIT must not be below RATE_LIMIT_WAIT"))
	}
	return errors.Join(errs...)
}

// splitList flattens comma separated entries and drops blanks. Env values
// arrive as one element, defaults as many.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
