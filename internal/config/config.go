package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultAppMode    = "dev"
	defaultAppPort    = "8080"
	defaultAppTimeout = 30 * time.Second

	defaultGatewayMode = "TEST"

	defaultCurrency            = "KZT"
	defaultTokensPerUnitMoney  = 2
	defaultMinPurchaseMoney    = "50.00"
	defaultMaxPurchaseMoney    = "500000.00"
	defaultFreeGrantTokens     = 100
	defaultTransactionTTL      = 30 * time.Minute
	defaultCostAnalysis        = 10
	defaultCostTransform       = 5
	defaultCostPremiumInsights = 25

	defaultServiceName = "tokencore"
)

type (
	// Configs is the process-wide configuration, read once at startup and
	// never mutated afterward.
	Configs struct {
		APP      AppConfig
		GATEWAY  GatewayConfig
		PRICING  PricingConfig
		POSTGRES StoreConfig
		CACHE    CacheConfig
		EVENTS   EventsConfig
		TRACING  TracingConfig
	}

	// AppConfig controls server-wide behavior.
	AppConfig struct {
		Mode    string
		Port    string
		Timeout time.Duration
	}

	// GatewayConfig holds the OAuth2 client-credentials and checkout
	// parameters for the payment gateway adapter.
	GatewayConfig struct {
		ClientID     string `required:"true"`
		ClientSecret string `required:"true"`
		MerchantCode string `required:"true"`
		PayItemID    string `required:"true"`
		Mode         string
		OAuthURL     string `required:"true"`
		BaseURL      string `required:"true"`
		ReturnURL    string `required:"true"`
	}

	// PricingConfig is the process-wide PricingConfig of spec.md §3,
	// loaded once at startup and treated as read-only thereafter.
	PricingConfig struct {
		Currency            string
		TokensPerUnitMoney  int64
		MinPurchaseMoney    string
		MaxPurchaseMoney    string
		FreeGrantTokens     int64
		TransactionTTL      time.Duration
		CostAnalysis        int64
		CostTransform       int64
		CostPremiumInsights int64
	}

	// StoreConfig configures the Postgres backend.
	StoreConfig struct {
		DSN string `required:"true"`
	}

	// CacheConfig configures the balance read-through cache. RedisURL
	// empty means the in-process go-cache fallback is used.
	CacheConfig struct {
		RedisURL string
		TTL      time.Duration
	}

	// EventsConfig configures best-effort lifecycle event publication.
	// NatsURL empty disables publication entirely.
	EventsConfig struct {
		NatsURL string
		Subject string
	}

	// TracingConfig configures OTLP span export. OTLPEndpoint empty
	// disables the exporter; otelhttp's middleware spans then run
	// against the process-wide no-op tracer instead.
	TracingConfig struct {
		ServiceName  string
		OTLPEndpoint string
	}
)

// New populates Configs from a .env file (if present) and the process
// environment: set defaults, then let envconfig.Process overlay real
// environment variables per top-level section.
func New() (cfg Configs, err error) {
	root, err := os.Getwd()
	if err != nil {
		return
	}
	godotenv.Load(filepath.Join(root, ".env"))

	cfg.APP = AppConfig{
		Mode:    defaultAppMode,
		Port:    defaultAppPort,
		Timeout: defaultAppTimeout,
	}

	cfg.GATEWAY = GatewayConfig{
		Mode: defaultGatewayMode,
	}

	cfg.PRICING = PricingConfig{
		Currency:            defaultCurrency,
		TokensPerUnitMoney:  defaultTokensPerUnitMoney,
		MinPurchaseMoney:    defaultMinPurchaseMoney,
		MaxPurchaseMoney:    defaultMaxPurchaseMoney,
		FreeGrantTokens:     defaultFreeGrantTokens,
		TransactionTTL:      defaultTransactionTTL,
		CostAnalysis:        defaultCostAnalysis,
		CostTransform:       defaultCostTransform,
		CostPremiumInsights: defaultCostPremiumInsights,
	}

	cfg.CACHE = CacheConfig{
		TTL: 5 * time.Second,
	}

	cfg.EVENTS = EventsConfig{
		Subject: "payment",
	}

	cfg.TRACING = TracingConfig{
		ServiceName: defaultServiceName,
	}

	if err = envconfig.Process("APP", &cfg.APP); err != nil {
		return
	}
	if err = envconfig.Process("GATEWAY", &cfg.GATEWAY); err != nil {
		return
	}
	if err = envconfig.Process("PRICING", &cfg.PRICING); err != nil {
		return
	}
	if err = envconfig.Process("POSTGRES", &cfg.POSTGRES); err != nil {
		return
	}
	if err = envconfig.Process("CACHE", &cfg.CACHE); err != nil {
		return
	}
	if err = envconfig.Process("EVENTS", &cfg.EVENTS); err != nil {
		return
	}
	if err = envconfig.Process("TRACING", &cfg.TRACING); err != nil {
		return
	}

	return
}
