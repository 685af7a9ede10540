package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lumeshop/storefront-api/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Stripe       StripeConfig
	SMTP         SMTPConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig carries the shipping policy as strings so aconfig can load
// them; Params parses into decimals.
type PricingConfig struct {
	FreeShippingThreshold string `default:"50"   usage:"Subtotal above which shipping is free" flag:"free-shipping-threshold"`
	ShippingCost          string `default:"5.99" usage:"Flat shipping cost below the threshold" flag:"shipping-cost"`
}

// Params parses the configured shipping policy.
func (c PricingConfig) Params() (pricing.Params, error) {
	threshold, err := decimal.NewFromString(c.FreeShippingThreshold)
	if err != nil {
		return pricing.Params{}, errors.Wrap(err, "parse free shipping threshold")
	}
	cost, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return pricing.Params{}, errors.Wrap(err, "parse shipping cost")
	}
	return pricing.Params{
		ShippingThreshold: threshold,
		BaseShippingCost:  cost,
	}, nil
}

// StripeConfig configures the payment gateway client.
type StripeConfig struct {
	SecretKey string `usage:"Stripe secret API key (SHOP_STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	Currency  string `default:"usd" usage:"ISO currency code for charges"`
}

// SMTPConfig configures the confirmation-email relay. Leaving Host empty
// disables email.
type SMTPConfig struct {
	Host     string `usage:"SMTP relay host; empty disables email"`
	Port     string `default:"587" usage:"SMTP relay port"`
	From     string `usage:"Sender address for transactional email"`
	Password string `usage:"SMTP password (SHOP_SMTP_PASSWORD)"`
}

// KafkaConfig configures order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events; empty disables publishing"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
