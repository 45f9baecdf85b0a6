package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/moto-rental/internal/domain/booking"
	"github.com/xenking/moto-rental/internal/domain/coupon"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (MOTO_ prefix), a .env file, flags, or YAML files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (MOTO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (MOTO_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds rental policy knobs.
type PricingConfig struct {
	MinCancellationFee  string `default:"199" usage:"Minimum charge applied to every cancellation" flag:"min-cancellation-fee"`
	EnforceCouponWindow bool   `default:"true" usage:"Reject coupons outside their start and expiry dates" flag:"enforce-coupon-window"`
	AutoConfirmPaid     bool   `default:"false" usage:"Confirm bookings that are fully paid at checkout" flag:"auto-confirm-paid"`

	minFee decimal.Decimal
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"5" usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Requests allowed in a burst"`
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

// LoadConfig reads .env (if present) into the process environment, then
// loads the configuration and validates it.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MOTO",
		Files:     []string{"config.yaml", "/etc/moto/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set MOTO_DATABASE_URL or DATABASE_URL")
	}
	fee, err := decimal.NewFromString(c.Pricing.MinCancellationFee)
	if err != nil {
		return errors.Wrapf(err, "parse min cancellation fee %q", c.Pricing.MinCancellationFee)
	}
	if fee.IsNegative() {
		return errors.Errorf("min cancellation fee %s is negative", fee)
	}
	c.Pricing.minFee = fee
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return errors.Errorf("invalid rate limit: rps=%v burst=%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	return nil
}

// BookingConfig returns the booking policy derived from the pricing section.
func (c *Config) BookingConfig() booking.Config {
	return booking.Config{
		MinCancellationFee: c.Pricing.minFee,
		AutoConfirmPaid:    c.Pricing.AutoConfirmPaid,
	}
}

// CouponOptions returns the coupon evaluation options.
func (c *Config) CouponOptions() coupon.Options {
	return coupon.Options{EnforceWindow: c.Pricing.EnforceCouponWindow}
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms such as Railway or Render, onto the MOTO_ settings.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
