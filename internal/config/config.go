package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/backend-food/internal/money"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	Currency             money.Currency
	ShippingFallbackFee  money.Money
	ShippingTierCacheTTL time.Duration
	CatalogCacheTTL      time.Duration

	VNPay VNPayConfig

	PaymentSessionTTL    time.Duration
	PaymentSweepInterval time.Duration
	PaymentSweepGrace    time.Duration
	PaymentSweepBatch    int

	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	IdempotencyTTL   time.Duration

	RateLimitStrategy    string
	RateLimitCallbackMax int
	RateLimitWindow      time.Duration
	BodyLimitBytes       int64

	WorkerConcurrency int
	Notify            NotifyConfig
}

// NotifyConfig controls delivery of domain events to the notification endpoint.
type NotifyConfig struct {
	WebhookURL          string
	WebhookSecret       string
	Timeout             time.Duration
	MaxAttempts         int
	RetryBase           time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	TaskMaxRetry        int
}

// VNPayConfig carries the merchant credentials and endpoints of the gateway.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Locale     string
	OrderType  string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Currency:             money.CurrencyFor(k.String("CURRENCY_CODE"), int32(parseInt(k.String("CURRENCY_SCALE"), 2))),
		ShippingFallbackFee:  parseMoney(k.String("SHIPPING_FALLBACK_FEE"), "30000"),
		ShippingTierCacheTTL: parseDuration(k.String("SHIPPING_TIER_CACHE_TTL"), "5m"),
		CatalogCacheTTL:      parseDuration(k.String("CATALOG_CACHE_TTL"), "1m"),

		VNPay: VNPayConfig{
			TmnCode:    strings.TrimSpace(k.String("VNPAY_TMN_CODE")),
			HashSecret: k.String("VNPAY_HASH_SECRET"),
			PayURL:     valueOrDefault(k.String("VNPAY_PAY_URL"), "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:  strings.TrimSpace(k.String("VNPAY_RETURN_URL")),
			Locale:     valueOrDefault(k.String("VNPAY_LOCALE"), "vn"),
			OrderType:  valueOrDefault(k.String("VNPAY_ORDER_TYPE"), "other"),
		},

		PaymentSessionTTL:    parseDuration(k.String("PAYMENT_SESSION_TTL"), "15m"),
		PaymentSweepInterval: parseDuration(k.String("PAYMENT_SWEEP_INTERVAL"), "5m"),
		PaymentSweepGrace:    parseDuration(k.String("PAYMENT_SWEEP_GRACE"), "10m"),
		PaymentSweepBatch:    parseInt(k.String("PAYMENT_SWEEP_BATCH"), 100),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		RateLimitStrategy:    strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		RateLimitCallbackMax: parseInt(k.String("RATE_LIMIT_CALLBACK_MAX"), 120),
		RateLimitWindow:      parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		BodyLimitBytes:       int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		Notify: NotifyConfig{
			WebhookURL:          strings.TrimSpace(k.String("NOTIFY_WEBHOOK_URL")),
			WebhookSecret:       k.String("NOTIFY_WEBHOOK_SECRET"),
			Timeout:             parseDuration(k.String("NOTIFY_TIMEOUT"), "5s"),
			MaxAttempts:         parseInt(k.String("NOTIFY_MAX_ATTEMPTS"), 3),
			RetryBase:           parseDuration(k.String("NOTIFY_RETRY_BASE"), "200ms"),
			BreakerMinRequests:  parseInt(k.String("NOTIFY_BREAKER_MIN_REQUESTS"), 10),
			BreakerFailureRatio: parseFloat(k.String("NOTIFY_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("NOTIFY_BREAKER_OPEN_FOR"), "30s"),
			TaskMaxRetry:        parseInt(k.String("NOTIFY_TASK_MAX_RETRY"), 8),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if (cfg.VNPay.TmnCode == "") != (cfg.VNPay.HashSecret == "") {
		return nil, errors.New("VNPAY_TMN_CODE and VNPAY_HASH_SECRET must be set together")
	}
	if cfg.PaymentSessionTTL <= 0 {
		return nil, errors.New("PAYMENT_SESSION_TTL must be positive")
	}
	if cfg.PaymentSweepGrace < 0 {
		return nil, errors.New("PAYMENT_SWEEP_GRACE must not be negative")
	}
	if cfg.Notify.WebhookURL != "" && cfg.Notify.WebhookSecret == "" {
		return nil, errors.New("NOTIFY_WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set")
	}
	switch cfg.RateLimitStrategy {
	case "sliding", "fixed":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY %q is not supported", cfg.RateLimitStrategy)
	}

	return cfg, nil
}

// PaymentSweepCutoff is the age after which an unanswered gateway attempt is
// expired: the session TTL plus a grace period for late IPNs.
func (c *Config) PaymentSweepCutoff() time.Duration {
	return c.PaymentSessionTTL + c.PaymentSweepGrace
}

// GatewayEnabled reports whether online payment credentials are configured.
func (c *Config) GatewayEnabled() bool {
	return c.VNPay.TmnCode != "" && c.VNPay.HashSecret != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseMoney(value, fallback string) money.Money {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	m, err := money.Parse(base)
	if err != nil || m.IsNegative() {
		m, _ = money.Parse(fallback)
	}
	return m
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
