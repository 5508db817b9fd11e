package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-food/internal/auth"
	"github.com/noah-isme/backend-food/internal/cache"
	"github.com/noah-isme/backend-food/internal/catalog"
	"github.com/noah-isme/backend-food/internal/config"
	"github.com/noah-isme/backend-food/internal/coupon"
	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/lock"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/order"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/pricing"
	"github.com/noah-isme/backend-food/internal/ratelimit"
	"github.com/noah-isme/backend-food/internal/resilience"
	"github.com/noah-isme/backend-food/internal/shipping"
	"github.com/noah-isme/backend-food/internal/store"
)

// Container holds the services shared by the api and worker processes.
type Container struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Tasks     *asynq.Client
	Queries   *store.Queries
	Validator *validator.Validate

	Verifier    *auth.Verifier
	Catalog     *catalog.Service
	Tiers       *shipping.StoreSource
	Shipping    *shipping.Resolver
	Coupons     *coupon.Service
	Pricing     *pricing.Engine
	Providers   payment.Registry
	Payments    *payment.Service
	Settler     *payment.Settler
	Sweeper     *payment.Sweeper
	Events      *events.Bus
	Forwarder   *events.Forwarder
	Orders      *order.Service
	RateLimiter ratelimit.Limiter
}

// Connect opens the Postgres pool and the Redis client for the named process.
func Connect(ctx context.Context, cfg *config.Config, name string, metrics bool, logger zerolog.Logger) (*pgxpool.Pool, *redis.Client, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = name

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return pool, rdb, nil
}

// TaskRedis derives the asynq connection from the redis client options.
func TaskRedis(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}

// New wires every service on top of an open pool and redis client.
func New(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, tasks *asynq.Client) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return nil, err
	}
	var db store.Beginner
	if pool != nil {
		db = pool
	}
	q := store.New(pool)

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		DB:        pool,
		Redis:     rdb,
		Tasks:     tasks,
		Queries:   q,
		Validator: NewValidator(),
		Verifier:  verifier,
	}

	notifiers := []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}}
	if tasks != nil {
		notifiers = append(notifiers, events.TaskNotifier{
			Client:     tasks,
			Topics:     events.DefaultTopics(),
			MaxRetry:   cfg.Notify.TaskMaxRetry,
			RetainedBy: 24 * time.Hour,
		})
	}
	c.Events = &events.Bus{Store: q, Notifiers: notifiers}
	c.Forwarder = newForwarder(cfg.Notify, logger)

	c.Catalog = &catalog.Service{Q: q, Cache: cache.NewJSON(rdb, cfg.CatalogCacheTTL), Logger: logger}
	c.Tiers = &shipping.StoreSource{
		Q:      q,
		InTx:   store.Runner(db, q, func(tx *store.Queries) shipping.Querier { return tx }),
		Cache:  cache.NewJSON(rdb, cfg.ShippingTierCacheTTL),
		Logger: logger,
	}
	fallback := cfg.ShippingFallbackFee
	c.Shipping = &shipping.Resolver{Source: c.Tiers, FallbackFee: &fallback, Logger: logger}
	c.Coupons = &coupon.Service{Q: q, Logger: logger}
	c.Pricing = &pricing.Engine{Catalog: c.Catalog, Shipping: c.Shipping, Coupons: c.Coupons, Currency: cfg.Currency}

	if cfg.GatewayEnabled() {
		c.Providers = payment.NewRegistry(payment.VNPay{
			TmnCode:    cfg.VNPay.TmnCode,
			HashSecret: cfg.VNPay.HashSecret,
			PayURL:     cfg.VNPay.PayURL,
			ReturnURL:  cfg.VNPay.ReturnURL,
			Locale:     cfg.VNPay.Locale,
			OrderType:  cfg.VNPay.OrderType,
			CurrCode:   "VND",
		})
	} else {
		c.Providers = payment.NewRegistry()
		logger.Warn().Msg("payment gateway credentials missing, online payments disabled")
	}

	c.Payments = &payment.Service{
		InTx:       store.Runner(db, q, func(tx *store.Queries) payment.Querier { return tx }),
		Providers:  c.Providers,
		Locker:     lock.Locker{R: rdb, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:    cfg.LockTTL,
		SessionTTL: cfg.PaymentSessionTTL,
		Logger:     logger,
	}
	c.Settler = &payment.Settler{
		InTx:      store.Runner(db, q, func(tx *store.Queries) payment.SettlementQuerier { return tx }),
		Providers: c.Providers,
		Coupons:   c.Coupons,
		Events:    c.Events,
		Logger:    logger,
	}
	c.Sweeper = &payment.Sweeper{
		InTx:   store.Runner(db, q, func(tx *store.Queries) payment.SweepQuerier { return tx }),
		Events: c.Events,
		Logger: logger,
	}
	c.Orders = &order.Service{
		Q:          q,
		InTx:       store.Runner(db, q, func(tx *store.Queries) order.Querier { return tx }),
		Pricing:    c.Pricing,
		Dispatcher: payment.Dispatcher{},
		Payments:   c.Payments,
		Coupons:    c.Coupons,
		Events:     c.Events,
		Logger:     logger,
	}

	limiter, err := newRateLimiter(cfg.RateLimitStrategy, rdb)
	if err != nil {
		return nil, err
	}
	c.RateLimiter = limiter
	return c, nil
}

// Close releases the task client, redis client and pool.
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Tasks != nil {
		if err := c.Tasks.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// NewValidator reports field errors under their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func newRateLimiter(strategy string, rdb *redis.Client) (ratelimit.Limiter, error) {
	if rdb == nil {
		return nil, nil
	}
	switch strategy {
	case "fixed":
		fw, err := ratelimit.NewFixedWindow(rdb, "rl:fixed")
		if err != nil {
			return nil, fmt.Errorf("init fixed window limiter: %w", err)
		}
		return fw, nil
	default:
		return ratelimit.Sliding{Client: rdb, Prefix: "rl:sliding"}, nil
	}
}

func newForwarder(cfg config.NotifyConfig, logger zerolog.Logger) *events.Forwarder {
	if cfg.WebhookURL == "" {
		return nil
	}
	breaker := resilience.NewBreaker("notify-webhook", cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithLogger(logger)
	return &events.Forwarder{
		URL:    cfg.WebhookURL,
		Secret: cfg.WebhookSecret,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
	}
}
