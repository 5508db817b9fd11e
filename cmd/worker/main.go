package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/app"
	"github.com/noah-isme/backend-food/internal/config"
	"github.com/noah-isme/backend-food/internal/events"
	"github.com/noah-isme/backend-food/internal/obs"
	"github.com/noah-isme/backend-food/internal/payment"
	"github.com/noah-isme/backend-food/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "food")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, redisClient, err := app.Connect(connectCtx, cfg, "food-worker", false, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}

	redisOpt := app.TaskRedis(redisClient)
	deps, err := app.New(cfg, logger, pool, redisClient, asynq.NewClient(redisOpt))
	if err != nil {
		logger.Fatal().Err(err).Msg("wire services")
	}
	defer deps.Close()

	mux := asynq.NewServeMux()
	mux.Handle(payment.TaskSweepStale, payment.SweepHandler{Sweeper: deps.Sweeper, Logger: logger})
	mux.Handle(events.TaskNotifyOrderEvent, events.NotifyHandler{Forwarder: deps.Forwarder, Logger: logger})

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: envDurationMillis("WORKER_SHUTDOWN_TIMEOUT_MS", 10000),
	})

	sweep, err := payment.NewSweepTask(cfg.PaymentSweepCutoff(), int32(cfg.PaymentSweepBatch))
	if err != nil {
		logger.Fatal().Err(err).Msg("build sweep task")
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	schedule := "@every " + cfg.PaymentSweepInterval.String()
	if _, err := scheduler.Register(schedule, sweep, asynq.Unique(cfg.PaymentSweepInterval)); err != nil {
		logger.Fatal().Err(err).Str("schedule", schedule).Msg("register sweep schedule")
	}

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Str("sweep", schedule).Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
