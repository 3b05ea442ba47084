package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/expense-metrics/internal/api"
	"github.com/Checker-Finance/expense-metrics/internal/cache"
	"github.com/Checker-Finance/expense-metrics/internal/calculator"
	"github.com/Checker-Finance/expense-metrics/internal/clock"
	"github.com/Checker-Finance/expense-metrics/internal/consumer"
	"github.com/Checker-Finance/expense-metrics/internal/debounce"
	"github.com/Checker-Finance/expense-metrics/internal/jobs"
	"github.com/Checker-Finance/expense-metrics/internal/publisher"
	"github.com/Checker-Finance/expense-metrics/internal/recorder"
	"github.com/Checker-Finance/expense-metrics/internal/records"
	"github.com/Checker-Finance/expense-metrics/internal/scheduler"
	internalsecrets "github.com/Checker-Finance/expense-metrics/internal/secrets"
	"github.com/Checker-Finance/expense-metrics/pkg/config"
	"github.com/Checker-Finance/expense-metrics/pkg/logger"
	"github.com/Checker-Finance/expense-metrics/pkg/secrets"
	"github.com/Checker-Finance/expense-metrics/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [expense-metrics]...")

	// --- Datastore credentials (AWS Secrets Manager when configured) ---
	dbURL := cfg.DatabaseURL
	redisPass := cfg.RedisPass
	if cfg.DBSecretName != "" {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		credsCache := secrets.NewCache[internalsecrets.DBCredentials](cfg.SecretsCacheTTL)
		resolver := internalsecrets.NewResolver(logg.Desugar(), awsProvider, credsCache, cfg.DBSecretName)
		creds, err := resolver.Resolve(ctx)
		if err != nil {
			logg.Fatalw("failed to resolve datastore credentials", "error", err)
		}
		dbURL = creds.DatabaseURL
		if creds.RedisPass != "" {
			redisPass = creds.RedisPass
		}
	}

	// --- Redis coordination cache ---
	cc, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB, redisPass, logger.L())
	if err != nil {
		logg.Fatalw("failed to init cache", "error", err)
	}

	// --- Postgres record store ---
	st, err := records.NewPostgres(ctx, dbURL, records.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init record store", "error", err, "dsn", utils.MaskDSN(dbURL))
	}
	logg.Infow("record store connected", "dsn", utils.MaskDSN(dbURL))

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OutboundSubject, cfg.ServiceName)
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Refresh pipeline ---
	clk := clock.Real{}
	calc := calculator.New(logger.L(), st, cc, clk, cfg.SnapshotTTL)
	rec := recorder.New(logger.L(), cc, clk)
	job := jobs.NewRefreshJob(logger.L(), cc, calc, rec, clk, pub,
		cfg.LockTTL, cfg.RecencyWindow, cfg.RefreshTarget)
	sched := scheduler.New(logger.L(), job.Run, cfg.MaxAttempts, cfg.RetryBackoff)
	gate := debounce.NewGate(logger.L(), cc, sched, cfg.DebounceWindow)

	// --- Record-event consumer ---
	cons := consumer.New(logger.L(), nc, gate)
	if err := cons.Start(ctx, cfg.InboundSubject, cfg.QueueGroup); err != nil {
		logg.Fatalw("failed to start consumer", "error", err)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	handler := api.NewMetricsHandler(logger.L(), calc, gate, rec)
	api.RegisterRoutes(app, nc, cc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[expense-metrics] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"debounce_window", cfg.DebounceWindow,
		"snapshot_ttl", cfg.SnapshotTTL)

	<-ctx.Done()
	logg.Info("shutting down [expense-metrics]...")

	cons.Stop()
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := cc.Close(); err != nil {
		logg.Warnw("cache.close_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
