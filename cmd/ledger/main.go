package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/jaat-ai/ledger/app/controllers"
	"github.com/jaat-ai/ledger/internal/pkg/billing"
	"github.com/jaat-ai/ledger/internal/pkg/cache"
	"github.com/jaat-ai/ledger/internal/pkg/catalog"
	"github.com/jaat-ai/ledger/internal/pkg/constants"
	"github.com/jaat-ai/ledger/internal/pkg/database"
	"github.com/jaat-ai/ledger/internal/pkg/entitlements"
	"github.com/jaat-ai/ledger/internal/pkg/env"
	"github.com/jaat-ai/ledger/internal/pkg/locks"
	"github.com/jaat-ai/ledger/internal/pkg/metrics"
	"github.com/jaat-ai/ledger/internal/pkg/middleware"
	"github.com/jaat-ai/ledger/internal/pkg/router"
	"github.com/jaat-ai/ledger/internal/pkg/snapshot"
	"github.com/jaat-ai/ledger/internal/pkg/storage"
)

func main() {
	env.SetupEnvFile()
	cfg, err := env.LoadConfig()
	if err != nil {
		log.Fatalf("[Ledger] invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := NewApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("[Ledger] startup failed: %v", err)
	}
	defer cleanup()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Errorf("[Ledger] shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)); err != nil {
		log.Errorf("[Ledger] server stopped: %v", err)
	}
}

// NewApplication wires configuration into a ready Fiber app. The returned
// cleanup releases connections and background jobs.
func NewApplication(ctx context.Context, cfg *env.Config) (*fiber.App, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*fiber.App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	plans, err := catalog.Load(cfg.CatalogPath, cfg.FreePlanID)
	if err != nil {
		return fail(fmt.Errorf("load plan catalog: %w", err))
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		if redisClient, err = cache.NewClient(ctx, cfg); err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	var db *gorm.DB
	if cfg.UsesMySQL() {
		if db, err = database.Open(ctx, cfg); err != nil {
			return fail(err)
		}
		if err := database.AutoMigrate(db); err != nil {
			return fail(fmt.Errorf("migrate ledger tables: %w", err))
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
	}

	var (
		store     storage.Store
		fileStore *storage.FileStore
	)
	switch cfg.StoreBackend {
	case env.StoreBackendMySQL:
		store = storage.NewGormStore(db)
	default:
		fileStore = storage.NewFileStore(cfg.FilePath)
		store = fileStore
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedger(reg)

	reset, err := resetPolicy(cfg)
	if err != nil {
		return fail(err)
	}
	opts := []entitlements.Option{
		entitlements.WithResetPolicy(reset),
		entitlements.WithStoreTimeout(cfg.StoreTimeout),
		entitlements.WithMetrics(ledgerMetrics),
	}
	if cfg.LockBackend == env.LockBackendRedis {
		opts = append(opts, entitlements.WithLocker(locks.NewRedisLocker(redisClient, cfg.LockTTL)))
	}
	engine := entitlements.NewEngine(plans, store, opts...)

	var events billing.EventLog
	switch cfg.WebhookEventLog {
	case "redis":
		events = billing.NewRedisEventLog(redisClient, 7*24*time.Hour)
	case env.StoreBackendMySQL:
		events = billing.NewGormEventLog(db)
	default:
		if events, err = billing.NewMemoryEventLog(4096); err != nil {
			return fail(err)
		}
	}
	billingService := billing.NewService(engine, plans, events)

	if cfg.SnapshotEnabled {
		client, err := snapshot.NewS3Client(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		job, err := snapshot.New(fileStore, client, cfg.S3Bucket, cfg.S3Prefix).Schedule(cfg.SnapshotCron, time.Minute)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { <-job.Stop().Done() })
		log.Infof("[Snapshot] scheduled %q to s3://%s/%s", cfg.SnapshotCron, cfg.S3Bucket, cfg.S3Prefix)
	}

	app := fiber.New(fiber.Config{
		AppName:   "ledger",
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat("docs/openapi.yml"); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: "docs/openapi.yml",
			Path:     "v1",
		}))
	}

	deps := router.Dependencies{
		Controller:      controllers.NewLedgerController(engine, plans, billingService, cfg.FastSpringWebhookSecret),
		AdminKeyHash:    cfg.AdminAPIKeyHash,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Gatherer:        reg,
		Health:          healthCheck(redisClient, db),
	}
	if cfg.RateLimitBackend == "redis" {
		limiterStorage := cache.NewLimiterStorage(cfg)
		closers = append(closers, func() { _ = limiterStorage.Close() })
		deps.LimiterStorage = limiterStorage
	}
	router.InstallRouter(app, deps)
	app.Get(constants.MonitorRoute, middleware.AdminAPIKey(cfg.AdminAPIKeyHash), monitor.New(monitor.Config{Title: "Ledger Metrics"}))

	log.Infof("[Ledger] store=%s locks=%s reset=%s free plan=%s", cfg.StoreBackend, cfg.LockBackend, cfg.ResetMode, plans.FreePlan().ID)
	return app, cleanup, nil
}

func resetPolicy(cfg *env.Config) (entitlements.ResetPolicy, error) {
	if cfg.ResetMode == env.ResetModeRolling {
		return entitlements.Rolling{Period: time.Duration(cfg.RollingPeriodDay) * 24 * time.Hour}, nil
	}
	loc, err := cfg.ResetLocation()
	if err != nil {
		return nil, err
	}
	return entitlements.CalendarMonthly{Location: loc}, nil
}

func healthCheck(redisClient *redis.Client, db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				errs = append(errs, fmt.Errorf("cache: %w", err))
			}
		}
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
