package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/cache"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/database"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/logging"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/routes"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.StoreDriver == "postgres" && cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Record store
	var (
		store repository.Store
		db    *gorm.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		slog.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	case "postgres", "sqlite":
		var err error
		db, err = database.Connect(cfg)
		if err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(db); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
		store = repository.NewGormStore(db)
	default:
		slog.Error("unknown STORE_DRIVER", "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	var pgLogHandler *logging.PGHandler
	if db != nil {
		pgLogHandler = logging.NewPGHandler(db)
		logging.Setup(cfg.LogLevel, pgLogHandler)
	}

	// Ledger
	var client ledger.Client
	switch cfg.LedgerDriver {
	case "memory":
		slog.Warn("using in-memory ledger")
		client = ledger.NewMemoryLedger(cfg.LedgerChainID)
	case "ethereum":
		eth, err := ledger.NewEthereumClient(ledger.EthereumConfig{
			RPCURL:          cfg.LedgerRPCURL,
			ContractAddress: cfg.LedgerContract,
			OperatorKey:     cfg.LedgerOperatorKey,
		})
		if err != nil {
			slog.Error("ledger client setup failed", "error", err)
			os.Exit(1)
		}
		client = eth
	default:
		slog.Error("unknown LEDGER_DRIVER", "driver", cfg.LedgerDriver)
		os.Exit(1)
	}
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.LedgerTimeout)
	if err := client.Connect(connectCtx); err != nil {
		// Requests fail with 503 until the node is reachable; the client redials.
		slog.Error("ledger connection failed", "rpc_url", cfg.LedgerRPCURL, "error", err)
	}
	cancel()

	// Statistics cache
	var statsCache cache.Cache = cache.NewMemory()
	var redisCache *cache.Redis
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cancel()
		if err != nil {
			slog.Error("redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			redisCache = rc
			statsCache = rc
		}
	}

	// Services
	authService := services.NewAuthService(store, client, cfg)
	chainService := services.NewBlockchainService(client, cfg.LedgerTimeout)
	creditService := services.NewCreditService(store, client, statsCache, cfg.LedgerTimeout, cfg.StatsCacheTTL)
	auditService := services.NewAuditService(store, chainService, statsCache, cfg.StatsCacheTTL)
	reconciler := services.NewReconciler(creditService, cfg.ReconcileGrace)

	// Background jobs
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReconcileSchedule, reconciler.Job()); err != nil {
		slog.Error("invalid RECONCILE_SCHEDULE", "schedule", cfg.ReconcileSchedule, "error", err)
		os.Exit(1)
	}
	if db != nil {
		// Log cleanup (30-day retention by default)
		if _, err := scheduler.AddFunc("@daily", logging.CleanupJob(db, cfg.LogRetention)); err != nil {
			slog.Error("log cleanup schedule failed", "error", err)
			os.Exit(1)
		}
	}
	scheduler.Start()

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
			Release:          version,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecureHeaders())
	if cfg.MetricsEnabled {
		app.Use(metrics.Middleware())
	}

	// Routes
	routes.Setup(app, cfg, routes.Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Credit:     handlers.NewCreditHandler(creditService),
		Audit:      handlers.NewAuditHandler(auditService),
		Blockchain: handlers.NewBlockchainHandler(chainService),
		Health:     handlers.NewHealthHandler(store, chainService, version),
	}, authService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver, "ledger", cfg.LedgerDriver)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Let an in-flight reconcile run finish before closing its dependencies
	<-scheduler.Stop().Done()

	if err := client.Close(); err != nil {
		slog.Error("ledger close error", "error", err)
	}
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if pgLogHandler != nil {
		pgLogHandler.Stop()
	}
	sentry.Flush(2 * time.Second)

	if err := store.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
