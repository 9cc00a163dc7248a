package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	_ "github.com/cryptogate/gateway_service/docs"
	"github.com/cryptogate/gateway_service/internal/api/routes"
	"github.com/cryptogate/gateway_service/internal/infrastructure/cache"
	"github.com/cryptogate/gateway_service/internal/infrastructure/config"
	"github.com/cryptogate/gateway_service/internal/infrastructure/database"
	"github.com/cryptogate/gateway_service/internal/infrastructure/di"
	"github.com/cryptogate/gateway_service/pkg/graceful"
	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/metrics"
	"github.com/cryptogate/gateway_service/pkg/tracing"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// @title Crypto Gateway API
// @version 1.0
// @description Unified quote, transaction and status API over on-ramp and swap providers

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.NewWithFile(cfg.LogLevel, cfg.Environment, logger.FileConfig{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
	})
	defer log.Sync()

	ctx := context.Background()

	// Provider credentials may live in AWS Secrets Manager
	if err := di.ResolveSecrets(ctx, cfg, log); err != nil {
		log.Fatal("Failed to resolve secrets", "error", err)
	}

	// Initialize OpenTelemetry tracing
	tracingShutdown := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		tracingConfig := tracing.Config{
			Enabled:      true,
			CollectorURL: cfg.Tracing.CollectorURL,
			Environment:  cfg.Environment,
			Version:      version,
			SampleRate:   cfg.Tracing.SampleRate,
			Insecure:     cfg.Tracing.Insecure,
		}
		tracingShutdown, err = tracing.InitTracer(ctx, tracingConfig, log.Zap())
		if err != nil {
			log.Fatal("Failed to initialize tracing", "error", err)
		}
		log.Info("OpenTelemetry tracing initialized", "collector_url", tracingConfig.CollectorURL)
	}

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Run migrations
	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	// Initialize Redis
	rdb, err := cache.Connect(cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to redis", "error", err)
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Build dependency injection container
	container, err := di.NewContainer(cfg, db, rdb, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	routes.Version = version
	router, stopRouter := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	shutdown := graceful.NewShutdownManager(server, 30*time.Second, log)
	// Closed in reverse order: poller first, database last
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	shutdown.Register("tracing", tracingShutdown)
	shutdown.Register("container", func(context.Context) error { return container.Close() })
	shutdown.Register("router", func(context.Context) error {
		stopRouter()
		return nil
	})

	// Status poller backs up webhooks for pending transactions
	if cfg.Workers.StatusPoller.Enabled {
		poller, err := container.GetStatusPoller()
		if err != nil {
			log.Fatal("Failed to create status poller", "error", err)
		}
		if err := poller.Start(); err != nil {
			log.Fatal("Failed to start status poller", "error", err)
		}
		shutdown.Register("status_poller", func(context.Context) error {
			poller.Stop()
			return nil
		})
		log.Info("Status poller started", "schedule", cfg.Workers.StatusPoller.Schedule)
	} else {
		log.Info("Status poller disabled in configuration")
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"providers", container.Registry.Names(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	shutdown.Register("db_stats", func(context.Context) error {
		stopStats()
		return nil
	})
	go reportDatabaseStats(statsCtx, db)

	shutdown.WaitForShutdown()
}

// reportDatabaseStats feeds the connection pool gauges until ctx ends
func reportDatabaseStats(ctx context.Context, db *sqlx.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}
}
