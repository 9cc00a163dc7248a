package di

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/domain/services/reconciliation"
	"github.com/cryptogate/gateway_service/internal/domain/services/transaction"
	"github.com/cryptogate/gateway_service/internal/infrastructure/cache"
	"github.com/cryptogate/gateway_service/internal/infrastructure/config"
	"github.com/cryptogate/gateway_service/internal/infrastructure/database"
	"github.com/cryptogate/gateway_service/internal/infrastructure/messaging"
	"github.com/cryptogate/gateway_service/internal/infrastructure/repositories"
	"github.com/cryptogate/gateway_service/internal/workers/status_poller"
	"github.com/cryptogate/gateway_service/pkg/auth"
	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/ratelimit"
	"github.com/cryptogate/gateway_service/pkg/secrets"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Logger *logger.Logger
	ZapLog *zap.Logger

	// Infrastructure
	Redis     *redis.Client
	Cache     cache.RedisClient
	Store     *cache.TransactionStore
	Publisher messaging.Publisher

	// Repositories
	TransactionRepo *repositories.TransactionRepository
	StatsRepo       *repositories.StatsRepository

	// Providers
	Registry *provider.Registry

	// Domain Services
	TransactionService    *transaction.Service
	ReconciliationService *reconciliation.Service

	// Security
	TokenValidator *auth.Validator
	TieredLimiter  *ratelimit.TieredLimiter

	statusPoller *status_poller.Worker
}

// ResolveSecrets fills provider credentials from AWS Secrets Manager when
// configured. Must run before NewContainer builds the adapters.
func ResolveSecrets(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Security.SecretsProvider != "aws_secrets_manager" {
		return nil
	}
	src, err := secrets.NewAWSSecretsManagerProvider(ctx,
		cfg.Security.AWSSecretsRegion,
		cfg.Security.AWSSecretsPrefix,
		cfg.Security.SecretsCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets provider: %w", err)
	}
	cfg.ApplySecrets(ctx, src, func(name string, err error) {
		log.Warn("Provider secret not found, using file/env values", "provider", name, "error", err)
	})
	return nil
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	redisClient := cache.NewFromClient(rdb, zapLog)

	// Repositories
	transactionRepo := repositories.NewTransactionRepository(db)
	statsRepo := repositories.NewStatsRepository(db)

	// Cache projection
	store := cache.NewTransactionStore(redisClient, cache.StoreConfig{
		EntryTTL: cfg.Transactions.CacheTTL,
		DedupTTL: cfg.Transactions.DedupTTL,
		LockTTL:  cfg.Transactions.LockTTL,
	}, zapLog)

	// Provider adapters
	registry, err := NewProviderBuilder(cfg, log).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build providers: %w", err)
	}

	// Status change publisher
	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.Messaging.Enabled {
		kafkaPublisher, err := messaging.NewKafkaPublisher(cfg.Messaging, zapLog)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
		}
		publisher = kafkaPublisher
	}

	transactionService := transaction.NewService(transactionRepo, statsRepo, store, transaction.Config{
		PersistAnonymous: cfg.Transactions.PersistAnonymous,
	}, zapLog)

	reconciliationService := reconciliation.NewService(store, transactionRepo, transactionService, publisher, log, &reconciliation.Config{
		FreshnessWindow: cfg.Transactions.FreshnessWindow,
		PendingTimeout:  cfg.Transactions.PendingTimeout,
	})

	// Bearer tokens are issued by the users service; revocations live in
	// the shared Redis
	tokenValidator := auth.NewValidator(cfg.JWT.Secret, cfg.JWT.Issuer, auth.NewTokenBlacklist(redisClient))

	tieredLimiter := ratelimit.NewTieredLimiter(ratelimit.NewRedisWindow(rdb), tieredConfig(cfg), zapLog)

	log.Info("Container initialized",
		"providers", registry.Names(),
		"messaging_enabled", cfg.Messaging.Enabled,
		"persist_anonymous", cfg.Transactions.PersistAnonymous)

	return &Container{
		Config:                cfg,
		DB:                    db,
		Logger:                log,
		ZapLog:                zapLog,
		Redis:                 rdb,
		Cache:                 redisClient,
		Store:                 store,
		Publisher:             publisher,
		TransactionRepo:       transactionRepo,
		StatsRepo:             statsRepo,
		Registry:              registry,
		TransactionService:    transactionService,
		ReconciliationService: reconciliationService,
		TokenValidator:        tokenValidator,
		TieredLimiter:         tieredLimiter,
	}, nil
}

// tieredConfig derives the shared limits from the per-instance limit.
// Creating transactions is capped tighter than quotes.
func tieredConfig(cfg *config.Config) ratelimit.TieredConfig {
	perMin := int64(cfg.Server.RateLimitPerMin)
	if perMin <= 0 {
		perMin = 120
	}
	createLimit := ratelimit.EndpointLimit{Limit: perMin / 4, Window: time.Minute}
	if createLimit.Limit < 1 {
		createLimit.Limit = 1
	}

	endpoints := make(map[string]ratelimit.EndpointLimit)
	for _, name := range config.ProviderNames {
		endpoints["POST /api/v1/"+name+"/create-transaction"] = createLimit
		endpoints["POST /api/v1/"+name+"/generate-url"] = createLimit
	}
	return ratelimit.TieredConfig{
		IPLimit:        perMin,
		IPWindow:       time.Minute,
		UserLimit:      perMin * 2,
		UserWindow:     time.Minute,
		EndpointLimits: endpoints,
	}
}

// GetStatusPoller returns the status poller, creating it on first use
func (c *Container) GetStatusPoller() (*status_poller.Worker, error) {
	if c.statusPoller != nil {
		return c.statusPoller, nil
	}
	pc := c.Config.Workers.StatusPoller
	worker, err := status_poller.NewWorker(status_poller.Config{
		Schedule:        pc.Schedule,
		BatchSize:       pc.BatchSize,
		MaxConcurrency:  pc.MaxConcurrency,
		MaxAge:          pc.MaxAge,
		FreshnessWindow: c.Config.Transactions.FreshnessWindow,
	}, c.TransactionRepo, c.ReconciliationService, c.Registry, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create status poller: %w", err)
	}
	c.statusPoller = worker
	return worker, nil
}

// HealthChecks probes the database and Redis
func (c *Container) HealthChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, c.DB) },
		"redis":    c.Cache.Ping,
	}
}

// Close releases container resources
func (c *Container) Close() error {
	if err := c.Publisher.Close(); err != nil {
		c.Logger.Warn("Failed to close publisher", "error", err)
	}
	if err := c.Redis.Close(); err != nil {
		return fmt.Errorf("failed to close redis: %w", err)
	}
	return nil
}
