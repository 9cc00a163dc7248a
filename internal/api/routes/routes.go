package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/cryptogate/gateway_service/internal/api/handlers"
	"github.com/cryptogate/gateway_service/internal/api/middleware"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/infrastructure/di"
	"github.com/cryptogate/gateway_service/pkg/idempotency"
)

// APIPrefix is the versioned root of every provider and user route
const APIPrefix = "/api/v1"

// ServiceName labels traces
const ServiceName = "gateway_service"

// Version is reported by the health endpoints
var Version = "dev"

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) (*gin.Engine, func()) {
	cfg := container.Config
	router := gin.New()

	ipLimiter := middleware.NewIPRateLimiter(cfg.Server.RateLimitPerMin)

	// Global middleware - order matters
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing(ServiceName))
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit(cfg.Server.MaxBodyBytes))
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(ipLimiter.Limit())
	router.Use(middleware.SecurityHeaders())

	// Health checks (no auth required)
	var checks []handlers.Check
	for name, probe := range container.HealthChecks() {
		checks = append(checks, handlers.Check{Name: name, Critical: true, Probe: probe})
	}
	providerNames := make([]string, 0, len(container.Registry.Names()))
	for _, name := range container.Registry.Names() {
		providerNames = append(providerNames, name.Slug())
	}
	healthHandler := handlers.NewHealthHandler(checks, providerNames, container.Logger, Version)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Readiness)
	router.GET("/live", healthHandler.Liveness)
	router.GET("/metrics", healthHandler.Metrics())

	// Swagger documentation (development only)
	if !cfg.IsProduction() {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	policy := middleware.NewRoutePolicy(APIPrefix, cfg.Auth.RequiredRoutes, cfg.Auth.OptionalRoutes)

	v1 := router.Group(APIPrefix)
	v1.Use(middleware.Authentication(policy, container.TokenValidator, container.Logger))
	v1.Use(middleware.TieredRateLimiting(container.TieredLimiter, container.Logger))

	providerHandlers := handlers.NewProviderHandlers(container.TransactionService, container.ReconciliationService, container.Logger)
	webhookHandlers := handlers.NewWebhookHandlers(container.ReconciliationService, container.Logger)
	extraHandlers := handlers.NewProviderExtraHandlers(container.Logger)

	// Replays the stored response for a repeated Idempotency-Key
	createGuard := func(c *gin.Context) { c.Next() }
	if cfg.Idempotency.Enabled {
		createGuard = idempotency.Middleware(container.Cache, cfg.Idempotency.TTL, container.ZapLog)
	}

	for _, p := range container.Registry.All() {
		group := v1.Group("/" + p.Name().Slug())
		registerProvider(group, p, providerHandlers, webhookHandlers, extraHandlers, createGuard)
	}

	// User transaction surface
	transactionHandlers := handlers.NewTransactionHandlers(container.TransactionService, container.Logger)
	txns := v1.Group("/transactions")
	{
		txns.GET("", transactionHandlers.List)
		txns.GET("/recent", transactionHandlers.Recent)
		txns.GET("/stats", transactionHandlers.Statistics)
		txns.GET("/stats/quick", transactionHandlers.QuickStats)
		txns.GET("/export", transactionHandlers.Export)
		txns.GET("/:id", transactionHandlers.Get)
	}

	return router, ipLimiter.Stop
}

// registerProvider mounts the common surface plus whatever optional
// capabilities p implements
func registerProvider(
	group *gin.RouterGroup,
	p provider.Provider,
	ph *handlers.ProviderHandlers,
	wh *handlers.WebhookHandlers,
	xh *handlers.ProviderExtraHandlers,
	createGuard gin.HandlerFunc,
) {
	group.POST("/quote", ph.Quote(p))
	group.POST("/create-transaction", createGuard, ph.CreateTransaction(p))
	group.POST("/generate-url", createGuard, ph.CreateTransaction(p))
	group.GET("/transaction-status/:id", ph.TransactionStatus(p))

	if parser, ok := p.(provider.WebhookParser); ok {
		group.POST("/webhook", wh.Handle(p, parser))
	}
	if _, ok := p.(provider.CurrencyLister); ok {
		group.GET("/currencies", ph.Currencies(p))
	}
	if _, ok := p.(provider.LimitsProvider); ok {
		group.GET("/limits", ph.Limits(p))
	}
	if _, ok := p.(provider.PaymentMethodLister); ok {
		group.GET("/payment-methods", ph.PaymentMethods(p))
	}

	// Provider specific extras
	if catalog, ok := p.(handlers.NetworkCatalog); ok {
		group.GET("/currencies/:code/networks", xh.CurrencyNetworks(catalog))
		group.GET("/networks", xh.Networks(catalog))
		group.GET("/transactions", xh.ProviderTransactions(catalog))
	}
	if lister, ok := p.(handlers.PairLister); ok {
		group.GET("/pairs", xh.Pairs(lister))
	}
	if locator, ok := p.(handlers.IPLocator); ok {
		group.GET("/ip-info", xh.IPInfo(locator))
	}
	if lister, ok := p.(handlers.FiatLister); ok {
		group.GET("/fiat-currencies", xh.FiatCurrencies(lister))
	}
	if mapper, ok := p.(handlers.ConfigMapper); ok {
		group.GET("/config", xh.ConfigMapping(mapper))
	}
}
