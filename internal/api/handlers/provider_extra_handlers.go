package handlers

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cryptogate/gateway_service/internal/adapters/exolix"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// NetworkCatalog is Exolix's network and history surface
type NetworkCatalog interface {
	CurrencyNetworks(ctx context.Context, code string) ([]entities.Network, error)
	Networks(ctx context.Context, query url.Values) (*exolix.Page, error)
	Transactions(ctx context.Context, query url.Values) (*exolix.Page, error)
}

// PairLister is SimpleSwap's pair map
type PairLister interface {
	Pairs(ctx context.Context, fixed bool) (json.RawMessage, error)
}

// IPLocator is MoonPay's ip-info lookup
type IPLocator interface {
	IPInfo(ctx context.Context, ip string) (json.RawMessage, error)
}

// FiatLister lists fiat currencies separately from crypto
type FiatLister interface {
	FiatCurrencies(ctx context.Context) ([]entities.Currency, error)
}

// ConfigMapper exposes OnRamp's allConfigMapping
type ConfigMapper interface {
	ConfigMapping(ctx context.Context) (json.RawMessage, error)
}

// ProviderExtraHandlers serves endpoints only one provider has
type ProviderExtraHandlers struct {
	logger *logger.Logger
}

// NewProviderExtraHandlers creates a new ProviderExtraHandlers instance
func NewProviderExtraHandlers(logger *logger.Logger) *ProviderExtraHandlers {
	return &ProviderExtraHandlers{logger: logger}
}

// CurrencyNetworks handles GET /api/v1/exolix/currencies/:code/networks
func (h *ProviderExtraHandlers) CurrencyNetworks(catalog NetworkCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
		if code == "" {
			respondBadRequest(c, "Currency code is required")
			return
		}
		networks, err := catalog.CurrencyNetworks(c.Request.Context(), code)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success":  true,
			"currency": code,
			"networks": networks,
		})
	}
}

// Networks handles GET /api/v1/exolix/networks
func (h *ProviderExtraHandlers) Networks(catalog NetworkCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := catalog.Networks(c.Request.Context(), c.Request.URL.Query())
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"count":   page.Count,
			"data":    page.Data,
		})
	}
}

// ProviderTransactions handles GET /api/v1/exolix/transactions
func (h *ProviderExtraHandlers) ProviderTransactions(catalog NetworkCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := catalog.Transactions(c.Request.Context(), c.Request.URL.Query())
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"count":   page.Count,
			"data":    page.Data,
		})
	}
}

// Pairs handles GET /api/v1/simpleswap/pairs?fixed=true
func (h *ProviderExtraHandlers) Pairs(lister PairLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		pairs, err := lister.Pairs(c.Request.Context(), parseBoolParam(c, "fixed", false))
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"pairs":   pairs,
		})
	}
}

// IPInfo handles GET /api/v1/moonpay/ip-info. The caller's address is used
// unless ?ip= is given.
func (h *ProviderExtraHandlers) IPInfo(locator IPLocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Query("ip")
		if ip == "" {
			ip = c.ClientIP()
		}
		info, err := locator.IPInfo(c.Request.Context(), ip)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"ip_info": info,
		})
	}
}

// FiatCurrencies handles GET /api/v1/meld/fiat-currencies
func (h *ProviderExtraHandlers) FiatCurrencies(lister FiatLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		currencies, err := lister.FiatCurrencies(c.Request.Context())
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success":    true,
			"count":      len(currencies),
			"currencies": currencies,
		})
	}
}

// ConfigMapping handles GET /api/v1/onramp/config
func (h *ProviderExtraHandlers) ConfigMapping(mapper ConfigMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		mapping, err := mapper.ConfigMapping(c.Request.Context())
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"config":  mapping,
		})
	}
}
