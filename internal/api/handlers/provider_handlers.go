package handlers

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/domain/services/reconciliation"
	"github.com/cryptogate/gateway_service/internal/domain/services/transaction"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// TransactionRecorder stores a freshly created provider transaction
type TransactionRecorder interface {
	Record(ctx context.Context, in transaction.RecordInput) (*entities.TransactionHandle, error)
}

// Reconciler applies webhook and polling status updates
type Reconciler interface {
	ApplyWebhook(ctx context.Context, p provider.Provider, event *entities.WebhookEvent) (*reconciliation.Outcome, error)
	Poll(ctx context.Context, p provider.Provider, providerTxID string) (*reconciliation.PollResult, error)
}

// ProviderHandlers serves the per-provider quote, create, status and
// catalog endpoints. Each method returns a handler bound to one provider.
type ProviderHandlers struct {
	recorder   TransactionRecorder
	reconciler Reconciler
	validator  *validator.Validate
	logger     *logger.Logger
}

// NewProviderHandlers creates a new ProviderHandlers instance
func NewProviderHandlers(recorder TransactionRecorder, reconciler Reconciler, logger *logger.Logger) *ProviderHandlers {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ProviderHandlers{
		recorder:   recorder,
		reconciler: reconciler,
		validator:  v,
		logger:     logger,
	}
}

// defaultAction is SWAP for crypto-to-crypto exchanges and BUY for on-ramps
func defaultAction(name entities.Provider) entities.TransactionType {
	switch name {
	case entities.ProviderChangelly, entities.ProviderExolix,
		entities.ProviderLetsExchange, entities.ProviderSimpleSwap:
		return entities.TransactionTypeSwap
	}
	return entities.TransactionTypeBuy
}

func normalizeAction(name entities.Provider, action entities.TransactionType) entities.TransactionType {
	if action == "" {
		return defaultAction(name)
	}
	return entities.TransactionType(strings.ToUpper(string(action)))
}

// Quote handles POST /api/v1/:provider/quote
// @Summary Get a provider quote
// @Description Normalized quote for a coin or fiat pair; swap providers default to SWAP
// @Tags providers
// @Accept json
// @Produce json
// @Param provider path string true "Provider slug"
// @Param request body entities.QuoteRequest true "Quote request"
// @Success 200 {object} entities.Quote
// @Failure 400 {object} entities.ErrorResponse
// @Failure 502 {object} entities.UpstreamErrorResponse
// @Router /{provider}/quote [post]
func (h *ProviderHandlers) Quote(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req entities.QuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
			return
		}
		req.Action = normalizeAction(p.Name(), req.Action)

		if err := h.validator.Struct(&req); err != nil {
			SendValidationError(c, "Missing or invalid quote fields", validationErrors(err))
			return
		}
		if !req.Amount.IsPositive() {
			SendValidationError(c, "Amount must be greater than zero", map[string]string{"amount": "gt"})
			return
		}

		quote, err := p.Quote(c.Request.Context(), &req)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}

		SendSuccess(c, gin.H{
			"success": true,
			"quote":   quote,
		})
	}
}

// CreateTransaction handles POST /api/v1/:provider/create-transaction and
// its generate-url alias. The caller-facing id is the gateway transaction id
// when a row was written, otherwise the cache key.
// @Summary Create a provider transaction
// @Tags providers
// @Accept json
// @Produce json
// @Param provider path string true "Provider slug"
// @Param Idempotency-Key header string false "Replay key"
// @Param request body entities.CreateTransactionRequest true "Transaction request"
// @Success 201 {object} entities.ProviderTransaction
// @Failure 400 {object} entities.ErrorResponse
// @Failure 502 {object} entities.UpstreamErrorResponse
// @Security BearerAuth
// @Router /{provider}/create-transaction [post]
func (h *ProviderHandlers) CreateTransaction(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req entities.CreateTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, MsgInvalidRequest, map[string]interface{}{"error": err.Error()})
			return
		}
		req.Action = normalizeAction(p.Name(), req.Action)

		if err := h.validator.Struct(&req); err != nil {
			SendValidationError(c, "Missing or invalid transaction fields", validationErrors(err))
			return
		}
		if !req.Amount.IsPositive() {
			SendValidationError(c, "Amount must be greater than zero", map[string]string{"amount": "gt"})
			return
		}
		req.UserID = optionalUserID(c)

		ctx := c.Request.Context()
		result, err := p.CreateTransaction(ctx, &req)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}

		handle, err := h.recorder.Record(ctx, transaction.RecordInput{
			Provider:    p.Name(),
			UserID:      req.UserID,
			Request:     &req,
			Result:      result,
			FallbackKey: result.ProviderReferenceID,
		})
		if err != nil {
			if handle == nil {
				h.logger.Error("Failed to record transaction",
					"provider", p.Name(),
					"provider_transaction_id", result.ProviderTransactionID,
					"error", err)
				respondInternalError(c, "Transaction was created upstream but could not be recorded")
				return
			}
			// upstream transaction exists; reconciliation falls back to the database
			h.logger.Error("Transaction recorded without cache entry",
				"provider", p.Name(),
				"transaction_id", handle.TransactionID,
				"error", err)
		}

		id := handle.CacheKey
		if handle.Persisted {
			id = handle.TransactionID
		}

		c.JSON(http.StatusCreated, gin.H{
			"success":        true,
			"id":             id,
			"transaction_id": handle.TransactionID,
			"cache_key":      handle.CacheKey,
			"persisted":      handle.Persisted,
			"transaction":    result,
		})
	}
}

// TransactionStatus handles GET /api/v1/:provider/transaction-status/:id
// @Summary Get transaction status
// @Description Served from cache inside the freshness window, otherwise polled upstream
// @Tags providers
// @Produce json
// @Param provider path string true "Provider slug"
// @Param id path string true "Transaction id, cache key or provider id"
// @Success 200 {object} entities.CacheEntry
// @Failure 404 {object} entities.ErrorResponse
// @Router /{provider}/transaction-status/{id} [get]
func (h *ProviderHandlers) TransactionStatus(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id == "" {
			respondBadRequest(c, "Transaction id is required")
			return
		}

		result, err := h.reconciler.Poll(c.Request.Context(), p, id)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}

		SendSuccess(c, gin.H{
			"success":     true,
			"status":      result.Transaction.Status,
			"source":      result.Source,
			"transaction": result.Transaction,
		})
	}
}

// Currencies handles GET /api/v1/:provider/currencies
func (h *ProviderHandlers) Currencies(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		lister, ok := p.(provider.CurrencyLister)
		if !ok {
			handleServiceError(c, h.logger, domainerrors.UnsupportedError(p.Name().Slug(), "currency listing"))
			return
		}
		currencies, err := lister.ListCurrencies(c.Request.Context())
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

// Limits handles GET /api/v1/:provider/limits
func (h *ProviderHandlers) Limits(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		lp, ok := p.(provider.LimitsProvider)
		if !ok {
			handleServiceError(c, h.logger, domainerrors.UnsupportedError(p.Name().Slug(), "limits"))
			return
		}
		var req entities.LimitsRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondBadRequest(c, "source_currency and destination_currency are required", map[string]interface{}{"error": err.Error()})
			return
		}
		req.Action = normalizeAction(p.Name(), req.Action)

		limits, err := lp.GetLimits(c.Request.Context(), &req)
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success": true,
			"limits":  limits,
		})
	}
}

// PaymentMethods handles GET /api/v1/:provider/payment-methods
func (h *ProviderHandlers) PaymentMethods(p provider.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		pl, ok := p.(provider.PaymentMethodLister)
		if !ok {
			handleServiceError(c, h.logger, domainerrors.UnsupportedError(p.Name().Slug(), "payment methods"))
			return
		}
		methods, err := pl.ListPaymentMethods(c.Request.Context(), c.Query("fiat"), c.Query("country"))
		if err != nil {
			handleServiceError(c, h.logger, err)
			return
		}
		SendSuccess(c, gin.H{
			"success":         true,
			"payment_methods": methods,
		})
	}
}
