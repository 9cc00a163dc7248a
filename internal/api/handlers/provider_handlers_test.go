package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/domain/services/reconciliation"
	"github.com/cryptogate/gateway_service/internal/domain/services/transaction"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

type stubProvider struct {
	name       entities.Provider
	quote      *entities.Quote
	created    *entities.ProviderTransaction
	err        error
	lastQuote  *entities.QuoteRequest
	lastCreate *entities.CreateTransactionRequest
}

func (s *stubProvider) Name() entities.Provider { return s.name }

func (s *stubProvider) Quote(_ context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	s.lastQuote = req
	return s.quote, s.err
}

func (s *stubProvider) CreateTransaction(_ context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	s.lastCreate = req
	return s.created, s.err
}

func (s *stubProvider) GetStatus(context.Context, string) (*entities.ProviderStatus, error) {
	return nil, s.err
}

func (s *stubProvider) MapStatus(string) entities.TransactionStatus {
	return entities.TransactionStatusPending
}

func (s *stubProvider) ParseCurrency(code string) currency.Pair {
	return currency.Pair{Coin: code, Network: code}
}

// listingProvider adds the currency listing capability
type listingProvider struct {
	stubProvider
	currencies []entities.Currency
}

func (l *listingProvider) ListCurrencies(context.Context) ([]entities.Currency, error) {
	return l.currencies, nil
}

type stubRecorder struct {
	handle *entities.TransactionHandle
	err    error
	input  transaction.RecordInput
}

func (s *stubRecorder) Record(_ context.Context, in transaction.RecordInput) (*entities.TransactionHandle, error) {
	s.input = in
	return s.handle, s.err
}

type stubReconciler struct {
	outcome  *reconciliation.Outcome
	poll     *reconciliation.PollResult
	err      error
	event    *entities.WebhookEvent
	polledID string
}

func (s *stubReconciler) ApplyWebhook(_ context.Context, _ provider.Provider, event *entities.WebhookEvent) (*reconciliation.Outcome, error) {
	s.event = event
	return s.outcome, s.err
}

func (s *stubReconciler) Poll(_ context.Context, _ provider.Provider, id string) (*reconciliation.PollResult, error) {
	s.polledID = id
	return s.poll, s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestQuote(t *testing.T) {
	p := &stubProvider{
		name: entities.ProviderExolix,
		quote: &entities.Quote{
			Provider:        entities.ProviderExolix,
			SourceCurrency:  "BTC",
			EstimatedAmount: decimal.RequireFromString("15.2"),
		},
	}
	h := NewProviderHandlers(&stubRecorder{}, &stubReconciler{}, logger.NewNop())
	router := gin.New()
	router.POST("/quote", h.Quote(p))

	t.Run("defaults swap providers to SWAP", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{
			"source_currency":      "BTC",
			"destination_currency": "ETH",
			"amount":               "0.5",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, entities.TransactionTypeSwap, p.lastQuote.Action)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.NotNil(t, body["quote"])
	})

	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{
			"amount": "1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrCodeValidationError)
		assert.Contains(t, w.Body.String(), "source_currency")
	})

	t.Run("non-positive amount", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{
			"source_currency":      "BTC",
			"destination_currency": "ETH",
			"amount":               "-3",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "greater than zero")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/quote", bytes.NewBufferString("{nope"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), ErrCodeInvalidRequest)
	})
}

func TestQuote_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		upstream   int
		wantStatus int
		retryable  bool
	}{
		{name: "provider rejected request", upstream: http.StatusBadRequest, wantStatus: http.StatusBadRequest},
		{name: "provider rate limited", upstream: http.StatusTooManyRequests, wantStatus: http.StatusBadGateway, retryable: true},
		{name: "provider down", upstream: http.StatusInternalServerError, wantStatus: http.StatusBadGateway, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &httpclient.APIError{
				Provider:   "changelly",
				StatusCode: tt.upstream,
				Body:       []byte(`{"error":{"message":"Invalid amount: minimal amount is 0.01"}}`),
				Message:    "Invalid amount: minimal amount is 0.01",
			}
			p := &stubProvider{name: entities.ProviderChangelly, err: httpclient.UpstreamWithHint("changelly", apiErr)}
			h := NewProviderHandlers(&stubRecorder{}, &stubReconciler{}, logger.NewNop())
			router := gin.New()
			router.POST("/quote", h.Quote(p))

			w := doJSON(t, router, http.MethodPost, "/quote", map[string]interface{}{
				"source_currency":      "BTC",
				"destination_currency": "ETH",
				"amount":               "0.001",
			})
			assert.Equal(t, tt.wantStatus, w.Code)

			body := decodeBody(t, w)
			assert.Equal(t, false, body["success"])
			details, ok := body["details"].(map[string]interface{})
			require.True(t, ok)
			assert.EqualValues(t, tt.upstream, details["upstream_status"])
			assert.Equal(t, tt.retryable, details["retryable"])
			assert.NotNil(t, details["error"])
		})
	}
}

func TestCreateTransaction(t *testing.T) {
	newRouter := func(p *stubProvider, rec *stubRecorder, userID string) *gin.Engine {
		h := NewProviderHandlers(rec, &stubReconciler{}, logger.NewNop())
		router := gin.New()
		router.POST("/create", func(c *gin.Context) {
			if userID != "" {
				c.Set("user_id", userID)
			}
			c.Next()
		}, h.CreateTransaction(p))
		return router
	}
	body := map[string]interface{}{
		"action":               "buy",
		"source_currency":      "USD",
		"destination_currency": "BTC",
		"amount":               "100",
		"wallet_address":       "bc1qexample",
	}

	t.Run("persisted transaction returns gateway id", func(t *testing.T) {
		p := &stubProvider{
			name: entities.ProviderOnRamp,
			created: &entities.ProviderTransaction{
				ProviderTransactionID: "merchant-1",
				ProviderReferenceID:   "hash-1",
				Status:                entities.TransactionStatusPending,
			},
		}
		rec := &stubRecorder{handle: &entities.TransactionHandle{
			TransactionID: "TXN_1",
			CacheKey:      "onramp_merchant-1",
			Persisted:     true,
		}}
		userID := "6f1b8f0e-5a53-4b6f-9d43-3f2b7a0c9e11"

		w := doJSON(t, newRouter(p, rec, userID), http.MethodPost, "/create", body)
		require.Equal(t, http.StatusCreated, w.Code)

		resp := decodeBody(t, w)
		assert.Equal(t, "TXN_1", resp["id"])
		assert.Equal(t, true, resp["persisted"])
		assert.Equal(t, entities.TransactionTypeBuy, p.lastCreate.Action)
		assert.Equal(t, userID, rec.input.UserID)
		assert.Equal(t, "hash-1", rec.input.FallbackKey)
		assert.Equal(t, entities.ProviderOnRamp, rec.input.Provider)
	})

	t.Run("anonymous transaction returns cache key", func(t *testing.T) {
		p := &stubProvider{
			name:    entities.ProviderMoonPay,
			created: &entities.ProviderTransaction{ProviderTransactionID: "ext-9"},
		}
		rec := &stubRecorder{handle: &entities.TransactionHandle{
			TransactionID: "TXN_2",
			CacheKey:      "moonpay_ext-9",
		}}

		w := doJSON(t, newRouter(p, rec, ""), http.MethodPost, "/create", body)
		require.Equal(t, http.StatusCreated, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "moonpay_ext-9", resp["id"])
		assert.Equal(t, false, resp["persisted"])
		assert.Empty(t, rec.input.UserID)
	})

	t.Run("cache failure still returns the transaction", func(t *testing.T) {
		p := &stubProvider{name: entities.ProviderMeld, created: &entities.ProviderTransaction{ProviderTransactionID: "m-1"}}
		rec := &stubRecorder{
			handle: &entities.TransactionHandle{TransactionID: "TXN_3", CacheKey: "meld_m-1", Persisted: true},
			err:    errors.New("redis unavailable"),
		}

		w := doJSON(t, newRouter(p, rec, "6f1b8f0e-5a53-4b6f-9d43-3f2b7a0c9e11"), http.MethodPost, "/create", body)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("record failure without handle", func(t *testing.T) {
		p := &stubProvider{name: entities.ProviderMeld, created: &entities.ProviderTransaction{ProviderTransactionID: "m-2"}}
		rec := &stubRecorder{err: errors.New("database unavailable")}

		w := doJSON(t, newRouter(p, rec, ""), http.MethodPost, "/create", body)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("missing wallet address", func(t *testing.T) {
		p := &stubProvider{name: entities.ProviderMeld}
		w := doJSON(t, newRouter(p, &stubRecorder{}, ""), http.MethodPost, "/create", map[string]interface{}{
			"source_currency":      "USD",
			"destination_currency": "BTC",
			"amount":               "100",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "wallet_address")
		assert.Nil(t, p.lastCreate)
	})
}

func TestTransactionStatus(t *testing.T) {
	entry := &entities.CacheEntry{
		TransactionID: "TXN_9",
		Status:        entities.TransactionStatusCompleted,
	}

	t.Run("returns polled entry", func(t *testing.T) {
		rc := &stubReconciler{poll: &reconciliation.PollResult{Transaction: entry, Source: reconciliation.SourceProvider}}
		h := NewProviderHandlers(&stubRecorder{}, rc, logger.NewNop())
		router := gin.New()
		router.GET("/status/:id", h.TransactionStatus(&stubProvider{name: entities.ProviderExolix}))

		w := doJSON(t, router, http.MethodGet, "/status/ex-123", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, string(entities.TransactionStatusCompleted), resp["status"])
		assert.Equal(t, reconciliation.SourceProvider, resp["source"])
		assert.Equal(t, "ex-123", rc.polledID)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		rc := &stubReconciler{err: domainerrors.ErrTransactionNotFound}
		h := NewProviderHandlers(&stubRecorder{}, rc, logger.NewNop())
		router := gin.New()
		router.GET("/status/:id", h.TransactionStatus(&stubProvider{name: entities.ProviderExolix}))

		w := doJSON(t, router, http.MethodGet, "/status/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), ErrCodeTransactionNotFound)
	})
}

func TestCurrencies_CapabilityGate(t *testing.T) {
	h := NewProviderHandlers(&stubRecorder{}, &stubReconciler{}, logger.NewNop())

	t.Run("unsupported", func(t *testing.T) {
		router := gin.New()
		router.GET("/currencies", h.Currencies(&stubProvider{name: entities.ProviderFinchPay}))
		w := doJSON(t, router, http.MethodGet, "/currencies", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
		assert.Contains(t, w.Body.String(), ErrCodeUnsupported)
	})

	t.Run("supported", func(t *testing.T) {
		p := &listingProvider{
			stubProvider: stubProvider{name: entities.ProviderSimpleSwap},
			currencies:   []entities.Currency{{Code: "BTC"}, {Code: "ETH"}},
		}
		router := gin.New()
		router.GET("/currencies", h.Currencies(p))
		w := doJSON(t, router, http.MethodGet, "/currencies", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 2, decodeBody(t, w)["count"])
	})
}
