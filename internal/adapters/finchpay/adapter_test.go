package finchpay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/metrics"
)

func setupTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	a := NewAdapter(Config{
		Config:        httpclient.Config{BaseURL: server.URL, MaxRetries: 1},
		APIKey:        "partner-key",
		SecretKey:     "secret-key",
		WidgetBaseURL: "https://widget.example.com",
		WebhookSecret: "hook-secret",
	}, nil)
	a.newID = func() string { return "ext-123" }
	return a
}

func TestQuote_BuyEstimate(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/estimates", r.URL.Path)
		assert.Equal(t, "partner-key", r.Header.Get("x-api-key"))
		q := r.URL.Query()
		assert.Equal(t, "USD", q.Get("from_currency"))
		assert.Equal(t, "USDT", q.Get("to_currency"))
		assert.Equal(t, "TRC20", q.Get("to_network"))
		assert.Equal(t, "card", q.Get("payment_method"))
		w.Write([]byte(`{"to_amount":"97.1","exchange_rate":"0.971","service_fee_amount":"2.5","network_fee_amount":"0.4","to_network":"TRC20"}`))
	})

	quote, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action:              entities.TransactionTypeBuy,
		SourceCurrency:      "usd",
		DestinationCurrency: "USDT_TRON",
		Amount:              decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("97.1").Equal(quote.EstimatedAmount))
	assert.True(t, decimal.RequireFromString("2.9").Equal(quote.Fees.Total()))
	assert.Equal(t, "TRC20", quote.Network)
}

func TestQuote_NativeTickerSendsNoNetwork(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC", r.URL.Query().Get("to_currency"))
		assert.Empty(t, r.URL.Query().Get("to_network"))
		w.Write([]byte(`{"to_amount":"0.001"}`))
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "EUR", DestinationCurrency: "BTC", Amount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
}

func TestQuote_ScrapesAmountHint(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Amount is below minimum amount 30 EUR"}`))
	})
	before := testutil.ToFloat64(metrics.AmountHintScrapedTotal.WithLabelValues("finchpay"))

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "EUR", DestinationCurrency: "BTC", Amount: decimal.NewFromInt(5),
	})
	require.Error(t, err)

	var de *domainerrors.DomainError
	require.True(t, errors.As(err, &de))
	hint, ok := de.Details["amount_hint"].(*entities.AmountHint)
	require.True(t, ok)
	assert.True(t, hint.Scraped)
	assert.True(t, decimal.NewFromInt(30).Equal(*hint.MinAmount))
	assert.Nil(t, hint.MaxAmount)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AmountHintScrapedTotal.WithLabelValues("finchpay")))
}

func TestQuote_SellIsRejectedBeforeUpstream(t *testing.T) {
	called := false
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeSell, SourceCurrency: "BTC", DestinationCurrency: "EUR", Amount: decimal.NewFromInt(1),
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
	assert.False(t, called)
}

func TestCreateTransaction_SignedWidgetURL(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("create must not call the API")
	})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		Action:              entities.TransactionTypeBuy,
		SourceCurrency:      "EUR",
		DestinationCurrency: "USDT_TRC20",
		Amount:              decimal.NewFromInt(100),
		WalletAddress:       "TWallet",
		ExtraID:             "memo",
		Email:               "user@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-123", txn.ProviderTransactionID)
	assert.Equal(t, entities.TransactionStatusPending, txn.Status)

	u, err := url.Parse(txn.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "widget.example.com", u.Host)
	assert.Equal(t, "/payment_method", u.Path)

	q := u.Query()
	assert.Equal(t, "partner-key", q.Get("partner_key"))
	assert.Equal(t, "USDT", q.Get("c"))
	assert.Equal(t, "TRC20", q.Get("n"))
	assert.Equal(t, "ext-123", q.Get("external_id"))
	expected := crypto.HMACHex(crypto.SHA256, []byte("secret-key"), []byte("user@example.comTWalletmemo"))
	assert.Equal(t, expected, q.Get("sign"))
}

func TestGetStatus_FallsBackToFinchPayID(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/transaction/external/f-1":
			w.WriteHeader(http.StatusNotFound)
		case "/v1/transaction/f-1":
			w.Write([]byte(`{"id":"f-1","status":"complete","transaction_hash":"0xhash","amount_to":"97.1"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	status, err := a.GetStatus(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", status.RawStatus)
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus(status.RawStatus))
	assert.Equal(t, "0xhash", status.TransactionHash)
}

func TestMapStatus(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	tests := map[string]entities.TransactionStatus{
		"CREATED":                entities.TransactionStatusPending,
		"processing":             entities.TransactionStatusPending,
		"sending":                entities.TransactionStatusPending,
		"HOLD":                   entities.TransactionStatusPending,
		"complete":               entities.TransactionStatusCompleted,
		"REFUNDED":               entities.TransactionStatusFailed,
		"EXPIRED":                entities.TransactionStatusFailed,
		"REJECTED_BY_ANTI_FRAUD": entities.TransactionStatusFailed,
		"SOMETHING_NEW":          entities.TransactionStatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, a.MapStatus(raw), raw)
	}
}

func TestParseWebhook(t *testing.T) {
	a := NewAdapter(Config{WebhookSecret: "hook-secret"}, nil)
	body := []byte(`{"id":"f-1","status":"complete","external_id":"ext-123","transaction_hash":"0xabc","amount_to":"97.1","event_time":"2024-05-01T10:00:00Z","partner_profit_amount":"1.2","partner_profit_currency":"EUR"}`)

	h := http.Header{}
	h.Set("x-signature", crypto.HMACHex(crypto.SHA256, []byte("hook-secret"), body))
	require.NoError(t, a.SignatureVerifier().Verify(h, body))
	assert.Equal(t, provider.ModeHMAC, a.SignatureVerifier().Mode())

	event, err := a.ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", event.RawStatus)
	assert.Equal(t, []string{"ext-123", "f-1"}, event.CorrelationKeys)
	assert.Equal(t, "ext-123:COMPLETE:2024-05-01T10:00:00Z", event.EventID)
	assert.Equal(t, "0xabc", event.TransactionHash)
	assert.True(t, decimal.RequireFromString("97.1").Equal(*event.DestinationAmount))
	assert.Contains(t, event.Payload, "partner_profit")

	_, err = a.ParseWebhook([]byte(`{"status":"COMPLETE"}`))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedWebhook)
}

func TestWebhookWithoutSecretFailsClosed(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	assert.Equal(t, provider.ModeReject, a.SignatureVerifier().Mode())
}

func TestListPaymentMethods(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	methods, err := a.ListPaymentMethods(context.Background(), "EUR", "")
	require.NoError(t, err)
	assert.Len(t, methods, 19)
	assert.Equal(t, "card", methods[0].ID)
}
