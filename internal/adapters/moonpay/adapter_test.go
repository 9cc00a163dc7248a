package moonpay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/crypto"
)

const testCurrencies = `[
	{"id":"1","type":"fiat","code":"usd","name":"US Dollar"},
	{"id":"2","type":"crypto","code":"btc","name":"Bitcoin","isSellSupported":true,"minSellAmount":0.0002,"maxSellAmount":5,"metadata":{"networkCode":"bitcoin"}},
	{"id":"3","type":"crypto","code":"usdt_trx","name":"Tether (Tron)","isSellSupported":false,"metadata":{"networkCode":"tron"}},
	{"id":"4","type":"crypto","code":"xmr","name":"Monero","isSuspended":true}
]`

func setupTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v3/currencies" {
			w.Write([]byte(testCurrencies))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	a := NewAdapter(Config{
		Config:        httpclient.Config{BaseURL: server.URL, MaxRetries: 1},
		APIKey:        "pk_test",
		SecretKey:     "sk_test",
		WebhookSecret: "wh_secret",
	}, nil)
	a.newID = func() string { return "ext-1" }
	return a
}

func TestQuote_Buy(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/currencies/btc/buy_quote", r.URL.Path)
		assert.Equal(t, "pk_test", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "Api-Key sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "usd", r.URL.Query().Get("baseCurrencyCode"))
		assert.Equal(t, "100", r.URL.Query().Get("baseCurrencyAmount"))
		assert.Equal(t, defaultPaymentMethod, r.URL.Query().Get("paymentMethod"))
		w.Write([]byte(`{"baseCurrencyAmount":100,"quoteCurrencyAmount":0.0015,"quoteCurrencyPrice":64000,
			"feeAmount":3.99,"extraFeeAmount":1,"networkFeeAmount":0.5,"expiresAt":"2024-05-01T10:00:00.000Z"}`))
	})

	q, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "usd", DestinationCurrency: "BTC", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", q.SourceCurrency)
	assert.True(t, q.EstimatedAmount.Equal(decimal.RequireFromString("0.0015")))
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(64000)))
	assert.True(t, q.Fees.Total().Equal(decimal.RequireFromString("5.49")))
	require.NotNil(t, q.ValidUntil)
	assert.Equal(t, 2024, q.ValidUntil.Year())
}

func TestQuote_SellNotSupported(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("quote must not be requested")
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeSell, SourceCurrency: "USDTTRC20", DestinationCurrency: "USD", Amount: decimal.NewFromInt(50),
	})
	require.Error(t, err)
	assert.True(t, domainerrors.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "does not support selling")
}

func TestQuote_UnknownAndSuspended(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("quote must not be requested")
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "USD", DestinationCurrency: "DOGE", Amount: decimal.NewFromInt(50),
	})
	var de *domainerrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "destination_currency", de.Details["field"])

	_, err = a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "USD", DestinationCurrency: "XMR", Amount: decimal.NewFromInt(50),
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestQuote_SwapRejected(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeSwap, SourceCurrency: "BTC", DestinationCurrency: "ETH", Amount: decimal.NewFromInt(1),
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestCreateTransaction_SignedWidgetURL(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		Action:              entities.TransactionTypeBuy,
		SourceCurrency:      "USD",
		DestinationCurrency: "BTC",
		Amount:              decimal.NewFromInt(150),
		WalletAddress:       "bc1qaddress",
		UserID:              "user-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", txn.ProviderTransactionID)
	assert.Equal(t, entities.TransactionStatusPending, txn.Status)

	u, err := url.Parse(txn.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "buy.moonpay.com", u.Host)

	idx := strings.Index(txn.RedirectURL, "&signature=")
	require.Greater(t, idx, 0)
	query := txn.RedirectURL[strings.Index(txn.RedirectURL, "?"):idx]
	want := crypto.HMACBase64(crypto.SHA256, []byte("sk_test"), []byte(query))
	assert.Equal(t, want, u.Query().Get("signature"))

	assert.Equal(t, "btc", u.Query().Get("currencyCode"))
	assert.Equal(t, "usd", u.Query().Get("baseCurrencyCode"))
	assert.Equal(t, "bc1qaddress", u.Query().Get("walletAddress"))
	assert.Equal(t, "user-7", u.Query().Get("externalCustomerId"))
}

func TestCreateTransaction_SellUsesSellWidget(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		Action:              entities.TransactionTypeSell,
		SourceCurrency:      "BTC",
		DestinationCurrency: "EUR",
		Amount:              decimal.RequireFromString("0.01"),
		RefundAddress:       "bc1qrefund",
	})
	require.NoError(t, err)

	u, err := url.Parse(txn.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "sell.moonpay.com", u.Host)
	assert.Equal(t, "btc", u.Query().Get("baseCurrencyCode"))
	assert.Equal(t, "eur", u.Query().Get("quoteCurrencyCode"))
	assert.Equal(t, "bc1qrefund", u.Query().Get("refundWalletAddress"))
}

func TestGetStatus_ByExternalID(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions/ext/ext-1", r.URL.Path)
		w.Write([]byte(`[{"id":"old","status":"failed"},{"id":"mp-2","status":"completed","cryptoTransactionId":"0xhash","quoteCurrencyAmount":0.0015}]`))
	})

	st, err := a.GetStatus(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", st.RawStatus)
	assert.Equal(t, "0xhash", st.TransactionHash)
	require.NotNil(t, st.DestinationAmount)
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus(st.RawStatus))
}

func TestGetStatus_FallsBackToMoonPayID(t *testing.T) {
	var paths []string
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/v1/transactions/ext/") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Transaction not found"}`))
			return
		}
		w.Write([]byte(`{"id":"mp-9","status":"waitingPayment"}`))
	})

	st, err := a.GetStatus(context.Background(), "mp-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"/v1/transactions/ext/mp-9", "/v1/transactions/mp-9"}, paths)
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus(st.RawStatus))
}

func TestGetLimits(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/currencies/btc/limits", r.URL.Path)
		w.Write([]byte(`{"baseCurrency":{"code":"usd","minBuyAmount":30,"maxBuyAmount":12000},"quoteCurrency":{"code":"btc"}}`))
	})

	buy, err := a.GetLimits(context.Background(), &entities.LimitsRequest{Action: entities.TransactionTypeBuy, SourceCurrency: "USD", DestinationCurrency: "BTC"})
	require.NoError(t, err)
	assert.True(t, buy.MinAmount.Equal(decimal.NewFromInt(30)))
	assert.True(t, buy.MaxAmount.Equal(decimal.NewFromInt(12000)))

	sell, err := a.GetLimits(context.Background(), &entities.LimitsRequest{Action: entities.TransactionTypeSell, SourceCurrency: "BTC", DestinationCurrency: "USD"})
	require.NoError(t, err)
	assert.True(t, sell.MinAmount.Equal(decimal.RequireFromString("0.0002")))
}

func TestParseWebhook(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"type":"transaction_updated","data":{"id":"mp-2","status":"completed","externalTransactionId":"ext-1",
		"cryptoTransactionId":"0xhash","quoteCurrencyAmount":0.0015,"updatedAt":"2024-05-01T10:00:00Z"}}`)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := crypto.HMACHex(crypto.SHA256, []byte("wh_secret"), append([]byte(ts+"."), body...))
	headers := http.Header{}
	headers.Set("Moonpay-Signature-V2", "t="+ts+",s="+sig)
	require.NoError(t, a.SignatureVerifier().Verify(headers, body))
	assert.Equal(t, provider.ModeHMAC, a.SignatureVerifier().Mode())

	evt, err := a.ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "transaction_updated", evt.EventType)
	assert.Equal(t, []string{"ext-1", "mp-2"}, evt.CorrelationKeys)
	assert.Equal(t, "ext-1:completed:2024-05-01T10:00:00Z", evt.EventID)
	assert.Equal(t, "0xhash", evt.TransactionHash)
	require.NotNil(t, evt.DestinationAmount)
}

func TestParseWebhook_Malformed(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	for _, body := range []string{`[]`, `{"type":"x"}`, `{"data":{"status":"completed"}}`} {
		_, err := a.ParseWebhook([]byte(body))
		assert.ErrorIs(t, err, domainerrors.ErrMalformedWebhook, body)
	}
}

func TestMapStatus(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus("waitingAuthorization"))
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus("COMPLETED"))
	assert.Equal(t, entities.TransactionStatusFailed, a.MapStatus("failed"))
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus("somethingNew"))
}
