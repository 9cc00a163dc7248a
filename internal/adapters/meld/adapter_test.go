package meld

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/pkg/crypto"
)

const testQuotes = `{"quotes":[
	{"serviceProvider":"TRANSAK","destinationAmount":0.0014,"exchangeRate":65000,"transactionFee":2,"networkFee":0.5,"totalFee":2.5},
	{"serviceProvider":"BANXA","destinationAmount":0.0015,"exchangeRate":64000,"transactionFee":1.5,"networkFee":0.4,"partnerFee":0.1,"totalFee":2}
],"message":null,"error":null}`

func setupTestAdapter(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) *Adapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		handler(w, r, body)
	}))
	t.Cleanup(server.Close)
	a := NewAdapter(Config{
		Config:        httpclient.Config{BaseURL: server.URL, MaxRetries: 1},
		APIKey:        "meld-key:meld-secret",
		WebhookSecret: "meld-hook",
	}, nil)
	a.newID = func() string { return "session-ext-1" }
	return a
}

func TestBasicAuthFromCombinedKey(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "meld-key", user)
		assert.Equal(t, "meld-secret", pass)
		w.Write([]byte(`[]`))
	})
	_, err := a.FiatCurrencies(context.Background())
	require.NoError(t, err)
}

func TestQuote_PicksBestOffer(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		assert.Equal(t, "/payments/crypto/quote", r.URL.Path)
		assert.Equal(t, "USD", gjson.GetBytes(body, "sourceCurrencyCode").String())
		assert.Equal(t, "USDT_TRON", gjson.GetBytes(body, "destinationCurrencyCode").String())
		assert.Equal(t, "US", gjson.GetBytes(body, "countryCode").String())
		w.Write([]byte(testQuotes))
	})

	q, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "usd", DestinationCurrency: "USDTTRC20", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, q.EstimatedAmount.Equal(decimal.RequireFromString("0.0015")))
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(64000)))
	assert.True(t, q.Fees.Total().Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "BANXA", q.Raw["service_provider"])
	assert.Equal(t, "TRON", q.Network)
}

func TestQuote_CodesForNativeAndEthereumTokens(t *testing.T) {
	var dst []string
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		dst = append(dst, gjson.GetBytes(body, "destinationCurrencyCode").String())
		w.Write([]byte(testQuotes))
	})
	for _, code := range []string{"ETH", "USDTERC20", "USDC_POLYGON"} {
		_, err := a.Quote(context.Background(), &entities.QuoteRequest{
			Action: entities.TransactionTypeBuy, SourceCurrency: "EUR", DestinationCurrency: code, Amount: decimal.NewFromInt(50),
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"ETH", "USDT", "USDC_POLYGON"}, dst)
}

func TestQuote_NoOffers(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		w.Write([]byte(`{"quotes":[],"message":"Minimum amount is 20 USD"}`))
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		Action: entities.TransactionTypeBuy, SourceCurrency: "USD", DestinationCurrency: "BTC", Amount: decimal.NewFromInt(5),
	})
	require.Error(t, err)
	assert.True(t, domainerrors.IsUpstream(err))

	var de *domainerrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.False(t, de.IsRetryable())
	hint, ok := de.Details["amount_hint"].(*entities.AmountHint)
	require.True(t, ok)
	assert.True(t, hint.MinAmount.Equal(decimal.NewFromInt(20)))
}

func TestCreateTransaction_QuotesForServiceProvider(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		switch r.URL.Path {
		case "/payments/crypto/quote":
			w.Write([]byte(testQuotes))
		case "/crypto/session/widget":
			assert.Equal(t, "BANXA", gjson.GetBytes(body, "sessionData.serviceProvider").String())
			assert.Equal(t, "BUY", gjson.GetBytes(body, "sessionType").String())
			assert.Equal(t, "session-ext-1", gjson.GetBytes(body, "externalSessionId").String())
			assert.Equal(t, "user-3", gjson.GetBytes(body, "externalCustomerId").String())
			assert.Equal(t, "bc1q", gjson.GetBytes(body, "sessionData.walletAddress").String())
			w.Write([]byte(`{"id":"WePq","externalSessionId":"session-ext-1","widgetUrl":"https://meldcrypto.com/?token=abc","token":"abc"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		Action:              entities.TransactionTypeBuy,
		SourceCurrency:      "USD",
		DestinationCurrency: "BTC",
		Amount:              decimal.NewFromInt(100),
		WalletAddress:       "bc1q",
		UserID:              "user-3",
	})
	require.NoError(t, err)
	assert.Equal(t, "session-ext-1", txn.ProviderTransactionID)
	assert.Equal(t, "WePq", txn.ProviderReferenceID)
	assert.Equal(t, "https://meldcrypto.com/?token=abc", txn.RedirectURL)
	assert.Equal(t, entities.TransactionStatusPending, txn.Status)
}

func TestCreateTransaction_ExplicitServiceProviderSkipsQuote(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		assert.Equal(t, "/crypto/session/widget", r.URL.Path)
		assert.Equal(t, "SELL", gjson.GetBytes(body, "sessionType").String())
		assert.Equal(t, "MOONPAY", gjson.GetBytes(body, "sessionData.serviceProvider").String())
		w.Write([]byte(`{"id":"s-2","widgetUrl":"https://meldcrypto.com/?token=x"}`))
	})

	_, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		Action:              entities.TransactionTypeSell,
		SourceCurrency:      "BTC",
		DestinationCurrency: "USD",
		Amount:              decimal.RequireFromString("0.01"),
		Extra:               map[string]interface{}{"service_provider": "MOONPAY"},
	})
	require.NoError(t, err)
}

func TestGetStatus_SearchThenDirect(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {
		switch r.URL.Path {
		case "/payments/transactions":
			assert.Equal(t, "pay-1", r.URL.Query().Get("externalSessionIds"))
			w.Write([]byte(`{"transactions":[],"count":0}`))
		case "/payments/transactions/pay-1":
			w.Write([]byte(`{"transaction":{"id":"pay-1","status":"SETTLED","destinationAmount":0.0015,"cryptoDetails":{"blockchainTransactionId":"0xabc"}}}`))
		}
	})

	st, err := a.GetStatus(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", st.RawStatus)
	assert.Equal(t, "0xabc", st.TransactionHash)
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus(st.RawStatus))
}

func TestParseWebhook(t *testing.T) {
	a := setupTestAdapter(t, func(w http.ResponseWriter, r *http.Request, _ []byte) {})
	body := []byte(`{"eventType":"TRANSACTION_CRYPTO_COMPLETE","eventId":"evt-1","timestamp":"2024-05-01T10:00:00Z",
		"payload":{"externalSessionId":"session-ext-1","paymentTransactionId":"pay-1","paymentTransactionStatus":"SETTLED"}}`)

	ts := "2024-05-01T10:00:00Z"
	headers := http.Header{}
	headers.Set("meld-signature-timestamp", ts)
	headers.Set("meld-signature", crypto.HMACBase64(crypto.SHA256, []byte("meld-hook"), append([]byte(ts+"."), body...)))
	require.NoError(t, a.SignatureVerifier().Verify(headers, body))

	evt, err := a.ParseWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", evt.EventID)
	assert.Equal(t, "SETTLED", evt.RawStatus)
	assert.Equal(t, []string{"session-ext-1", "pay-1"}, evt.CorrelationKeys)
	assert.Empty(t, evt.FailureReason)
}

func TestParseWebhook_StatusFromEventType(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	evt, err := a.ParseWebhook([]byte(`{"eventType":"TRANSACTION_CRYPTO_FAILED","payload":{"paymentTransactionId":"pay-2"}}`))
	require.NoError(t, err)
	assert.Equal(t, "FAILED", evt.RawStatus)
	assert.Equal(t, "FAILED", evt.FailureReason)
	assert.Equal(t, "pay-2:FAILED:", evt.EventID)
}

func TestParseWebhook_Rejected(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	for _, body := range []string{
		`"x"`,
		`{"eventType":"CUSTOMER_KYC_STATUS_CHANGE","payload":{"customerId":"c"}}`,
		`{"eventType":"TRANSACTION_CRYPTO_PENDING","payload":{}}`,
	} {
		_, err := a.ParseWebhook([]byte(body))
		assert.ErrorIs(t, err, domainerrors.ErrMalformedWebhook, body)
	}
}

func TestMapStatus(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus("TWO_FA_REQUIRED"))
	assert.Equal(t, entities.TransactionStatusProcessing, a.MapStatus("settling"))
	assert.Equal(t, entities.TransactionStatusFailed, a.MapStatus("DECLINED"))
	assert.Equal(t, entities.TransactionStatusCancelled, a.MapStatus("CANCELLED"))
}
