package exolix

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
)

func setupTestAdapter(t *testing.T, apiKey string, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(Config{
		Config: httpclient.Config{BaseURL: server.URL, MaxRetries: 1},
		APIKey: apiKey,
	}, nil)
}

func TestQuote_UsesExolixNetworkNames(t *testing.T) {
	a := setupTestAdapter(t, "key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "USDT", q.Get("coinFrom"))
		assert.Equal(t, "TRX", q.Get("networkFrom"))
		assert.Equal(t, "BNB", q.Get("coinTo"))
		assert.Equal(t, "BSC", q.Get("networkTo"))
		assert.Equal(t, "float", q.Get("rateType"))
		w.Write([]byte(`{"fromAmount":100,"toAmount":0.17,"rate":0.0017,"minAmount":10,"maxAmount":50000}`))
	})

	quote, err := a.Quote(context.Background(), &entities.QuoteRequest{
		SourceCurrency: "usdttrc20", DestinationCurrency: "BNB", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "USDTTRC20", quote.SourceCurrency)
	assert.True(t, decimal.RequireFromString("0.17").Equal(quote.EstimatedAmount))
	assert.True(t, decimal.NewFromInt(10).Equal(*quote.MinAmount))
	assert.Equal(t, "BSC", quote.Network)
}

func TestQuote_RejectedAmountCarriesBounds(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"Amount to exchange is below the possible min amount to exchange","minAmount":25.5}`))
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		SourceCurrency: "BTC", DestinationCurrency: "ETH", Amount: decimal.NewFromInt(1),
	})
	var de *domainerrors.DomainError
	require.True(t, errors.As(err, &de))
	hint, ok := de.Details["amount_hint"].(*entities.AmountHint)
	require.True(t, ok)
	assert.False(t, hint.Scraped)
	assert.True(t, decimal.RequireFromString("25.5").Equal(*hint.MinAmount))
	assert.Equal(t, http.StatusUnprocessableEntity, de.Details["upstream_status"])
}

func TestCreateTransaction(t *testing.T) {
	a := setupTestAdapter(t, "key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "ETH", gjson.GetBytes(body, "coinFrom").String())
		assert.Equal(t, "USDC", gjson.GetBytes(body, "coinTo").String())
		assert.Equal(t, "POLYGON", gjson.GetBytes(body, "networkTo").String())
		assert.Equal(t, "fixed", gjson.GetBytes(body, "rateType").String())
		assert.Equal(t, 1.5, gjson.GetBytes(body, "slippage").Float())
		assert.False(t, gjson.GetBytes(body, "withdrawalAmount").Exists())
		w.Write([]byte(`{"id":"ex-1","status":"wait","amount":0.5,"amountTo":1500,"depositAddress":"0xdep","rate":3000}`))
	})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		SourceCurrency:      "ETH",
		DestinationCurrency: "USDCPOLYGON",
		Amount:              decimal.RequireFromString("0.5"),
		WalletAddress:       "0xwallet",
		FixedRate:           true,
		Extra:               map[string]interface{}{"slippage": 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "ex-1", txn.ProviderTransactionID)
	assert.Equal(t, "0xdep", txn.DepositAddress)
	assert.Equal(t, entities.TransactionStatusPending, txn.Status)
}

func TestGetStatus(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/ex-1", r.URL.Path)
		w.Write([]byte(`{"id":"ex-1","status":"Success","hashIn":{"hash":"0xin"},"hashOut":{"hash":"0xout","link":"https://scan/0xout"}}`))
	})

	status, err := a.GetStatus(context.Background(), "ex-1")
	require.NoError(t, err)
	assert.Equal(t, "success", status.RawStatus)
	assert.Equal(t, "0xout", status.TransactionHash)
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus(status.RawStatus))
}

func TestMapStatus(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	assert.Equal(t, entities.TransactionStatusFailed, a.MapStatus("refunded"))
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus("confirmation"))
}

func TestCurrencyNetworks(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/currencies/usdt/networks", r.URL.Path)
		w.Write([]byte(`[{"network":"TRX","name":"Tron","memoNeeded":false},{"network":"TON","name":"TON","memoNeeded":true}]`))
	})

	networks, err := a.CurrencyNetworks(context.Background(), "USDT")
	require.NoError(t, err)
	require.Len(t, networks, 2)
	assert.True(t, networks[1].MemoNeeded)
}

func TestTransactions_RequiresAPIKey(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a key")
	})
	_, err := a.Transactions(context.Background(), url.Values{})
	assert.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestTransactions_FiltersQuery(t *testing.T) {
	a := setupTestAdapter(t, "key", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "success", q.Get("statuses"))
		assert.Empty(t, q.Get("unknown"))
		w.Write([]byte(`{"data":[{"id":"ex-1"}],"count":1}`))
	})

	page, err := a.Transactions(context.Background(), url.Values{"page": {"2"}, "statuses": {"success"}, "unknown": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Len(t, page.Data, 1)
}
