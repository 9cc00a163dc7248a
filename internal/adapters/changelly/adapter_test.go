package changelly

import (
	"context"
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
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
)

func setupTestAdapter(t *testing.T, privateKey string, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(Config{
		Config:     httpclient.Config{BaseURL: server.URL, MaxRetries: 1},
		APIKey:     "pub-key-hash",
		PrivateKey: privateKey,
	}, nil)
}

func rpcBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read body: %v", err)
	}
	return body
}

func TestRequestsAreSigned(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyHex := hex.EncodeToString(x509.MarshalPKCS1PrivateKey(key))

	a := setupTestAdapter(t, keyHex, func(w http.ResponseWriter, r *http.Request) {
		body := rpcBody(t, r)
		assert.Equal(t, "pub-key-hash", r.Header.Get("X-Api-Key"))

		sig, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Api-Signature"))
		assert.NoError(t, err)
		digest := sha256.Sum256(body)
		assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, stdcrypto.SHA256, digest[:], sig))

		assert.Equal(t, "2.0", gjson.GetBytes(body, "jsonrpc").String())
		assert.Equal(t, "getStatus", gjson.GetBytes(body, "method").String())
		assert.Equal(t, "tx-1", gjson.GetBytes(body, "params.id").String())
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":"finished"}`))
	})

	status, err := a.GetStatus(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "finished", status.RawStatus)
	assert.Equal(t, entities.TransactionStatusCompleted, a.MapStatus(status.RawStatus))
}

func TestInvalidPrivateKeyFailsRequests(t *testing.T) {
	a := setupTestAdapter(t, "not-hex", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected with a broken key")
	})
	_, err := a.GetStatus(context.Background(), "tx-1")
	assert.True(t, domainerrors.IsUpstream(err))
}

func TestQuote(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		body := rpcBody(t, r)
		assert.Equal(t, "getExchangeAmount", gjson.GetBytes(body, "method").String())
		assert.Equal(t, "usdtrx", gjson.GetBytes(body, "params.0.from").String())
		assert.Equal(t, "btc", gjson.GetBytes(body, "params.0.to").String())
		assert.Equal(t, "100", gjson.GetBytes(body, "params.0.amountFrom").String())
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":[{"from":"usdtrx","to":"btc","amountFrom":"100","amountTo":"0.0016","rate":"0.000016","networkFee":"0.00002","fee":"0.0000048","minFrom":"20","maxFrom":"100000"}]}`))
	})

	quote, err := a.Quote(context.Background(), &entities.QuoteRequest{
		SourceCurrency: "USDTRX", DestinationCurrency: "BTC", Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.0016").Equal(quote.EstimatedAmount))
	assert.True(t, decimal.NewFromInt(20).Equal(*quote.MinAmount))
	assert.True(t, decimal.RequireFromString("0.0000248").Equal(quote.Fees.Total()))
}

func TestQuote_RPCErrorCarriesLimits(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32602,"message":"Invalid amount for pair usdtrx->btc","data":{"limits":{"min":{"from":"20.5","to":"0.0003"},"max":{"from":"100000","to":"1.6"}}}}}`))
	})

	_, err := a.Quote(context.Background(), &entities.QuoteRequest{
		SourceCurrency: "usdtrx", DestinationCurrency: "btc", Amount: decimal.NewFromInt(1),
	})
	var de *domainerrors.DomainError
	require.True(t, errors.As(err, &de))
	assert.False(t, de.IsRetryable())
	assert.Equal(t, -32602, de.Details["rpc_code"])
	hint, ok := de.Details["amount_hint"].(*entities.AmountHint)
	require.True(t, ok)
	assert.False(t, hint.Scraped)
	assert.True(t, decimal.RequireFromString("20.5").Equal(*hint.MinAmount))
}

func TestFixedRateRejected(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for fixed rate")
	})
	_, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		SourceCurrency: "eth", DestinationCurrency: "btc", Amount: decimal.NewFromInt(1),
		WalletAddress: "bc1q", FixedRate: true,
	})
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestCreateTransaction(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		body := rpcBody(t, r)
		assert.Equal(t, "createTransaction", gjson.GetBytes(body, "method").String())
		assert.Equal(t, "eth", gjson.GetBytes(body, "params.from").String())
		assert.Equal(t, "1FfmbHfnpaZjKFvyi1okTjJJusN455paPH", gjson.GetBytes(body, "params.address").String())
		assert.False(t, gjson.GetBytes(body, "params.extraId").Exists())
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"id":"4bc9j3q8zkc5js3d","trackUrl":"https://changelly.com/track/4bc9j3q8zkc5js3d","status":"new","payinAddress":"0xpayin","amountExpectedFrom":"0.02","amountExpectedTo":"0.001"}}`))
	})

	txn, err := a.CreateTransaction(context.Background(), &entities.CreateTransactionRequest{
		SourceCurrency:      "ETH",
		DestinationCurrency: "BTC",
		Amount:              decimal.RequireFromString("0.02"),
		WalletAddress:       "1FfmbHfnpaZjKFvyi1okTjJJusN455paPH",
	})
	require.NoError(t, err)
	assert.Equal(t, "4bc9j3q8zkc5js3d", txn.ProviderTransactionID)
	assert.Equal(t, "0xpayin", txn.DepositAddress)
	assert.Equal(t, entities.TransactionStatusPending, txn.Status)
	assert.True(t, decimal.RequireFromString("0.05").Equal(*txn.ExchangeRate))
}

func TestGetLimits(t *testing.T) {
	a := setupTestAdapter(t, "", func(w http.ResponseWriter, r *http.Request) {
		body := rpcBody(t, r)
		assert.Equal(t, "getPairsParams", gjson.GetBytes(body, "method").String())
		w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":[{"from":"eth","to":"btc","minAmountFloat":"0.01","maxAmountFloat":"50","minAmountFixed":"0.02","maxAmountFixed":"10"}]}`))
	})

	limits, err := a.GetLimits(context.Background(), &entities.LimitsRequest{SourceCurrency: "ETH", DestinationCurrency: "BTC"})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.01").Equal(*limits.MinAmount))
	assert.True(t, decimal.NewFromInt(50).Equal(*limits.MaxAmount))
}

func TestMapStatus(t *testing.T) {
	a := NewAdapter(Config{}, nil)
	assert.Equal(t, entities.TransactionStatusPending, a.MapStatus("hold"))
	assert.Equal(t, entities.TransactionStatusFailed, a.MapStatus("overdue"))
	assert.Equal(t, entities.TransactionStatusExpired, a.MapStatus("expired"))
}
