package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/metrics"
)

type stubProvider struct {
	name entities.Provider
	scan bool
}

func (s *stubProvider) Name() entities.Provider { return s.name }
func (s *stubProvider) Quote(context.Context, *entities.QuoteRequest) (*entities.Quote, error) {
	return nil, nil
}
func (s *stubProvider) CreateTransaction(context.Context, *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	return nil, nil
}
func (s *stubProvider) GetStatus(context.Context, string) (*entities.ProviderStatus, error) {
	return nil, nil
}
func (s *stubProvider) MapStatus(string) entities.TransactionStatus {
	return entities.TransactionStatusPending
}
func (s *stubProvider) ParseCurrency(code string) currency.Pair { return currency.Pair{Coin: code} }
func (s *stubProvider) FallbackScan() bool                     { return s.scan }

func TestStatusMap(t *testing.T) {
	m := NewStatusMap(map[string]entities.TransactionStatus{
		"wait":    entities.TransactionStatusPending,
		"success": entities.TransactionStatusCompleted,
		"overdue": entities.TransactionStatusFailed,
	})

	assert.Equal(t, entities.TransactionStatusCompleted, m.Map("SUCCESS"))
	assert.Equal(t, entities.TransactionStatusFailed, m.Map(" overdue "))
	assert.Equal(t, entities.TransactionStatusPending, m.Map("something-new"))
	assert.Equal(t, entities.TransactionStatusPending, m.Map(""))
	assert.True(t, m.Known("Wait"))
	assert.False(t, m.Known("something-new"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		&stubProvider{name: entities.ProviderSimpleSwap},
		&stubProvider{name: entities.ProviderMeld, scan: true},
	)

	p, err := reg.Lookup("meld")
	require.NoError(t, err)
	assert.Equal(t, entities.ProviderMeld, p.Name())
	assert.True(t, AllowsFallbackScan(p))

	_, err = reg.Lookup("exolix")
	assert.True(t, errors.Is(err, domainerrors.ErrProviderNotFound))

	_, err = reg.Lookup("nope")
	assert.True(t, errors.Is(err, domainerrors.ErrProviderNotFound))

	assert.Equal(t, []entities.Provider{entities.ProviderMeld, entities.ProviderSimpleSwap}, reg.Names())
}

func TestFinchPayVerifier(t *testing.T) {
	secret := []byte("finch-secret")
	body := []byte(`{"id":"f1","status":"COMPLETE","external_id":"ext-1"}`)
	v := FinchPayVerifier(secret)

	h := http.Header{}
	h.Set("x-signature", crypto.HMACHex(crypto.SHA256, secret, body))
	assert.NoError(t, v.Verify(h, body))

	h.Set("x-signature", crypto.HMACHex(crypto.SHA256, []byte("wrong"), body))
	assert.ErrorIs(t, v.Verify(h, body), domainerrors.ErrInvalidSignature)

	assert.ErrorIs(t, v.Verify(http.Header{}, body), domainerrors.ErrMissingSignature)
}

func TestOnRampVerifier(t *testing.T) {
	secret := []byte("onramp-secret")
	body := []byte(`{"eventId":"e1","status":"ON_CHAIN_COMPLETED","referenceId":"42"}`)
	payload := base64.StdEncoding.EncodeToString(body)

	h := http.Header{}
	h.Set("X-ONRAMP-SIGNATURE", crypto.HMACHex(crypto.SHA512, secret, []byte(payload)))
	assert.NoError(t, OnRampVerifier(secret).Verify(h, body))

	tampered := []byte(`{"eventId":"e1","status":"FAILED","referenceId":"42"}`)
	assert.Error(t, OnRampVerifier(secret).Verify(h, tampered))
}

func TestMoonPayVerifier(t *testing.T) {
	secret := []byte("moon-secret")
	body := []byte(`{"type":"transaction_updated"}`)
	sig := crypto.HMACHex(crypto.SHA256, secret, []byte("1700000000."+string(body)))

	h := http.Header{}
	h.Set("Moonpay-Signature-V2", "t=1700000000,s="+sig)
	assert.NoError(t, MoonPayVerifier(secret).Verify(h, body))

	h.Set("Moonpay-Signature-V2", "s="+sig)
	assert.ErrorIs(t, MoonPayVerifier(secret).Verify(h, body), domainerrors.ErrInvalidSignature)
}

func TestMeldVerifier(t *testing.T) {
	secret := []byte("meld-secret")
	body := []byte(`{"eventType":"TRANSACTION_CRYPTO_COMPLETE"}`)
	ts := "2024-05-01T10:00:00Z"

	h := http.Header{}
	h.Set("meld-signature-timestamp", ts)
	h.Set("meld-signature", crypto.HMACBase64(crypto.SHA256, secret, []byte(ts+"."+string(body))))
	assert.NoError(t, MeldVerifier(secret).Verify(h, body))

	h.Del("meld-signature-timestamp")
	assert.Error(t, MeldVerifier(secret).Verify(h, body))
}

func TestSelectVerifier(t *testing.T) {
	build := func(secret []byte) SignatureVerifier { return FinchPayVerifier(secret) }

	v := SelectVerifier("finchpay", "secret", true, build, nil)
	assert.Equal(t, ModeHMAC, v.Mode())

	v = SelectVerifier("meld", "", false, build, nil)
	assert.Equal(t, ModeReject, v.Mode())
	assert.ErrorIs(t, v.Verify(http.Header{}, []byte("{}")), domainerrors.ErrInvalidSignature)

	v = SelectVerifier("moonpay", "", true, build, zap.NewNop())
	assert.Equal(t, ModeUnverified, v.Mode())

	before := testutil.ToFloat64(metrics.UnverifiedWebhooksTotal.WithLabelValues("moonpay"))
	assert.NoError(t, v.Verify(http.Header{}, []byte("{}")))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.UnverifiedWebhooksTotal.WithLabelValues("moonpay")))
}
