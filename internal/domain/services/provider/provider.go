// Package provider defines the contract every exchange or on-ramp adapter
// implements, plus the registry that holds the enabled set.
package provider

import (
	"context"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
)

// Provider is implemented by every adapter
type Provider interface {
	Name() entities.Provider
	Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error)
	CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error)
	GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error)
	MapStatus(raw string) entities.TransactionStatus
	ParseCurrency(code string) currency.Pair
}

// CurrencyLister lists the currencies a provider supports
type CurrencyLister interface {
	ListCurrencies(ctx context.Context) ([]entities.Currency, error)
}

// LimitsProvider reports min/max amounts for a pair
type LimitsProvider interface {
	GetLimits(ctx context.Context, req *entities.LimitsRequest) (*entities.Limits, error)
}

// PaymentMethodLister lists fiat payment methods
type PaymentMethodLister interface {
	ListPaymentMethods(ctx context.Context, fiat, country string) ([]entities.PaymentMethod, error)
}

// WebhookParser is implemented by providers that push status updates
type WebhookParser interface {
	SignatureVerifier() SignatureVerifier
	ParseWebhook(body []byte) (*entities.WebhookEvent, error)
}

// PendingScanner opts a provider into the linear pending-entry fallback
// when a webhook cannot be correlated
type PendingScanner interface {
	FallbackScan() bool
}

// StatusPoller is the subset the background poller needs
type StatusPoller interface {
	Name() entities.Provider
	GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error)
	MapStatus(raw string) entities.TransactionStatus
}

// AllowsFallbackScan reports whether p opted into the linear scan
func AllowsFallbackScan(p Provider) bool {
	s, ok := p.(PendingScanner)
	return ok && s.FallbackScan()
}
