package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteRequest is the provider-neutral quote input
type QuoteRequest struct {
	Action              TransactionType `json:"action" validate:"required,oneof=BUY SELL SWAP"`
	SourceCurrency      string          `json:"source_currency" validate:"required"`
	DestinationCurrency string          `json:"destination_currency" validate:"required"`
	Amount              decimal.Decimal `json:"amount" validate:"required"`
	Network             string          `json:"network,omitempty"`
	PaymentMethod       string          `json:"payment_method,omitempty"`
	Country             string          `json:"country,omitempty"`
	FixedRate           bool            `json:"fixed_rate,omitempty"`
	WalletAddress       string          `json:"wallet_address,omitempty"`
}

// Fees breaks down the costs a provider reports with a quote
type Fees struct {
	NetworkFee     *decimal.Decimal `json:"network_fee,omitempty"`
	TransactionFee *decimal.Decimal `json:"transaction_fee,omitempty"`
	PartnerFee     *decimal.Decimal `json:"partner_fee,omitempty"`
	TotalFee       *decimal.Decimal `json:"total_fee,omitempty"`
}

// Total returns TotalFee or the sum of the individual components
func (f Fees) Total() decimal.Decimal {
	if f.TotalFee != nil {
		return *f.TotalFee
	}
	total := decimal.Zero
	for _, part := range []*decimal.Decimal{f.NetworkFee, f.TransactionFee, f.PartnerFee} {
		if part != nil {
			total = total.Add(*part)
		}
	}
	return total
}

// AmountHint is a min/max bound recovered from a provider error message
type AmountHint struct {
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
	Scraped   bool             `json:"scraped"`
}

// Quote is the canonical quote shape returned for every provider
type Quote struct {
	Provider            Provider               `json:"provider"`
	SourceCurrency      string                 `json:"source_currency"`
	DestinationCurrency string                 `json:"destination_currency"`
	SourceAmount        decimal.Decimal        `json:"source_amount"`
	EstimatedAmount     decimal.Decimal        `json:"estimated_amount"`
	Rate                decimal.Decimal        `json:"rate"`
	Fees                Fees                   `json:"fees"`
	Network             string                 `json:"network,omitempty"`
	MinAmount           *decimal.Decimal       `json:"min_amount,omitempty"`
	MaxAmount           *decimal.Decimal       `json:"max_amount,omitempty"`
	RateID              string                 `json:"rate_id,omitempty"`
	ValidUntil          *time.Time             `json:"valid_until,omitempty"`
	Raw                 map[string]interface{} `json:"raw,omitempty"`
}

// CreateTransactionRequest is the provider-neutral create input
type CreateTransactionRequest struct {
	Action              TransactionType        `json:"action" validate:"required,oneof=BUY SELL SWAP"`
	SourceCurrency      string                 `json:"source_currency" validate:"required"`
	DestinationCurrency string                 `json:"destination_currency" validate:"required"`
	Amount              decimal.Decimal        `json:"amount" validate:"required"`
	WalletAddress       string                 `json:"wallet_address" validate:"required"`
	ExtraID             string                 `json:"extra_id,omitempty"`
	RefundAddress       string                 `json:"refund_address,omitempty"`
	Network             string                 `json:"network,omitempty"`
	PaymentMethod       string                 `json:"payment_method,omitempty"`
	FiatType            string                 `json:"fiat_type,omitempty"`
	Country             string                 `json:"country,omitempty"`
	Email               string                 `json:"email,omitempty"`
	RateID              string                 `json:"rate_id,omitempty"`
	FixedRate           bool                   `json:"fixed_rate,omitempty"`
	RedirectURL         string                 `json:"redirect_url,omitempty"`
	Extra               map[string]interface{} `json:"extra,omitempty"`

	// Set by the handler, never bound from the body
	UserID string `json:"-"`
}

// ProviderTransaction is what a provider returns from a create call
type ProviderTransaction struct {
	ProviderTransactionID string                 `json:"provider_transaction_id,omitempty"`
	ProviderReferenceID   string                 `json:"provider_reference_id,omitempty"`
	RawStatus             string                 `json:"raw_status,omitempty"`
	Status                TransactionStatus      `json:"status"`
	DepositAddress        string                 `json:"deposit_address,omitempty"`
	DepositExtraID        string                 `json:"deposit_extra_id,omitempty"`
	RedirectURL           string                 `json:"redirect_url,omitempty"`
	SourceAmount          decimal.Decimal        `json:"source_amount"`
	DestinationAmount     *decimal.Decimal       `json:"destination_amount,omitempty"`
	ExchangeRate          *decimal.Decimal       `json:"exchange_rate,omitempty"`
	Fees                  Fees                   `json:"fees"`
	Network               string                 `json:"network,omitempty"`
	Raw                   map[string]interface{} `json:"raw,omitempty"`
}

// ProviderStatus is what a provider returns from a status lookup
type ProviderStatus struct {
	ProviderTransactionID string                 `json:"provider_transaction_id"`
	RawStatus             string                 `json:"raw_status"`
	TransactionHash       string                 `json:"transaction_hash,omitempty"`
	DestinationAmount     *decimal.Decimal       `json:"destination_amount,omitempty"`
	FailureReason         string                 `json:"failure_reason,omitempty"`
	Raw                   map[string]interface{} `json:"raw,omitempty"`
}

// Currency is one entry of a provider's currency listing
type Currency struct {
	Code      string    `json:"code"`
	Name      string    `json:"name,omitempty"`
	Network   string    `json:"network,omitempty"`
	Networks  []Network `json:"networks,omitempty"`
	IsFiat    bool      `json:"is_fiat,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	HasExtra  bool      `json:"has_extra_id,omitempty"`
	Available bool      `json:"available"`
}

// Network is one chain a currency is available on
type Network struct {
	Code         string `json:"code"`
	Name         string `json:"name,omitempty"`
	AddressRegex string `json:"address_regex,omitempty"`
	MemoNeeded   bool   `json:"memo_needed,omitempty"`
}

// Limits are the min/max source amounts for a pair
type Limits struct {
	SourceCurrency      string           `json:"source_currency"`
	DestinationCurrency string           `json:"destination_currency"`
	MinAmount           *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount           *decimal.Decimal `json:"max_amount,omitempty"`
}

// LimitsRequest selects the pair for a limits lookup
type LimitsRequest struct {
	Action              TransactionType `form:"action"`
	SourceCurrency      string          `form:"source_currency" binding:"required"`
	DestinationCurrency string          `form:"destination_currency" binding:"required"`
	Country             string          `form:"country"`
}

// PaymentMethod is a fiat payment option
type PaymentMethod struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Type      string           `json:"type,omitempty"`
	MinAmount *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
}

// TransactionHandle is returned to the caller after a create
type TransactionHandle struct {
	TransactionID string `json:"transaction_id"`
	CacheKey      string `json:"cache_key"`
	DBID          *int64 `json:"db_id,omitempty"`
	Persisted     bool   `json:"persisted"`
}
