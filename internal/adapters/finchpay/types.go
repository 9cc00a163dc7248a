package finchpay

import (
	"github.com/shopspring/decimal"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
)

// Currency is one entry of GET /v1/currencies
type Currency struct {
	Ticker         string   `json:"ticker"`
	Name           string   `json:"name"`
	Network        string   `json:"network"`
	IsFiat         bool     `json:"is_fiat"`
	PaymentMethods []string `json:"payment_methods"`
	Icon           string   `json:"icon"`
}

// Estimate is the GET /v1/estimates response
type Estimate struct {
	FromAmount              decimal.NullDecimal `json:"from_amount"`
	FromCurrency            string              `json:"from_currency"`
	ToAmount                decimal.NullDecimal `json:"to_amount"`
	ToNetwork               string              `json:"to_network"`
	ExchangeRate            decimal.NullDecimal `json:"exchange_rate"`
	ServiceFeeAmount        decimal.NullDecimal `json:"service_fee_amount"`
	ServiceFeeCurrency      string              `json:"service_fee_currency"`
	NetworkFeeAmount        decimal.NullDecimal `json:"network_fee_amount"`
	NetworkFeeCurrency      string              `json:"network_fee_currency"`
	PaymentMethod           string              `json:"payment_method"`
	ConvertedAmount         decimal.NullDecimal `json:"converted_amount"`
	ConvertedAmountCurrency string              `json:"converted_amount_currency"`
}

// Transaction is returned by the status lookups and pushed by webhooks
type Transaction struct {
	ID              httpclient.FlexString `json:"id"`
	ExternalID      string                `json:"external_id"`
	Status          string                `json:"status"`
	TransactionHash string                `json:"transaction_hash"`
	PaymentMethod   string                `json:"payment_method"`
	AmountFrom      decimal.NullDecimal   `json:"amount_from"`
	AmountTo        decimal.NullDecimal   `json:"amount_to"`
	AssetFrom       string                `json:"asset_from"`
	AssetTo         string                `json:"asset_to"`
	AssetNetworkTo  string                `json:"asset_network_to"`
	EventTime       string                `json:"event_time"`
	Side            string                `json:"side"`
}

// paymentMethods are the options FinchPay documents; it has no listing
// endpoint
var paymentMethods = []struct{ id, name string }{
	{"card", "Credit/Debit Cards"},
	{"sepa", "SEPA Bank Transfer"},
	{"google_pay", "Google Pay"},
	{"apple_pay", "Apple Pay"},
	{"bank_link", "Bank Link"},
	{"pix", "PIX (Brazil)"},
	{"picpay", "PicPay (Brazil)"},
	{"boleto", "Boleto (Brazil)"},
	{"oxxo", "OXXO (Mexico)"},
	{"spei", "SPEI (Mexico)"},
	{"dana", "DANA (Indonesia)"},
	{"ovo", "OVO (Indonesia)"},
	{"mandiri_va", "Mandiri VA (Indonesia)"},
	{"bri_va", "BRI VA (Indonesia)"},
	{"vietqr", "VietQR (Vietnam)"},
	{"vnpay", "VNPay (Vietnam)"},
	{"skrill", "Skrill"},
	{"neteller", "Neteller"},
	{"paysafe_card", "Paysafe Card"},
}
