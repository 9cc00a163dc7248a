package onramp

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Flow types of the quotes and generateLink endpoints
const (
	flowOnramp  = 1
	flowOfframp = 2
)

// envelope wraps every OnRamp response. status 1 is success.
type envelope struct {
	Status int             `json:"status"`
	Code   int             `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

// signedPayload is base64 encoded into X-ONRAMP-PAYLOAD
type signedPayload struct {
	Timestamp int64           `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

// QuoteRequest is the body of the quotes endpoint. BUY quotes by
// fiatAmount, SELL by quantity.
type QuoteRequest struct {
	CoinCode   string      `json:"coinCode"`
	Network    string      `json:"network"`
	FiatAmount json.Number `json:"fiatAmount,omitempty"`
	Quantity   json.Number `json:"quantity,omitempty"`
	FiatType   int         `json:"fiatType"`
	Type       int         `json:"type"`
}

// Quote is the data of a successful quotes call
type Quote struct {
	Rate       decimal.NullDecimal `json:"rate"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	FiatAmount decimal.NullDecimal `json:"fiatAmount"`
	OnrampFee  decimal.NullDecimal `json:"onrampFee"`
	ClientFee  decimal.NullDecimal `json:"clientFee"`
	GatewayFee decimal.NullDecimal `json:"gatewayFee"`
	GasFee     decimal.NullDecimal `json:"gasFee"`
	TDSFee     decimal.NullDecimal `json:"tdsFee"`
}

// LinkRequest is the body of generateLink
type LinkRequest struct {
	CoinCode              string      `json:"coinCode"`
	Network               string      `json:"network"`
	FiatAmount            json.Number `json:"fiatAmount"`
	FiatType              int         `json:"fiatType"`
	Type                  int         `json:"type"`
	MerchantRecognitionID string      `json:"merchantRecognitionId"`
	WalletAddress         string      `json:"walletAddress,omitempty"`
	RedirectURL           string      `json:"redirectUrl,omitempty"`
}

// Link is the data of generateLink
type Link struct {
	Link    string `json:"link"`
	URLHash string `json:"urlHash"`
}
