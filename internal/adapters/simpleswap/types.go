package simpleswap

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// envelope wraps every SimpleSwap v3 response
type envelope struct {
	Result json.RawMessage `json:"result"`
}

// Currency is one entry of GET /currencies
type Currency struct {
	Ticker         string `json:"ticker"`
	Name           string `json:"name"`
	Network        string `json:"network"`
	Image          string `json:"image"`
	HasExtraID     bool   `json:"hasExtraId"`
	ValidationAddr string `json:"validationAddress"`
	IsFiat         bool   `json:"isFiat"`
}

// Estimate is the GET /estimates result
type Estimate struct {
	EstimatedAmount decimal.NullDecimal `json:"estimatedAmount"`
	RateID          string              `json:"rateId"`
	ValidUntil      string              `json:"validUntil"`
}

// Range is the GET /ranges result
type Range struct {
	Min decimal.NullDecimal `json:"min"`
	Max decimal.NullDecimal `json:"max"`
}

// CreateRequest is the body of POST /exchanges
type CreateRequest struct {
	Fixed             bool   `json:"fixed"`
	TickerFrom        string `json:"tickerFrom"`
	TickerTo          string `json:"tickerTo"`
	Amount            string `json:"amount"`
	NetworkFrom       string `json:"networkFrom"`
	NetworkTo         string `json:"networkTo"`
	Reverse           bool   `json:"reverse"`
	AddressTo         string `json:"addressTo"`
	ExtraIDTo         string `json:"extraIdTo,omitempty"`
	UserRefundAddress string `json:"userRefundAddress,omitempty"`
	UserRefundExtraID string `json:"userRefundExtraId,omitempty"`
	RateID            string `json:"rateId,omitempty"`
}

// Exchange is returned by create and status lookups
type Exchange struct {
	PublicID    string              `json:"publicId"`
	Status      string              `json:"status"`
	AmountFrom  decimal.NullDecimal `json:"amountFrom"`
	AmountTo    decimal.NullDecimal `json:"amountTo"`
	AddressFrom string              `json:"addressFrom"`
	ExtraIDFrom string              `json:"extraIdFrom"`
	AddressTo   string              `json:"addressTo"`
	ExtraIDTo   string              `json:"extraIdTo"`
	TxFrom      string              `json:"txFrom"`
	TxTo        string              `json:"txTo"`
}
