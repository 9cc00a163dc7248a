package exolix

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
)

// Page is Exolix's paged list envelope
type Page struct {
	Data  []map[string]interface{} `json:"data"`
	Count int                      `json:"count"`
}

// CurrencyNetwork is one chain of a currency
type CurrencyNetwork struct {
	Network      string `json:"network"`
	Name         string `json:"name"`
	ShortName    string `json:"shortName"`
	Notes        string `json:"notes"`
	AddressRegex string `json:"addressRegex"`
	IsDefault    bool   `json:"isDefault"`
	MemoNeeded   bool   `json:"memoNeeded"`
	MemoName     string `json:"memoName"`
	Contract     string `json:"contract"`
}

// Currency is one entry of GET /currencies
type Currency struct {
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Icon     string            `json:"icon"`
	Notes    string            `json:"notes"`
	Networks []CurrencyNetwork `json:"networks"`
}

// CurrencyPage is the GET /currencies envelope
type CurrencyPage struct {
	Data  []Currency `json:"data"`
	Count int        `json:"count"`
}

// Rate is the GET /rate response
type Rate struct {
	FromAmount  decimal.NullDecimal `json:"fromAmount"`
	ToAmount    decimal.NullDecimal `json:"toAmount"`
	Rate        decimal.NullDecimal `json:"rate"`
	MinAmount   decimal.NullDecimal `json:"minAmount"`
	MaxAmount   decimal.NullDecimal `json:"maxAmount"`
	WithdrawMin decimal.NullDecimal `json:"withdrawMin"`
	Message     string              `json:"message"`
}

// CreateRequest is the body of POST /transactions
type CreateRequest struct {
	CoinFrom          string       `json:"coinFrom"`
	NetworkFrom       string       `json:"networkFrom"`
	CoinTo            string       `json:"coinTo"`
	NetworkTo         string       `json:"networkTo"`
	Amount            *json.Number `json:"amount,omitempty"`
	WithdrawalAmount  *json.Number `json:"withdrawalAmount,omitempty"`
	WithdrawalAddress string       `json:"withdrawalAddress"`
	WithdrawalExtraID string       `json:"withdrawalExtraId"`
	RefundAddress     string       `json:"refundAddress,omitempty"`
	RefundExtraID     string       `json:"refundExtraId,omitempty"`
	RateType          string       `json:"rateType"`
	Slippage          *json.Number `json:"slippage,omitempty"`
}

// Hash is an on-chain transfer reference
type Hash struct {
	Hash string `json:"hash"`
	Link string `json:"link"`
}

// Transaction is returned by create and status lookups
type Transaction struct {
	ID                httpclient.FlexString `json:"id"`
	Status            string                `json:"status"`
	Amount            decimal.NullDecimal   `json:"amount"`
	AmountTo          decimal.NullDecimal   `json:"amountTo"`
	DepositAddress    string                `json:"depositAddress"`
	DepositExtraID    string                `json:"depositExtraId"`
	WithdrawalAddress string                `json:"withdrawalAddress"`
	WithdrawalExtraID string                `json:"withdrawalExtraId"`
	RefundAddress     string                `json:"refundAddress"`
	RefundExtraID     string                `json:"refundExtraId"`
	Rate              decimal.NullDecimal   `json:"rate"`
	RateType          string                `json:"rateType"`
	HashIn            *Hash                 `json:"hashIn"`
	HashOut           *Hash                 `json:"hashOut"`
}
