package changelly

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// rpcRequest is the JSON-RPC 2.0 envelope every Changelly call is sent in
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object. Changelly returns it with HTTP 200.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("changelly rpc error [%d]: %s", e.Code, e.Message)
}

// Currency is one entry of getCurrenciesFull
type Currency struct {
	Name           string `json:"name"`
	Ticker         string `json:"ticker"`
	FullName       string `json:"fullName"`
	Enabled        bool   `json:"enabled"`
	EnabledFrom    bool   `json:"enabledFrom"`
	EnabledTo      bool   `json:"enabledTo"`
	FixRateEnabled bool   `json:"fixRateEnabled"`
	Protocol       string `json:"protocol"`
	Blockchain     string `json:"blockchain"`
	Image          string `json:"image"`
	ExtraIDName    string `json:"extraIdName"`
	AddressURL     string `json:"addressUrl"`
}

// PairParams is the params object sent to pair scoped methods
type PairParams struct {
	From       string `json:"from"`
	To         string `json:"to"`
	AmountFrom string `json:"amountFrom,omitempty"`
}

// ExchangeAmount is one entry of getExchangeAmount
type ExchangeAmount struct {
	From          string              `json:"from"`
	To            string              `json:"to"`
	NetworkFee    decimal.NullDecimal `json:"networkFee"`
	AmountFrom    decimal.NullDecimal `json:"amountFrom"`
	AmountTo      decimal.NullDecimal `json:"amountTo"`
	Max           decimal.NullDecimal `json:"max"`
	MaxFrom       decimal.NullDecimal `json:"maxFrom"`
	Min           decimal.NullDecimal `json:"min"`
	MinFrom       decimal.NullDecimal `json:"minFrom"`
	VisibleAmount decimal.NullDecimal `json:"visibleAmount"`
	Rate          decimal.NullDecimal `json:"rate"`
	Fee           decimal.NullDecimal `json:"fee"`
}

// PairLimits is one entry of getPairsParams
type PairLimits struct {
	From           string              `json:"from"`
	To             string              `json:"to"`
	MinAmountFloat decimal.NullDecimal `json:"minAmountFloat"`
	MaxAmountFloat decimal.NullDecimal `json:"maxAmountFloat"`
	MinAmountFixed decimal.NullDecimal `json:"minAmountFixed"`
	MaxAmountFixed decimal.NullDecimal `json:"maxAmountFixed"`
}

// CreateParams is the params object of createTransaction
type CreateParams struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Address       string `json:"address"`
	ExtraID       string `json:"extraId,omitempty"`
	AmountFrom    string `json:"amountFrom"`
	RefundAddress string `json:"refundAddress,omitempty"`
	RefundExtraID string `json:"refundExtraId,omitempty"`
}

// Transaction is the createTransaction result
type Transaction struct {
	ID                 string              `json:"id"`
	TrackURL           string              `json:"trackUrl"`
	Type               string              `json:"type"`
	Status             string              `json:"status"`
	CurrencyFrom       string              `json:"currencyFrom"`
	CurrencyTo         string              `json:"currencyTo"`
	PayinAddress       string              `json:"payinAddress"`
	PayinExtraID       string              `json:"payinExtraId"`
	PayoutAddress      string              `json:"payoutAddress"`
	AmountExpectedFrom decimal.NullDecimal `json:"amountExpectedFrom"`
	AmountExpectedTo   decimal.NullDecimal `json:"amountExpectedTo"`
	NetworkFee         decimal.NullDecimal `json:"networkFee"`
}
