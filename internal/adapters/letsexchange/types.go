package letsexchange

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
)

// Coin is one entry of GET /v2/coins
type Coin struct {
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Icon     string        `json:"icon"`
	IsActive *bool         `json:"is_active"`
	Networks []CoinNetwork `json:"networks"`
}

// CoinNetwork is a chain a coin can be sent on
type CoinNetwork struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	HasExtra   bool   `json:"has_extra"`
	ExtraName  string `json:"extra_name"`
	Validation string `json:"validation_address"`
}

// InfoRequest is the body of POST /v1/info
type InfoRequest struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	NetworkFrom string      `json:"network_from"`
	NetworkTo   string      `json:"network_to"`
	Amount      json.Number `json:"amount"`
	Float       bool        `json:"float"`
	AffiliateID string      `json:"affiliate_id,omitempty"`
}

// InfoResponse is the rate estimate
type InfoResponse struct {
	Amount          decimal.NullDecimal `json:"amount"`
	Rate            decimal.NullDecimal `json:"rate"`
	MinAmount       decimal.NullDecimal `json:"min_amount"`
	MaxAmount       decimal.NullDecimal `json:"max_amount"`
	WithdrawalFee   decimal.NullDecimal `json:"withdrawal_fee"`
	RateID          string              `json:"rate_id"`
	RateIDExpiredAt json.RawMessage     `json:"rate_id_expired_at"`
}

// CreateRequest is the body of POST /v1/transaction
type CreateRequest struct {
	Float             bool        `json:"float"`
	CoinFrom          string      `json:"coin_from"`
	CoinTo            string      `json:"coin_to"`
	NetworkFrom       string      `json:"network_from"`
	NetworkTo         string      `json:"network_to"`
	DepositAmount     json.Number `json:"deposit_amount"`
	Withdrawal        string      `json:"withdrawal"`
	WithdrawalExtraID string      `json:"withdrawal_extra_id"`
	AffiliateID       string      `json:"affiliate_id,omitempty"`
	Return            string      `json:"return,omitempty"`
	ReturnExtraID     string      `json:"return_extra_id,omitempty"`
	RateID            string      `json:"rate_id,omitempty"`
}

// Transaction is returned by create and status lookups
type Transaction struct {
	TransactionID     httpclient.FlexString `json:"transaction_id"`
	Status            string                `json:"status"`
	Deposit           string                `json:"deposit"`
	DepositExtraID    string                `json:"deposit_extra_id"`
	DepositAmount     decimal.NullDecimal   `json:"deposit_amount"`
	WithdrawalAmount  decimal.NullDecimal   `json:"withdrawal_amount"`
	Withdrawal        string                `json:"withdrawal"`
	WithdrawalExtraID string                `json:"withdrawal_extra_id"`
	Rate              decimal.NullDecimal   `json:"rate"`
	IsFloat           bool                  `json:"is_float"`
	HashIn            string                `json:"hash_in"`
	HashOut           string                `json:"hash_out"`
}
