package moonpay

import (
	"github.com/shopspring/decimal"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
)

// Currency is one entry of GET /v3/currencies
type Currency struct {
	ID              string              `json:"id"`
	Type            string              `json:"type"`
	Code            string              `json:"code"`
	Name            string              `json:"name"`
	IsSellSupported bool                `json:"isSellSupported"`
	IsSuspended     bool                `json:"isSuspended"`
	MinBuyAmount    decimal.NullDecimal `json:"minBuyAmount"`
	MaxBuyAmount    decimal.NullDecimal `json:"maxBuyAmount"`
	MinSellAmount   decimal.NullDecimal `json:"minSellAmount"`
	MaxSellAmount   decimal.NullDecimal `json:"maxSellAmount"`
	Metadata        struct {
		NetworkCode string `json:"networkCode"`
		ChainID     string `json:"chainId"`
	} `json:"metadata"`
	SupportsTestMode   bool   `json:"supportsTestMode"`
	AddressRegex       string `json:"addressRegex"`
	SupportsAddressTag bool   `json:"supportsAddressTag"`
}

// IsCrypto reports whether the currency is a crypto asset
func (c Currency) IsCrypto() bool { return c.Type == "crypto" }

// Quote is the buy_quote or sell_quote response
type Quote struct {
	BaseCurrencyAmount  decimal.NullDecimal `json:"baseCurrencyAmount"`
	QuoteCurrencyAmount decimal.NullDecimal `json:"quoteCurrencyAmount"`
	QuoteCurrencyPrice  decimal.NullDecimal `json:"quoteCurrencyPrice"`
	BaseCurrencyPrice   decimal.NullDecimal `json:"baseCurrencyPrice"`
	FeeAmount           decimal.NullDecimal `json:"feeAmount"`
	ExtraFeeAmount      decimal.NullDecimal `json:"extraFeeAmount"`
	NetworkFeeAmount    decimal.NullDecimal `json:"networkFeeAmount"`
	TotalAmount         decimal.NullDecimal `json:"totalAmount"`
	ExpiresAt           string              `json:"expiresAt"`
}

// Transaction is GET /v1/transactions/{id}
type Transaction struct {
	ID                    httpclient.FlexString `json:"id"`
	Status                string                `json:"status"`
	ExternalTransactionID string                `json:"externalTransactionId"`
	CryptoTransactionID   string                `json:"cryptoTransactionId"`
	QuoteCurrencyAmount   decimal.NullDecimal   `json:"quoteCurrencyAmount"`
	BaseCurrencyAmount    decimal.NullDecimal   `json:"baseCurrencyAmount"`
	FailureReason         string                `json:"failureReason"`
	WalletAddress         string                `json:"walletAddress"`
	UpdatedAt             string                `json:"updatedAt"`
}
