package meld

import (
	"github.com/shopspring/decimal"
)

// CryptoCurrency is one entry of the crypto-currencies listing
type CryptoCurrency struct {
	CurrencyCode    string `json:"currencyCode"`
	Name            string `json:"name"`
	ChainCode       string `json:"chainCode"`
	ChainName       string `json:"chainName"`
	ChainID         string `json:"chainId"`
	ContractAddress string `json:"contractAddress"`
	SymbolImageURL  string `json:"symbolImageUrl"`
}

// FiatCurrency is one entry of the fiat-currencies listing
type FiatCurrency struct {
	CurrencyCode   string `json:"currencyCode"`
	Name           string `json:"name"`
	SymbolImageURL string `json:"symbolImageUrl"`
}

// PaymentMethod is one entry of the payment-methods listing
type PaymentMethod struct {
	PaymentMethod string `json:"paymentMethod"`
	Name          string `json:"name"`
	PaymentType   string `json:"paymentType"`
}

// QuoteRequest is the body of POST /payments/crypto/quote
type QuoteRequest struct {
	SourceAmount            string `json:"sourceAmount"`
	SourceCurrencyCode      string `json:"sourceCurrencyCode"`
	DestinationCurrencyCode string `json:"destinationCurrencyCode"`
	CountryCode             string `json:"countryCode"`
	PaymentMethodType       string `json:"paymentMethodType,omitempty"`
	WalletAddress           string `json:"walletAddress,omitempty"`
}

// Quote is one service provider's offer inside the quote response
type Quote struct {
	ServiceProvider   string              `json:"serviceProvider"`
	TransactionType   string              `json:"transactionType"`
	PaymentMethodType string              `json:"paymentMethodType"`
	SourceAmount      decimal.NullDecimal `json:"sourceAmount"`
	DestinationAmount decimal.NullDecimal `json:"destinationAmount"`
	ExchangeRate      decimal.NullDecimal `json:"exchangeRate"`
	TransactionFee    decimal.NullDecimal `json:"transactionFee"`
	NetworkFee        decimal.NullDecimal `json:"networkFee"`
	PartnerFee        decimal.NullDecimal `json:"partnerFee"`
	TotalFee          decimal.NullDecimal `json:"totalFee"`
	CustomerScore     decimal.NullDecimal `json:"customerScore"`
}

// QuoteResponse wraps the offers of every service provider Meld routes to
type QuoteResponse struct {
	Quotes  []Quote `json:"quotes"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
}

// SessionData carries the widget prefill
type SessionData struct {
	WalletAddress           string `json:"walletAddress,omitempty"`
	WalletTag               string `json:"walletTag,omitempty"`
	CountryCode             string `json:"countryCode"`
	SourceCurrencyCode      string `json:"sourceCurrencyCode"`
	SourceAmount            string `json:"sourceAmount"`
	DestinationCurrencyCode string `json:"destinationCurrencyCode"`
	ServiceProvider         string `json:"serviceProvider"`
	PaymentMethodType       string `json:"paymentMethodType,omitempty"`
	RedirectURL             string `json:"redirectUrl,omitempty"`
}

// SessionRequest is the body of POST /crypto/session/widget
type SessionRequest struct {
	SessionData        SessionData `json:"sessionData"`
	SessionType        string      `json:"sessionType"`
	ExternalCustomerID string      `json:"externalCustomerId,omitempty"`
	ExternalSessionID  string      `json:"externalSessionId"`
}

// Session is the widget session response
type Session struct {
	ID                 string `json:"id"`
	ExternalSessionID  string `json:"externalSessionId"`
	CustomerID         string `json:"customerId"`
	ExternalCustomerID string `json:"externalCustomerId"`
	WidgetURL          string `json:"widgetUrl"`
	Token              string `json:"token"`
}
