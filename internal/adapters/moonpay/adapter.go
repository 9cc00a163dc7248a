// Package moonpay adapts the MoonPay on/off-ramp API and its hosted widget
package moonpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/crypto"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const (
	defaultPaymentMethod = "credit_debit_card"
	defaultCurrencyTTL   = time.Hour
)

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"waitingPayment":       entities.TransactionStatusPending,
	"pending":              entities.TransactionStatusPending,
	"waitingAuthorization": entities.TransactionStatusPending,
	"completed":            entities.TransactionStatusCompleted,
	"failed":               entities.TransactionStatusFailed,
})

var paymentMethods = []struct{ id, name string }{
	{"credit_debit_card", "Credit/Debit Card"},
	{"apple_pay", "Apple Pay"},
	{"google_pay", "Google Pay"},
	{"paypal", "PayPal"},
	{"venmo", "Venmo"},
	{"sepa_bank_transfer", "SEPA Bank Transfer"},
	{"gbp_bank_transfer", "UK Bank Transfer"},
	{"ach_bank_transfer", "ACH Bank Transfer"},
	{"pix_instant_payment", "PIX"},
	{"mobile_wallet", "Mobile Wallet"},
}

// Adapter implements provider.Provider for MoonPay
type Adapter struct {
	client   *Client
	parser   *currency.Parser
	config   Config
	verifier provider.SignatureVerifier
	logger   *logger.Logger
	newID    func() string
	now      func() time.Time

	mu         sync.Mutex
	currencies []Currency
	fetchedAt  time.Time
}

// NewAdapter creates a MoonPay adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	if config.BuyWidgetURL == "" {
		config.BuyWidgetURL = defaultBuyWidgetURL
	}
	if config.SellWidgetURL == "" {
		config.SellWidgetURL = defaultSellWidgetURL
	}
	if config.CurrencyTTL <= 0 {
		config.CurrencyTTL = defaultCurrencyTTL
	}
	return &Adapter{
		client:   NewClient(config, log),
		parser:   currency.NewParser(currency.MoonPayTable(), log.Zap()),
		config:   config,
		verifier: provider.SelectVerifier("moonpay", config.WebhookSecret, config.AllowUnverifiedWebhooks, provider.MoonPayVerifier, log.Zap()),
		logger:   log,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderMoonPay }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// SignatureVerifier implements provider.WebhookParser
func (a *Adapter) SignatureVerifier() provider.SignatureVerifier { return a.verifier }

// code converts a ticker into MoonPay's currency code: the bare coin on its
// home chain or on Ethereum, coin_network elsewhere (usdt_trx, bnb_bsc)
func (a *Adapter) code(ticker string) string {
	p := a.ParseCurrency(ticker)
	if p.Network == "" || p.Network == p.Coin || p.Network == "eth" {
		return p.Coin
	}
	return p.Coin + "_" + p.Network
}

func (a *Adapter) loadCurrencies(ctx context.Context) ([]Currency, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currencies != nil && a.now().Sub(a.fetchedAt) < a.config.CurrencyTTL {
		return a.currencies, nil
	}
	rows, err := a.client.GetCurrencies(ctx)
	if err != nil {
		if a.currencies != nil {
			a.logger.Warn("MoonPay currency refresh failed, serving stale list", "error", err)
			return a.currencies, nil
		}
		return nil, err
	}
	a.currencies = rows
	a.fetchedAt = a.now()
	return rows, nil
}

// supportedCrypto validates that code is a listed, unsuspended crypto
// asset and, for sells, that selling is enabled
func (a *Adapter) supportedCrypto(ctx context.Context, field, code string, sell bool) (*Currency, error) {
	rows, err := a.loadCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	for i := range rows {
		c := &rows[i]
		if !strings.EqualFold(c.Code, code) {
			continue
		}
		if c.IsSuspended {
			return nil, domainerrors.ValidationError(field, fmt.Sprintf("%s is currently suspended", code))
		}
		if sell && c.IsCrypto() && !c.IsSellSupported {
			return nil, domainerrors.ValidationError(field, fmt.Sprintf("%s does not support selling", code))
		}
		return c, nil
	}

	available := make([]string, 0, 50)
	for _, c := range rows {
		if len(available) == 50 {
			break
		}
		available = append(available, c.Code)
	}
	return nil, domainerrors.ValidationError(field, fmt.Sprintf("Currency %s not found", code)).
		WithDetails(map[string]interface{}{"field": field, "available": available})
}

// sides splits a request into the crypto and fiat codes
func (a *Adapter) sides(action entities.TransactionType, src, dst string) (sell bool, cryptoCode, fiat string, err error) {
	switch action {
	case entities.TransactionTypeSell:
		return true, a.code(src), strings.ToLower(dst), nil
	case entities.TransactionTypeBuy, "":
		return false, a.code(dst), strings.ToLower(src), nil
	}
	return false, "", "", domainerrors.ValidationError("action", "moonpay supports BUY and SELL only")
}

// Quote implements provider.Provider
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	sell, cryptoCode, fiat, err := a.sides(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}
	field := "destination_currency"
	if sell {
		field = "source_currency"
	}
	if _, err := a.supportedCrypto(ctx, field, cryptoCode, sell); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = defaultPaymentMethod
	}
	query := url.Values{
		"baseCurrencyCode":   {fiat},
		"baseCurrencyAmount": {req.Amount.String()},
		"paymentMethod":      {method},
	}
	if sell {
		query.Set("baseCurrencyCode", cryptoCode)
		query.Set("quoteCurrencyCode", fiat)
	}

	q, raw, err := a.client.GetQuote(ctx, cryptoCode, sell, query)
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	rate := q.QuoteCurrencyPrice.Decimal
	if sell && q.BaseCurrencyPrice.Valid {
		rate = q.BaseCurrencyPrice.Decimal
	}
	quote := &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      strings.ToUpper(req.SourceCurrency),
		DestinationCurrency: strings.ToUpper(req.DestinationCurrency),
		SourceAmount:        req.Amount,
		EstimatedAmount:     q.QuoteCurrencyAmount.Decimal,
		Rate:                rate,
		Fees: entities.Fees{
			NetworkFee:     httpclient.FromNull(q.NetworkFeeAmount),
			TransactionFee: httpclient.FromNull(q.FeeAmount),
			PartnerFee:     httpclient.FromNull(q.ExtraFeeAmount),
		},
		Network:    a.ParseCurrency(req.DestinationCurrency).Network,
		ValidUntil: httpclient.Timestamp(gjson.Result{Type: gjson.String, Str: q.ExpiresAt}),
		Raw:        httpclient.RawMap(raw),
	}
	if sell {
		quote.Network = a.ParseCurrency(req.SourceCurrency).Network
	}
	return quote, nil
}

// CreateTransaction implements provider.Provider. MoonPay hosts the flow:
// the result is a signed widget URL carrying an externalTransactionId
// generated here.
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	sell, cryptoCode, fiat, err := a.sides(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}
	field := "destination_currency"
	if sell {
		field = "source_currency"
	}
	if _, err := a.supportedCrypto(ctx, field, cryptoCode, sell); err != nil {
		return nil, err
	}

	externalID := a.newID()
	params := url.Values{
		"apiKey":                {a.config.APIKey},
		"baseCurrencyAmount":    {req.Amount.String()},
		"externalTransactionId": {externalID},
	}
	base := a.config.BuyWidgetURL
	if sell {
		base = a.config.SellWidgetURL
		params.Set("baseCurrencyCode", cryptoCode)
		params.Set("quoteCurrencyCode", fiat)
		if req.RefundAddress != "" {
			params.Set("refundWalletAddress", req.RefundAddress)
		}
	} else {
		params.Set("currencyCode", cryptoCode)
		params.Set("baseCurrencyCode", fiat)
		if req.WalletAddress != "" {
			params.Set("walletAddress", req.WalletAddress)
		}
		if req.ExtraID != "" {
			params.Set("walletAddressTag", req.ExtraID)
		}
		if req.PaymentMethod != "" {
			params.Set("paymentMethod", req.PaymentMethod)
		}
	}
	if req.UserID != "" {
		params.Set("externalCustomerId", req.UserID)
	}
	if req.Email != "" {
		params.Set("email", req.Email)
	}
	if req.RedirectURL != "" {
		params.Set("redirectURL", req.RedirectURL)
	}

	widgetURL := a.SignURL(base, params)
	a.logger.Info("MoonPay widget URL generated", "external_transaction_id", externalID, "sell", sell)

	const rawStatus = "pending"
	return &entities.ProviderTransaction{
		ProviderTransactionID: externalID,
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		RedirectURL:           widgetURL,
		SourceAmount:          req.Amount,
		Network:               a.ParseCurrency(req.DestinationCurrency).Network,
		Raw: map[string]interface{}{
			"widget_url":              widgetURL,
			"external_transaction_id": externalID,
		},
	}, nil
}

// SignURL appends the widget signature: base64 HMAC-SHA256 of "?<query>"
// keyed with the secret key. Without a secret the URL is returned unsigned.
func (a *Adapter) SignURL(base string, params url.Values) string {
	query := params.Encode()
	unsigned := base + "?" + query
	if a.config.SecretKey == "" {
		a.logger.Warn("MoonPay secret key not configured, widget URL is unsigned")
		return unsigned
	}
	sig := crypto.HMACBase64(crypto.SHA256, []byte(a.config.SecretKey), []byte("?"+query))
	return unsigned + "&signature=" + url.QueryEscape(sig)
}

// GetStatus implements provider.Provider. The id stored at creation is the
// externalTransactionId; MoonPay's own id is tried when that lookup misses.
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	rows, raw, err := a.client.GetTransactionsByExternalID(ctx, providerTxID)
	var txn *Transaction
	switch {
	case err == nil && len(rows) > 0:
		txn = &rows[len(rows)-1]
		raw, _ = json.Marshal(txn)
	case err == nil || isNotFound(err):
		txn, raw, err = a.client.GetTransaction(ctx, providerTxID)
		if err != nil {
			return nil, httpclient.Upstream(a.Name().Slug(), err)
		}
	default:
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             txn.Status,
		TransactionHash:       txn.CryptoTransactionID,
		DestinationAmount:     httpclient.FromNull(txn.QuoteCurrencyAmount),
		FailureReason:         txn.FailureReason,
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

func isNotFound(err error) bool {
	apiErr, ok := httpclient.AsAPIError(err)
	return ok && apiErr.IsNotFound()
}

// ListCurrencies implements provider.CurrencyLister
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	rows, err := a.loadCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.Currency, 0, len(rows))
	for _, r := range rows {
		c := entities.Currency{
			Code:      strings.ToUpper(r.Code),
			Name:      r.Name,
			IsFiat:    !r.IsCrypto(),
			HasExtra:  r.SupportsAddressTag,
			Available: !r.IsSuspended,
		}
		if r.IsCrypto() {
			c.Network = r.Metadata.NetworkCode
			c.Networks = []entities.Network{{
				Code:         r.Metadata.NetworkCode,
				AddressRegex: r.AddressRegex,
				MemoNeeded:   r.SupportsAddressTag,
			}}
		}
		out = append(out, c)
	}
	return out, nil
}

// GetLimits implements provider.LimitsProvider. Buy limits come from the
// limits endpoint in fiat; sell limits from the currency listing in crypto.
func (a *Adapter) GetLimits(ctx context.Context, req *entities.LimitsRequest) (*entities.Limits, error) {
	sell, cryptoCode, fiat, err := a.sides(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}
	out := &entities.Limits{SourceCurrency: req.SourceCurrency, DestinationCurrency: req.DestinationCurrency}

	if sell {
		c, err := a.supportedCrypto(ctx, "source_currency", cryptoCode, true)
		if err != nil {
			return nil, err
		}
		out.MinAmount = httpclient.FromNull(c.MinSellAmount)
		out.MaxAmount = httpclient.FromNull(c.MaxSellAmount)
		return out, nil
	}

	body, err := a.client.GetLimits(ctx, cryptoCode, url.Values{
		"baseCurrencyCode": {fiat},
		"paymentMethod":    {defaultPaymentMethod},
	})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out.MinAmount = firstDecimal(body, "baseCurrency.minBuyAmount", "baseCurrency.minAmount")
	out.MaxAmount = firstDecimal(body, "baseCurrency.maxBuyAmount", "baseCurrency.maxAmount")
	return out, nil
}

func firstDecimal(body []byte, paths ...string) *decimal.Decimal {
	for _, p := range paths {
		if d := httpclient.Decimal(gjson.GetBytes(body, p)); d != nil {
			return d
		}
	}
	return nil
}

// ListPaymentMethods implements provider.PaymentMethodLister
func (a *Adapter) ListPaymentMethods(context.Context, string, string) ([]entities.PaymentMethod, error) {
	out := make([]entities.PaymentMethod, 0, len(paymentMethods))
	for _, m := range paymentMethods {
		out = append(out, entities.PaymentMethod{ID: m.id, Name: m.name})
	}
	return out, nil
}

// IPInfo returns MoonPay's view of the caller location. An empty ip
// resolves the gateway's own address.
func (a *Adapter) IPInfo(ctx context.Context, ip string) (json.RawMessage, error) {
	raw, err := a.client.GetIPAddress(ctx, ip)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return raw, nil
}

// ParseWebhook implements provider.WebhookParser. MoonPay wraps the
// transaction in data and sends no event id.
func (a *Adapter) ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	root := gjson.ParseBytes(body)
	data := root.Get("data")
	if !root.IsObject() || !data.IsObject() {
		return nil, fmt.Errorf("%w: data object missing", domainerrors.ErrMalformedWebhook)
	}

	id := data.Get("id").String()
	externalID := data.Get("externalTransactionId").String()
	if id == "" && externalID == "" {
		return nil, fmt.Errorf("%w: neither id nor externalTransactionId present", domainerrors.ErrMalformedWebhook)
	}
	status := data.Get("status").String()

	var keys []string
	for _, k := range []string{externalID, id} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	ref := externalID
	if ref == "" {
		ref = id
	}

	payload := httpclient.RawMap([]byte(data.Raw))
	payload["moonpay_transaction_id"] = id

	return &entities.WebhookEvent{
		EventID:           fmt.Sprintf("%s:%s:%s", ref, status, data.Get("updatedAt").String()),
		EventType:         root.Get("type").String(),
		RawStatus:         status,
		CorrelationKeys:   keys,
		TransactionHash:   data.Get("cryptoTransactionId").String(),
		DestinationAmount: httpclient.Decimal(data.Get("quoteCurrencyAmount")),
		FailureReason:     data.Get("failureReason").String(),
		Payload:           payload,
	}, nil
}
