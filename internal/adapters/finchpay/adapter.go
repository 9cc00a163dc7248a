// Package finchpay adapts the FinchPay fiat on-ramp. Only BUY is offered:
// the widget is prefilled through a signed URL and status is tracked by the
// external id we generate.
package finchpay

import (
	"context"
	"fmt"
	"net/url"
	"strings"

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

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"CREATED":                entities.TransactionStatusPending,
	"HOLD":                   entities.TransactionStatusPending,
	"PROCESSING":             entities.TransactionStatusPending,
	"SENDING":                entities.TransactionStatusPending,
	"COMPLETE":               entities.TransactionStatusCompleted,
	"COMPLETED":              entities.TransactionStatusCompleted,
	"REFUNDED":               entities.TransactionStatusFailed,
	"ERROR":                  entities.TransactionStatusFailed,
	"REJECTED_BY_ANTI_FRAUD": entities.TransactionStatusFailed,
	"EXPIRED":                entities.TransactionStatusFailed,
})

// Adapter implements provider.Provider for FinchPay
type Adapter struct {
	client   *Client
	parser   *currency.Parser
	config   Config
	verifier provider.SignatureVerifier
	newID    func() string
	logger   *logger.Logger
}

// NewAdapter creates a FinchPay adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	if config.WidgetBaseURL == "" {
		config.WidgetBaseURL = defaultWidgetBaseURL
	}
	return &Adapter{
		client:   NewClient(config, log),
		parser:   currency.NewParser(currency.FinchPayTable(), log.Zap()),
		config:   config,
		verifier: provider.SelectVerifier("finchpay", config.WebhookSecret, config.AllowUnverifiedWebhooks, provider.FinchPayVerifier, log.Zap()),
		newID:    func() string { return uuid.New().String() },
		logger:   log,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderFinchPay }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// cryptoTarget splits the crypto side. FinchPay wants no network for plain
// tickers, so native and fallback resolutions drop it.
func (a *Adapter) cryptoTarget(code string) (string, string) {
	r := a.parser.Resolve(code)
	switch r.Tier {
	case currency.TierNative, currency.TierFallback:
		return r.Coin, ""
	}
	return r.Coin, r.Network
}

func buyOnly(action entities.TransactionType) error {
	if action != "" && action != entities.TransactionTypeBuy {
		return domainerrors.ValidationError("action", "FinchPay only supports BUY (fiat to crypto)")
	}
	return nil
}

// Quote implements provider.Provider. Rejected amounts come back with the
// min/max bound recovered from the error text when FinchPay states one.
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	if err := buyOnly(req.Action); err != nil {
		return nil, err
	}

	coin, network := a.cryptoTarget(req.DestinationCurrency)
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "card"
	}

	query := url.Values{
		"from_amount":    {req.Amount.String()},
		"from_currency":  {strings.ToUpper(req.SourceCurrency)},
		"to_currency":    {coin},
		"payment_method": {paymentMethod},
	}
	if network != "" {
		query.Set("to_network", network)
	}

	est, raw, err := a.client.GetEstimate(ctx, query)
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	if est.ToNetwork != "" {
		network = est.ToNetwork
	}
	serviceFee := httpclient.FromNull(est.ServiceFeeAmount)
	networkFee := httpclient.FromNull(est.NetworkFeeAmount)

	return &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SourceAmount:        req.Amount,
		EstimatedAmount:     est.ToAmount.Decimal,
		Rate:                est.ExchangeRate.Decimal,
		Fees:                entities.Fees{NetworkFee: networkFee, TransactionFee: serviceFee},
		Network:             network,
		Raw:                 httpclient.RawMap(raw),
	}, nil
}

// CreateTransaction implements provider.Provider. Nothing is sent to
// FinchPay: the result is a prefilled widget URL keyed by a fresh
// external id.
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	if err := buyOnly(req.Action); err != nil {
		return nil, err
	}

	coin, network := a.cryptoTarget(req.DestinationCurrency)
	externalID := a.newID()

	params := url.Values{
		"partner_key": {a.config.APIKey},
		"a":           {req.Amount.String()},
		"p":           {strings.ToUpper(req.SourceCurrency)},
		"c":           {coin},
		"external_id": {externalID},
	}
	if network != "" {
		params.Set("n", network)
	}
	if req.WalletAddress != "" {
		if a.config.SecretKey == "" {
			a.logger.Warn("FinchPay secret key not configured, wallet address will not be prefilled", "external_id", externalID)
		} else {
			params.Set("wallet_address", req.WalletAddress)
			params.Set("sign", a.WalletSignature(req.Email, req.WalletAddress, req.ExtraID))
			if req.ExtraID != "" {
				params.Set("wallet_extra", req.ExtraID)
			}
			if req.Email != "" {
				params.Set("email", req.Email)
			}
		}
	}

	widgetURL := strings.TrimRight(a.config.WidgetBaseURL, "/") + "/payment_method?" + params.Encode()

	a.logger.Info("Generated FinchPay widget URL", "external_id", externalID)

	return &entities.ProviderTransaction{
		ProviderTransactionID: externalID,
		RawStatus:             "CREATED",
		Status:                entities.TransactionStatusPending,
		RedirectURL:           widgetURL,
		SourceAmount:          req.Amount,
		Network:               network,
		Raw: map[string]interface{}{
			"coin":        coin,
			"external_id": externalID,
			"widget_url":  widgetURL,
		},
	}, nil
}

// WalletSignature is HMAC-SHA256(email + wallet + extra) keyed with the
// secret key, hex encoded
func (a *Adapter) WalletSignature(email, wallet, extra string) string {
	return crypto.HMACHex(crypto.SHA256, []byte(a.config.SecretKey), []byte(email+wallet+extra))
}

// GetStatus implements provider.Provider. providerTxID is normally the
// external id generated at creation.
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	txn, raw, err := a.client.GetTransactionByExternalID(ctx, providerTxID)
	if apiErr, ok := httpclient.AsAPIError(err); ok && apiErr.IsNotFound() {
		// ids taken from a webhook are FinchPay's own
		txn, raw, err = a.client.GetTransaction(ctx, providerTxID)
	}
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             strings.ToUpper(txn.Status),
		TransactionHash:       txn.TransactionHash,
		DestinationAmount:     httpclient.FromNull(txn.AmountTo),
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// ListCurrencies implements provider.CurrencyLister. FinchPay lists one
// row per ticker and network; rows are folded per ticker.
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	rows, err := a.client.GetCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	index := make(map[string]int)
	var out []entities.Currency
	for _, row := range rows {
		key := row.Ticker
		if row.IsFiat {
			key = "fiat:" + row.Ticker
		}
		i, ok := index[key]
		if !ok {
			out = append(out, entities.Currency{
				Code:      row.Ticker,
				Name:      row.Name,
				IsFiat:    row.IsFiat,
				Icon:      row.Icon,
				Available: true,
			})
			i = len(out) - 1
			index[key] = i
		}
		if row.Network != "" {
			out[i].Networks = append(out[i].Networks, entities.Network{Code: row.Network})
		}
	}
	return out, nil
}

// GetLimits implements provider.LimitsProvider
func (a *Adapter) GetLimits(ctx context.Context, req *entities.LimitsRequest) (*entities.Limits, error) {
	coin, network := a.cryptoTarget(req.DestinationCurrency)
	query := url.Values{
		"from_currency": {strings.ToUpper(req.SourceCurrency)},
		"to_currency":   {coin},
	}
	if network != "" {
		query.Set("to_network", network)
	}

	body, err := a.client.GetLimits(ctx, query)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	return &entities.Limits{
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		MinAmount:           firstDecimal(body, "min_amount", "min", "from_min_amount", "limits.min"),
		MaxAmount:           firstDecimal(body, "max_amount", "max", "from_max_amount", "limits.max"),
	}, nil
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

// SignatureVerifier implements provider.WebhookParser
func (a *Adapter) SignatureVerifier() provider.SignatureVerifier { return a.verifier }

// ParseWebhook implements provider.WebhookParser. FinchPay sends no event
// id, so one is derived from the transaction, status and event time.
func (a *Adapter) ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", domainerrors.ErrMalformedWebhook)
	}

	id := root.Get("id").String()
	externalID := root.Get("external_id").String()
	if id == "" && externalID == "" {
		return nil, fmt.Errorf("%w: neither id nor external_id present", domainerrors.ErrMalformedWebhook)
	}
	status := strings.ToUpper(root.Get("status").String())

	ref := externalID
	if ref == "" {
		ref = id
	}

	var keys []string
	for _, k := range []string{externalID, id} {
		if k != "" {
			keys = append(keys, k)
		}
	}

	payload := httpclient.RawMap(body)
	payload["finchpay_transaction_id"] = id
	payload["partner_profit"] = map[string]interface{}{
		"amount":   root.Get("partner_profit_amount").Value(),
		"currency": root.Get("partner_profit_currency").Value(),
	}

	return &entities.WebhookEvent{
		EventID:           fmt.Sprintf("%s:%s:%s", ref, status, root.Get("event_time").String()),
		EventType:         root.Get("side").String(),
		RawStatus:         status,
		CorrelationKeys:   keys,
		TransactionHash:   root.Get("transaction_hash").String(),
		DestinationAmount: httpclient.Decimal(root.Get("amount_to")),
		Payload:           payload,
	}, nil
}
