// Package meld adapts the Meld aggregator, which routes on/off-ramp
// orders to several service providers behind one widget.
package meld

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

const defaultCountry = "US"

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"PENDING":         entities.TransactionStatusPending,
	"TWO_FA_REQUIRED": entities.TransactionStatusPending,
	"SETTLING":        entities.TransactionStatusProcessing,
	"SETTLED":         entities.TransactionStatusCompleted,
	"ERROR":           entities.TransactionStatusFailed,
	"DECLINED":        entities.TransactionStatusFailed,
	"FAILED":          entities.TransactionStatusFailed,
	"REFUNDED":        entities.TransactionStatusFailed,
	"CANCELLED":       entities.TransactionStatusCancelled,
})

// eventStatuses backs webhooks that carry no paymentTransactionStatus
var eventStatuses = map[string]string{
	"TRANSACTION_CRYPTO_PENDING":      "PENDING",
	"TRANSACTION_CRYPTO_TRANSFERRING": "SETTLING",
	"TRANSACTION_CRYPTO_COMPLETE":     "SETTLED",
	"TRANSACTION_CRYPTO_FAILED":       "FAILED",
}

// Adapter implements provider.Provider for Meld
type Adapter struct {
	client   *Client
	parser   *currency.Parser
	config   Config
	verifier provider.SignatureVerifier
	logger   *logger.Logger
	newID    func() string
}

// NewAdapter creates a Meld adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	if config.DefaultCountry == "" {
		config.DefaultCountry = defaultCountry
	}
	return &Adapter{
		client:   NewClient(config, log),
		parser:   currency.NewParser(currency.MeldTable(), log.Zap()),
		config:   config,
		verifier: provider.SelectVerifier("meld", config.WebhookSecret, config.AllowUnverifiedWebhooks, provider.MeldVerifier, log.Zap()),
		logger:   log,
		newID:    uuid.NewString,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderMeld }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// SignatureVerifier implements provider.WebhookParser
func (a *Adapter) SignatureVerifier() provider.SignatureVerifier { return a.verifier }

// code converts a ticker into a Meld currency code. Native coins and
// Ethereum tokens use the bare symbol, everything else COIN_CHAIN.
func (a *Adapter) code(ticker string) string {
	r := a.parser.Resolve(ticker)
	switch {
	case r.Tier == currency.TierNative, r.Tier == currency.TierFallback:
		return r.Coin
	case r.Network == "ETHEREUM":
		return r.Coin
	}
	return r.Coin + "_" + r.Network
}

// sides returns the Meld source and destination codes. Fiat passes through
// upper-cased, the crypto side is converted.
func (a *Adapter) sides(action entities.TransactionType, src, dst string) (string, string, string, error) {
	switch action {
	case entities.TransactionTypeSell:
		return a.code(src), currency.Normalize(dst), "SELL", nil
	case entities.TransactionTypeBuy, "":
		return currency.Normalize(src), a.code(dst), "BUY", nil
	}
	return "", "", "", domainerrors.ValidationError("action", "meld supports BUY and SELL only")
}

func (a *Adapter) country(c string) string {
	if c == "" {
		return a.config.DefaultCountry
	}
	return strings.ToUpper(c)
}

// bestQuote picks the offer with the largest destination amount
func bestQuote(quotes []Quote) *Quote {
	var best *Quote
	for i := range quotes {
		q := &quotes[i]
		if !q.DestinationAmount.Valid {
			continue
		}
		if best == nil || q.DestinationAmount.Decimal.GreaterThan(best.DestinationAmount.Decimal) {
			best = q
		}
	}
	return best
}

// Quote implements provider.Provider. Meld prices every service provider
// it routes to and the best offer is returned.
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	src, dst, _, err := a.sides(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}

	resp, raw, err := a.client.GetQuote(ctx, &QuoteRequest{
		SourceAmount:            req.Amount.String(),
		SourceCurrencyCode:      src,
		DestinationCurrencyCode: dst,
		CountryCode:             a.country(req.Country),
		PaymentMethodType:       req.PaymentMethod,
		WalletAddress:           req.WalletAddress,
	})
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	best := bestQuote(resp.Quotes)
	if best == nil {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		if msg == "" {
			msg = "no service provider returned a quote"
		}
		de := domainerrors.UpstreamError(a.Name().Slug(), 0, fmt.Errorf("meld quote: %s", msg))
		de.Retryable = false
		if hint := httpclient.ScrapeHint(a.Name().Slug(), msg); hint != nil {
			de.Details["amount_hint"] = hint
		}
		return nil, de
	}

	out := &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      strings.ToUpper(req.SourceCurrency),
		DestinationCurrency: strings.ToUpper(req.DestinationCurrency),
		SourceAmount:        req.Amount,
		EstimatedAmount:     best.DestinationAmount.Decimal,
		Rate:                best.ExchangeRate.Decimal,
		Fees: entities.Fees{
			NetworkFee:     httpclient.FromNull(best.NetworkFee),
			TransactionFee: httpclient.FromNull(best.TransactionFee),
			PartnerFee:     httpclient.FromNull(best.PartnerFee),
			TotalFee:       httpclient.FromNull(best.TotalFee),
		},
		Network: a.ParseCurrency(req.DestinationCurrency).Network,
		Raw:     httpclient.RawMap(raw),
	}
	out.Raw["service_provider"] = best.ServiceProvider
	return out, nil
}

// CreateTransaction implements provider.Provider by opening a widget
// session. Without a requested service provider the best quote picks one.
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	src, dst, sessionType, err := a.sides(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}

	serviceProvider, _ := req.Extra["service_provider"].(string)
	if serviceProvider == "" {
		serviceProvider = a.config.DefaultServiceProvider
	}
	if serviceProvider == "" {
		q, err := a.Quote(ctx, &entities.QuoteRequest{
			Action:              req.Action,
			SourceCurrency:      req.SourceCurrency,
			DestinationCurrency: req.DestinationCurrency,
			Amount:              req.Amount,
			PaymentMethod:       req.PaymentMethod,
			Country:             req.Country,
			WalletAddress:       req.WalletAddress,
		})
		if err != nil {
			return nil, err
		}
		serviceProvider, _ = q.Raw["service_provider"].(string)
	}

	sessionID := a.newID()
	session, raw, err := a.client.CreateWidgetSession(ctx, &SessionRequest{
		SessionData: SessionData{
			WalletAddress:           req.WalletAddress,
			WalletTag:               req.ExtraID,
			CountryCode:             a.country(req.Country),
			SourceCurrencyCode:      src,
			SourceAmount:            req.Amount.String(),
			DestinationCurrencyCode: dst,
			ServiceProvider:         serviceProvider,
			PaymentMethodType:       req.PaymentMethod,
			RedirectURL:             req.RedirectURL,
		},
		SessionType:        sessionType,
		ExternalCustomerID: req.UserID,
		ExternalSessionID:  sessionID,
	})
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}
	if session.WidgetURL == "" {
		return nil, domainerrors.UpstreamError(a.Name().Slug(), 0, fmt.Errorf("meld session %s has no widget url", session.ID))
	}
	a.logger.Info("Meld widget session created", "session_id", session.ID, "external_session_id", sessionID, "service_provider", serviceProvider)

	const rawStatus = "PENDING"
	return &entities.ProviderTransaction{
		ProviderTransactionID: sessionID,
		ProviderReferenceID:   session.ID,
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		RedirectURL:           session.WidgetURL,
		SourceAmount:          req.Amount,
		Network:               a.ParseCurrency(req.DestinationCurrency).Network,
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// GetStatus implements provider.Provider. The id stored at creation is the
// externalSessionId; a Meld payment transaction id works as well.
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	body, err := a.client.SearchTransactions(ctx, url.Values{"externalSessionIds": {providerTxID}})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	txn := gjson.GetBytes(body, "transactions.0")
	if !txn.Exists() {
		body, err = a.client.GetTransaction(ctx, providerTxID)
		if err != nil {
			return nil, httpclient.Upstream(a.Name().Slug(), err)
		}
		txn = gjson.GetBytes(body, "transaction")
		if !txn.Exists() {
			txn = gjson.ParseBytes(body)
		}
	}

	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             txn.Get("status").String(),
		TransactionHash:       blockchainHash(txn),
		DestinationAmount:     httpclient.Decimal(txn.Get("destinationAmount")),
		FailureReason:         txn.Get("failureReason").String(),
		Raw:                   httpclient.RawMap([]byte(txn.Raw)),
	}, nil
}

func blockchainHash(r gjson.Result) string {
	for _, p := range []string{"cryptoDetails.blockchainTransactionId", "blockchainTransactionId", "transactionHash"} {
		if v := r.Get(p).String(); v != "" {
			return v
		}
	}
	return ""
}

// ListCurrencies implements provider.CurrencyLister with crypto assets
// first and fiat after
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	cryptos, err := a.client.GetCryptoCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.Currency, 0, len(cryptos))
	for _, c := range cryptos {
		out = append(out, entities.Currency{
			Code:      c.CurrencyCode,
			Name:      c.Name,
			Network:   c.ChainCode,
			Networks:  []entities.Network{{Code: c.ChainCode, Name: c.ChainName}},
			Icon:      c.SymbolImageURL,
			Available: true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	fiat, err := a.FiatCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, fiat...), nil
}

// FiatCurrencies lists the fiat currencies Meld accepts
func (a *Adapter) FiatCurrencies(ctx context.Context) ([]entities.Currency, error) {
	rows, err := a.client.GetFiatCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.Currency, 0, len(rows))
	for _, f := range rows {
		out = append(out, entities.Currency{
			Code:      f.CurrencyCode,
			Name:      f.Name,
			Icon:      f.SymbolImageURL,
			IsFiat:    true,
			Available: true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListPaymentMethods implements provider.PaymentMethodLister
func (a *Adapter) ListPaymentMethods(ctx context.Context, fiat, country string) ([]entities.PaymentMethod, error) {
	query := url.Values{}
	if fiat != "" {
		query.Set("fiatCurrencies", strings.ToUpper(fiat))
	}
	if country != "" {
		query.Set("countries", strings.ToUpper(country))
	}
	rows, err := a.client.GetPaymentMethods(ctx, query)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.PaymentMethod, 0, len(rows))
	for _, m := range rows {
		out = append(out, entities.PaymentMethod{ID: m.PaymentMethod, Name: m.Name, Type: m.PaymentType})
	}
	return out, nil
}

// ParseWebhook implements provider.WebhookParser. Only TRANSACTION_CRYPTO_*
// events are accepted; the legacy data envelope is read as well.
func (a *Adapter) ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not an object", domainerrors.ErrMalformedWebhook)
	}
	eventType := root.Get("eventType").String()
	if eventType == "" {
		eventType = root.Get("event").String()
	}
	if eventType != "" && !strings.HasPrefix(strings.ToUpper(eventType), "TRANSACTION_CRYPTO_") {
		return nil, fmt.Errorf("%w: unsupported event type %s", domainerrors.ErrMalformedWebhook, eventType)
	}

	payload := root.Get("payload")
	if !payload.IsObject() {
		payload = root.Get("data")
	}
	if !payload.IsObject() {
		return nil, fmt.Errorf("%w: payload missing", domainerrors.ErrMalformedWebhook)
	}

	var keys []string
	for _, p := range []string{"externalSessionId", "paymentTransactionId", "paymentId", "sessionId"} {
		if v := payload.Get(p).String(); v != "" {
			keys = append(keys, v)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no transaction reference", domainerrors.ErrMalformedWebhook)
	}

	status := payload.Get("paymentTransactionStatus").String()
	if status == "" {
		status = payload.Get("status").String()
	}
	if status == "" {
		status = eventStatuses[strings.ToUpper(eventType)]
	}

	eventID := root.Get("eventId").String()
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s:%s", keys[0], status, root.Get("timestamp").String())
	}

	var failure string
	if a.MapStatus(status).IsTerminal() && a.MapStatus(status) != entities.TransactionStatusCompleted {
		failure = payload.Get("failureReason").String()
		if failure == "" {
			failure = status
		}
	}

	return &entities.WebhookEvent{
		EventID:           eventID,
		EventType:         eventType,
		RawStatus:         status,
		CorrelationKeys:   keys,
		TransactionHash:   blockchainHash(payload),
		DestinationAmount: httpclient.Decimal(payload.Get("destinationAmount")),
		FailureReason:     failure,
		Payload:           httpclient.RawMap([]byte(payload.Raw)),
	}, nil
}
