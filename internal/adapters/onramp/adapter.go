// Package onramp adapts the OnRamp.money merchant API
package onramp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// DefaultNetwork is used when neither the ticker nor the coin mapping
// names a chain
const DefaultNetwork = "bep20"

const defaultConfigTTL = time.Hour

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"TRANSACTION_CREATED":   entities.TransactionStatusPending,
	"REFERENCE_ID_CLAIMED":  entities.TransactionStatusPending,
	"FIAT_DEPOSIT_RECEIVED": entities.TransactionStatusProcessing,
	"DEPOSIT_SECURED":       entities.TransactionStatusProcessing,
	"ON_CHAIN_INITIATED":    entities.TransactionStatusProcessing,
	"WITHDRAWAL_INITIATED":  entities.TransactionStatusProcessing,
	"TRADE_COMPLETED":       entities.TransactionStatusCompleted,
	"ON_CHAIN_COMPLETED":    entities.TransactionStatusCompleted,
	"WITHDRAWAL_COMPLETE":   entities.TransactionStatusCompleted,
	"AMOUNT_MISMATCH":       entities.TransactionStatusFailed,
	"NAME_MISMATCH":         entities.TransactionStatusFailed,
	"FAILED":                entities.TransactionStatusFailed,
	"TRANSACTION_ABANDONED": entities.TransactionStatusCancelled,
	"TRANSACTION_TIMEOUT":   entities.TransactionStatusExpired,
})

// Adapter implements provider.Provider for OnRamp
type Adapter struct {
	client   *Client
	parser   *currency.Parser
	verifier provider.SignatureVerifier
	logger   *logger.Logger
	newID    func() string
	now      func() time.Time

	configTTL time.Duration
	mu        sync.Mutex
	mapping   []byte
	fetchedAt time.Time
}

// NewAdapter creates an OnRamp adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	ttl := config.ConfigTTL
	if ttl <= 0 {
		ttl = defaultConfigTTL
	}
	return &Adapter{
		client:    NewClient(config, log),
		parser:    currency.NewParser(currency.OnRampTable(), log.Zap()),
		verifier:  provider.SelectVerifier("onramp", config.WebhookSecret, config.AllowUnverifiedWebhooks, provider.OnRampVerifier, log.Zap()),
		logger:    log,
		newID:     uuid.NewString,
		now:       time.Now,
		configTTL: ttl,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderOnRamp }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// FallbackScan implements provider.PendingScanner. OnRamp webhooks may only
// carry a referenceId that was never seen at creation time.
func (a *Adapter) FallbackScan() bool { return true }

// SignatureVerifier implements provider.WebhookParser
func (a *Adapter) SignatureVerifier() provider.SignatureVerifier { return a.verifier }

// configMapping returns allConfigMapping, refreshed once per TTL
func (a *Adapter) configMapping(ctx context.Context) (gjson.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mapping != nil && a.now().Sub(a.fetchedAt) < a.configTTL {
		return gjson.ParseBytes(a.mapping), nil
	}
	data, err := a.client.GetConfigMapping(ctx)
	if err != nil {
		if a.mapping != nil {
			a.logger.Warn("OnRamp config refresh failed, serving stale mapping", "error", err)
			return gjson.ParseBytes(a.mapping), nil
		}
		return gjson.Result{}, err
	}
	a.mapping = data
	a.fetchedAt = a.now()
	a.logger.Info("Fetched OnRamp config mappings")
	return gjson.ParseBytes(data), nil
}

// lookup finds key in obj ignoring case
func lookup(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if strings.EqualFold(k.String(), key) {
			found = v
			return false
		}
		return true
	})
	return found
}

func keys(obj gjson.Result, limit int) []string {
	var out []string
	obj.ForEach(func(k, _ gjson.Result) bool {
		out = append(out, k.String())
		return true
	})
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fiatType reads the numeric fiat code. Mapping entries are either the
// number itself or an object carrying fiatType.
func fiatType(mapping gjson.Result, code string) (int, bool) {
	entry := lookup(mapping.Get("fiatSymbolMapping"), code)
	switch {
	case entry.Type == gjson.Number:
		return int(entry.Int()), true
	case entry.IsObject() && entry.Get("fiatType").Exists():
		return int(entry.Get("fiatType").Int()), true
	}
	return 0, false
}

// resolve returns the lower-case coin and network for a ticker. Tickers the
// table cannot place take the first network of the coin mapping.
func (a *Adapter) resolve(mapping gjson.Result, code string) (string, string) {
	r := a.parser.Resolve(code)
	if r.Matched() {
		return r.Coin, r.Network
	}

	coin := strings.ToLower(strings.TrimSpace(code))
	first := lookup(mapping.Get("coinSymbolMapping"), coin).Get("networks.0")
	switch {
	case first.IsObject() && first.Get("networkCode").String() != "":
		return coin, strings.ToLower(first.Get("networkCode").String())
	case first.Type == gjson.String && first.String() != "":
		return coin, strings.ToLower(first.String())
	}
	a.logger.Warn("No OnRamp network for coin, using default", "coin", coin, "network", DefaultNetwork)
	return coin, DefaultNetwork
}

// flow splits a request into its fiat and crypto sides
func flow(action entities.TransactionType, src, dst string) (int, string, string, error) {
	switch action {
	case entities.TransactionTypeSell:
		return flowOfframp, dst, src, nil
	case entities.TransactionTypeBuy, "":
		return flowOnramp, src, dst, nil
	}
	return 0, "", "", domainerrors.ValidationError("action", "onramp supports BUY and SELL only")
}

func unsupportedFiat(field, code string, mapping gjson.Result) error {
	return domainerrors.ValidationError(field, "Unsupported fiat currency: "+code).
		WithDetails(map[string]interface{}{
			"field":                field,
			"supported_currencies": keys(mapping.Get("fiatSymbolMapping"), 0),
		})
}

func unsupportedCoin(field, code string, mapping gjson.Result) error {
	return domainerrors.ValidationError(field, "Unsupported cryptocurrency: "+code).
		WithDetails(map[string]interface{}{
			"field":           field,
			"supported_coins": keys(mapping.Get("coinSymbolMapping"), 50),
		})
}

// Quote implements provider.Provider
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	kind, fiat, crypto, err := flow(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}
	fiatField, coinField := "source_currency", "destination_currency"
	if kind == flowOfframp {
		fiatField, coinField = coinField, fiatField
	}

	mapping, err := a.configMapping(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	ft, ok := fiatType(mapping, fiat)
	if !ok {
		return nil, unsupportedFiat(fiatField, fiat, mapping)
	}
	coin, network := a.resolve(mapping, crypto)
	if req.Network != "" {
		network = strings.ToLower(req.Network)
	}
	if !lookup(mapping.Get("coinSymbolMapping"), coin).Exists() {
		return nil, unsupportedCoin(coinField, crypto, mapping)
	}

	body := &QuoteRequest{CoinCode: coin, Network: network, FiatType: ft, Type: kind}
	if kind == flowOnramp {
		body.FiatAmount = json.Number(req.Amount.String())
	} else {
		body.Quantity = json.Number(req.Amount.String())
	}

	q, raw, err := a.client.GetQuote(ctx, body)
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	estimated := q.Quantity.Decimal
	if kind == flowOfframp {
		estimated = q.FiatAmount.Decimal
	}
	txnFee := q.OnrampFee.Decimal.Add(q.GatewayFee.Decimal).Add(q.TDSFee.Decimal)

	return &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      strings.ToUpper(req.SourceCurrency),
		DestinationCurrency: strings.ToUpper(req.DestinationCurrency),
		SourceAmount:        req.Amount,
		EstimatedAmount:     estimated,
		Rate:                q.Rate.Decimal,
		Fees: entities.Fees{
			NetworkFee:     httpclient.FromNull(q.GasFee),
			TransactionFee: &txnFee,
			PartnerFee:     httpclient.FromNull(q.ClientFee),
		},
		Network: network,
		Raw:     httpclient.RawMap(raw),
	}, nil
}

// CreateTransaction implements provider.Provider. OnRamp hosts the flow, so
// the result is a widget link keyed by a merchantRecognitionId generated
// here.
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	kind, fiat, crypto, err := flow(req.Action, req.SourceCurrency, req.DestinationCurrency)
	if err != nil {
		return nil, err
	}

	mapping, err := a.configMapping(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	ft, ok := 0, false
	if req.FiatType != "" {
		if n, perr := strconv.Atoi(req.FiatType); perr == nil {
			ft, ok = n, true
		}
	}
	if !ok {
		ft, ok = fiatType(mapping, fiat)
	}
	if !ok {
		field := "source_currency"
		if kind == flowOfframp {
			field = "destination_currency"
		}
		return nil, unsupportedFiat(field, fiat, mapping)
	}

	coin, network := a.resolve(mapping, crypto)
	if req.Network != "" {
		network = strings.ToLower(req.Network)
	}

	merchantID := a.newID()
	link, raw, err := a.client.GenerateLink(ctx, &LinkRequest{
		CoinCode:              coin,
		Network:               network,
		FiatAmount:            json.Number(req.Amount.String()),
		FiatType:              ft,
		Type:                  kind,
		MerchantRecognitionID: merchantID,
		WalletAddress:         req.WalletAddress,
		RedirectURL:           req.RedirectURL,
	})
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	a.logger.Info("OnRamp link generated", "merchant_recognition_id", merchantID, "type", kind)

	const rawStatus = "TRANSACTION_CREATED"
	return &entities.ProviderTransaction{
		ProviderTransactionID: merchantID,
		ProviderReferenceID:   link.URLHash,
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		RedirectURL:           link.Link,
		SourceAmount:          req.Amount,
		Network:               network,
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// GetStatus implements provider.Provider. OnRamp exposes no merchant status
// lookup; status only arrives by webhook.
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	return nil, domainerrors.UnsupportedError(a.Name().Slug(), "status lookup")
}

// ListCurrencies implements provider.CurrencyLister from allConfigMapping
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	mapping, err := a.configMapping(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	var out []entities.Currency
	mapping.Get("coinSymbolMapping").ForEach(func(k, v gjson.Result) bool {
		c := entities.Currency{Code: strings.ToUpper(k.String()), Available: true}
		v.Get("networks").ForEach(func(_, n gjson.Result) bool {
			code := n.String()
			if n.IsObject() {
				code = n.Get("networkCode").String()
			}
			if code != "" {
				c.Networks = append(c.Networks, entities.Network{Code: strings.ToLower(code)})
			}
			return true
		})
		out = append(out, c)
		return true
	})
	mapping.Get("fiatSymbolMapping").ForEach(func(k, _ gjson.Result) bool {
		out = append(out, entities.Currency{Code: strings.ToUpper(k.String()), IsFiat: true, Available: true})
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsFiat != out[j].IsFiat {
			return !out[i].IsFiat
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// ConfigMapping returns the raw fiat, coin and chain mappings
func (a *Adapter) ConfigMapping(ctx context.Context) (json.RawMessage, error) {
	mapping, err := a.configMapping(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return json.RawMessage(mapping.Raw), nil
}

// ParseWebhook implements provider.WebhookParser
func (a *Adapter) ParseWebhook(body []byte) (*entities.WebhookEvent, error) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: body is not a JSON object", domainerrors.ErrMalformedWebhook)
	}

	referenceID := root.Get("referenceId").String()
	merchantID := root.Get("merchantRecognitionId").String()
	if referenceID == "" && merchantID == "" {
		return nil, fmt.Errorf("%w: neither referenceId nor merchantRecognitionId present", domainerrors.ErrMalformedWebhook)
	}
	status := strings.ToUpper(root.Get("status").String())
	eventType := strings.ToUpper(root.Get("eventType").String())

	var correlation []string
	for _, k := range []string{merchantID, referenceID, root.Get("urlHash").String()} {
		if k != "" {
			correlation = append(correlation, k)
		}
	}

	eventID := root.Get("eventId").String()
	if eventID == "" {
		ref := merchantID
		if ref == "" {
			ref = referenceID
		}
		eventID = fmt.Sprintf("%s:%s:%s", ref, status, root.Get("updatedAt").String())
	}

	amountPath := "actualCryptoAmount"
	if eventType == "OFFRAMP" {
		amountPath = "actualFiatAmount"
	}

	var failure string
	if s := a.MapStatus(status); s == entities.TransactionStatusFailed || s == entities.TransactionStatusCancelled {
		failure = status
	}

	payload := httpclient.RawMap(body)
	payload["onramp_reference_id"] = referenceID

	return &entities.WebhookEvent{
		EventID:           eventID,
		EventType:         eventType,
		RawStatus:         status,
		CorrelationKeys:   correlation,
		TransactionHash:   firstString(root, "transactionHash", "txHash"),
		DestinationAmount: httpclient.Decimal(root.Get(amountPath)),
		FailureReason:     failure,
		Payload:           payload,
	}, nil
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := root.Get(p).String(); s != "" {
			return s
		}
	}
	return ""
}
