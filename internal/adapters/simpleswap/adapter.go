// Package simpleswap adapts the SimpleSwap v3 API
package simpleswap

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"waiting":    entities.TransactionStatusPending,
	"confirming": entities.TransactionStatusPending,
	"exchanging": entities.TransactionStatusPending,
	"sending":    entities.TransactionStatusPending,
	"finished":   entities.TransactionStatusCompleted,
	"failed":     entities.TransactionStatusFailed,
	"refunded":   entities.TransactionStatusFailed,
	"expired":    entities.TransactionStatusExpired,
})

// Adapter implements provider.Provider for SimpleSwap
type Adapter struct {
	client *Client
	parser *currency.Parser
	logger *logger.Logger
}

// NewAdapter creates a SimpleSwap adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		client: NewClient(config, log),
		parser: currency.NewParser(currency.SimpleSwapTable(), log.Zap()),
		logger: log,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderSimpleSwap }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

func (a *Adapter) pairQuery(src, dst string, fixed bool) url.Values {
	from := a.ParseCurrency(src)
	to := a.ParseCurrency(dst)
	return url.Values{
		"fixed":       {strconv.FormatBool(fixed)},
		"tickerFrom":  {from.Coin},
		"tickerTo":    {to.Coin},
		"networkFrom": {from.Network},
		"networkTo":   {to.Network},
		"reverse":     {"false"},
	}
}

// Quote implements provider.Provider. SimpleSwap reports no rate, so it is
// derived from the estimate. Range lookup failures only drop the bounds.
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	query := a.pairQuery(req.SourceCurrency, req.DestinationCurrency, req.FixedRate)

	estQuery := url.Values{}
	for k, v := range query {
		estQuery[k] = v
	}
	estQuery.Set("amount", req.Amount.String())

	est, raw, err := a.client.GetEstimate(ctx, estQuery)
	if err != nil {
		return nil, httpclient.UpstreamWithHint(a.Name().Slug(), err)
	}

	quote := &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SourceAmount:        req.Amount,
		EstimatedAmount:     est.EstimatedAmount.Decimal,
		Network:             query.Get("networkTo"),
		RateID:              est.RateID,
		ValidUntil:          httpclient.Timestamp(gjson.Result{Type: gjson.String, Str: est.ValidUntil}),
		Raw:                 httpclient.RawMap(raw),
	}
	if est.EstimatedAmount.Valid && !req.Amount.IsZero() {
		quote.Rate = est.EstimatedAmount.Decimal.DivRound(req.Amount, 18)
	}

	rng, err := a.client.GetRange(ctx, query)
	if err != nil {
		a.logger.Warn("SimpleSwap range lookup failed", "error", err)
	} else {
		quote.MinAmount = httpclient.FromNull(rng.Min)
		quote.MaxAmount = httpclient.FromNull(rng.Max)
	}
	return quote, nil
}

// CreateTransaction implements provider.Provider
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	if req.FixedRate && req.RateID == "" {
		return nil, domainerrors.ValidationError("rate_id", "rate_id is required for fixed-rate exchanges")
	}

	from := a.ParseCurrency(req.SourceCurrency)
	to := a.ParseCurrency(req.DestinationCurrency)

	ex, raw, err := a.client.CreateExchange(ctx, &CreateRequest{
		Fixed:             req.FixedRate,
		TickerFrom:        from.Coin,
		TickerTo:          to.Coin,
		Amount:            req.Amount.String(),
		NetworkFrom:       from.Network,
		NetworkTo:         to.Network,
		AddressTo:         req.WalletAddress,
		ExtraIDTo:         req.ExtraID,
		UserRefundAddress: req.RefundAddress,
		RateID:            req.RateID,
	})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	sourceAmount := req.Amount
	if ex.AmountFrom.Valid {
		sourceAmount = ex.AmountFrom.Decimal
	}
	rawStatus := ex.Status
	if rawStatus == "" {
		rawStatus = "waiting"
	}

	a.logger.Info("SimpleSwap exchange created", "provider_transaction_id", ex.PublicID)

	out := &entities.ProviderTransaction{
		ProviderTransactionID: ex.PublicID,
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		DepositAddress:        ex.AddressFrom,
		DepositExtraID:        ex.ExtraIDFrom,
		SourceAmount:          sourceAmount,
		DestinationAmount:     httpclient.FromNull(ex.AmountTo),
		Network:               to.Network,
		Raw:                   httpclient.RawMap(raw),
	}
	if ex.AmountTo.Valid && !sourceAmount.IsZero() {
		rate := ex.AmountTo.Decimal.DivRound(sourceAmount, 18)
		out.ExchangeRate = &rate
	}
	return out, nil
}

// GetStatus implements provider.Provider
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	ex, raw, err := a.client.GetExchange(ctx, providerTxID)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             ex.Status,
		TransactionHash:       ex.TxTo,
		DestinationAmount:     httpclient.FromNull(ex.AmountTo),
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// ListCurrencies implements provider.CurrencyLister
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	rows, err := a.client.GetCurrencies(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.Currency, 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.Currency{
			Code:      r.Ticker,
			Name:      r.Name,
			Network:   r.Network,
			IsFiat:    r.IsFiat,
			Icon:      r.Image,
			HasExtra:  r.HasExtraID,
			Available: true,
			Networks: []entities.Network{{
				Code:         r.Network,
				AddressRegex: r.ValidationAddr,
				MemoNeeded:   r.HasExtraID,
			}},
		})
	}
	return out, nil
}

// GetLimits implements provider.LimitsProvider
func (a *Adapter) GetLimits(ctx context.Context, req *entities.LimitsRequest) (*entities.Limits, error) {
	rng, err := a.client.GetRange(ctx, a.pairQuery(req.SourceCurrency, req.DestinationCurrency, false))
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return &entities.Limits{
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		MinAmount:           httpclient.FromNull(rng.Min),
		MaxAmount:           httpclient.FromNull(rng.Max),
	}, nil
}

// Pairs returns the tradable pair map as SimpleSwap reports it
func (a *Adapter) Pairs(ctx context.Context, fixed bool) (json.RawMessage, error) {
	raw, err := a.client.GetPairs(ctx, fixed)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return raw, nil
}
