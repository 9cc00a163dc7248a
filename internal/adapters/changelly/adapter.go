// Package changelly adapts the Changelly v2 JSON-RPC API
package changelly

import (
	"context"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"new":        entities.TransactionStatusPending,
	"waiting":    entities.TransactionStatusPending,
	"confirming": entities.TransactionStatusPending,
	"exchanging": entities.TransactionStatusPending,
	"sending":    entities.TransactionStatusPending,
	"hold":       entities.TransactionStatusPending,
	"finished":   entities.TransactionStatusCompleted,
	"failed":     entities.TransactionStatusFailed,
	"refunded":   entities.TransactionStatusFailed,
	"overdue":    entities.TransactionStatusFailed,
	"expired":    entities.TransactionStatusExpired,
})

// Adapter implements provider.Provider for Changelly
type Adapter struct {
	client *Client
	parser *currency.Parser
	logger *logger.Logger
}

// NewAdapter creates a Changelly adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		client: NewClient(config, log),
		parser: currency.NewParser(currency.ChangellyTable(), log.Zap()),
		logger: log,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderChangelly }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// ticker returns the code Changelly expects. Changelly tickers already
// encode the chain (usdtrx, usdt20), so the code is sent as is.
func ticker(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// upstream converts RPC errors into upstream domain errors carrying the
// limits Changelly reports for rejected amounts
func (a *Adapter) upstream(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return httpclient.Upstream(a.Name().Slug(), err)
	}

	de := domainerrors.UpstreamError(a.Name().Slug(), 0, err)
	de.Retryable = false
	de.Details["rpc_code"] = rpcErr.Code

	limits := gjson.GetBytes(rpcErr.Data, "limits")
	if limits.Exists() {
		hint := &entities.AmountHint{
			MinAmount: httpclient.Decimal(limits.Get("min.from")),
			MaxAmount: httpclient.Decimal(limits.Get("max.from")),
		}
		if hint.MinAmount != nil || hint.MaxAmount != nil {
			de.Details["amount_hint"] = hint
			return de
		}
	}
	if hint := httpclient.ScrapeHint(a.Name().Slug(), rpcErr.Message); hint != nil {
		de.Details["amount_hint"] = hint
	}
	return de
}

func floatingOnly(fixed bool) error {
	if fixed {
		return domainerrors.ValidationError("fixed_rate", "changelly supports floating-rate exchanges only")
	}
	return nil
}

// Quote implements provider.Provider
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	if err := floatingOnly(req.FixedRate); err != nil {
		return nil, err
	}

	est, raw, err := a.client.GetExchangeAmount(ctx, PairParams{
		From:       ticker(req.SourceCurrency),
		To:         ticker(req.DestinationCurrency),
		AmountFrom: req.Amount.String(),
	})
	if err != nil {
		return nil, a.upstream(err)
	}

	quote := &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SourceAmount:        req.Amount,
		EstimatedAmount:     est.AmountTo.Decimal,
		Rate:                est.Rate.Decimal,
		Fees: entities.Fees{
			NetworkFee:     httpclient.FromNull(est.NetworkFee),
			TransactionFee: httpclient.FromNull(est.Fee),
		},
		Network:   a.ParseCurrency(req.DestinationCurrency).Network,
		MinAmount: httpclient.FromNull(est.MinFrom),
		MaxAmount: httpclient.FromNull(est.MaxFrom),
		Raw:       httpclient.RawMap(raw),
	}
	if quote.MinAmount == nil {
		quote.MinAmount = httpclient.FromNull(est.Min)
	}
	if quote.MaxAmount == nil {
		quote.MaxAmount = httpclient.FromNull(est.Max)
	}
	return quote, nil
}

// CreateTransaction implements provider.Provider
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	if err := floatingOnly(req.FixedRate); err != nil {
		return nil, err
	}

	txn, raw, err := a.client.CreateTransaction(ctx, &CreateParams{
		From:          ticker(req.SourceCurrency),
		To:            ticker(req.DestinationCurrency),
		Address:       req.WalletAddress,
		ExtraID:       req.ExtraID,
		AmountFrom:    req.Amount.String(),
		RefundAddress: req.RefundAddress,
	})
	if err != nil {
		return nil, a.upstream(err)
	}

	rawStatus := txn.Status
	if rawStatus == "" {
		rawStatus = "new"
	}
	sourceAmount := req.Amount
	if txn.AmountExpectedFrom.Valid {
		sourceAmount = txn.AmountExpectedFrom.Decimal
	}

	a.logger.Info("Changelly transaction created", "provider_transaction_id", txn.ID)

	out := &entities.ProviderTransaction{
		ProviderTransactionID: txn.ID,
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		DepositAddress:        txn.PayinAddress,
		DepositExtraID:        txn.PayinExtraID,
		RedirectURL:           txn.TrackURL,
		SourceAmount:          sourceAmount,
		DestinationAmount:     httpclient.FromNull(txn.AmountExpectedTo),
		Fees:                  entities.Fees{NetworkFee: httpclient.FromNull(txn.NetworkFee)},
		Network:               a.ParseCurrency(req.DestinationCurrency).Network,
		Raw:                   httpclient.RawMap(raw),
	}
	if txn.AmountExpectedTo.Valid && !sourceAmount.IsZero() {
		rate := txn.AmountExpectedTo.Decimal.DivRound(sourceAmount, 18)
		out.ExchangeRate = &rate
	}
	return out, nil
}

// GetStatus implements provider.Provider. getStatus only reports the
// status string.
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	status, err := a.client.GetStatus(ctx, providerTxID)
	if err != nil {
		return nil, a.upstream(err)
	}
	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             status,
		Raw:                   map[string]interface{}{"status": status},
	}, nil
}

// ListCurrencies implements provider.CurrencyLister
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	rows, err := a.client.GetCurrenciesFull(ctx)
	if err != nil {
		return nil, a.upstream(err)
	}
	out := make([]entities.Currency, 0, len(rows))
	for _, r := range rows {
		code := r.Ticker
		if code == "" {
			code = r.Name
		}
		out = append(out, entities.Currency{
			Code:      code,
			Name:      r.FullName,
			Network:   r.Blockchain,
			Icon:      r.Image,
			HasExtra:  r.ExtraIDName != "",
			Available: r.Enabled,
			Networks: []entities.Network{{
				Code:       r.Blockchain,
				Name:       r.Protocol,
				MemoNeeded: r.ExtraIDName != "",
			}},
		})
	}
	return out, nil
}

// GetLimits implements provider.LimitsProvider with the floating-rate bounds
func (a *Adapter) GetLimits(ctx context.Context, req *entities.LimitsRequest) (*entities.Limits, error) {
	params, err := a.client.GetPairsParams(ctx, ticker(req.SourceCurrency), ticker(req.DestinationCurrency))
	if err != nil {
		return nil, a.upstream(err)
	}
	return &entities.Limits{
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		MinAmount:           httpclient.FromNull(params.MinAmountFloat),
		MaxAmount:           httpclient.FromNull(params.MaxAmountFloat),
	}, nil
}
