// Package exolix adapts the Exolix swap API
package exolix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
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
	"wait":         entities.TransactionStatusPending,
	"confirmation": entities.TransactionStatusPending,
	"confirmed":    entities.TransactionStatusPending,
	"exchanging":   entities.TransactionStatusPending,
	"sending":      entities.TransactionStatusPending,
	"success":      entities.TransactionStatusCompleted,
	"overdue":      entities.TransactionStatusFailed,
	"refund":       entities.TransactionStatusFailed,
	"refunded":     entities.TransactionStatusFailed,
})

// Adapter implements provider.Provider for Exolix
type Adapter struct {
	client *Client
	parser *currency.Parser
	logger *logger.Logger
}

// NewAdapter creates an Exolix adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		client: NewClient(config, log),
		parser: currency.NewParser(currency.ExolixTable(), log.Zap()),
		logger: log,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderExolix }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

func rateType(fixed bool) string {
	if fixed {
		return "fixed"
	}
	return "float"
}

// Quote implements provider.Provider
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	from := a.ParseCurrency(req.SourceCurrency)
	to := a.ParseCurrency(req.DestinationCurrency)

	query := url.Values{
		"coinFrom":    {from.Coin},
		"networkFrom": {from.Network},
		"coinTo":      {to.Coin},
		"networkTo":   {to.Network},
		"amount":      {req.Amount.String()},
		"rateType":    {rateType(req.FixedRate)},
	}

	rate, raw, err := a.client.GetRate(ctx, query)
	if err != nil {
		return nil, a.upstream(err)
	}

	sourceAmount := req.Amount
	if rate.FromAmount.Valid {
		sourceAmount = rate.FromAmount.Decimal
	}

	return &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      strings.ToUpper(req.SourceCurrency),
		DestinationCurrency: strings.ToUpper(req.DestinationCurrency),
		SourceAmount:        sourceAmount,
		EstimatedAmount:     rate.ToAmount.Decimal,
		Rate:                rate.Rate.Decimal,
		Network:             to.Network,
		MinAmount:           httpclient.FromNull(rate.MinAmount),
		MaxAmount:           httpclient.FromNull(rate.MaxAmount),
		Raw:                 httpclient.RawMap(raw),
	}, nil
}

// upstream attaches the bounds Exolix reports alongside a rejected amount
func (a *Adapter) upstream(err error) error {
	wrapped := httpclient.Upstream(a.Name().Slug(), err)
	apiErr, ok := httpclient.AsAPIError(err)
	if !ok {
		return wrapped
	}
	lo := httpclient.Decimal(gjson.GetBytes(apiErr.Body, "minAmount"))
	hi := httpclient.Decimal(gjson.GetBytes(apiErr.Body, "maxAmount"))
	var de *domainerrors.DomainError
	if (lo != nil || hi != nil) && errors.As(wrapped, &de) {
		de.Details["amount_hint"] = &entities.AmountHint{MinAmount: lo, MaxAmount: hi}
	}
	return wrapped
}

func number(s string) *json.Number {
	n := json.Number(s)
	return &n
}

// CreateTransaction implements provider.Provider. Extra may carry
// "slippage" and "withdrawal_amount".
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	from := a.ParseCurrency(req.SourceCurrency)
	to := a.ParseCurrency(req.DestinationCurrency)

	body := &CreateRequest{
		CoinFrom:          from.Coin,
		NetworkFrom:       from.Network,
		CoinTo:            to.Coin,
		NetworkTo:         to.Network,
		Amount:            number(req.Amount.String()),
		WithdrawalAddress: req.WalletAddress,
		WithdrawalExtraID: req.ExtraID,
		RefundAddress:     req.RefundAddress,
		RateType:          rateType(req.FixedRate),
	}
	if v, ok := req.Extra["slippage"]; ok {
		body.Slippage = number(fmt.Sprint(v))
	}
	if v, ok := req.Extra["withdrawal_amount"]; ok {
		body.WithdrawalAmount = number(fmt.Sprint(v))
	}

	txn, raw, err := a.client.CreateTransaction(ctx, body)
	if err != nil {
		return nil, a.upstream(err)
	}

	sourceAmount := req.Amount
	if txn.Amount.Valid {
		sourceAmount = txn.Amount.Decimal
	}
	rawStatus := txn.Status
	if rawStatus == "" {
		rawStatus = "wait"
	}

	a.logger.Info("Exolix transaction created", "provider_transaction_id", txn.ID.String())

	return &entities.ProviderTransaction{
		ProviderTransactionID: txn.ID.String(),
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		DepositAddress:        txn.DepositAddress,
		DepositExtraID:        txn.DepositExtraID,
		SourceAmount:          sourceAmount,
		DestinationAmount:     httpclient.FromNull(txn.AmountTo),
		ExchangeRate:          httpclient.FromNull(txn.Rate),
		Network:               to.Network,
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// GetStatus implements provider.Provider
func (a *Adapter) GetStatus(ctx context.Context, providerTxID string) (*entities.ProviderStatus, error) {
	txn, raw, err := a.client.GetTransaction(ctx, providerTxID)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	status := &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             strings.ToLower(txn.Status),
		DestinationAmount:     httpclient.FromNull(txn.AmountTo),
		Raw:                   httpclient.RawMap(raw),
	}
	if txn.HashOut != nil {
		status.TransactionHash = txn.HashOut.Hash
	}
	return status, nil
}

// ListCurrencies implements provider.CurrencyLister. The first page of
// currencies is requested with networks attached.
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	page, err := a.client.GetCurrencies(ctx, url.Values{"page": {"1"}, "size": {"100"}, "withNetworks": {"true"}})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	out := make([]entities.Currency, 0, len(page.Data))
	for _, c := range page.Data {
		cur := entities.Currency{Code: c.Code, Name: c.Name, Icon: c.Icon, Available: true}
		for _, n := range c.Networks {
			cur.Networks = append(cur.Networks, toNetwork(n))
			if n.MemoNeeded {
				cur.HasExtra = true
			}
		}
		out = append(out, cur)
	}
	return out, nil
}

func toNetwork(n CurrencyNetwork) entities.Network {
	return entities.Network{
		Code:         n.Network,
		Name:         n.Name,
		AddressRegex: n.AddressRegex,
		MemoNeeded:   n.MemoNeeded,
	}
}

// CurrencyNetworks lists the chains one currency is available on
func (a *Adapter) CurrencyNetworks(ctx context.Context, code string) ([]entities.Network, error) {
	networks, err := a.client.GetCurrencyNetworks(ctx, code)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	out := make([]entities.Network, 0, len(networks))
	for _, n := range networks {
		out = append(out, toNetwork(n))
	}
	return out, nil
}

// Networks passes through the paged network listing
func (a *Adapter) Networks(ctx context.Context, query url.Values) (*Page, error) {
	page, err := a.client.GetNetworks(ctx, pageQuery(query, "page", "size", "search"))
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return page, nil
}

// Transactions passes through the partner transaction history
func (a *Adapter) Transactions(ctx context.Context, query url.Values) (*Page, error) {
	if !a.client.HasAPIKey() {
		return nil, domainerrors.ForbiddenError("Exolix API key not configured, transaction history requires authorization")
	}
	page, err := a.client.ListTransactions(ctx, pageQuery(query, "page", "size", "search", "sort", "order", "dateFrom", "dateTo", "statuses"))
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}
	return page, nil
}

// pageQuery copies the allowed, non-empty keys of in
func pageQuery(in url.Values, keys ...string) url.Values {
	out := url.Values{}
	for _, k := range keys {
		if v := in.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}
