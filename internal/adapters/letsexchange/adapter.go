// Package letsexchange adapts the LetsExchange swap API
package letsexchange

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/cryptogate/gateway_service/internal/adapters/httpclient"
	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/services/currency"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

var statuses = provider.NewStatusMap(map[string]entities.TransactionStatus{
	"wait":                 entities.TransactionStatusPending,
	"confirmation":         entities.TransactionStatusPending,
	"confirmed":            entities.TransactionStatusPending,
	"exchanging":           entities.TransactionStatusPending,
	"sending":              entities.TransactionStatusPending,
	"sending_confirmation": entities.TransactionStatusPending,
	"success":              entities.TransactionStatusCompleted,
	"aml_check_failed":     entities.TransactionStatusFailed,
	"overdue":              entities.TransactionStatusFailed,
	"error":                entities.TransactionStatusFailed,
	"refund":               entities.TransactionStatusFailed,
})

// Adapter implements provider.Provider for LetsExchange
type Adapter struct {
	client      *Client
	parser      *currency.Parser
	affiliateID string
	logger      *logger.Logger
}

// NewAdapter creates a LetsExchange adapter
func NewAdapter(config Config, log *logger.Logger) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Adapter{
		client:      NewClient(config, log),
		parser:      currency.NewParser(currency.LetsExchangeTable(), log.Zap()),
		affiliateID: config.AffiliateID,
		logger:      log,
	}
}

// Name implements provider.Provider
func (a *Adapter) Name() entities.Provider { return entities.ProviderLetsExchange }

// ParseCurrency implements provider.Provider
func (a *Adapter) ParseCurrency(code string) currency.Pair { return a.parser.Parse(code) }

// MapStatus implements provider.Provider
func (a *Adapter) MapStatus(raw string) entities.TransactionStatus { return statuses.Map(raw) }

// Quote implements provider.Provider
func (a *Adapter) Quote(ctx context.Context, req *entities.QuoteRequest) (*entities.Quote, error) {
	from := a.ParseCurrency(req.SourceCurrency)
	to := a.ParseCurrency(req.DestinationCurrency)

	info, raw, err := a.client.GetInfo(ctx, &InfoRequest{
		From:        from.Coin,
		To:          to.Coin,
		NetworkFrom: from.Network,
		NetworkTo:   to.Network,
		Amount:      json.Number(req.Amount.String()),
		Float:       !req.FixedRate,
		AffiliateID: a.affiliateID,
	})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	return &entities.Quote{
		Provider:            a.Name(),
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SourceAmount:        req.Amount,
		EstimatedAmount:     info.Amount.Decimal,
		Rate:                info.Rate.Decimal,
		Fees:                entities.Fees{NetworkFee: httpclient.FromNull(info.WithdrawalFee)},
		Network:             to.Network,
		MinAmount:           httpclient.FromNull(info.MinAmount),
		MaxAmount:           httpclient.FromNull(info.MaxAmount),
		RateID:              info.RateID,
		ValidUntil:          httpclient.Timestamp(gjson.ParseBytes(info.RateIDExpiredAt)),
		Raw:                 httpclient.RawMap(raw),
	}, nil
}

// CreateTransaction implements provider.Provider. A fixed-rate exchange
// must carry the rate_id returned by the quote.
func (a *Adapter) CreateTransaction(ctx context.Context, req *entities.CreateTransactionRequest) (*entities.ProviderTransaction, error) {
	if req.FixedRate && req.RateID == "" {
		return nil, domainerrors.ValidationError("rate_id", "rate_id is required for fixed-rate exchanges")
	}

	from := a.ParseCurrency(req.SourceCurrency)
	to := a.ParseCurrency(req.DestinationCurrency)

	txn, raw, err := a.client.CreateTransaction(ctx, &CreateRequest{
		Float:             !req.FixedRate,
		CoinFrom:          from.Coin,
		CoinTo:            to.Coin,
		NetworkFrom:       from.Network,
		NetworkTo:         to.Network,
		DepositAmount:     json.Number(req.Amount.String()),
		Withdrawal:        req.WalletAddress,
		WithdrawalExtraID: req.ExtraID,
		AffiliateID:       a.affiliateID,
		Return:            req.RefundAddress,
		RateID:            req.RateID,
	})
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	sourceAmount := req.Amount
	if txn.DepositAmount.Valid {
		sourceAmount = txn.DepositAmount.Decimal
	}
	rawStatus := txn.Status
	if rawStatus == "" {
		rawStatus = "wait"
	}

	a.logger.Info("LetsExchange transaction created", "provider_transaction_id", txn.TransactionID.String())

	return &entities.ProviderTransaction{
		ProviderTransactionID: txn.TransactionID.String(),
		RawStatus:             rawStatus,
		Status:                a.MapStatus(rawStatus),
		DepositAddress:        txn.Deposit,
		DepositExtraID:        txn.DepositExtraID,
		SourceAmount:          sourceAmount,
		DestinationAmount:     httpclient.FromNull(txn.WithdrawalAmount),
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
	return &entities.ProviderStatus{
		ProviderTransactionID: providerTxID,
		RawStatus:             txn.Status,
		TransactionHash:       txn.HashOut,
		DestinationAmount:     httpclient.FromNull(txn.WithdrawalAmount),
		Raw:                   httpclient.RawMap(raw),
	}, nil
}

// ListCurrencies implements provider.CurrencyLister
func (a *Adapter) ListCurrencies(ctx context.Context) ([]entities.Currency, error) {
	coins, err := a.client.GetCoins(ctx)
	if err != nil {
		return nil, httpclient.Upstream(a.Name().Slug(), err)
	}

	out := make([]entities.Currency, 0, len(coins))
	for _, coin := range coins {
		c := entities.Currency{
			Code:      coin.Code,
			Name:      coin.Name,
			Icon:      coin.Icon,
			Available: coin.IsActive == nil || *coin.IsActive,
		}
		for _, n := range coin.Networks {
			c.Networks = append(c.Networks, entities.Network{
				Code:         n.Code,
				Name:         n.Name,
				AddressRegex: n.Validation,
				MemoNeeded:   n.HasExtra,
			})
			if n.HasExtra {
				c.HasExtra = true
			}
		}
		out = append(out, c)
	}
	return out, nil
}
