package transaction

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/repositories"
	"github.com/cryptogate/gateway_service/internal/infrastructure/cache"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultRecent     = 10
	maxRecent         = 50
	maxExportRows     = 10000
	statisticsHistory = 180 * 24 * time.Hour
)

// Config controls which transactions get a database row
type Config struct {
	PersistAnonymous bool
}

// Service records created transactions and serves the user history
type Service struct {
	repo   repositories.TransactionRepository
	stats  repositories.StatsRepository
	store  *cache.TransactionStore
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new transaction service
func NewService(repo repositories.TransactionRepository, stats repositories.StatsRepository, store *cache.TransactionStore, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		stats:  stats,
		store:  store,
		config: config,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewTransactionID derives the gateway transaction id
// txn_<provider>_<first 16 hex chars of md5(user_provider_millis_src_dst)>
func NewTransactionID(provider entities.Provider, userRef, src, dst string, now time.Time) string {
	unique := fmt.Sprintf("%s_%s_%d_%s_%s", userRef, provider, now.UnixMilli(), src, dst)
	sum := md5.Sum([]byte(unique))
	return fmt.Sprintf("txn_%s_%s", provider.Slug(), hex.EncodeToString(sum[:])[:16])
}

// RecordInput is everything known right after a provider create call
type RecordInput struct {
	Provider entities.Provider
	UserID   string
	Request  *entities.CreateTransactionRequest
	Result   *entities.ProviderTransaction
	// FallbackKey keys the cache entry when the provider returned no id
	FallbackKey string
}

// ShouldPersist reports whether a create by userID gets a database row
func (s *Service) ShouldPersist(userID string) bool {
	return userID != "" || s.config.PersistAnonymous
}

func parseUser(userID string) uuid.NullUUID {
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

// Record writes the cache entry for a new transaction and, when the caller
// qualifies, the database row. The entry carries the row id so later
// reconciliation can update both.
func (s *Service) Record(ctx context.Context, in RecordInput) (*entities.TransactionHandle, error) {
	if in.Request == nil || in.Result == nil {
		return nil, fmt.Errorf("record %s transaction: missing request or result", in.Provider)
	}
	now := s.now()
	req, res := in.Request, in.Result

	userRef := in.UserID
	if userRef == "" {
		userRef = "anonymous"
	}
	txnID := NewTransactionID(in.Provider, userRef, req.SourceCurrency, req.DestinationCurrency, now)

	providerKey := res.ProviderTransactionID
	if providerKey == "" {
		providerKey = in.FallbackKey
	}
	if providerKey == "" {
		providerKey = txnID
	}

	status := res.Status
	if status == "" {
		status = entities.TransactionStatusPending
	}
	sourceAmount := res.SourceAmount
	if sourceAmount.IsZero() {
		sourceAmount = req.Amount
	}
	network := res.Network
	if network == "" {
		network = req.Network
	}

	providerData := entities.JSONMap{"create": res.Raw}
	if res.RedirectURL != "" {
		providerData["redirect_url"] = res.RedirectURL
	}
	if res.DepositAddress != "" {
		providerData["deposit_address"] = res.DepositAddress
	}
	if res.DepositExtraID != "" {
		providerData["deposit_extra_id"] = res.DepositExtraID
	}
	for name, fee := range map[string]*decimal.Decimal{
		"network_fee":     res.Fees.NetworkFee,
		"transaction_fee": res.Fees.TransactionFee,
		"partner_fee":     res.Fees.PartnerFee,
	} {
		if fee != nil {
			providerData[name] = fee.String()
		}
	}

	entry := &entities.CacheEntry{
		Key:                   cache.EntryKey(in.Provider, providerKey),
		TransactionID:         txnID,
		UserID:                in.UserID,
		Provider:              in.Provider,
		TransactionType:       req.Action,
		Status:                status,
		ProviderStatus:        res.RawStatus,
		ProviderTransactionID: res.ProviderTransactionID,
		ProviderReferenceID:   res.ProviderReferenceID,
		SourceCurrency:        req.SourceCurrency,
		SourceAmount:          sourceAmount,
		DestinationCurrency:   req.DestinationCurrency,
		DestinationAmount:     res.DestinationAmount,
		Network:               network,
		WalletAddress:         req.WalletAddress,
		PaymentMethod:         req.PaymentMethod,
		ProviderData:          providerData,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	handle := &entities.TransactionHandle{TransactionID: txnID, CacheKey: entry.Key}

	if s.ShouldPersist(in.UserID) {
		record := &entities.TransactionRecord{
			TransactionID:         txnID,
			UserID:                parseUser(in.UserID),
			Provider:              in.Provider,
			TransactionType:       req.Action,
			Status:                persistable(status),
			SourceCurrency:        req.SourceCurrency,
			SourceAmount:          sourceAmount,
			DestinationCurrency:   req.DestinationCurrency,
			TotalFees:             res.Fees.Total(),
			ProviderTransactionID: res.ProviderTransactionID,
			ProviderReferenceID:   res.ProviderReferenceID,
			Network:               network,
			WalletAddress:         req.WalletAddress,
			PaymentMethod:         req.PaymentMethod,
			ProviderData:          providerData,
		}
		if res.DestinationAmount != nil {
			record.DestinationAmount = decimal.NullDecimal{Decimal: *res.DestinationAmount, Valid: true}
		}
		if res.ExchangeRate != nil {
			record.ExchangeRate = decimal.NullDecimal{Decimal: *res.ExchangeRate, Valid: true}
		}

		if err := s.repo.Create(ctx, record); err != nil {
			// the upstream transaction exists regardless; keep going cache-only
			s.logger.Error("Failed to persist transaction, continuing cache-only",
				zap.String("transaction_id", txnID),
				zap.String("provider", string(in.Provider)),
				zap.Error(err))
		} else {
			id := record.ID
			entry.DBID = &id
			handle.DBID = &id
			handle.Persisted = true
			if err := s.store.SetDBID(ctx, txnID, id); err != nil {
				s.logger.Warn("Failed to cache db id", zap.String("transaction_id", txnID), zap.Error(err))
			}
			if record.UserID.Valid {
				s.refreshStats(ctx, record.UserID.UUID)
			}
		}
	}

	if err := s.store.Save(ctx, entry); err != nil {
		return handle, fmt.Errorf("failed to cache %s transaction %s: %w", in.Provider, txnID, err)
	}

	aliases := []string{txnID}
	if res.ProviderReferenceID != "" && res.ProviderReferenceID != providerKey {
		aliases = append(aliases, res.ProviderReferenceID)
	}
	if in.FallbackKey != "" && in.FallbackKey != providerKey {
		aliases = append(aliases, in.FallbackKey)
	}
	for _, alias := range aliases {
		if err := s.store.Alias(ctx, in.Provider, alias, entry.Key); err != nil {
			s.logger.Warn("Failed to write cache alias", zap.String("alias", alias), zap.Error(err))
		}
	}

	s.logger.Info("Transaction recorded",
		zap.String("transaction_id", txnID),
		zap.String("provider", string(in.Provider)),
		zap.String("cache_key", entry.Key),
		zap.Bool("persisted", handle.Persisted))

	return handle, nil
}

// persistable maps statuses the database does not store back to PENDING
func persistable(status entities.TransactionStatus) entities.TransactionStatus {
	if status.IsValid() {
		return status
	}
	return entities.TransactionStatusPending
}

func (s *Service) refreshStats(ctx context.Context, userID uuid.UUID) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Refresh(ctx, userID); err != nil {
		s.logger.Warn("Failed to refresh transaction stats", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// RefreshStats recomputes the rollup for a user
func (s *Service) RefreshStats(ctx context.Context, userID uuid.UUID) {
	s.refreshStats(ctx, userID)
}

// normalizeFilter upper-cases enum filters and validates them
func normalizeFilter(f *entities.TransactionFilter) error {
	if f.Provider != "" {
		p, err := entities.ParseProvider(string(f.Provider))
		if err != nil {
			return domainerrors.ValidationError("provider", err.Error())
		}
		f.Provider = p
	}
	if f.TransactionType != "" {
		f.TransactionType = entities.TransactionType(strings.ToUpper(string(f.TransactionType)))
		if !f.TransactionType.IsValid() {
			return domainerrors.ValidationError("type", "must be one of BUY, SELL, SWAP")
		}
	}
	if f.Status != "" {
		f.Status = entities.TransactionStatus(strings.ToUpper(string(f.Status)))
		if !f.Status.IsValid() {
			return domainerrors.ValidationError("status", "unknown status")
		}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return domainerrors.ValidationError("date_to", "must not be before date_from")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return nil
}

// List returns one page of the user's history
func (s *Service) List(ctx context.Context, filter entities.TransactionFilter) (*entities.TransactionPage, error) {
	if err := normalizeFilter(&filter); err != nil {
		return nil, err
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	pages := (total + filter.PageSize - 1) / filter.PageSize
	return &entities.TransactionPage{
		Count:        total,
		TotalPages:   pages,
		CurrentPage:  filter.Page,
		PageSize:     filter.PageSize,
		HasNext:      filter.Page < pages,
		HasPrevious:  filter.Page > 1,
		Transactions: records,
	}, nil
}

// Get returns one of the user's transactions. Other users' transactions
// are reported as not found.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, transactionID string) (*entities.TransactionRecord, error) {
	record, err := s.repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !record.UserID.Valid || record.UserID.UUID != userID {
		return nil, domainerrors.NotFoundError("transaction")
	}
	return record, nil
}

// Statistics refreshes the rollup and returns it with provider and monthly
// breakdowns for the last six months
func (s *Service) Statistics(ctx context.Context, userID uuid.UUID) (*entities.TransactionStatistics, error) {
	s.refreshStats(ctx, userID)

	out, err := s.repo.Stats(ctx, userID, s.now().Add(-statisticsHistory))
	if err != nil {
		return nil, err
	}
	if s.stats != nil {
		if stored, err := s.stats.Get(ctx, userID); err == nil {
			out.LastTransactionAt = stored.LastTransactionAt
			out.UpdatedAt = stored.UpdatedAt
		}
	}
	return out, nil
}

// QuickStats returns the lightweight dashboard summary
func (s *Service) QuickStats(ctx context.Context, userID uuid.UUID) (*entities.QuickStats, error) {
	return s.repo.QuickStats(ctx, userID)
}

// Recent returns the user's newest transactions, at most 50
func (s *Service) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.TransactionRecord, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	records, _, err := s.repo.List(ctx, entities.TransactionFilter{
		UserID:   userID,
		Ordering: "-created_at",
		Page:     1,
		PageSize: limit,
	})
	return records, err
}

// ExportRecords returns every transaction of the user, newest first
func (s *Service) ExportRecords(ctx context.Context, userID uuid.UUID) ([]*entities.TransactionRecord, error) {
	var out []*entities.TransactionRecord
	for page := 1; len(out) < maxExportRows; page++ {
		records, total, err := s.repo.List(ctx, entities.TransactionFilter{
			UserID:   userID,
			Ordering: "-created_at",
			Page:     page,
			PageSize: maxPageSize,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
		if len(records) < maxPageSize || len(out) >= total {
			break
		}
	}
	if len(out) > maxExportRows {
		out = out[:maxExportRows]
	}
	return out, nil
}
