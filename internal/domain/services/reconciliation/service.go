package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/domain/repositories"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/infrastructure/cache"
	"github.com/cryptogate/gateway_service/pkg/logger"
	"github.com/cryptogate/gateway_service/pkg/metrics"
	"github.com/cryptogate/gateway_service/pkg/retry"
)

// OutcomeKind describes what a webhook did to the stored transaction
type OutcomeKind string

const (
	OutcomeApplied   OutcomeKind = "applied"
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeTerminal  OutcomeKind = "terminal"
	OutcomeNotFound  OutcomeKind = "not_found"
	OutcomeError     OutcomeKind = "error"
)

// Sources recorded on published events and poll results
const (
	SourceWebhook  = "webhook"
	SourcePoll     = "poll"
	SourceCache    = "cache"
	SourceProvider = "provider"
)

const (
	fallbackDatabase    = "database"
	fallbackPendingScan = "pending_scan"
)

// Outcome is the result of reconciling one webhook
type Outcome struct {
	Kind           OutcomeKind                `json:"outcome"`
	TransactionID  string                     `json:"transaction_id,omitempty"`
	PreviousStatus entities.TransactionStatus `json:"previous_status,omitempty"`
	Status         entities.TransactionStatus `json:"status,omitempty"`
	Fallback       string                     `json:"fallback,omitempty"`
}

// PollResult is what a status poll returns to the caller
type PollResult struct {
	Transaction *entities.CacheEntry `json:"transaction"`
	Source      string               `json:"source"`
}

// Config holds reconciliation timing
type Config struct {
	FreshnessWindow time.Duration
	PendingTimeout  time.Duration
	// LockRetry spaces out webhook attempts while another writer holds the entry
	LockRetry retry.RetryConfig
}

// StatsRefresher recomputes a user's rolled-up statistics
type StatsRefresher interface {
	RefreshStats(ctx context.Context, userID uuid.UUID)
}

// Publisher fans status changes out to other systems
type Publisher interface {
	PublishStatusChange(ctx context.Context, event entities.StatusChangedEvent) error
}

// Service applies provider status updates to the cache and database
type Service struct {
	store     *cache.TransactionStore
	repo      repositories.TransactionRepository
	stats     StatsRefresher
	publisher Publisher

	logger *logger.Logger
	config *Config
	now    func() time.Time
}

// NewService creates a new reconciliation service
func NewService(
	store *cache.TransactionStore,
	repo repositories.TransactionRepository,
	stats StatsRefresher,
	publisher Publisher,
	logger *logger.Logger,
	config *Config,
) *Service {
	if config == nil {
		config = &Config{}
	}
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = 2 * time.Minute
	}
	if config.PendingTimeout <= 0 {
		config.PendingTimeout = 30 * time.Minute
	}
	if config.LockRetry.MaxAttempts <= 0 {
		config.LockRetry = retry.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    time.Second,
			Multiplier:  2.0,
			Jitter:      true,
		}
	}
	return &Service{
		store:     store,
		repo:      repo,
		stats:     stats,
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyWebhook reconciles one parsed webhook. Correlation failures and
// terminal entries are reported through the outcome, not as errors.
func (s *Service) ApplyWebhook(ctx context.Context, p provider.Provider, event *entities.WebhookEvent) (*Outcome, error) {
	ctx, span := otel.Tracer("reconciliation.service").Start(ctx, "ApplyWebhook")
	defer span.End()

	name := p.Name()
	span.SetAttributes(
		attribute.String("provider", string(name)),
		attribute.String("raw_status", event.RawStatus),
	)

	outcome, err := s.applyWebhook(ctx, p, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.WebhooksTotal.WithLabelValues(name.Slug(), string(OutcomeError)).Inc()
		return nil, err
	}

	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	metrics.WebhooksTotal.WithLabelValues(name.Slug(), string(outcome.Kind)).Inc()
	return outcome, nil
}

func (s *Service) applyWebhook(ctx context.Context, p provider.Provider, event *entities.WebhookEvent) (*Outcome, error) {
	name := p.Name()

	if event.EventID != "" {
		claimed, err := s.store.ClaimEvent(ctx, name, event.EventID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			s.logger.Info("Duplicate webhook event ignored", "provider", name, "event_id", event.EventID)
			return &Outcome{Kind: OutcomeDuplicate}, nil
		}
	}

	var outcome *Outcome
	err := retry.WithExponentialBackoff(ctx, s.config.LockRetry, func() error {
		var err error
		outcome, err = s.reconcileEvent(ctx, p, event)
		return err
	}, func(err error) bool {
		return errors.Is(err, domainerrors.ErrEntryLocked)
	})
	if err != nil {
		// the webhook is acknowledged either way, so this event is lost
		// unless the provider resends it or the poller catches up
		s.logger.Error("Webhook event not applied",
			"provider", name,
			"event_id", event.EventID,
			"raw_status", event.RawStatus,
			"correlation_keys", event.CorrelationKeys,
			"error", err,
		)
		if event.EventID != "" {
			if relErr := s.store.ReleaseEvent(ctx, name, event.EventID); relErr != nil {
				s.logger.Warn("Failed to release webhook event claim", "provider", name, "event_id", event.EventID, "error", relErr)
			}
		}
		return nil, err
	}
	return outcome, nil
}

func (s *Service) reconcileEvent(ctx context.Context, p provider.Provider, event *entities.WebhookEvent) (*Outcome, error) {
	name := p.Name()
	status := p.MapStatus(event.RawStatus)

	entry, fallback, err := s.locate(ctx, p, event.CorrelationKeys)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		s.logger.Warn("Webhook could not be correlated to a transaction",
			"provider", name,
			"keys", event.CorrelationKeys,
			"raw_status", event.RawStatus,
		)
		return &Outcome{Kind: OutcomeNotFound, Status: status}, nil
	}

	payload := map[string]interface{}{"last_webhook": event.Payload}
	if event.EventID != "" {
		payload["last_event_id"] = event.EventID
	}
	update := entities.StatusUpdate{
		Status:            status,
		ProviderStatus:    event.RawStatus,
		TransactionHash:   event.TransactionHash,
		DestinationAmount: event.DestinationAmount,
		FailureReason:     event.FailureReason,
		ProviderData:      payload,
		Webhook:           true,
	}

	outcome, err := s.apply(ctx, entry, update, SourceWebhook)
	if err != nil {
		return nil, err
	}
	outcome.Fallback = fallback
	return outcome, nil
}

// locate resolves the cache entry for a set of correlation keys: cache,
// then database, then the provider's pending scan when it opted in.
func (s *Service) locate(ctx context.Context, p provider.Provider, keys []string) (*entities.CacheEntry, string, error) {
	name := p.Name()

	entry, err := s.store.Find(ctx, name, keys...)
	if err == nil {
		return entry, "", nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return nil, "", err
	}

	if s.repo != nil {
		for _, key := range keys {
			if key == "" {
				continue
			}
			record, err := s.repo.FindByProviderID(ctx, name, key)
			if err != nil {
				if domainerrors.IsNotFound(err) {
					continue
				}
				return nil, "", err
			}
			metrics.ReconciliationFallbackTotal.WithLabelValues(name.Slug(), fallbackDatabase).Inc()
			s.logger.Info("Webhook correlated from database", "provider", name, "transaction_id", record.TransactionID)
			return entryFromRecord(record, key), fallbackDatabase, nil
		}
	}

	if !provider.AllowsFallbackScan(p) {
		return nil, "", nil
	}

	pending, err := s.store.ScanPending(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if len(pending) == 0 {
		return nil, "", nil
	}
	metrics.ReconciliationFallbackTotal.WithLabelValues(name.Slug(), fallbackPendingScan).Inc()
	s.logger.Warn("Using pending-scan fallback to correlate webhook",
		"provider", name,
		"keys", keys,
		"candidates", len(pending),
		"matched", pending[0].TransactionID,
	)
	return pending[0], fallbackPendingScan, nil
}

// apply merges update into the entry under its lock and writes it through
// to the database when the transaction has a row.
func (s *Service) apply(ctx context.Context, entry *entities.CacheEntry, update entities.StatusUpdate, source string) (*Outcome, error) {
	unlock, err := s.store.Lock(ctx, entry.Key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// reload under the lock; a rebuilt entry may not be cached yet
	current, err := s.store.Get(ctx, entry.Key)
	switch {
	case err == nil:
		entry = current
	case !errors.Is(err, cache.ErrCacheMiss):
		return nil, err
	}

	previous := entry.Status
	outcome := &Outcome{TransactionID: entry.TransactionID, PreviousStatus: previous, Status: previous}
	if previous.IsTerminal() {
		s.logger.Info("Ignoring update for terminal transaction",
			"transaction_id", entry.TransactionID,
			"status", previous,
			"attempted", update.Status,
		)
		outcome.Kind = OutcomeTerminal
		return outcome, nil
	}

	if update.At.IsZero() {
		update.At = s.now()
	}
	if source == SourcePoll && update.Status == entities.TransactionStatusPending && s.timedOut(entry, update.At) {
		update.Status = entities.TransactionStatusTimeout
	}
	if !entry.Apply(update) {
		s.logger.Warn("Rejected status transition",
			"transaction_id", entry.TransactionID,
			"from", previous,
			"to", update.Status,
			"source", source,
		)
		outcome.Kind = OutcomeUnchanged
		return outcome, nil
	}
	outcome.Status = entry.Status

	if err := s.store.Save(ctx, entry); err != nil {
		return nil, err
	}

	changed := previous != entry.Status
	if err := s.writeThrough(ctx, entry, update); err != nil {
		return nil, err
	}

	if !changed {
		outcome.Kind = OutcomeUnchanged
		return outcome, nil
	}
	outcome.Kind = OutcomeApplied
	metrics.StatusTransitionsTotal.WithLabelValues(entry.Provider.Slug(), string(entry.Status)).Inc()

	s.logger.Info("Transaction status updated",
		"transaction_id", entry.TransactionID,
		"provider", entry.Provider,
		"from", previous,
		"to", entry.Status,
		"source", source,
	)

	if uid, err := uuid.Parse(entry.UserID); err == nil && entry.DBID != nil && s.stats != nil {
		s.stats.RefreshStats(ctx, uid)
	}
	s.publish(ctx, entry, previous, source)
	return outcome, nil
}

// writeThrough updates the database row linked to the entry. TIMEOUT only
// lives in the cache so the row is left alone.
func (s *Service) writeThrough(ctx context.Context, entry *entities.CacheEntry, update entities.StatusUpdate) error {
	if s.repo == nil || entry.Status == entities.TransactionStatusTimeout {
		return nil
	}
	if entry.DBID == nil {
		id, err := s.store.DBID(ctx, entry.TransactionID)
		if err != nil {
			// anonymous or cache-only transaction
			return nil
		}
		entry.DBID = &id
	}

	_, err := s.repo.UpdateStatus(ctx, *entry.DBID, update)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domainerrors.ErrTerminalStatus):
		s.logger.Warn("Database row already terminal", "transaction_id", entry.TransactionID, "db_id", *entry.DBID)
		return nil
	case domainerrors.IsNotFound(err):
		s.logger.Warn("Database row for cached transaction is missing", "transaction_id", entry.TransactionID, "db_id", *entry.DBID)
		return nil
	default:
		return fmt.Errorf("failed to update transaction %s: %w", entry.TransactionID, err)
	}
}

func (s *Service) publish(ctx context.Context, entry *entities.CacheEntry, previous entities.TransactionStatus, source string) {
	if s.publisher == nil {
		return
	}
	event := entities.StatusChangedEvent{
		TransactionID:         entry.TransactionID,
		Provider:              entry.Provider,
		ProviderTransactionID: entry.ProviderTransactionID,
		UserID:                entry.UserID,
		PreviousStatus:        previous,
		Status:                entry.Status,
		Source:                source,
		OccurredAt:            entry.UpdatedAt,
	}
	if err := s.publisher.PublishStatusChange(ctx, event); err != nil {
		s.logger.Error("Failed to publish status change", "transaction_id", entry.TransactionID, "error", err)
	}
}

func (s *Service) timedOut(entry *entities.CacheEntry, now time.Time) bool {
	if entry.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(entry.CreatedAt) > s.config.PendingTimeout
}

// Poll returns the current status of a provider transaction. Entries that
// are terminal, or had a webhook within the freshness window, are answered
// from the cache; otherwise the provider is asked. A transaction still
// PENDING past the pending timeout always goes to the provider and becomes
// TIMEOUT in the cache when the provider still reports it pending.
func (s *Service) Poll(ctx context.Context, p provider.Provider, providerTxID string) (*PollResult, error) {
	ctx, span := otel.Tracer("reconciliation.service").Start(ctx, "Poll")
	defer span.End()

	name := p.Name()
	span.SetAttributes(
		attribute.String("provider", string(name)),
		attribute.String("provider_transaction_id", providerTxID),
	)

	entry, err := s.store.Find(ctx, name, providerTxID)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return nil, err
	}
	if entry == nil && s.repo != nil {
		record, err := s.repo.FindByProviderID(ctx, name, providerTxID)
		if err != nil && !domainerrors.IsNotFound(err) {
			return nil, err
		}
		if record != nil {
			metrics.ReconciliationFallbackTotal.WithLabelValues(name.Slug(), fallbackDatabase).Inc()
			entry = entryFromRecord(record, providerTxID)
		}
	}

	now := s.now()
	if entry != nil && s.answerFromCache(entry, now) {
		span.SetAttributes(attribute.String("source", SourceCache))
		return &PollResult{Transaction: entry, Source: SourceCache}, nil
	}

	status, err := p.GetStatus(ctx, providerTxID)
	if errors.Is(err, domainerrors.ErrCapabilityUnsupported) {
		if entry == nil {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return s.pollFromCache(ctx, entry, now)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	update := entities.StatusUpdate{
		Status:            p.MapStatus(status.RawStatus),
		ProviderStatus:    status.RawStatus,
		TransactionHash:   status.TransactionHash,
		DestinationAmount: status.DestinationAmount,
		FailureReason:     status.FailureReason,
		At:                now,
	}
	if len(status.Raw) > 0 {
		update.ProviderData = map[string]interface{}{"last_status": status.Raw}
	}

	if entry == nil {
		// unknown to the gateway; report without storing
		return &PollResult{
			Transaction: &entities.CacheEntry{
				Provider:              name,
				ProviderTransactionID: providerTxID,
				Status:                update.Status,
				ProviderStatus:        update.ProviderStatus,
				TransactionHash:       update.TransactionHash,
				DestinationAmount:     update.DestinationAmount,
				UpdatedAt:             now,
			},
			Source: SourceProvider,
		}, nil
	}

	if _, err := s.apply(ctx, entry, update, SourcePoll); err != nil {
		return nil, err
	}
	updated, err := s.store.Get(ctx, entry.Key)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("source", SourceProvider), attribute.String("status", string(updated.Status)))
	return &PollResult{Transaction: updated, Source: SourceProvider}, nil
}

func (s *Service) answerFromCache(entry *entities.CacheEntry, now time.Time) bool {
	if entry.Status.IsTerminal() {
		return true
	}
	if entry.Status == entities.TransactionStatusPending && s.timedOut(entry, now) {
		return false
	}
	return entry.IsFresh(now, s.config.FreshnessWindow)
}

// pollFromCache answers for providers without a status endpoint, applying
// the pending timeout to the cached entry.
func (s *Service) pollFromCache(ctx context.Context, entry *entities.CacheEntry, now time.Time) (*PollResult, error) {
	if entry.Status != entities.TransactionStatusPending || !s.timedOut(entry, now) {
		return &PollResult{Transaction: entry, Source: SourceCache}, nil
	}
	update := entities.StatusUpdate{Status: entities.TransactionStatusPending, At: now}
	if _, err := s.apply(ctx, entry, update, SourcePoll); err != nil {
		return nil, err
	}
	updated, err := s.store.Get(ctx, entry.Key)
	if err != nil {
		return nil, err
	}
	return &PollResult{Transaction: updated, Source: SourceCache}, nil
}

// entryFromRecord rebuilds a cache entry from a database row
func entryFromRecord(r *entities.TransactionRecord, matchedKey string) *entities.CacheEntry {
	id := r.ID
	key := r.ProviderTransactionID
	if key == "" {
		key = matchedKey
	}
	entry := &entities.CacheEntry{
		Key:                   cache.EntryKey(r.Provider, key),
		TransactionID:         r.TransactionID,
		DBID:                  &id,
		Provider:              r.Provider,
		TransactionType:       r.TransactionType,
		Status:                r.Status,
		ProviderTransactionID: r.ProviderTransactionID,
		ProviderReferenceID:   r.ProviderReferenceID,
		SourceCurrency:        r.SourceCurrency,
		SourceAmount:          r.SourceAmount,
		DestinationCurrency:   r.DestinationCurrency,
		Network:               r.Network,
		WalletAddress:         r.WalletAddress,
		TransactionHash:       r.TransactionHash,
		PaymentMethod:         r.PaymentMethod,
		FailureReason:         r.FailureReason,
		ProviderData:          r.ProviderData,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		CompletedAt:           r.CompletedAt,
	}
	if r.UserID.Valid {
		entry.UserID = r.UserID.UUID.String()
	}
	if r.DestinationAmount.Valid {
		amt := r.DestinationAmount.Decimal
		entry.DestinationAmount = &amt
	}
	return entry
}
