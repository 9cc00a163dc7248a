// Package status_poller periodically polls providers for in-flight
// transactions that no webhook has touched recently.
package status_poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/internal/domain/services/provider"
	"github.com/cryptogate/gateway_service/internal/domain/services/reconciliation"
	"github.com/cryptogate/gateway_service/pkg/logger"
)

// TransactionRepository lists the rows worth polling
type TransactionRepository interface {
	ListPendingOlderThan(ctx context.Context, before, notBefore time.Time, limit int) ([]*entities.TransactionRecord, error)
}

// Poller refreshes one transaction from its provider
type Poller interface {
	Poll(ctx context.Context, p provider.Provider, providerTxID string) (*reconciliation.PollResult, error)
}

// Providers resolves the adapter for a record
type Providers interface {
	Get(name entities.Provider) (provider.Provider, error)
}

// Config holds worker configuration
type Config struct {
	Schedule        string
	BatchSize       int
	MaxConcurrency  int
	MaxAge          time.Duration
	FreshnessWindow time.Duration
	RunTimeout      time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Schedule:        "@every 1m",
		BatchSize:       100,
		MaxConcurrency:  8,
		MaxAge:          24 * time.Hour,
		FreshnessWindow: 2 * time.Minute,
		RunTimeout:      5 * time.Minute,
	}
}

// RunSummary is what one pass did
type RunSummary struct {
	Candidates int
	Polled     int
	Changed    int
	Skipped    int
	Failed     int
}

// Worker polls stale in-flight transactions on a cron schedule
type Worker struct {
	config    Config
	repo      TransactionRepository
	poller    Poller
	providers Providers
	logger    *logger.Logger
	cron      *cron.Cron
	now       func() time.Time

	runsCounter       metric.Int64Counter
	polledCounter     metric.Int64Counter
	failedCounter     metric.Int64Counter
	durationHistogram metric.Float64Histogram

	mu      sync.Mutex
	running bool
}

// NewWorker creates a new status poller
func NewWorker(config Config, repo TransactionRepository, poller Poller, providers Providers, logger *logger.Logger) (*Worker, error) {
	def := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = def.FreshnessWindow
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = def.RunTimeout
	}

	meter := otel.Meter("status-poller")

	runsCounter, err := meter.Int64Counter(
		"status_poller.runs.total",
		metric.WithDescription("Total number of status poller runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	polledCounter, err := meter.Int64Counter(
		"status_poller.polled.total",
		metric.WithDescription("Transactions polled from providers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create polled counter: %w", err)
	}

	failedCounter, err := meter.Int64Counter(
		"status_poller.failed.total",
		metric.WithDescription("Polls that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	durationHistogram, err := meter.Float64Histogram(
		"status_poller.duration.seconds",
		metric.WithDescription("Status poller run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Worker{
		config:            config,
		repo:              repo,
		poller:            poller,
		providers:         providers,
		logger:            logger,
		cron:              cron.New(),
		now:               func() time.Time { return time.Now().UTC() },
		runsCounter:       runsCounter,
		polledCounter:     polledCounter,
		failedCounter:     failedCounter,
		durationHistogram: durationHistogram,
	}, nil
}

// Start schedules the poller
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.RunTimeout)
		defer cancel()
		w.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid status poller schedule %q: %w", w.config.Schedule, err)
	}

	w.cron.Start()
	w.logger.Info("Status poller started",
		"schedule", w.config.Schedule,
		"batch_size", w.config.BatchSize,
		"max_concurrency", w.config.MaxConcurrency,
	)
	return nil
}

// Stop waits for a running pass to finish
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("Status poller stopped")
}

// RunOnce performs a single pass. Overlapping passes are skipped.
func (w *Worker) RunOnce(ctx context.Context) RunSummary {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Debug("Status poller pass already running, skipping")
		return RunSummary{}
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	start := time.Now()
	w.runsCounter.Add(ctx, 1)

	now := w.now()
	records, err := w.repo.ListPendingOlderThan(ctx, now.Add(-w.config.FreshnessWindow), now.Add(-w.config.MaxAge), w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list pending transactions", "error", err)
		w.failedCounter.Add(ctx, 1)
		return RunSummary{}
	}

	summary := RunSummary{Candidates: len(records)}
	if len(records) == 0 {
		w.durationHistogram.Record(ctx, time.Since(start).Seconds())
		return summary
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, w.config.MaxConcurrency)
	)
	for _, record := range records {
		// rows settled since the listing query or never given a provider id
		if !record.Status.IsInFlight() || record.ProviderTransactionID == "" {
			summary.Skipped++
			continue
		}
		p, err := w.providers.Get(record.Provider)
		if err != nil {
			summary.Skipped++
			continue
		}

		wg.Add(1)
		go func(r *entities.TransactionRecord, p provider.Provider) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			changed, err := w.poll(ctx, r, p)
			providerAttr := metric.WithAttributes(attribute.String("provider", r.Provider.Slug()))
			if err != nil {
				w.failedCounter.Add(ctx, 1, providerAttr)
			} else {
				w.polledCounter.Add(ctx, 1, providerAttr)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return
			}
			summary.Polled++
			if changed {
				summary.Changed++
			}
		}(record, p)
	}
	wg.Wait()

	w.durationHistogram.Record(ctx, time.Since(start).Seconds())

	w.logger.Info("Status poller pass completed",
		"duration", time.Since(start),
		"candidates", summary.Candidates,
		"polled", summary.Polled,
		"changed", summary.Changed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary
}

func (w *Worker) poll(ctx context.Context, r *entities.TransactionRecord, p provider.Provider) (bool, error) {
	res, err := w.poller.Poll(ctx, p, r.ProviderTransactionID)
	if err != nil {
		w.logger.Warn("Status poll failed",
			"transaction_id", r.TransactionID,
			"provider", r.Provider,
			"error", err,
		)
		return false, err
	}
	return res.Transaction != nil && res.Transaction.Status != r.Status, nil
}
