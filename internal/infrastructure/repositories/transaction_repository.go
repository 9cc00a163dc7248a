package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
)

const transactionColumns = `id, transaction_id, user_id, provider, transaction_type, status,
	source_currency, source_amount, destination_currency, destination_amount, exchange_rate,
	total_fees, provider_transaction_id, provider_reference_id, network, wallet_address,
	transaction_hash, payment_method, provider_data, failure_reason, created_at, updated_at,
	completed_at`

const terminalStatuses = `('COMPLETED', 'FAILED', 'CANCELLED', 'EXPIRED')`

// orderings whitelists the history sort keys
var orderings = map[string]string{
	"created_at":          "created_at ASC",
	"-created_at":         "created_at DESC",
	"updated_at":          "updated_at ASC",
	"-updated_at":         "updated_at DESC",
	"source_amount":       "source_amount ASC",
	"-source_amount":      "source_amount DESC",
	"destination_amount":  "destination_amount ASC NULLS LAST",
	"-destination_amount": "destination_amount DESC NULLS LAST",
	"status":              "status ASC",
	"-status":             "status DESC",
	"provider":            "provider ASC",
	"-provider":           "provider DESC",
	"transaction_type":    "transaction_type ASC",
	"-transaction_type":   "transaction_type DESC",
}

// TransactionRepository implements the transaction repository interface
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction and fills in its generated id and timestamps
func (r *TransactionRepository) Create(ctx context.Context, record *entities.TransactionRecord) error {
	query := `
		INSERT INTO transactions (
			transaction_id, user_id, provider, transaction_type, status,
			source_currency, source_amount, destination_currency, destination_amount, exchange_rate,
			total_fees, provider_transaction_id, provider_reference_id, network, wallet_address,
			transaction_hash, payment_method, provider_data, failure_reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		RETURNING id, created_at, updated_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		record.TransactionID,
		record.UserID,
		record.Provider,
		record.TransactionType,
		record.Status,
		record.SourceCurrency,
		record.SourceAmount,
		record.DestinationCurrency,
		record.DestinationAmount,
		record.ExchangeRate,
		record.TotalFees,
		record.ProviderTransactionID,
		record.ProviderReferenceID,
		record.Network,
		record.WalletAddress,
		record.TransactionHash,
		record.PaymentMethod,
		record.ProviderData,
		record.FailureReason,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) getOne(ctx context.Context, where string, args ...interface{}) (*entities.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where

	var record entities.TransactionRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &record, nil
}

// GetByID retrieves a transaction by database id
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*entities.TransactionRecord, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByTransactionID retrieves a transaction by its gateway transaction id
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*entities.TransactionRecord, error) {
	return r.getOne(ctx, `transaction_id = $1`, transactionID)
}

// FindByProviderID matches either provider id column, newest first
func (r *TransactionRepository) FindByProviderID(ctx context.Context, provider entities.Provider, id string) (*entities.TransactionRecord, error) {
	if id == "" {
		return nil, domainerrors.NotFoundError("transaction")
	}
	return r.getOne(ctx,
		`provider = $1 AND (provider_transaction_id = $2 OR provider_reference_id = $2)
		ORDER BY created_at DESC LIMIT 1`,
		provider, id)
}

// UpdateStatus merges a status update into a non-terminal row. Statuses that
// are not persisted (TIMEOUT) leave the status column unchanged.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, u entities.StatusUpdate) (*entities.TransactionRecord, error) {
	status := ""
	if u.Status.IsValid() {
		status = string(u.Status)
	}
	data := "{}"
	if len(u.ProviderData) > 0 {
		b, err := json.Marshal(u.ProviderData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode provider data: %w", err)
		}
		data = string(b)
	}
	var amount decimal.NullDecimal
	if u.DestinationAmount != nil {
		amount = decimal.NullDecimal{Decimal: *u.DestinationAmount, Valid: true}
	}
	at := u.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	query := `
		UPDATE transactions
		SET status = COALESCE(NULLIF($2, ''), status),
			transaction_hash = COALESCE(NULLIF($3, ''), transaction_hash),
			destination_amount = COALESCE($4, destination_amount),
			failure_reason = COALESCE(NULLIF($5, ''), failure_reason),
			provider_data = provider_data || $6::jsonb,
			updated_at = $7,
			completed_at = CASE
				WHEN COALESCE(NULLIF($2, ''), status) = 'COMPLETED' AND completed_at IS NULL THEN $7
				ELSE completed_at
			END
		WHERE id = $1 AND status NOT IN ` + terminalStatuses + `
		RETURNING ` + transactionColumns

	var record entities.TransactionRecord
	err := r.db.GetContext(ctx, &record, query, id, status, u.TransactionHash, amount, u.FailureReason, data, at)
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}

	// nothing updated: the row is either missing or already terminal
	var current entities.TransactionStatus
	if err := r.db.GetContext(ctx, &current, `SELECT status FROM transactions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("transaction")
		}
		return nil, fmt.Errorf("failed to read transaction status: %w", err)
	}
	return nil, fmt.Errorf("%w: transaction %d is %s", domainerrors.ErrTerminalStatus, id, current)
}

// historyWhere builds the WHERE clause shared by the list and count queries
func historyWhere(filter entities.TransactionFilter) (string, []interface{}) {
	clauses := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}

	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.TransactionType != "" {
		add("transaction_type = ?", filter.TransactionType)
	}
	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.SourceCurrency != "" {
		add("UPPER(source_currency) = UPPER(?)", filter.SourceCurrency)
	}
	if filter.DestinationCurrency != "" {
		add("UPPER(destination_currency) = UPPER(?)", filter.DestinationCurrency)
	}
	if filter.DateFrom != nil {
		add("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("created_at <= ?", *filter.DateTo)
	}
	if filter.Search != "" {
		add(`(transaction_id ILIKE ? OR provider_transaction_id ILIKE ?
			OR source_currency ILIKE ? OR destination_currency ILIKE ?)`, "%"+filter.Search+"%")
	}
	return strings.Join(clauses, " AND "), args
}

// List returns one page of a user's history plus the total match count
func (r *TransactionRepository) List(ctx context.Context, filter entities.TransactionFilter) ([]*entities.TransactionRecord, int, error) {
	where, args := historyWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	order, ok := orderings[filter.Ordering]
	if !ok {
		order = orderings["-created_at"]
	}
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY %s, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, order, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, filter.Offset())

	records := []*entities.TransactionRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return records, total, nil
}

// ListPendingOlderThan returns in-flight rows last touched before the given
// time and created no earlier than notBefore, stalest first
func (r *TransactionRepository) ListPendingOlderThan(ctx context.Context, before, notBefore time.Time, limit int) ([]*entities.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status IN ('PENDING', 'PROCESSING') AND updated_at < $1 AND created_at >= $2
		ORDER BY updated_at ASC
		LIMIT $3`

	records := []*entities.TransactionRecord{}
	if err := r.db.SelectContext(ctx, &records, query, before, notBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return records, nil
}

// QuickStats runs the single-pass aggregate used by the dashboard
func (r *TransactionRepository) QuickStats(ctx context.Context, userID uuid.UUID) (*entities.QuickStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_transactions,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_transactions,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed_transactions,
			COUNT(*) FILTER (WHERE status IN ('PENDING', 'PROCESSING')) AS pending_transactions,
			COUNT(*) FILTER (WHERE transaction_type = 'BUY') AS total_buys,
			COUNT(*) FILTER (WHERE transaction_type = 'SELL') AS total_sells,
			COUNT(*) FILTER (WHERE transaction_type = 'SWAP') AS total_swaps,
			COALESCE(SUM(total_fees) FILTER (WHERE status = 'COMPLETED'), 0) AS total_fees_paid,
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days') AS recent_transactions_count
		FROM transactions
		WHERE user_id = $1`

	var quick entities.QuickStats
	if err := r.db.GetContext(ctx, &quick, query, userID); err != nil {
		return nil, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	return &quick, nil
}

// Stats aggregates a user's transactions. Monthly data covers rows created
// since the given time.
func (r *TransactionRepository) Stats(ctx context.Context, userID uuid.UUID, since time.Time) (*entities.TransactionStatistics, error) {
	quick, err := r.QuickStats(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &entities.TransactionStatistics{}
	out.UserID = userID
	out.TotalTransactions = quick.TotalTransactions
	out.CompletedTransactions = quick.CompletedTransactions
	out.FailedTransactions = quick.FailedTransactions
	out.PendingTransactions = quick.PendingTransactions
	out.TotalBuys = quick.TotalBuys
	out.TotalSells = quick.TotalSells
	out.TotalSwaps = quick.TotalSwaps
	out.TotalFeesPaid = quick.TotalFeesPaid
	out.RecentTransactionsCount = quick.RecentTransactionsCount

	out.ProviderBreakdown = []entities.ProviderBreakdown{}
	byProvider := `
		SELECT provider, COUNT(*) AS count, COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed
		FROM transactions
		WHERE user_id = $1
		GROUP BY provider
		ORDER BY count DESC, provider ASC`
	if err := r.db.SelectContext(ctx, &out.ProviderBreakdown, byProvider, userID); err != nil {
		return nil, fmt.Errorf("failed to aggregate providers: %w", err)
	}

	out.MonthlyData = []entities.MonthlyBreakdown{}
	monthly := `
		SELECT DATE_TRUNC('month', created_at) AS month, COUNT(*) AS count,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed
		FROM transactions
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY 1
		ORDER BY 1`
	if err := r.db.SelectContext(ctx, &out.MonthlyData, monthly, userID, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate months: %w", err)
	}

	return out, nil
}
