package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
	"github.com/cryptogate/gateway_service/internal/infrastructure/database"
)

// StatsRepository maintains the transaction_stats rollup table
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Refresh recomputes a user's rollup from the transactions table
func (r *StatsRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	aggregate := `
		SELECT
			COUNT(*) AS total_transactions,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_transactions,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed_transactions,
			COUNT(*) FILTER (WHERE status IN ('PENDING', 'PROCESSING')) AS pending_transactions,
			COUNT(*) FILTER (WHERE transaction_type = 'BUY') AS total_buys,
			COUNT(*) FILTER (WHERE transaction_type = 'SELL') AS total_sells,
			COUNT(*) FILTER (WHERE transaction_type = 'SWAP') AS total_swaps,
			COALESCE(SUM(total_fees) FILTER (WHERE status = 'COMPLETED'), 0) AS total_fees_paid,
			MAX(created_at) AS last_transaction_at
		FROM transactions
		WHERE user_id = $1`

	upsert := `
		INSERT INTO transaction_stats (
			user_id, total_transactions, completed_transactions, failed_transactions,
			pending_transactions, total_buys, total_sells, total_swaps, total_fees_paid,
			last_transaction_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_transactions = EXCLUDED.total_transactions,
			completed_transactions = EXCLUDED.completed_transactions,
			failed_transactions = EXCLUDED.failed_transactions,
			pending_transactions = EXCLUDED.pending_transactions,
			total_buys = EXCLUDED.total_buys,
			total_sells = EXCLUDED.total_sells,
			total_swaps = EXCLUDED.total_swaps,
			total_fees_paid = EXCLUDED.total_fees_paid,
			last_transaction_at = EXCLUDED.last_transaction_at,
			updated_at = NOW()`

	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var s entities.TransactionStats
		if err := tx.GetContext(ctx, &s, aggregate, userID); err != nil {
			return fmt.Errorf("failed to aggregate stats: %w", err)
		}
		_, err := tx.ExecContext(ctx, upsert,
			userID,
			s.TotalTransactions,
			s.CompletedTransactions,
			s.FailedTransactions,
			s.PendingTransactions,
			s.TotalBuys,
			s.TotalSells,
			s.TotalSwaps,
			s.TotalFeesPaid,
			s.LastTransactionAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh stats for %s: %w", userID, err)
	}
	return nil
}

// Get returns the stored rollup for a user
func (r *StatsRepository) Get(ctx context.Context, userID uuid.UUID) (*entities.TransactionStats, error) {
	query := `
		SELECT user_id, total_transactions, completed_transactions, failed_transactions,
			pending_transactions, total_buys, total_sells, total_swaps, total_fees_paid,
			last_transaction_at, updated_at
		FROM transaction_stats
		WHERE user_id = $1`

	var s entities.TransactionStats
	if err := r.db.GetContext(ctx, &s, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainerrors.NotFoundError("transaction stats")
		}
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &s, nil
}
