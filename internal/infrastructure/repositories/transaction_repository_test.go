package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
)

var recordColumns = []string{
	"id", "transaction_id", "user_id", "provider", "transaction_type", "status",
	"source_currency", "source_amount", "destination_currency", "destination_amount", "exchange_rate",
	"total_fees", "provider_transaction_id", "provider_reference_id", "network", "wallet_address",
	"transaction_hash", "payment_method", "provider_data", "failure_reason", "created_at", "updated_at",
	"completed_at",
}

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func recordRow(rows *sqlmock.Rows, id int64, status string, completedAt interface{}) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "txn_exolix_0123456789abcdef", "7f1d3f0e-3c1a-4d8e-9d1b-3f7a2c9e5b10", "EXOLIX", "SWAP", status,
		"BTC", "0.05", "ETH", "0.8", nil,
		"0.0001", "ex-123", "", "ETH", "0xabc",
		"", "", []byte(`{"raw":{"status":"wait"}}`), "", now, now,
		completedAt,
	)
}

func TestTransactionRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)
	now := time.Now()

	record := &entities.TransactionRecord{
		TransactionID:       "txn_moonpay_aaaa",
		UserID:              uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Provider:            entities.ProviderMoonPay,
		TransactionType:     entities.TransactionTypeBuy,
		Status:              entities.TransactionStatusPending,
		SourceCurrency:      "USD",
		SourceAmount:        decimal.NewFromInt(100),
		DestinationCurrency: "BTC",
		ProviderData:        entities.JSONMap{"widget": "https://buy.moonpay.com"},
	}

	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs("txn_moonpay_aaaa", sqlmock.AnyArg(), "MOONPAY", "BUY",
			"PENDING", "USD", sqlmock.AnyArg(), "BTC", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "", "", "", "", "", "", `{"widget":"https://buy.moonpay.com"}`, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))

	require.NoError(t, repo.Create(context.Background(), record))
	assert.Equal(t, int64(11), record.ID)
	assert.Equal(t, now, record.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_GetByTransactionID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("FROM transactions WHERE transaction_id = \\$1").
		WithArgs("txn_exolix_0123456789abcdef").
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 3, "PENDING", nil))

	record, err := repo.GetByTransactionID(context.Background(), "txn_exolix_0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, int64(3), record.ID)
	assert.True(t, record.UserID.Valid)
	assert.True(t, record.SourceAmount.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, record.DestinationAmount.Valid)
	assert.False(t, record.ExchangeRate.Valid)
	assert.Equal(t, "wait", record.ProviderData["raw"].(map[string]interface{})["status"])
	assert.Nil(t, record.CompletedAt)

	mock.ExpectQuery("FROM transactions WHERE transaction_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	_, err = repo.GetByTransactionID(context.Background(), "missing")
	assert.True(t, domainerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindByProviderID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("provider_transaction_id = $2 OR provider_reference_id = $2")).
		WithArgs("EXOLIX", "ex-123").
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 3, "PENDING", nil))

	record, err := repo.FindByProviderID(context.Background(), entities.ProviderExolix, "ex-123")
	require.NoError(t, err)
	assert.Equal(t, "ex-123", record.ProviderTransactionID)

	_, err = repo.FindByProviderID(context.Background(), entities.ProviderExolix, "")
	assert.True(t, domainerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_UpdateStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)
	at := time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)
	amount := decimal.RequireFromString("0.81")

	mock.ExpectQuery(regexp.QuoteMeta("provider_data = provider_data || $6::jsonb")).
		WithArgs(int64(3), "COMPLETED", "0xhash", sqlmock.AnyArg(), "", `{"status":"success"}`, at).
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 3, "COMPLETED", at))

	record, err := repo.UpdateStatus(context.Background(), 3, entities.StatusUpdate{
		Status:            entities.TransactionStatusCompleted,
		TransactionHash:   "0xhash",
		DestinationAmount: &amount,
		ProviderData:      map[string]interface{}{"status": "success"},
		At:                at,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_UpdateStatus_TimeoutKeepsStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("UPDATE transactions").
		WithArgs(int64(3), "", "", nil, "", "{}", sqlmock.AnyArg()).
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 3, "PENDING", nil))

	record, err := repo.UpdateStatus(context.Background(), 3, entities.StatusUpdate{Status: entities.TransactionStatusTimeout})
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusPending, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_UpdateStatus_Terminal(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectQuery("UPDATE transactions").WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectQuery("SELECT status FROM transactions").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("COMPLETED"))

	_, err := repo.UpdateStatus(context.Background(), 3, entities.StatusUpdate{Status: entities.TransactionStatusFailed})
	assert.ErrorIs(t, err, domainerrors.ErrTerminalStatus)

	mock.ExpectQuery("UPDATE transactions").WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectQuery("SELECT status FROM transactions").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err = repo.UpdateStatus(context.Background(), 4, entities.StatusUpdate{Status: entities.TransactionStatusFailed})
	assert.True(t, domainerrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_List(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)
	userID := uuid.New()

	filter := entities.TransactionFilter{
		UserID:   userID,
		Provider: entities.ProviderExolix,
		Search:   "btc",
		Ordering: "amount; DROP TABLE transactions",
		Page:     2,
		PageSize: 20,
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM transactions WHERE user_id = $1 AND provider = $2 AND (transaction_id ILIKE $3")).
		WithArgs(userID.String(), "EXOLIX", "%btc%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5")).
		WithArgs(userID.String(), "EXOLIX", "%btc%", int64(20), int64(20)).
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 1, "FAILED", nil))

	records, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	assert.Len(t, records, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_ListPendingOlderThan(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)
	before := time.Now().Add(-2 * time.Minute)
	notBefore := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("status IN ('PENDING', 'PROCESSING') AND updated_at < $1")).
		WithArgs(before, notBefore, int64(50)).
		WillReturnRows(recordRow(sqlmock.NewRows(recordColumns), 9, "PROCESSING", nil))

	records, err := repo.ListPendingOlderThan(context.Background(), before, notBefore, 50)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entities.TransactionStatusProcessing, records[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_Stats(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTransactionRepository(db)
	userID := uuid.New()
	since := time.Now().AddDate(0, -6, 0)
	month := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("COUNT\\(\\*\\) AS total_transactions").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_transactions", "completed_transactions", "failed_transactions", "pending_transactions",
			"total_buys", "total_sells", "total_swaps", "total_fees_paid", "recent_transactions_count",
		}).AddRow(5, 3, 1, 1, 2, 1, 2, "4.5", 2))
	mock.ExpectQuery("GROUP BY provider").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"provider", "count", "completed"}).
			AddRow("EXOLIX", 3, 2).AddRow("MOONPAY", 2, 1))
	mock.ExpectQuery("DATE_TRUNC").
		WithArgs(userID.String(), since).
		WillReturnRows(sqlmock.NewRows([]string{"month", "count", "completed"}).AddRow(month, 5, 3))

	stats, err := repo.Stats(context.Background(), userID, since)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalTransactions)
	assert.True(t, stats.TotalFeesPaid.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, 2, stats.RecentTransactionsCount)
	require.Len(t, stats.ProviderBreakdown, 2)
	assert.Equal(t, entities.ProviderExolix, stats.ProviderBreakdown[0].Provider)
	require.Len(t, stats.MonthlyData, 1)
	assert.Equal(t, month, stats.MonthlyData[0].Month)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepository_Refresh(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewStatsRepository(db)
	userID := uuid.New()
	last := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("MAX\\(created_at\\) AS last_transaction_at").
		WithArgs(userID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_transactions", "completed_transactions", "failed_transactions", "pending_transactions",
			"total_buys", "total_sells", "total_swaps", "total_fees_paid", "last_transaction_at",
		}).AddRow(2, 1, 0, 1, 2, 0, 0, "1.25", last))
	mock.ExpectExec("INSERT INTO transaction_stats").
		WithArgs(userID.String(), int64(2), int64(1), int64(0), int64(1), int64(2), int64(0), int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Refresh(context.Background(), userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsRepository_RefreshRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewStatsRepository(db)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM transactions").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Refresh(context.Background(), userID)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
