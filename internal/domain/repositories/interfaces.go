package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
)

// TransactionRepository is the durable audit log of gateway transactions
type TransactionRepository interface {
	Create(ctx context.Context, record *entities.TransactionRecord) error
	GetByID(ctx context.Context, id int64) (*entities.TransactionRecord, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*entities.TransactionRecord, error)
	// FindByProviderID matches either the provider transaction id or the
	// provider reference id
	FindByProviderID(ctx context.Context, provider entities.Provider, id string) (*entities.TransactionRecord, error)
	// UpdateStatus applies u unless the row is already terminal, in which
	// case it returns ErrTerminalStatus
	UpdateStatus(ctx context.Context, id int64, u entities.StatusUpdate) (*entities.TransactionRecord, error)
	List(ctx context.Context, filter entities.TransactionFilter) ([]*entities.TransactionRecord, int, error)
	ListPendingOlderThan(ctx context.Context, before, notBefore time.Time, limit int) ([]*entities.TransactionRecord, error)
	QuickStats(ctx context.Context, userID uuid.UUID) (*entities.QuickStats, error)
	Stats(ctx context.Context, userID uuid.UUID, since time.Time) (*entities.TransactionStatistics, error)
}

// StatsRepository maintains the per-user transaction_stats rollup
type StatsRepository interface {
	Refresh(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*entities.TransactionStats, error)
}
