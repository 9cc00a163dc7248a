// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	"github.com/cryptogate/gateway_service/internal/domain/repositories"
)

var (
	_ repositories.TransactionRepository = (*TransactionRepository)(nil)
	_ repositories.StatsRepository       = (*StatsRepository)(nil)
)

type TransactionRepository struct {
	mock.Mock
}

func (m *TransactionRepository) Create(ctx context.Context, record *entities.TransactionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *TransactionRepository) GetByID(ctx context.Context, id int64) (*entities.TransactionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionRecord), args.Error(1)
}

func (m *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*entities.TransactionRecord, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionRecord), args.Error(1)
}

func (m *TransactionRepository) FindByProviderID(ctx context.Context, provider entities.Provider, id string) (*entities.TransactionRecord, error) {
	args := m.Called(ctx, provider, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionRecord), args.Error(1)
}

func (m *TransactionRepository) UpdateStatus(ctx context.Context, id int64, u entities.StatusUpdate) (*entities.TransactionRecord, error) {
	args := m.Called(ctx, id, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionRecord), args.Error(1)
}

func (m *TransactionRepository) List(ctx context.Context, filter entities.TransactionFilter) ([]*entities.TransactionRecord, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*entities.TransactionRecord), args.Int(1), args.Error(2)
}

func (m *TransactionRepository) ListPendingOlderThan(ctx context.Context, before, notBefore time.Time, limit int) ([]*entities.TransactionRecord, error) {
	args := m.Called(ctx, before, notBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.TransactionRecord), args.Error(1)
}

func (m *TransactionRepository) QuickStats(ctx context.Context, userID uuid.UUID) (*entities.QuickStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.QuickStats), args.Error(1)
}

func (m *TransactionRepository) Stats(ctx context.Context, userID uuid.UUID, since time.Time) (*entities.TransactionStatistics, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionStatistics), args.Error(1)
}

type StatsRepository struct {
	mock.Mock
}

func (m *StatsRepository) Refresh(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *StatsRepository) Get(ctx context.Context, userID uuid.UUID) (*entities.TransactionStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransactionStats), args.Error(1)
}
