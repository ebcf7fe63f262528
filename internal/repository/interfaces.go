package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

// All repository interfaces in one file. Write methods take an explicit
// uow.Querier so they run on the ambient transaction handed out by the
// unit of work; read-only methods accept the pool or a transaction alike.
type (
	OrderRepository interface {
		Insert(ctx context.Context, q uow.Querier, order *model.Order) error
		Get(ctx context.Context, q uow.Querier, id uuid.UUID) (*model.Order, error)
		// UpdateStatus persists a status change through the optimistic
		// write guard, bumping order's version on success.
		UpdateStatus(ctx context.Context, q uow.Querier, order *model.Order, next model.OrderStatus) error
	}

	LoyaltyRepository interface {
		GetAccount(ctx context.Context, q uow.Querier, customerID uuid.UUID) (*model.LoyaltyAccount, error)
		InsertAccount(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount) error
		// UpdateBalance persists a new point balance through the
		// optimistic write guard.
		UpdateBalance(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount, newBalance int64) error
		InsertAccrual(ctx context.Context, q uow.Querier, accrual *model.LoyaltyAccrual) error
	}

	OutboxRepository interface {
		InsertBatch(ctx context.Context, q uow.Querier, msgs []*model.OutboxMessage) error
		DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
		ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.OutboxMessage, error)
	}
)
