package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/internal/repository"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

var orderSchema = uow.Schema{
	Table:           "orders",
	PK:              []string{"id"},
	VersionColumn:   "version",
	UpdatedAtColumn: "updated_at",
}

type orderRepository struct{}

func NewOrderRepository() repository.OrderRepository {
	return &orderRepository{}
}

func (r *orderRepository) Insert(ctx context.Context, q uow.Querier, order *model.Order) error {
	query := `
		INSERT INTO orders (
			id, customer_id, total_cents, currency, status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		order.TotalCents,
		order.Currency,
		order.Status,
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return apperror.Remap(err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, q uow.Querier, id uuid.UUID) (*model.Order, error) {
	query := `
		SELECT id, customer_id, total_cents, currency, status, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`
	var order model.Order
	if err := q.GetContext(ctx, &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.Domain("ORDER_NOT_FOUND", "order not found", http.StatusNotFound)
		}
		return nil, apperror.Remap(err)
	}
	return &order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, q uow.Querier, order *model.Order, next model.OrderStatus) error {
	_, err := uow.OptimisticUpdate(ctx, q, orderSchema,
		map[string]interface{}{"id": order.ID},
		map[string]interface{}{"status": next},
		order.Version,
		&order.Versioned,
	)
	if err != nil {
		return err
	}
	order.Status = next
	return nil
}
