package order

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/internal/repository"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

type OrderServicer interface {
	Create(ctx context.Context, req *model.CreateOrderRequest, hints uow.Hints) (*model.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, next model.OrderStatus, hints uow.Hints) (*model.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
}

// Service implements the order workflow on top of the unit of work. Every
// write stages its domain events in the same transaction; conflicting
// concurrent transitions on one order resolve to a single winner through
// the optimistic guard, and the loser is retried once.
type Service struct {
	manager *uow.Manager
	repo    repository.OrderRepository
}

func NewService(manager *uow.Manager, repo repository.OrderRepository) *Service {
	return &Service{
		manager: manager,
		repo:    repo,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreateOrderRequest, hints uow.Hints) (*model.Order, error) {
	now := time.Now().UTC()
	order := &model.Order{
		ID:         uuid.New(),
		CustomerID: req.CustomerID,
		TotalCents: req.TotalCents,
		Currency:   req.Currency,
		Status:     model.OrderStatusPlaced,
		CreatedAt:  now,
	}
	order.Version = 1
	order.UpdatedAt = now

	err := s.manager.RunWithRetry(ctx, hints, func(ctx context.Context) error {
		tx, err := uow.RequireTx(ctx)
		if err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return uow.EnqueueOutbox(ctx, model.OrderCreatedEvent{
			ID:         uuid.New(),
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			TotalCents: order.TotalCents,
			Currency:   order.Currency,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, next model.OrderStatus, hints uow.Hints) (*model.Order, error) {
	if !model.ValidOrderStatus(next) {
		return nil, apperror.Domain("UNKNOWN_STATUS",
			fmt.Sprintf("unknown order status %q", next), http.StatusUnprocessableEntity)
	}

	var order *model.Order
	err := s.manager.RunWithRetry(ctx, hints, func(ctx context.Context) error {
		tx, err := uow.RequireTx(ctx)
		if err != nil {
			return err
		}

		// Re-read inside the transaction so the retry after a version
		// conflict sees the winner's state.
		order, err = s.repo.Get(ctx, tx, orderID)
		if err != nil {
			return err
		}

		from := order.Status
		if !model.CanTransition(from, next) {
			return apperror.Domain("INVALID_TRANSITION",
				fmt.Sprintf("order cannot move from %s to %s", from, next), http.StatusConflict)
		}

		if err := s.repo.UpdateStatus(ctx, tx, order, next); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := uow.EnqueueOutbox(ctx, model.OrderStatusChangedEvent{
			ID:         uuid.New(),
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			From:       from,
			To:         next,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		if next == model.OrderStatusCompleted {
			return uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{
				ID:         uuid.New(),
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				TotalCents: order.TotalCents,
				OccurredAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	// Read-only path: the pool handle is fine, no unit of work needed.
	return s.repo.Get(ctx, s.manager.Current(ctx), orderID)
}
