package loyalty

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/internal/repository"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/consumer"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

type LoyaltyServicer interface {
	Accrue(ctx context.Context, customerID, orderID uuid.UUID, totalCents int64, hints uow.Hints) (*model.LoyaltyAccount, error)
	Balance(ctx context.Context, customerID uuid.UUID) (*model.LoyaltyAccount, error)
}

// Service accrues bonus points for completed orders. Accrual is idempotent
// per order through the accrual ledger, so redelivered events are safe.
type Service struct {
	manager *uow.Manager
	repo    repository.LoyaltyRepository
	log     *logger.Logger
}

func NewService(manager *uow.Manager, repo repository.LoyaltyRepository, log *logger.Logger) *Service {
	return &Service{
		manager: manager,
		repo:    repo,
		log:     log.WithComponent("loyalty"),
	}
}

func (s *Service) Accrue(ctx context.Context, customerID, orderID uuid.UUID, totalCents int64, hints uow.Hints) (*model.LoyaltyAccount, error) {
	points := model.AccrualPoints(totalCents)

	var account *model.LoyaltyAccount
	err := s.manager.RunWithRetry(ctx, hints, func(ctx context.Context) error {
		tx, err := uow.RequireTx(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		// Ledger first: the unique order_id constraint turns a duplicate
		// delivery into a domain error before any balance math happens.
		if err := s.repo.InsertAccrual(ctx, tx, &model.LoyaltyAccrual{
			OrderID:    orderID,
			CustomerID: customerID,
			Points:     points,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		account, err = s.repo.GetAccount(ctx, tx, customerID)
		if err != nil {
			if ae, ok := apperror.As(err); !ok || ae.Code != "LOYALTY_ACCOUNT_NOT_FOUND" {
				return err
			}
			account = &model.LoyaltyAccount{
				CustomerID: customerID,
				CreatedAt:  now,
			}
			account.Version = 1
			account.UpdatedAt = now
			if err := s.repo.InsertAccount(ctx, tx, account); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateBalance(ctx, tx, account, account.PointsBalance+points); err != nil {
			return err
		}

		return uow.EnqueueOutbox(ctx, model.LoyaltyAccruedEvent{
			ID:         uuid.New(),
			CustomerID: customerID,
			OrderID:    orderID,
			Points:     points,
			Balance:    account.PointsBalance,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (*model.LoyaltyAccount, error) {
	return s.repo.GetAccount(ctx, s.manager.Current(ctx), customerID)
}

// HandleOrderCompleted is the inbound handler wired under the DLQ
// interceptor. A duplicate accrual acks as success; anything else
// propagates classified so the interceptor can decide.
func (s *Service) HandleOrderCompleted(ctx context.Context, msg consumer.InboundMessage) error {
	if msg.EventName != model.EventOrderCompleted {
		// The order topic also carries created/status-changed events this
		// service has no interest in.
		return nil
	}

	var ev model.OrderCompletedEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return apperror.Domain("MALFORMED_EVENT",
			fmt.Sprintf("cannot decode %s payload: %v", msg.EventName, err), 0)
	}

	_, err := s.Accrue(ctx, ev.CustomerID, ev.OrderID, ev.TotalCents, uow.Hints{
		CorrelationID: ev.ID.String(),
	})
	if err != nil {
		if apperror.IsCode(err, "DUPLICATE_ACCRUAL") {
			s.log.Debug("skipping duplicate accrual", "order_id", ev.OrderID.String())
			return nil
		}
		return err
	}

	s.log.Info("accrued loyalty points",
		"order_id", ev.OrderID.String(),
		"customer_id", ev.CustomerID.String(),
		"points", model.AccrualPoints(ev.TotalCents))
	return nil
}
