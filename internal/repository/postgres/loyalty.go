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

var loyaltySchema = uow.Schema{
	Table:           "loyalty_accounts",
	PK:              []string{"customer_id"},
	VersionColumn:   "version",
	UpdatedAtColumn: "updated_at",
}

type loyaltyRepository struct{}

func NewLoyaltyRepository() repository.LoyaltyRepository {
	return &loyaltyRepository{}
}

func (r *loyaltyRepository) GetAccount(ctx context.Context, q uow.Querier, customerID uuid.UUID) (*model.LoyaltyAccount, error) {
	query := `
		SELECT customer_id, points_balance, version, created_at, updated_at
		FROM loyalty_accounts
		WHERE customer_id = $1
	`
	var account model.LoyaltyAccount
	if err := q.GetContext(ctx, &account, query, customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.Domain("LOYALTY_ACCOUNT_NOT_FOUND", "loyalty account not found", http.StatusNotFound)
		}
		return nil, apperror.Remap(err)
	}
	return &account, nil
}

func (r *loyaltyRepository) InsertAccount(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount) error {
	query := `
		INSERT INTO loyalty_accounts (customer_id, points_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		account.CustomerID,
		account.PointsBalance,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return apperror.Remap(err)
	}
	return nil
}

func (r *loyaltyRepository) UpdateBalance(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount, newBalance int64) error {
	_, err := uow.OptimisticUpdate(ctx, q, loyaltySchema,
		map[string]interface{}{"customer_id": account.CustomerID},
		map[string]interface{}{"points_balance": newBalance},
		account.Version,
		&account.Versioned,
	)
	if err != nil {
		return err
	}
	account.PointsBalance = newBalance
	return nil
}

func (r *loyaltyRepository) InsertAccrual(ctx context.Context, q uow.Querier, accrual *model.LoyaltyAccrual) error {
	query := `
		INSERT INTO loyalty_accruals (order_id, customer_id, points, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := q.ExecContext(ctx, query,
		accrual.OrderID,
		accrual.CustomerID,
		accrual.Points,
		accrual.CreatedAt,
	)
	if err != nil {
		if apperror.IsUniqueViolation(err) {
			return apperror.Domain("DUPLICATE_ACCRUAL", "order already accrued", http.StatusConflict)
		}
		return apperror.Remap(err)
	}
	return nil
}
