package model

import (
	"time"

	"github.com/google/uuid"
)

// LoyaltyAccount is the per-customer bonus-point balance. Concurrent
// accruals race on the version column through the write guard.
type LoyaltyAccount struct {
	CustomerID    uuid.UUID `db:"customer_id" json:"customer_id"`
	PointsBalance int64     `db:"points_balance" json:"points_balance"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	Versioned
}

// LoyaltyAccrual is the idempotency ledger: one row per accrued order,
// unique on order_id, so a redelivered order.completed event is a no-op.
type LoyaltyAccrual struct {
	OrderID    uuid.UUID `db:"order_id" json:"order_id"`
	CustomerID uuid.UUID `db:"customer_id" json:"customer_id"`
	Points     int64     `db:"points" json:"points"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AccrualRateBasisPoints is the bonus accrual rate: 5% of the order total,
// floored to whole points (one point per cent).
const AccrualRateBasisPoints = 500

// AccrualPoints computes the points earned for an order total.
func AccrualPoints(totalCents int64) int64 {
	return totalCents * AccrualRateBasisPoints / 10000
}
