package model

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// orderTransitions is the closed order state machine.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:   {OrderStatusAccepted, OrderStatusCanceled},
	OrderStatusAccepted: {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:  {OrderStatusCompleted},
}

// CanTransition reports whether from → to is a legal order transition.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether s names a known status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPlaced, OrderStatusAccepted, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCanceled:
		return true
	}
	return false
}

type Order struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	CustomerID uuid.UUID   `db:"customer_id" json:"customer_id"`
	TotalCents int64       `db:"total_cents" json:"total_cents"`
	Currency   string      `db:"currency" json:"currency"`
	Status     OrderStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	Versioned
}

type CreateOrderRequest struct {
	CustomerID uuid.UUID `json:"customer_id" binding:"required"`
	TotalCents int64     `json:"total_cents" binding:"required,gt=0"`
	Currency   string    `json:"currency" binding:"required,currency"`
}

type TransitionOrderRequest struct {
	Status OrderStatus `json:"status" binding:"required,order_status"`
}
