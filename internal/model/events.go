package model

import (
	"time"

	"github.com/google/uuid"
)

// Event is any domain event carrying a discriminant name. The name routes
// the event to a broker topic and is attached as a message header.
type Event interface {
	EventName() string
}

// Event names. These are the keys of the broker routing table; adding an
// event without a routing entry is a configuration bug the publish worker
// logs and drops.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCompleted     = "order.completed"
	EventLoyaltyAccrued     = "loyalty.accrued"
)

type OrderCreatedEvent struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string { return EventOrderCreated }

type OrderStatusChangedEvent struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func (OrderStatusChangedEvent) EventName() string { return EventOrderStatusChanged }

type OrderCompletedEvent struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalCents int64     `json:"total_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCompletedEvent) EventName() string { return EventOrderCompleted }

type LoyaltyAccruedEvent struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Points     int64     `json:"points"`
	Balance    int64     `json:"balance"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (LoyaltyAccruedEvent) EventName() string { return EventLoyaltyAccrued }
