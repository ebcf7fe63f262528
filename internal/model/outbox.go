package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is one staged domain event. The row is inserted in the same
// transaction as the business write and deleted once the publish worker has
// confirmed delivery, so a row exists in storage iff its transaction
// committed and the event has not yet been published.
type OutboxMessage struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	EventName string          `db:"event_name" json:"event_name"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// NewOutboxMessage stages ev for publication. The payload is frozen at
// staging time; later mutation of ev does not affect what is published.
func NewOutboxMessage(ev Event) (*OutboxMessage, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        uuid.New(),
		EventName: ev.EventName(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}
