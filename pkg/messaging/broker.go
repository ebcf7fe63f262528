package messaging

import (
	"context"
)

// BrokerMessage is one event on the wire. EventName travels as a message
// header; Key is the partition/ordering affinity key.
type BrokerMessage struct {
	Key       string
	EventName string
	Payload   []byte
}

// Broker is the outbound side of the message transport. A batch is
// delivered to a single topic per call.
type Broker interface {
	PublishBatch(ctx context.Context, topic string, msgs []BrokerMessage) error
	Close() error
}
