package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
)

// Dispatcher groups a committed outbox batch by destination topic and sends
// each per-topic batch in a single broker call.
type Dispatcher struct {
	broker Broker
	routes RoutingTable
	log    *logger.Logger
}

func NewDispatcher(broker Broker, routes RoutingTable, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		broker: broker,
		routes: routes,
		log:    log.WithComponent("dispatcher"),
	}
}

// Dispatch sends all messages, batched per topic. A message whose event
// name has no routing entry is a configuration bug: it is logged and
// dropped rather than blocking the rest of the batch. Any broker failure
// fails the whole dispatch so the owning job is retried as a unit.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []*model.OutboxMessage) error {
	batches := make(map[string][]BrokerMessage)
	order := make([]string, 0, 2)

	for _, msg := range msgs {
		topic, ok := d.routes.TopicFor(msg.EventName)
		if !ok {
			d.log.Error(nil, "no route for event, dropping",
				"event_name", msg.EventName, "outbox_id", msg.ID.String())
			continue
		}
		if _, seen := batches[topic]; !seen {
			order = append(order, topic)
		}
		batches[topic] = append(batches[topic], BrokerMessage{
			Key:       partitionKey(msg),
			EventName: msg.EventName,
			Payload:   msg.Payload,
		})
	}

	for _, topic := range order {
		if err := d.broker.PublishBatch(ctx, topic, batches[topic]); err != nil {
			return fmt.Errorf("failed to publish batch to %s: %w", topic, err)
		}
	}
	return nil
}

// partitionKey picks the first present field from the preference list in
// the event payload, falling back to the outbox row id.
func partitionKey(msg *model.OutboxMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Payload, &fields); err == nil {
		for _, name := range partitionKeyFields {
			raw, ok := fields[name]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return msg.ID.String()
}
