package messaging

import (
	"github.com/EnkiSilicium/artisan-hub/internal/model"
)

// Topics.
const (
	TopicOrderEvents   = "orders.events"
	TopicLoyaltyEvents = "loyalty.events"
)

// RoutingTable maps an event's discriminant name to its broker topic. The
// table is static configuration; an event whose name is absent cannot be
// dispatched and is logged and dropped by the dispatcher.
type RoutingTable map[string]string

// DefaultRoutingTable routes every event the services emit.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		model.EventOrderCreated:       TopicOrderEvents,
		model.EventOrderStatusChanged: TopicOrderEvents,
		model.EventOrderCompleted:     TopicOrderEvents,
		model.EventLoyaltyAccrued:     TopicLoyaltyEvents,
	}
}

// TopicFor resolves the topic for an event name.
func (t RoutingTable) TopicFor(eventName string) (string, bool) {
	topic, ok := t[eventName]
	return topic, ok
}

// partitionKeyFields is the ordered preference list for the per-event
// affinity key: aggregate id first, then subject id, then the event's own
// id as a last resort.
var partitionKeyFields = []string{"order_id", "customer_id", "id"}
