package events

const (
	TopicOrderEvents     = "foodstore.order.events"
	TopicInventoryEvents = "foodstore.inventory.events"
	TopicPaymentEvents   = "foodstore.payment.events"
	TopicPaymentWebhooks = "foodstore.payment.webhooks"
)

// TopicFor maps a push stream to its Kafka topic.
func TopicFor(s Stream) string {
	switch s {
	case StreamInventory:
		return TopicInventoryEvents
	case StreamPayments:
		return TopicPaymentEvents
	default:
		return TopicOrderEvents
	}
}

// StreamFor is the inverse of TopicFor.
func StreamFor(topic string) (Stream, bool) {
	switch topic {
	case TopicOrderEvents:
		return StreamOrders, true
	case TopicInventoryEvents:
		return StreamInventory, true
	case TopicPaymentEvents:
		return StreamPayments, true
	}
	return "", false
}

// PartitionKey keeps all events of one order (or product) in order.
func PartitionKey(key string) []byte { return []byte(key) }
