package orders

const (
	TopicOrderCreated = "market.order.created"
	TopicOrderSettled = "market.order.settled"
	TopicOrderOutbox  = "market.order.outbox"
	TopicWebhookRetry = "market.webhook.retry"
)

// Partition key = order_id, so all events for one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
