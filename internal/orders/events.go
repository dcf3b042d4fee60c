package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderPaid    = "OrderPaid"
	EventOrderFailed  = "OrderFailed"
	EventOrderExpired = "OrderExpired"
	EventOrderOutbox  = "OrderOutbox"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "market-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in a v1 envelope correlated to orderID.
func NewEnvelope(eventType, producer, traceID, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

func Headers(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

// ---- Payloads ----

type OrderCreatedPayload struct {
	OrderID          string `json:"order_id"`
	BuyerID          string `json:"buyer_id"`
	SellerID         string `json:"seller_id"`
	ItemID           string `json:"item_id"`
	AmountCents      int64  `json:"amount_cents"`
	PlatformFeeCents int64  `json:"platform_fee_cents"`
	Currency         string `json:"currency"`
	PaymentRef       string `json:"payment_ref"`
}

type OrderSettledPayload struct {
	OrderID     string `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	FinalStatus Status `json:"final_status"`
	Reason      string `json:"reason,omitempty"` // failure message when failed
	SourceEvent string `json:"source_event,omitempty"`
}

// OutboxRecord carries an order whose processor payment exists but whose row
// could not be written. The settler replays it.
type OutboxRecord struct {
	Order    Order     `json:"order"`
	Cause    string    `json:"cause"`
	QueuedAt time.Time `json:"queued_at"`
}

func SettledEventType(s Status) string {
	switch s {
	case StatusPaid:
		return EventOrderPaid
	case StatusFailed:
		return EventOrderFailed
	case StatusExpired:
		return EventOrderExpired
	}
	return ""
}
