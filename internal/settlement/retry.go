package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RetryQueue parks verified events that could not be applied.
type RetryQueue struct {
	Sender orders.Sender
}

func (q *RetryQueue) Enqueue(ctx context.Context, ev processor.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.Sender.Send(ctx, []byte(ev.ID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Type)})
}

type EventApplier interface {
	Apply(ctx context.Context, ev processor.Event) (Outcome, error)
}

// RetryHandler consumes the retry topic, re-applying each event with
// exponential backoff. MaxElapsed bounds one call; the consumer then calls
// again with the same message, so the event is never skipped.
type RetryHandler struct {
	Applier    EventApplier
	Logger     *zap.Logger
	MaxElapsed time.Duration
}

func (h *RetryHandler) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = h.MaxElapsed
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = time.Minute
	}
	return backoff.WithContext(b, ctx)
}

func (h *RetryHandler) Handle(ctx context.Context, m kafkago.Message) error {
	var ev processor.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		h.Logger.Error("retry message undecodable; dropping", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}

	attempt := 0
	op := func() error {
		attempt++
		_, err := h.Applier.Apply(ctx, ev)
		return err
	}
	notify := func(err error, wait time.Duration) {
		h.Logger.Warn("retrying event",
			zap.String("event_id", ev.ID), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, h.policy(ctx), notify); err != nil {
		return err
	}
	h.Logger.Info("queued event applied", zap.String("event_id", ev.ID), zap.String("event_type", ev.Type), zap.Int("attempts", attempt))
	return nil
}
