package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	kafkax "github.com/ariefcatur/lightshow-market/internal/kafka"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type PendingStore interface {
	InsertIfAbsent(ctx context.Context, o orders.Order) (bool, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]orders.Order, error)
}

type PaymentGetter interface {
	GetPayment(ctx context.Context, reference string) (processor.Payment, error)
}

// Reconciler catches up orders whose processor events were missed or whose
// rows were never written. All state changes go through the Applier.
type Reconciler struct {
	Applier  *Applier
	Orders   PendingStore
	Payments PaymentGetter
	Logger   *zap.Logger
	Now      func() time.Time
}

type SweepResult struct {
	Examined int `json:"examined"`
	Settled  int `json:"settled"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
}

const sourceReconcile = "reconcile"

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Sweep examines up to limit orders pending for longer than staleAfter and
// applies whatever terminal state the processor reports for them.
func (r *Reconciler) Sweep(ctx context.Context, staleAfter time.Duration, limit int) (SweepResult, error) {
	var res SweepResult
	stale, err := r.Orders.ListStalePending(ctx, r.now().Add(-staleAfter), limit)
	if err != nil {
		return res, err
	}
	for _, o := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Examined++
		outcome, err := r.reconcile(ctx, o.ExternalPaymentReference)
		switch {
		case err != nil:
			res.Errors++
			reconcileTotal.WithLabelValues("error").Inc()
			r.Logger.Warn("reconcile failed",
				zap.String("order_id", o.ID), zap.String("payment_reference", o.ExternalPaymentReference), zap.Error(err))
		case outcome == OutcomeApplied:
			res.Settled++
			reconcileTotal.WithLabelValues("settled").Inc()
		default:
			res.Pending++
			reconcileTotal.WithLabelValues("pending").Inc()
		}
	}
	if res.Examined > 0 {
		r.Logger.Info("reconcile sweep done",
			zap.Int("examined", res.Examined), zap.Int("settled", res.Settled),
			zap.Int("pending", res.Pending), zap.Int("errors", res.Errors))
	}
	return res, nil
}

// reconcile applies the processor's view of one payment. Non-terminal
// payments are left pending.
func (r *Reconciler) reconcile(ctx context.Context, ref string) (Outcome, error) {
	p, err := r.Payments.GetPayment(ctx, ref)
	if err != nil {
		return "", apperr.New(apperr.CodePaymentProviderError, processor.ErrorMessage(err), err)
	}
	var to orders.Status
	switch p.Status {
	case processor.PaymentSucceeded:
		to = orders.StatusPaid
	case processor.PaymentCanceled:
		to = orders.StatusExpired
	default:
		return OutcomeNoop, nil
	}
	return r.Applier.SettleOrder(ctx, ref, to, "", sourceReconcile)
}

// HandleOutbox consumes one outbox record: it writes the order row if it is
// still missing, then reconciles it against the processor.
func (r *Reconciler) HandleOutbox(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		r.Logger.Error("outbox message undecodable; dropping", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderOutbox {
		return nil
	}
	rec, err := kafkax.UnwrapPayload[orders.OutboxRecord](env.Payload)
	if err != nil {
		r.Logger.Error("outbox payload undecodable; dropping", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	o := rec.Order
	if o.ID == "" || o.ExternalPaymentReference == "" {
		r.Logger.Error("outbox record incomplete; dropping", zap.String("event_id", env.EventID))
		return nil
	}
	o.Status = orders.StatusPending

	inserted, err := r.Orders.InsertIfAbsent(ctx, o)
	if err != nil {
		return fmt.Errorf("outbox insert %s: %w", o.ID, err)
	}
	log := r.Logger.With(zap.String("order_id", o.ID), zap.String("payment_reference", o.ExternalPaymentReference))
	if inserted {
		log.Info("order recovered from outbox", zap.String("cause", rec.Cause))
	}

	outcome, err := r.reconcile(ctx, o.ExternalPaymentReference)
	if err != nil {
		// The row exists now; the periodic sweep picks up the rest.
		log.Warn("outbox reconcile deferred to sweep", zap.Error(err))
		return nil
	}
	log.Debug("outbox record handled", zap.String("outcome", string(outcome)))
	return nil
}
