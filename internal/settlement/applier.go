// Package settlement applies processor events to orders, seller accounts and
// payouts. It is the only code that moves an order out of pending.
package settlement

import (
	"context"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	kafkax "github.com/ariefcatur/lightshow-market/internal/kafka"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/payouts"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type OrderStore interface {
	GetByReference(ctx context.Context, ref string) (orders.Order, error)
	Transition(ctx context.Context, ref string, to orders.Status, message string) (orders.Order, bool, error)
}

type AccountStore interface {
	GetByExternalID(ctx context.Context, externalAccountID string) (sellers.Account, error)
	UpdateCapabilities(ctx context.Context, externalAccountID string, charges, payouts bool) (sellers.Account, error)
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Applier struct {
	Orders   OrderStore
	Accounts AccountStore
	Payouts  payouts.Store
	Events   orders.Publisher
	Dedup    Deduper            // optional
	Cache    orders.StatusCache // optional
	Producer string
	Logger   *zap.Logger
}

// Apply applies one verified event. Replays, already-terminal targets and
// unknown entities are not errors; a non-nil error means infrastructure
// failed and the event should be retried.
func (a *Applier) Apply(ctx context.Context, ev processor.Event) (Outcome, error) {
	log := a.Logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if a.Dedup != nil && ev.ID != "" {
		seen, err := a.Dedup.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn("dedup lookup failed; applying anyway", zap.Error(err))
		} else if seen {
			observe(ev.Type, OutcomeDuplicate)
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := a.dispatch(ctx, log, ev)
	if err != nil {
		log.Error("event application failed", zap.Error(err))
		return "", err
	}
	observe(ev.Type, outcome)

	if a.Dedup != nil && ev.ID != "" && outcome != OutcomeIgnored {
		if err := a.Dedup.Mark(ctx, ev.ID); err != nil {
			log.Warn("dedup mark failed", zap.Error(err))
		}
	}
	return outcome, nil
}

func (a *Applier) dispatch(ctx context.Context, log *zap.Logger, ev processor.Event) (Outcome, error) {
	switch ev.Type {
	case processor.EventPaymentSucceeded:
		return a.settlePayment(ctx, log, ev, orders.StatusPaid)
	case processor.EventPaymentFailed:
		return a.settlePayment(ctx, log, ev, orders.StatusFailed)
	case processor.EventPaymentCanceled, processor.EventCheckoutExpired:
		return a.settlePayment(ctx, log, ev, orders.StatusExpired)
	case processor.EventAccountUpdated:
		return a.updateAccount(ctx, log, ev)
	case processor.EventPayoutCreated:
		return a.createPayout(ctx, log, ev)
	case processor.EventPayoutPaid:
		return a.settlePayout(ctx, log, ev, payouts.StatusPaid)
	case processor.EventPayoutFailed, processor.EventPayoutCanceled:
		return a.settlePayout(ctx, log, ev, payouts.StatusFailed)
	default:
		log.Debug("event type not handled")
		return OutcomeIgnored, nil
	}
}

func (a *Applier) settlePayment(ctx context.Context, log *zap.Logger, ev processor.Event, to orders.Status) (Outcome, error) {
	if ev.Payment == nil {
		log.Warn("payment event without payment object")
		return OutcomeIgnored, nil
	}
	refs := []string{}
	if ev.Payment.Reference != "" {
		refs = append(refs, ev.Payment.Reference)
	}
	if ev.Payment.SessionID != "" {
		refs = append(refs, ev.Payment.SessionID)
	}

	for _, ref := range refs {
		outcome, err := a.SettleOrder(ctx, ref, to, ev.Payment.FailureMessage, ev.Type)
		if outcome == OutcomeNotFound && err == nil {
			continue
		}
		return outcome, err
	}
	log.Warn("order not found for payment event", zap.Strings("references", refs))
	return OutcomeNotFound, nil
}

// SettleOrder moves the order with reference ref from pending to the terminal
// status to. Orders already terminal are left alone.
func (a *Applier) SettleOrder(ctx context.Context, ref string, to orders.Status, message, source string) (Outcome, error) {
	if !orders.CanTransition(orders.StatusPending, to) {
		return OutcomeIgnored, nil
	}
	if to != orders.StatusFailed {
		message = ""
	}
	o, changed, err := a.Orders.Transition(ctx, ref, to, message)
	if err != nil {
		if apperr.Is(err, apperr.CodeOrderNotFound) {
			return OutcomeNotFound, nil
		}
		return "", err
	}
	if !changed {
		a.Logger.Debug("order already settled",
			zap.String("order_id", o.ID), zap.String("status", string(o.Status)), zap.String("requested", string(to)))
		return OutcomeNoop, nil
	}

	a.Logger.Info("order settled",
		zap.String("order_id", o.ID), zap.String("payment_reference", ref), zap.String("status", string(to)))
	if a.Cache != nil {
		_ = a.Cache.SetStatus(ctx, o.Snapshot())
	}
	a.publishSettled(o, source)
	return OutcomeApplied, nil
}

func (a *Applier) publishSettled(o orders.Order, source string) {
	eventType := orders.SettledEventType(o.Status)
	env, err := orders.NewEnvelope(eventType, a.Producer, "", o.ID, orders.OrderSettledPayload{
		OrderID:     o.ID,
		PaymentRef:  o.ExternalPaymentReference,
		FinalStatus: o.Status,
		Reason:      o.FailureMessage,
		SourceEvent: source,
	})
	if err != nil {
		a.Logger.Warn("settled event not built", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	a.Events.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(env), orders.Headers(eventType)...)
}

func (a *Applier) updateAccount(ctx context.Context, log *zap.Logger, ev processor.Event) (Outcome, error) {
	if ev.AccountUpdate == nil {
		log.Warn("account event without account object")
		return OutcomeIgnored, nil
	}
	upd := ev.AccountUpdate
	acc, err := a.Accounts.UpdateCapabilities(ctx, upd.ID, upd.ChargesEnabled, upd.PayoutsEnabled)
	if err != nil {
		if apperr.Is(err, apperr.CodeAccountNotFound) {
			log.Warn("account not found for account event", zap.String("external_account_id", upd.ID))
			return OutcomeNotFound, nil
		}
		return "", err
	}
	log.Info("seller capabilities updated",
		zap.String("seller_id", acc.SellerID),
		zap.Bool("charges_enabled", acc.ChargesEnabled),
		zap.Bool("payouts_enabled", acc.PayoutsEnabled))
	return OutcomeApplied, nil
}

// payoutSeller resolves the seller owning a payout event through the
// connected account the event was delivered for.
func (a *Applier) payoutSeller(ctx context.Context, log *zap.Logger, ev processor.Event) (string, Outcome, error) {
	if ev.Payout == nil || ev.Payout.ID == "" {
		log.Warn("payout event without payout object")
		return "", OutcomeIgnored, nil
	}
	acc, err := a.Accounts.GetByExternalID(ctx, ev.Account)
	if err != nil {
		if apperr.Is(err, apperr.CodeAccountNotFound) {
			log.Warn("account not found for payout event",
				zap.String("external_account_id", ev.Account), zap.String("payout_id", ev.Payout.ID))
			return "", OutcomeNotFound, nil
		}
		return "", "", err
	}
	return acc.SellerID, "", nil
}

func (a *Applier) createPayout(ctx context.Context, log *zap.Logger, ev processor.Event) (Outcome, error) {
	sellerID, outcome, err := a.payoutSeller(ctx, log, ev)
	if sellerID == "" {
		return outcome, err
	}
	inserted, err := a.Payouts.Create(ctx, payouts.Payout{
		ID:          ev.Payout.ID,
		SellerID:    sellerID,
		AmountCents: ev.Payout.Amount,
		Currency:    ev.Payout.Currency,
		Status:      payouts.StatusPending,
	})
	if err != nil {
		return "", err
	}
	if !inserted {
		return OutcomeNoop, nil
	}
	log.Info("payout recorded", zap.String("payout_id", ev.Payout.ID), zap.String("seller_id", sellerID))
	return OutcomeApplied, nil
}

func (a *Applier) settlePayout(ctx context.Context, log *zap.Logger, ev processor.Event, to payouts.Status) (Outcome, error) {
	sellerID, outcome, err := a.payoutSeller(ctx, log, ev)
	if sellerID == "" {
		return outcome, err
	}
	reason := ""
	if to == payouts.StatusFailed {
		reason = ev.Payout.FailureMessage
		if reason == "" && ev.Type == processor.EventPayoutCanceled {
			reason = "canceled"
		}
	}
	changed, err := a.Payouts.Settle(ctx, payouts.Payout{
		ID:            ev.Payout.ID,
		SellerID:      sellerID,
		AmountCents:   ev.Payout.Amount,
		Currency:      ev.Payout.Currency,
		Status:        to,
		FailureReason: reason,
	})
	if err != nil {
		return "", err
	}
	if !changed {
		return OutcomeNoop, nil
	}
	log.Info("payout settled", zap.String("payout_id", ev.Payout.ID), zap.String("status", string(to)))
	return OutcomeApplied, nil
}
