package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/payouts"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/ariefcatur/lightshow-market/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	applier *settlement.Applier
	orders  *testutil.OrderStore
	sellers *testutil.SellerStore
	payouts *testutil.PayoutStore
	events  *testutil.Publisher
	dedup   *testutil.Deduper
	cache   *testutil.StatusCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orders:  testutil.NewOrderStore(),
		sellers: testutil.NewSellerStore(),
		payouts: testutil.NewPayoutStore(),
		events:  &testutil.Publisher{},
		dedup:   testutil.NewDeduper(),
		cache:   testutil.NewStatusCache(),
	}
	f.applier = &settlement.Applier{
		Orders:   f.orders,
		Accounts: f.sellers,
		Payouts:  f.payouts,
		Events:   f.events,
		Dedup:    f.dedup,
		Cache:    f.cache,
		Producer: "market-test",
		Logger:   testutil.Logger(),
	}
	f.sellers.Put(sellers.Account{SellerID: "seller-1", ExternalAccountID: "acct_1"})
	f.orders.Put(orders.Order{
		ID: "order-1", BuyerID: "buyer-1", SellerID: "seller-1", ItemID: "show-1",
		AmountCents: 1999, Currency: "USD", PlatformFeeCents: 200,
		ExternalPaymentReference: "pi_1", Status: orders.StatusPending,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	return f
}

func (f *fixture) order(t *testing.T, id string) orders.Order {
	t.Helper()
	o, err := f.orders.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func paymentEvent(id, typ, ref, msg string) processor.Event {
	return processor.Event{ID: id, Type: typ, Payment: &processor.PaymentObject{Reference: ref, FailureMessage: msg}}
}

func TestApply_PaymentSucceededMarksPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)
	assert.Equal(t, orders.StatusPaid, f.order(t, "order-1").Status)

	cached, ok, _ := f.cache.GetStatus(ctx, "order-1")
	assert.True(t, ok)
	assert.Equal(t, orders.StatusPaid, cached.Status)

	sent := f.events.Sent()
	require.Len(t, sent, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(sent[0].Value, &env))
	assert.Equal(t, orders.EventOrderPaid, env.EventType)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.Equal(t, []byte("order-1"), sent[0].Key)
}

func TestApply_RedeliveryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)

	// Same event id: short-circuited by the dedup fast path.
	out, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeDuplicate, out)

	// New id, same payment: the guarded transition refuses.
	out, err = f.applier.Apply(ctx, paymentEvent("evt_2", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNoop, out)

	assert.Len(t, f.events.Sent(), 1)
}

func TestApply_TerminalOrderIgnoresLaterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	out, err := f.applier.Apply(ctx, paymentEvent("evt_2", processor.EventPaymentFailed, "pi_1", "card declined"))
	require.NoError(t, err)

	assert.Equal(t, settlement.OutcomeNoop, out)
	o := f.order(t, "order-1")
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Empty(t, o.FailureMessage)
}

func TestApply_PaymentFailedKeepsMessage(t *testing.T) {
	f := newFixture(t)

	out, err := f.applier.Apply(context.Background(),
		paymentEvent("evt_1", processor.EventPaymentFailed, "pi_1", "Your card was declined."))
	require.NoError(t, err)

	assert.Equal(t, settlement.OutcomeApplied, out)
	o := f.order(t, "order-1")
	assert.Equal(t, orders.StatusFailed, o.Status)
	assert.Equal(t, "Your card was declined.", o.FailureMessage)
}

func TestApply_UnknownReferenceIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	out, err := f.applier.Apply(context.Background(),
		paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_unknown", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNotFound, out)
	assert.Equal(t, orders.StatusPending, f.order(t, "order-1").Status)
	assert.Empty(t, f.events.Sent())
}

func TestApply_CheckoutExpiredFallsBackToSession(t *testing.T) {
	f := newFixture(t)
	f.orders.Put(orders.Order{ID: "order-2", ExternalPaymentReference: "cs_2", Status: orders.StatusPending})

	out, err := f.applier.Apply(context.Background(), processor.Event{
		ID:      "evt_1",
		Type:    processor.EventCheckoutExpired,
		Payment: &processor.PaymentObject{Reference: "pi_missing", SessionID: "cs_2"},
	})
	require.NoError(t, err)

	assert.Equal(t, settlement.OutcomeApplied, out)
	assert.Equal(t, orders.StatusExpired, f.order(t, "order-2").Status)
}

func TestApply_PaymentCanceledExpires(t *testing.T) {
	f := newFixture(t)

	_, err := f.applier.Apply(context.Background(),
		paymentEvent("evt_1", processor.EventPaymentCanceled, "pi_1", "abandoned"))
	require.NoError(t, err)

	o := f.order(t, "order-1")
	assert.Equal(t, orders.StatusExpired, o.Status)
	assert.Empty(t, o.FailureMessage)
}

func TestApply_InfraErrorIsReturnedAndNotDeduped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.TransitionErr = errors.New("connection refused")

	_, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.Error(t, err)

	seen, _ := f.dedup.Seen(ctx, "evt_1")
	assert.False(t, seen)

	f.orders.TransitionErr = nil
	out, err := f.applier.Apply(ctx, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)
}

func TestApply_DedupOutageDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.dedup.Err = errors.New("redis down")

	out, err := f.applier.Apply(context.Background(),
		paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)
}

func TestApply_UnhandledTypeIgnored(t *testing.T) {
	f := newFixture(t)

	out, err := f.applier.Apply(context.Background(), processor.Event{ID: "evt_1", Type: "charge.refunded"})
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeIgnored, out)
}

func TestApply_AccountUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.applier.Apply(ctx, processor.Event{
		ID:            "evt_1",
		Type:          processor.EventAccountUpdated,
		AccountUpdate: &processor.Account{ID: "acct_1", ChargesEnabled: true, PayoutsEnabled: false},
	})
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)

	acc, err := f.sellers.Get(ctx, "seller-1")
	require.NoError(t, err)
	assert.True(t, acc.ChargesEnabled)
	assert.False(t, acc.PayoutsEnabled)

	out, err = f.applier.Apply(ctx, processor.Event{
		ID:            "evt_2",
		Type:          processor.EventAccountUpdated,
		AccountUpdate: &processor.Account{ID: "acct_unknown", ChargesEnabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNotFound, out)
	assert.Equal(t, 1, f.sellers.Len())
}

func payoutEvent(id, typ, account, payoutID, msg string) processor.Event {
	return processor.Event{
		ID:      id,
		Type:    typ,
		Account: account,
		Payout:  &processor.PayoutObject{ID: payoutID, Amount: 1799, Currency: "usd", FailureMessage: msg},
	}
}

func TestApply_PayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.applier.Apply(ctx, payoutEvent("evt_1", processor.EventPayoutCreated, "acct_1", "po_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)
	p, ok := f.payouts.Lookup("po_1")
	require.True(t, ok)
	assert.Equal(t, payouts.StatusPending, p.Status)
	assert.Equal(t, "seller-1", p.SellerID)

	out, err = f.applier.Apply(ctx, payoutEvent("evt_2", processor.EventPayoutPaid, "acct_1", "po_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)
	p, _ = f.payouts.Lookup("po_1")
	assert.Equal(t, payouts.StatusPaid, p.Status)

	out, err = f.applier.Apply(ctx, payoutEvent("evt_3", processor.EventPayoutFailed, "acct_1", "po_1", "account closed"))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNoop, out)
	p, _ = f.payouts.Lookup("po_1")
	assert.Equal(t, payouts.StatusPaid, p.Status)
}

func TestApply_PayoutOutOfOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.applier.Apply(ctx, payoutEvent("evt_2", processor.EventPayoutFailed, "acct_1", "po_1", "account closed"))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeApplied, out)

	out, err = f.applier.Apply(ctx, payoutEvent("evt_1", processor.EventPayoutCreated, "acct_1", "po_1", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNoop, out)

	p, ok := f.payouts.Lookup("po_1")
	require.True(t, ok)
	assert.Equal(t, payouts.StatusFailed, p.Status)
	assert.Equal(t, "account closed", p.FailureReason)
}

func TestApply_PayoutCanceledRecordsReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.applier.Apply(context.Background(), payoutEvent("evt_1", processor.EventPayoutCanceled, "acct_1", "po_1", ""))
	require.NoError(t, err)

	p, ok := f.payouts.Lookup("po_1")
	require.True(t, ok)
	assert.Equal(t, payouts.StatusFailed, p.Status)
	assert.Equal(t, "canceled", p.FailureReason)
}

func TestApply_PayoutForUnknownAccount(t *testing.T) {
	f := newFixture(t)

	out, err := f.applier.Apply(context.Background(), payoutEvent("evt_1", processor.EventPayoutPaid, "acct_other", "po_9", ""))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeNotFound, out)
	_, ok := f.payouts.Lookup("po_9")
	assert.False(t, ok)
}
