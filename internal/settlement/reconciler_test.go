package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/ariefcatur/lightshow-market/internal/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(f *fixture, proc *testutil.Processor) *settlement.Reconciler {
	return &settlement.Reconciler{
		Applier:  f.applier,
		Orders:   f.orders,
		Payments: proc,
		Logger:   testutil.Logger(),
	}
}

func TestSweep_SettlesStaleOrders(t *testing.T) {
	f := newFixture(t)
	proc := testutil.NewProcessor()
	proc.SetPaymentStatus("pi_1", processor.PaymentSucceeded)

	f.orders.Put(orders.Order{ID: "order-2", ExternalPaymentReference: "pi_2", Status: orders.StatusPending,
		CreatedAt: time.Now().Add(-2 * time.Hour)})
	proc.SetPaymentStatus("pi_2", processor.PaymentCanceled)

	f.orders.Put(orders.Order{ID: "order-3", ExternalPaymentReference: "pi_3", Status: orders.StatusPending,
		CreatedAt: time.Now().Add(-2 * time.Hour)})
	proc.SetPaymentStatus("pi_3", processor.PaymentRequiresMethod)

	// Too recent to be swept.
	f.orders.Put(orders.Order{ID: "order-4", ExternalPaymentReference: "pi_4", Status: orders.StatusPending,
		CreatedAt: time.Now()})
	proc.SetPaymentStatus("pi_4", processor.PaymentSucceeded)

	res, err := newReconciler(f, proc).Sweep(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)

	assert.Equal(t, settlement.SweepResult{Examined: 3, Settled: 2, Pending: 1}, res)
	assert.Equal(t, orders.StatusPaid, f.order(t, "order-1").Status)
	assert.Equal(t, orders.StatusExpired, f.order(t, "order-2").Status)
	assert.Equal(t, orders.StatusPending, f.order(t, "order-3").Status)
	assert.Equal(t, orders.StatusPending, f.order(t, "order-4").Status)
}

func TestSweep_ProcessorErrorsAreCounted(t *testing.T) {
	f := newFixture(t)
	proc := testutil.NewProcessor()
	proc.GetPaymentErr = errors.New("timeout")

	res, err := newReconciler(f, proc).Sweep(context.Background(), time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, orders.StatusPending, f.order(t, "order-1").Status)
}

func TestSweep_ListError(t *testing.T) {
	f := newFixture(t)
	f.orders.ListErr = errors.New("db down")

	_, err := newReconciler(f, testutil.NewProcessor()).Sweep(context.Background(), time.Minute, 10)
	require.Error(t, err)
}

func outboxMessage(t *testing.T, o orders.Order) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(orders.EventOrderOutbox, "market-test", "", o.ID,
		orders.OutboxRecord{Order: o, Cause: "db down", QueuedAt: time.Now()})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(o.ID), Value: b}
}

func TestHandleOutbox_RecoversAndSettles(t *testing.T) {
	f := newFixture(t)
	proc := testutil.NewProcessor()
	proc.SetPaymentStatus("pi_9", processor.PaymentSucceeded)
	r := newReconciler(f, proc)

	lost := orders.Order{ID: "order-9", BuyerID: "buyer-1", SellerID: "seller-1", ItemID: "show-1",
		AmountCents: 500, Currency: "USD", PlatformFeeCents: 50, ExternalPaymentReference: "pi_9",
		CreatedAt: time.Now().Add(-time.Minute)}

	require.NoError(t, r.HandleOutbox(context.Background(), outboxMessage(t, lost)))
	o := f.order(t, "order-9")
	assert.Equal(t, orders.StatusPaid, o.Status)
	assert.Equal(t, int64(50), o.PlatformFeeCents)

	// Replaying the record leaves the settled row alone.
	require.NoError(t, r.HandleOutbox(context.Background(), outboxMessage(t, lost)))
	assert.Equal(t, orders.StatusPaid, f.order(t, "order-9").Status)
}

func TestHandleOutbox_KeepsPendingWhenProcessorUnavailable(t *testing.T) {
	f := newFixture(t)
	proc := testutil.NewProcessor()
	proc.GetPaymentErr = errors.New("timeout")

	lost := orders.Order{ID: "order-9", ExternalPaymentReference: "pi_9", AmountCents: 500, Currency: "USD"}
	require.NoError(t, newReconciler(f, proc).HandleOutbox(context.Background(), outboxMessage(t, lost)))
	assert.Equal(t, orders.StatusPending, f.order(t, "order-9").Status)
}

func TestHandleOutbox_InsertFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	f.orders.InsertErr = errors.New("db down")

	lost := orders.Order{ID: "order-9", ExternalPaymentReference: "pi_9"}
	err := newReconciler(f, testutil.NewProcessor()).HandleOutbox(context.Background(), outboxMessage(t, lost))
	require.Error(t, err)
}

func TestHandleOutbox_DropsGarbage(t *testing.T) {
	f := newFixture(t)
	r := newReconciler(f, testutil.NewProcessor())

	require.NoError(t, r.HandleOutbox(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	require.NoError(t, r.HandleOutbox(context.Background(), outboxMessage(t, orders.Order{ID: "order-x"})))
	assert.Len(t, f.orders.All(), 1)
}
