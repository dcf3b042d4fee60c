package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/ariefcatur/lightshow-market/internal/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyApplier struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (a *flakyApplier) Apply(_ context.Context, _ processor.Event) (settlement.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= a.failures {
		return "", errors.New("db unavailable")
	}
	return settlement.OutcomeApplied, nil
}

func retryMessage(t *testing.T, ev processor.Event) kafkago.Message {
	t.Helper()
	pub := &testutil.Publisher{}
	q := &settlement.RetryQueue{Sender: pub}
	require.NoError(t, q.Enqueue(context.Background(), ev))
	sent := pub.Sent()
	require.Len(t, sent, 1)
	return kafkago.Message{Key: sent[0].Key, Value: sent[0].Value, Headers: sent[0].Headers}
}

func TestRetryQueue_EnqueueKeysByEventID(t *testing.T) {
	ev := paymentEvent("evt_7", processor.EventPaymentSucceeded, "pi_1", "")
	m := retryMessage(t, ev)

	assert.Equal(t, []byte("evt_7"), m.Key)
	var got processor.Event
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, ev.Payment.Reference, got.Payment.Reference)
	assert.Equal(t, ev.Type, got.Type)
}

func TestRetryQueue_SendFailure(t *testing.T) {
	q := &settlement.RetryQueue{Sender: &testutil.Publisher{SendErr: errors.New("broker down")}}
	err := q.Enqueue(context.Background(), processor.Event{ID: "evt_1"})
	require.Error(t, err)
}

func TestRetryHandler_AppliesAfterTransientFailure(t *testing.T) {
	a := &flakyApplier{failures: 1}
	h := &settlement.RetryHandler{Applier: a, Logger: testutil.Logger(), MaxElapsed: 5 * time.Second}

	err := h.Handle(context.Background(), retryMessage(t, processor.Event{ID: "evt_1", Type: processor.EventPayoutPaid}))
	require.NoError(t, err)
	assert.Equal(t, 2, a.calls)
}

func TestRetryHandler_GivesUpAfterMaxElapsed(t *testing.T) {
	a := &flakyApplier{failures: 1 << 20}
	h := &settlement.RetryHandler{Applier: a, Logger: testutil.Logger(), MaxElapsed: 300 * time.Millisecond}

	err := h.Handle(context.Background(), retryMessage(t, processor.Event{ID: "evt_1"}))
	require.Error(t, err)
	assert.GreaterOrEqual(t, a.calls, 1)
}

func TestRetryHandler_EndToEnd(t *testing.T) {
	f := newFixture(t)
	h := &settlement.RetryHandler{Applier: f.applier, Logger: testutil.Logger()}

	err := h.Handle(context.Background(), retryMessage(t, paymentEvent("evt_1", processor.EventPaymentSucceeded, "pi_1", "")))
	require.NoError(t, err)
	assert.Equal(t, "paid", string(f.order(t, "order-1").Status))
}

func TestRetryHandler_DropsUndecodable(t *testing.T) {
	h := &settlement.RetryHandler{Applier: &flakyApplier{}, Logger: testutil.Logger()}
	require.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte("nope")}))
}
