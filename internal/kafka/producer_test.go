package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// No broker listens on the address; nothing here reaches the network.
func idleProducer(buf int) *Producer {
	return NewProducer(zap.NewNop(), []string{"127.0.0.1:1"}, "market.test", buf)
}

func TestProducer_PublishAfterClose(t *testing.T) {
	p := idleProducer(4)
	p.Start(context.Background())

	p.Close()
	p.WaitClosed()

	assert.NotPanics(t, func() { p.Publish([]byte("o1"), []byte(`{}`)) })
	assert.NotPanics(t, p.Close)
}

func TestProducer_PublishAfterLoopStopped(t *testing.T) {
	p := idleProducer(0)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	done := make(chan struct{})
	go func() {
		p.Publish([]byte("o1"), []byte(`{}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stopped producer")
	}
	p.Close()
}

func TestProducer_WritersFlushPromptly(t *testing.T) {
	p := idleProducer(4)

	assert.True(t, p.w.Async)
	assert.NotNil(t, p.w.Completion)
	assert.LessOrEqual(t, p.w.BatchTimeout, 10*time.Millisecond)
	assert.False(t, p.sync.Async)
	assert.LessOrEqual(t, p.sync.BatchTimeout, 10*time.Millisecond)
}

func TestProducer_CompletionLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := NewProducer(zap.New(core), []string{"127.0.0.1:1"}, "market.test", 1)

	p.completed([]kafka.Message{{Key: []byte("o1")}}, nil)
	assert.Equal(t, 0, logs.Len())

	p.completed([]kafka.Message{{Key: []byte("o1")}, {Key: []byte("o2")}}, errors.New("broker down"))
	assert.Equal(t, 2, logs.FilterMessage("kafka publish failed").Len())
}
