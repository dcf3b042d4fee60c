package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes to one topic. Publish is asynchronous through a buffered
// inbox and an async writer whose failures are logged; Send writes
// synchronously and returns the broker's answer.
type Producer struct {
	w       *kafka.Writer
	sync    *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(logger *zap.Logger, brokers []string, topic string, buf int) *Producer {
	p := &Producer{
		sync: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			BatchTimeout: 5 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logger:  logger.With(zap.String("topic", topic)),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *Producer) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.logger.Error("kafka publish failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriters()
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) drain() {
	for {
		select {
		case m, ok := <-p.inbox:
			if !ok {
				p.closeWriters()
				return
			}
			p.write(m)
		default:
			p.closeWriters()
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Error("kafka publish failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) closeWriters() {
	_ = p.w.Close()
	_ = p.sync.Close()
}

// Publish queues a message. After Close, or once the loop has stopped, the
// message is dropped and logged.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("publish after close; dropped", zap.ByteString("key", key))
		return
	}
	select {
	case <-p.closeCh:
		p.logger.Warn("producer stopped; dropped", zap.ByteString("key", key))
		return
	default:
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
	case <-p.closeCh:
		p.logger.Warn("producer stopped; dropped", zap.ByteString("key", key))
	}
}

// Send writes one message and blocks until it is acknowledged by all replicas.
func (p *Producer) Send(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.sync.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
}

// Close the inbox so the loop flushes what is left and exits. Safe to call twice.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
