package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is done and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	workers int
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

func NewConsumer(logger *zap.Logger, brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(logger.With(zap.String("topic", topic), zap.String("group", group)), r, workers)
}

func newConsumer(logger *zap.Logger, r reader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, logger: logger, backoff: retryPolicy}
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // until the handler succeeds or ctx ends
	return b
}

// Start fetches messages and fans them out to the worker pool until ctx ends.
// Each partition is pinned to one worker, and a failing message is retried in
// place, so a commit never moves the offset past an unfinished message.
// Messages still unfinished at shutdown are redelivered on the next start.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if ctx.Err() != nil {
					continue
				}
				if err := c.process(ctx, id, h, m); err != nil {
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.logger.Warn("commit failed", zap.Int("worker", id), zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, jobs[i])
	}
	defer wg.Wait()
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// quiet on shutdown
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h until it succeeds; it only gives up when ctx ends.
func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) error {
	attempt := 0
	op := func() error {
		attempt++
		return h(ctx, m)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Error("handler failed; retrying",
			zap.Int("worker", worker), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(c.backoff(), ctx), notify)
}
