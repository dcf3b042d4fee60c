package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/app"
	"github.com/ariefcatur/lightshow-market/internal/config"
	kafkax "github.com/ariefcatur/lightshow-market/internal/kafka"
	"github.com/ariefcatur/lightshow-market/internal/logging"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.Must(cfg.AppEnv).With(zap.String("process", "settler"))
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open infra", zap.Error(err))
	}

	// Not tied to ctx: the producer must outlive the consumers and flush on Close.
	settled := infra.Producer(context.Background(), orders.TopicOrderSettled, 1024)
	applier := infra.Applier(settled)
	rec := infra.Reconciler(applier)
	retry := &settlement.RetryHandler{Applier: applier, Logger: logger.Named("retry"), MaxElapsed: time.Minute}

	// Consumers
	consumers := map[string]kafkax.Handler{
		orders.TopicWebhookRetry: retry.Handle,
		orders.TopicOrderOutbox:  rec.HandleOutbox,
	}
	var wg sync.WaitGroup
	for topic, h := range consumers {
		cons := kafkax.NewConsumer(logger, cfg.KafkaBrokers, cfg.SettlerGroup, topic, cfg.SettlerWorkers)
		wg.Add(1)
		go func(topic string, h kafkax.Handler) {
			defer wg.Done()
			logger.Info("consumer started",
				zap.String("group", cfg.SettlerGroup), zap.String("topic", topic), zap.Int("workers", cfg.SettlerWorkers))
			if err := cons.Start(ctx, h); err != nil {
				logger.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}(topic, h)
	}

	// Reconciliation sweep
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(cfg.ReconcileInterval)
		defer t.Stop()
		for {
			if _, err := rec.Sweep(ctx, cfg.ReconcileStaleAfter, cfg.ReconcileBatch); err != nil && ctx.Err() == nil {
				logger.Error("reconcile sweep failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down settler")
	cancel()
	wg.Wait()
	infra.Close()
}
