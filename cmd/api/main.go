package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/app"
	"github.com/ariefcatur/lightshow-market/internal/config"
	"github.com/ariefcatur/lightshow-market/internal/httpx"
	"github.com/ariefcatur/lightshow-market/internal/logging"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/postgres"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.Must(cfg.AppEnv)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(logger, cfg.PostgresDSN); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open infra", zap.Error(err))
	}

	// Kafka producers
	created := infra.Producer(ctx, orders.TopicOrderCreated, 1024)
	settled := infra.Producer(ctx, orders.TopicOrderSettled, 1024)
	outbox := infra.Producer(ctx, orders.TopicOrderOutbox, 16)
	retry := infra.Producer(ctx, orders.TopicWebhookRetry, 16)

	// Services
	cache := infra.StatusCache()
	mgr := sellers.NewManager(logger.Named("sellers"), infra.Sellers(), infra.Stripe)
	svc := &orders.Service{
		Store:    infra.Orders(),
		Accounts: mgr,
		Payments: infra.Stripe,
		Events:   created,
		Outbox:   outbox,
		Cache:    cache,
		FeeBps:   cfg.PlatformFeeBps,
		Producer: cfg.ServiceName,
		Logger:   logger.Named("orders"),
	}

	// HTTP
	rs := httpx.Responder{Logger: logger.Named("http"), Debug: !cfg.IsProduction()}
	auth := httpx.NewAuthenticator(cfg.AuthJWTSecret, rs)
	router := httpx.NewRouter(logger.Named("http"))
	(&httpx.WebhookHandler{
		Responder: rs,
		Verifier:  processor.NewStripeVerifier(cfg.StripeWebhookSecret),
		Applier:   infra.Applier(settled),
		Retry:     &settlement.RetryQueue{Sender: retry},
	}).Register(router)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		(&httpx.OnboardingHandler{Responder: rs, Sellers: mgr}).Register(r)
		(&httpx.OrdersHandler{Responder: rs, Orders: svc, Cache: cache}).Register(r)
		(&httpx.PayoutsHandler{Responder: rs, Payouts: infra.Payouts()}).Register(r)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	infra.Close() // flush producers, then close redis & db
	cancel()
}
