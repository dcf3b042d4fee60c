// Package app opens the connections shared by the market processes and wires
// the settlement side on top of them.
package app

import (
	"context"

	"github.com/ariefcatur/lightshow-market/internal/config"
	kafkax "github.com/ariefcatur/lightshow-market/internal/kafka"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/payouts"
	"github.com/ariefcatur/lightshow-market/internal/postgres"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/redisx"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	"github.com/ariefcatur/lightshow-market/internal/settlement"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Infra struct {
	Config config.Config
	Logger *zap.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stripe *processor.StripeClient

	producers []*kafkax.Producer
}

// Open connects to Postgres and Redis and builds the processor client.
// Kafka producers are opened on demand with Producer.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Infra, error) {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		return nil, err
	}
	return &Infra{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Redis:  redisx.New(cfg.RedisAddr),
		Stripe: processor.NewStripeClient(processor.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			RefreshURL: cfg.OnboardingRefreshURL,
			ReturnURL:  cfg.OnboardingReturnURL,
			RPS:        cfg.StripeRPS,
		}),
	}, nil
}

// Producer starts a producer for topic; Close flushes it.
func (i *Infra) Producer(ctx context.Context, topic string, buf int) *kafkax.Producer {
	p := kafkax.NewProducer(i.Logger, i.Config.KafkaBrokers, topic, buf)
	p.Start(ctx)
	i.producers = append(i.producers, p)
	return p
}

func (i *Infra) Sellers() *sellers.Repo { return &sellers.Repo{DB: i.DB} }
func (i *Infra) Orders() *orders.Repo   { return &orders.Repo{DB: i.DB} }
func (i *Infra) Payouts() *payouts.Repo { return &payouts.Repo{DB: i.DB} }

func (i *Infra) StatusCache() *redisx.StatusCache { return redisx.NewStatusCache(i.Redis) }

// Applier wires the settlement applier to the stores, publishing settled
// orders to settled.
func (i *Infra) Applier(settled orders.Publisher) *settlement.Applier {
	return &settlement.Applier{
		Orders:   i.Orders(),
		Accounts: i.Sellers(),
		Payouts:  i.Payouts(),
		Events:   settled,
		Dedup:    redisx.NewDeduper(i.Redis, "settlement"),
		Cache:    i.StatusCache(),
		Producer: i.Config.ServiceName,
		Logger:   i.Logger.Named("settlement"),
	}
}

func (i *Infra) Reconciler(a *settlement.Applier) *settlement.Reconciler {
	return &settlement.Reconciler{
		Applier:  a,
		Orders:   i.Orders(),
		Payments: i.Stripe,
		Logger:   i.Logger.Named("reconcile"),
	}
}

// Close flushes producers, then closes Redis and the pool.
func (i *Infra) Close() {
	for _, p := range i.producers {
		p.Close()
	}
	for _, p := range i.producers {
		p.WaitClosed()
	}
	_ = i.Redis.Close()
	i.DB.Close()
}
