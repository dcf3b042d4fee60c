package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// PostgresDSNEnv names an existing database to test against instead of a
// container. Packages share it, so run with -p 1 when it is set.
const PostgresDSNEnv = "TEST_POSTGRES_DSN"

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// Postgres returns a pool on a migrated database with every table emptied.
// The container starts once per test binary; the testcontainers reaper
// removes it when the binary exits.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in -short mode")
	}

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
		pgOnce.Do(func() { pgDSN, pgErr = startPostgres() })
		if pgErr != nil {
			t.Fatalf("start postgres: %v", pgErr)
		}
		dsn = pgDSN
	}

	if err := postgres.Migrate(zap.NewNop(), dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn, 16)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE payouts, orders, seller_accounts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func startPostgres() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const (
		user     = "market"
		password = "market"
		dbName   = "market_test"
	)
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": password,
			"POSTGRES_DB":       dbName,
		},
		// The init run restarts the server once before it is ready for good.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := pgC.Host(ctx)
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = pgC.Terminate(context.Background())
		return "", fmt.Errorf("mapped port: %w", err)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), dbName), nil
}
