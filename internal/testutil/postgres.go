package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Stepanin42/market-task/internal/db"
)

const (
	dbUser     = "market_user"
	dbPassword = "market_pass"
)

// StartStoragePostgres launches a throwaway Postgres container with the
// storage-service schema applied and returns a ready pool plus a cleanup
// function.
func StartStoragePostgres(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	return startPostgres(ctx, t, "storage", db.MigrateStorage)
}

// StartOrderPostgres is StartStoragePostgres for the order-service schema.
func StartOrderPostgres(ctx context.Context, t *testing.T) (*pgxpool.Pool, func()) {
	return startPostgres(ctx, t, "orders", db.MigrateOrder)
}

func startPostgres(ctx context.Context, t *testing.T, dbName string, migrate func(string) error) (*pgxpool.Pool, func()) {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres connection string: %v", err)
	}

	if err := migrate(dsn); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect to postgres: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	}
	return pool, cleanup
}
