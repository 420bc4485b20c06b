package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/order/*.sql
var orderMigrations embed.FS

//go:embed migrations/storage/*.sql
var storageMigrations embed.FS

// NewPool opens and verifies a pgx connection pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// MigrateOrder applies the order-service schema.
func MigrateOrder(dsn string) error {
	return runMigrations(dsn, orderMigrations, "migrations/order")
}

// MigrateStorage applies the storage-service schema.
func MigrateStorage(dsn string) error {
	return runMigrations(dsn, storageMigrations, "migrations/storage")
}

func runMigrations(dsn string, fs embed.FS, path string) error {
	src, err := iofs.New(fs, path)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	// The pgx/v5 migrate driver registers under the pgx5 scheme.
	m, err := migrate.NewWithSourceInstance("iofs", src, strings.Replace(dsn, "postgres://", "pgx5://", 1))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
