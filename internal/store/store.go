// Package store implements the durable, authoritative tier (component A):
// a single Postgres table backing every job for its entire lifetime, with
// an atomic skip-locked claim as the engine's one hard serialization point.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	flux_migrations "github.com/massanaroger/flux-jobs/migrations"
)

// Store is the durable store adapter. It satisfies ports.Store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New wraps an already-connected pgxpool.Pool.
func New(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Connect opens a pgxpool.Pool against dsn and verifies connectivity,
// mirroring the teacher's NewPostgresPool helper.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return pool, nil
}

// Migrate applies every embedded migration in migrations/ using
// golang-migrate. This is the supported, explicit schema-management path
// (SPEC_FULL.md's Open Question resolution); AutoMigrateDev below is a
// development-only alternative.
func Migrate(dsn string, fsys embed.FS) error {
	source, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "flux", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// AutoMigrateDev runs the equivalent DDL inline. It exists only for local
// development and tests where running golang-migrate against a throwaway
// database is unnecessary ceremony; production deployments use Migrate.
func AutoMigrateDev(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := flux_migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || len(f.Name()) < 7 || f.Name()[len(f.Name())-7:] != "up.sql" {
			continue
		}
		sqlBytes, err := flux_migrations.FS.ReadFile(f.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name(), err)
		}
	}
	return nil
}

var _ = stdlib.OpenDBFromPool // keep pgx/v5/stdlib registered for sql.Open("pgx", ...)
