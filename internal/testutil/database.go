// Package testutil provides testcontainers-backed Postgres and Redis
// fixtures for integration tests, adapted from flux-go's
// internal/testutil/database.go to the jobs table schema and extended with
// a Redis fixture for the fast queue.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	flux_migrations "github.com/massanaroger/flux-jobs/migrations"
)

// SetupTestDatabase starts a disposable Postgres container and applies the
// embedded migrations against it.
func SetupTestDatabase(t *testing.T, ctx context.Context) (testcontainers.Container, *pgxpool.Pool) {
	t.Helper()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15"),
		postgres.WithDatabase("flux_jobs_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	files, err := flux_migrations.FS.ReadDir(".")
	require.NoError(t, err)
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || len(name) < 7 || name[len(name)-7:] != "up.sql" {
			continue
		}
		sqlBytes, err := flux_migrations.FS.ReadFile(name)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sqlBytes))
		require.NoError(t, err)
	}

	return pgContainer, pool
}

// CleanupTestDatabase closes the pool and terminates the container.
func CleanupTestDatabase(t *testing.T, ctx context.Context, container testcontainers.Container, pool *pgxpool.Pool) {
	t.Helper()
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		require.NoError(t, container.Terminate(ctx))
	}
}

// TruncateTables resets the jobs table between tests without tearing the
// container down.
func TruncateTables(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, "TRUNCATE TABLE jobs")
	require.NoError(t, err)
}

// SetupTestRedis starts a disposable Redis container for fast-queue tests.
func SetupTestRedis(t *testing.T, ctx context.Context) (testcontainers.Container, *redis.Client) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	return container, client
}

// CleanupTestRedis closes the client and terminates the container.
func CleanupTestRedis(t *testing.T, ctx context.Context, container testcontainers.Container, client *redis.Client) {
	t.Helper()
	if client != nil {
		require.NoError(t, client.Close())
	}
	if container != nil {
		require.NoError(t, container.Terminate(ctx))
	}
}
