package gormrepository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"smartflow/internal/config"
	"smartflow/internal/db"
)

// setupSQLiteStore opens a private in-memory database with the schema applied.
func setupSQLiteStore(t *testing.T) *Store {
	t.Helper()

	gdb, err := db.Open(config.DBConfig{
		Provider: db.ProviderSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return New(gdb.Gorm)
}

// setupPostgresStore starts a PostgreSQL container. It is skipped unless
// SF_TEST_POSTGRES=1 because it needs a docker daemon.
func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("SF_TEST_POSTGRES") != "1" {
		t.Skip("set SF_TEST_POSTGRES=1 to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("smartflow"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	gdb, err := db.Open(config.DBConfig{Provider: db.ProviderPostgres, DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.SetTimezone(gdb, "UTC"))
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return New(gdb.Gorm)
}
