//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/sentinel/internal/database"
)

// testDB manages a PostgreSQL testcontainer with migrations applied
type testDB struct {
	container testcontainers.Container
	pool      *pgxpool.Pool
	db        *database.DB
}

func setupTestDatabase(t *testing.T) *testDB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("sentinel"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create connection pool: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if err := database.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	tdb := &testDB{
		container: container,
		pool:      pool,
		db:        database.NewDB(pool, logger),
	}
	t.Cleanup(func() { tdb.teardown(ctx) })

	return tdb
}

func (d *testDB) teardown(ctx context.Context) {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.container != nil {
		_ = d.container.Terminate(ctx)
	}
}

// truncate empties every table for test isolation
func (d *testDB) truncate(t *testing.T) {
	t.Helper()
	for _, table := range []string{"attempt_logs", "access_entries"} {
		if _, err := d.pool.Exec(context.Background(), fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
