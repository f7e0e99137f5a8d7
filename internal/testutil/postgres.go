// Package testutil starts throwaway dependencies for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Tomlord1122/takeout/internal/database"
)

const (
	dbName     = "takeout_test"
	dbUser     = "user"
	dbPassword = "password"
)

// StartPostgres runs a Postgres container for the duration of the test and
// returns its connection string. The test is skipped when no container
// runtime is available.
func StartPostgres(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}

// MigratedDB starts Postgres, applies all migrations and returns the service.
func MigratedDB(t *testing.T) database.Service {
	t.Helper()
	dsn := StartPostgres(t)

	svc, err := database.Open(dsn, dbName)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if _, err := database.NewMigrator(svc.SQL()).Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return svc
}
