// Package testhelpers starts throwaway containers for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/database"
)

// StoreTestImage is PostgreSQL with the pgvector extension available.
const StoreTestImage = "pgvector/pgvector:pg16"

// RedisTestImage backs cancellation-marker and cache tests.
const RedisTestImage = "redis:7-alpine"

// StoreDB is a migrated system store shared by every test in the run.
type StoreDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedStore     *StoreDB
	sharedStoreOnce sync.Once
	sharedStoreErr  error
)

// GetStoreDB returns the shared migrated store, starting it on first use.
// Skipped in -short mode because it requires Docker.
func GetStoreDB(t *testing.T) *StoreDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedStoreOnce.Do(func() {
		sharedStore, sharedStoreErr = setupStoreDB()
	})
	if sharedStoreErr != nil {
		t.Fatalf("Failed to setup store database: %v", sharedStoreErr)
	}
	return sharedStore
}

func setupStoreDB() (*StoreDB, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        StoreTestImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "insights_test",
				"POSTGRES_USER":     "ekaya",
				"POSTGRES_PASSWORD": "test_password",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/insights_test?sslmode=disable", host, port.Port())

	sqlDB, err := database.OpenSQL(connStr)
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{URL: connStr, MaxConnections: 5})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	return &StoreDB{Container: container, DB: db, ConnStr: connStr}, nil
}

// Truncate empties the given tables so each test starts clean.
func (s *StoreDB) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := s.DB.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

var (
	sharedRedisAddr string
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

// GetRedisAddr returns host:port of a shared Redis container.
func GetRedisAddr(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRedisOnce.Do(func() {
		ctx := context.Background()
		var container testcontainers.Container
		container, sharedRedisErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        RedisTestImage,
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			},
			Started: true,
		})
		if sharedRedisErr != nil {
			return
		}
		host, err := container.Host(ctx)
		if err != nil {
			sharedRedisErr = err
			return
		}
		port, err := container.MappedPort(ctx, "6379")
		if err != nil {
			sharedRedisErr = err
			return
		}
		sharedRedisAddr = fmt.Sprintf("%s:%s", host, port.Port())
	})
	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup redis: %v", sharedRedisErr)
	}
	return sharedRedisAddr
}
