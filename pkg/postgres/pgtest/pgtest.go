// Package pgtest opens throwaway Postgres schemas for tests. Tests skip
// when no server is reachable.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/postgres"
	"github.com/lib/pq"
)

func Config() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "trialstreamer_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "trialstreamer"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectAttempts: 1,
	}
}

// Open returns a client whose search_path is a fresh schema dropped at
// cleanup, so tests can create the fixed table names without colliding.
func Open(t testing.TB) *postgres.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config()
	admin, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	schema := fmt.Sprintf("ts_test_%d", time.Now().UnixNano())
	if _, err := admin.DB.ExecContext(ctx, "CREATE SCHEMA "+pq.QuoteIdentifier(schema)); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	t.Cleanup(func() {
		admin.DB.Exec("DROP SCHEMA " + pq.QuoteIdentifier(schema) + " CASCADE")
	})

	cfg.SearchPath = schema
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Fatalf("opening schema %s: %v", schema, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
