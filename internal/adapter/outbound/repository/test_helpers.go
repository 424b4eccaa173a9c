package repository

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB connects to the local test database, skipping the test when no
// database is reachable so the SQL-level suite only runs where Postgres (with
// migrations applied) is available.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	port := 5432
	if p, err := strconv.Atoi(envOr("EMBEDQUEUE_TEST_DB_PORT", "5432")); err == nil {
		port = p
	}

	config := DatabaseConfig{
		Host:     envOr("EMBEDQUEUE_TEST_DB_HOST", "localhost"),
		Port:     port,
		Database: envOr("EMBEDQUEUE_TEST_DB_NAME", "embedqueue"),
		Username: envOr("EMBEDQUEUE_TEST_DB_USER", "dev"),
		Password: envOr("EMBEDQUEUE_TEST_DB_PASSWORD", "dev"),
		Schema:   DefaultSchema,
	}

	pool, err := NewDatabaseConnection(config)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// cleanupSourceType removes every queue row a test created under its private
// source_type namespace.
func cleanupSourceType(t *testing.T, pool *pgxpool.Pool, sourceType string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`DELETE FROM `+queueItemTable+` WHERE source_type = $1`, sourceType)
	if err != nil {
		t.Logf("cleanup of source_type %s failed: %v", sourceType, err)
	}
}

// cleanupWorker removes a test worker's registry row.
func cleanupWorker(t *testing.T, pool *pgxpool.Pool, workerID string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`DELETE FROM embedqueue.embedding_queue_workers WHERE worker_id = $1`, workerID)
	if err != nil {
		t.Logf("cleanup of worker %s failed: %v", workerID, err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
