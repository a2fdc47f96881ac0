//go:build integration

package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// TestDependencies verifies each backing service the api and worker binaries
// need is reachable. Each check is skipped when its env var is absent, so
// the test works against partial local setups.
func TestDependencies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			t.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			t.Fatalf("db ping failed: %v", err)
		}
		var n int
		if err := pool.QueryRow(ctx, "SELECT count(*) FROM outbox_envelopes WHERE status = 'pending'").Scan(&n); err != nil {
			t.Fatalf("outbox table check failed: %v", err)
		}
	} else {
		t.Skip("DATABASE_URL not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}
	_ = redisClient.Close()

	if influxURL := os.Getenv("INFLUX_URL"); influxURL != "" {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, influxURL+"/health", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("influx health failed: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			t.Fatalf("influx health status: %d", resp.StatusCode)
		}
	}

	asynqRedis := os.Getenv("ASYNQ_REDIS_ADDR")
	if asynqRedis == "" {
		t.Skip("ASYNQ_REDIS_ADDR not set")
	}
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: asynqRedis})
	defer inspector.Close()
	if _, err := inspector.GetQueueInfo("outbox"); err != nil {
		t.Logf("asynq queue not created yet: %v", err)
	}
}
