package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Runs only when RELAYBOT_TEST_REDIS_URL points at a disposable Redis.
func testRedisQuota(t *testing.T) *RedisQuota {
	t.Helper()
	url := os.Getenv("RELAYBOT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RELAYBOT_TEST_REDIS_URL not set")
	}
	q, err := NewRedisQuota(context.Background(), url)
	if err != nil {
		t.Fatalf("NewRedisQuota: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestQuotaKey(t *testing.T) {
	if got := quotaKey("g1", "2024-01-02"); got != "relaybot:quota:g1:2024-01-02" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestRedisQuota_Reserve(t *testing.T) {
	q := testRedisQuota(t)
	ctx := context.Background()
	guild := "test-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		if ok, err := q.Reserve(ctx, guild, 2); err != nil || !ok {
			t.Fatalf("reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := q.Reserve(ctx, guild, 2); ok {
		t.Fatal("third reservation should be refused")
	}
	if n, _ := q.Usage(ctx, guild, time.Now()); n != 2 {
		t.Errorf("refused reservation must be refunded, usage=%d", n)
	}
}

func TestRedisQuota_Release(t *testing.T) {
	q := testRedisQuota(t)
	ctx := context.Background()
	guild := "test-" + uuid.NewString()

	if err := q.Release(ctx, guild); err != nil {
		t.Fatalf("release on missing key: %v", err)
	}
	if n, _ := q.Usage(ctx, guild, time.Now()); n != 0 {
		t.Fatalf("usage must not go below zero, got %d", n)
	}
	q.Reserve(ctx, guild, 1)
	if err := q.Release(ctx, guild); err != nil {
		t.Fatal(err)
	}
	if ok, _ := q.Reserve(ctx, guild, 1); !ok {
		t.Error("released unit should be reservable again")
	}
}
