package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// 需要真实 Redis：REDIS_ADDR=localhost:6379 go test ./...
func newTestLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRateLimiter(NewClientFromRedis(rdb))
}

func TestFixedWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	key := "postai:test:" + t.Name() + ":" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = l.Reset(ctx, key) })

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, key, 3, 300*time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, key, 3, 300*time.Millisecond); ok {
		t.Fatal("4th request must be rejected")
	}

	time.Sleep(400 * time.Millisecond)
	if ok, err := l.Allow(ctx, key, 3, 300*time.Millisecond); err != nil || !ok {
		t.Fatalf("window should have reset: ok=%v err=%v", ok, err)
	}
}
