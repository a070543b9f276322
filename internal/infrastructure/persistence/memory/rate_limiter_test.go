package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestEleventhRequestRejected(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		ok, _ := l.Allow(ctx, "1.2.3.4", 10, time.Minute)
		if !ok {
			t.Fatalf("request %d rejected", i)
		}
		clock.Advance(time.Second)
	}
	if ok, _ := l.Allow(ctx, "1.2.3.4", 10, time.Minute); ok {
		t.Fatal("11th request within the window must be rejected")
	}
	if ok, _ := l.Allow(ctx, "5.6.7.8", 10, time.Minute); !ok {
		t.Fatal("other keys are independent")
	}
}

func TestWindowResetsAfterElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, _ = l.Allow(ctx, "k", 10, time.Minute)
	}

	// 恰好 60 秒仍在窗口内
	clock.Advance(time.Minute)
	if ok, _ := l.Allow(ctx, "k", 10, time.Minute); ok {
		t.Fatal("window must not reset at exactly 60s")
	}

	clock.Advance(time.Millisecond)
	if ok, _ := l.Allow(ctx, "k", 10, time.Minute); !ok {
		t.Fatal("window must reset once 60s have elapsed")
	}
}

func TestConcurrentAllowIsAtomic(t *testing.T) {
	l := NewRateLimiter()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "same", 10, time.Minute); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("allowed = %d, want 10", allowed)
	}
}

func TestSweepDropsExpiredKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewRateLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, _ = l.Allow(ctx, k, 10, time.Minute)
	}
	clock.Advance(2 * time.Minute)
	_, _ = l.Allow(ctx, "d", 10, time.Minute)
	if n := l.Len(); n != 1 {
		t.Fatalf("tracked keys = %d, want 1", n)
	}
}
