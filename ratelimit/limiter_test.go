package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

func TestMemoryLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryWithClock(5, time.Minute, clock.Now)
	ctx := context.Background()

	t.Run("AllowsUpToLimit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			d, _ := l.Allow(ctx, "user-1")
			if !d.Allowed {
				t.Fatalf("request %d should be allowed", i+1)
			}
			if d.Remaining != 4-i {
				t.Errorf("request %d: remaining %d", i+1, d.Remaining)
			}
		}
		d, _ := l.Allow(ctx, "user-1")
		if d.Allowed || d.Remaining != 0 {
			t.Errorf("sixth request should be rejected, got %+v", d)
		}
		if got := d.RetryAfter(clock.Now()); got != time.Minute {
			t.Errorf("expected a full minute to wait, got %v", got)
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		if d, _ := l.Allow(ctx, "user-2"); !d.Allowed {
			t.Error("another user should not be limited")
		}
	})

	t.Run("WindowResets", func(t *testing.T) {
		clock.Advance(time.Minute + time.Millisecond)
		d, _ := l.Allow(ctx, "user-1")
		if !d.Allowed || d.Remaining != 4 {
			t.Errorf("window should have reset, got %+v", d)
		}
	})

	t.Run("Sweep", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		if n := l.Sweep(); n != 2 {
			t.Errorf("expected 2 expired windows, got %d", n)
		}
	})
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	l := NewMemory(5, time.Minute)
	ctx := context.Background()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := l.Allow(ctx, "user"); d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Errorf("expected exactly 5 allowed, got %d", allowed)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedis(client, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed || d.Remaining != 4-i {
			t.Fatalf("request %d: got %+v", i+1, d)
		}
	}

	d, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("sixth request should be rejected")
	}
	if wait := d.RetryAfter(time.Now()); wait <= 0 || wait > time.Minute {
		t.Errorf("unexpected retry after %v", wait)
	}

	mr.FastForward(time.Minute + time.Second)

	d, err = l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Remaining != 4 {
		t.Errorf("window should have reset, got %+v", d)
	}
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	if _, err := NewRedis(client, 5, time.Minute).Allow(context.Background(), "user"); err == nil {
		t.Error("expected an error when redis is down")
	}
}
