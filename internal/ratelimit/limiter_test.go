package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	id := "test_" + uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < rule.Limit; i++ {
		allowed, err := limiter.Allow(ctx, id, rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, id, rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if allowed {
		t.Error("request over the limit should be rejected")
	}
}

func TestRemaining(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	id := "test_" + uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	remaining, err := limiter.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != rule.Limit {
		t.Errorf("expected full limit for fresh key, got %d", remaining)
	}

	limiter.Allow(ctx, id, rule)
	limiter.Allow(ctx, id, rule)

	remaining, err = limiter.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != rule.Limit-2 {
		t.Errorf("expected %d remaining, got %d", rule.Limit-2, remaining)
	}
}

func TestWindowExpiry(t *testing.T) {
	limiter := newTestLimiter(t)
	ctx := context.Background()
	id := "test_" + uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 1 * time.Second}

	if allowed, _ := limiter.Allow(ctx, id, rule); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := limiter.Allow(ctx, id, rule); allowed {
		t.Fatal("second request in window should be rejected")
	}

	time.Sleep(1100 * time.Millisecond)

	if allowed, _ := limiter.Allow(ctx, id, rule); !allowed {
		t.Error("request after window expiry should be allowed")
	}
}
