package ratelimit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, err := bucket.Allow(ctx, "rl:1.2.3.4")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _ = bucket.Allow(ctx, "rl:1.2.3.4")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _ = bucket.Allow(ctx, "rl:1.2.3.4")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// A different client keeps its own bucket.
	allowed, _ = bucket.Allow(ctx, "rl:5.6.7.8")
	if !allowed {
		t.Fatalf("expected separate bucket per key")
	}
}

func TestKeyForRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/transform", nil)
	r.RemoteAddr = "10.0.0.9:51234"
	if got := KeyForRequest(r); got != "rl:10.0.0.9" {
		t.Fatalf("expected remote addr key, got %s", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := KeyForRequest(r); got != "rl:203.0.113.7" {
		t.Fatalf("expected forwarded-for key, got %s", got)
	}
}
