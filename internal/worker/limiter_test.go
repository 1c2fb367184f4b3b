package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.burst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.burst)
	}

	l2 := NewLimiter(10, -1)
	if l2.burst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.burst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://ner.internal:30803/ner_pred"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different host has its own bucket
	if err := limiter.Wait(ctx, "http://llm.internal/v1"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	if len(limiter.buckets) != 2 {
		t.Errorf("expected 2 host buckets, got %d", len(limiter.buckets))
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	limiter := NewLimiter(1, 1)
	endpoint := "http://ner.internal/ner_pred"

	if !limiter.Allow(endpoint) {
		t.Error("first request should be allowed")
	}
	if limiter.Allow(endpoint) {
		t.Error("second immediate request should be limited")
	}
	if !limiter.Allow("http://other.internal/ner_pred") {
		t.Error("other host should not share the bucket")
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	endpoint := "http://ner.internal/ner_pred"
	_ = limiter.Wait(context.Background(), endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, endpoint); err == nil {
		t.Error("expected error when the context ends before a token is available")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 10; i++ {
		if !limiter.Allow("http://ner.internal") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}

func TestLimiter_BadEndpoint(t *testing.T) {
	limiter := NewLimiter(10, 1)
	if err := limiter.Wait(context.Background(), "not a url"); err == nil {
		t.Error("expected error for endpoint without host")
	}
}
