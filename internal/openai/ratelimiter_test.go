package openai

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBurst(t *testing.T) {
	l := newLimiter(3, time.Minute)

	start := time.Now()
	for i := range 3 {
		if err := l.Wait(t.Context()); err != nil {
			t.Fatalf("Wait %d: %s", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("A burst within the bucket size should not block, took %s", elapsed)
	}
}

func TestLimiterRefill(t *testing.T) {
	// One token per 100ms
	l := newLimiter(5, 500*time.Millisecond)
	for range 5 {
		if err := l.Wait(t.Context()); err != nil {
			t.Fatal(err)
		}
	}

	start := time.Now()
	if err := l.Wait(t.Context()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected the empty bucket to block for a refill, waited only %s", elapsed)
	}
}

func TestLimiterCancelled(t *testing.T) {
	l := newLimiter(1, time.Hour)
	if err := l.Wait(t.Context()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := l.Wait(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
