package openai

import (
	"context"
	"sync"
	"time"
)

// limiter spaces requests to the hosted API with a token bucket: a burst of
// up to n requests passes immediately, after which callers are held to an
// average of n requests per window.
type limiter struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time

	n      float64
	window time.Duration
}

func newLimiter(n int, window time.Duration) *limiter {
	return &limiter{
		tokens: float64(n),
		last:   time.Now(),
		n:      float64(n),
		window: window,
	}
}

// Wait blocks until a request may proceed, or returns ctx.Err() if the
// context is cancelled first.
func (l *limiter) Wait(ctx context.Context) error {
	for {
		ok, retry := l.take()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// take refills the bucket for the time elapsed since the last call and
// spends one token. When the bucket is empty it reports how long until the
// next whole token accumulates.
func (l *limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	perToken := float64(l.window) / l.n

	now := time.Now()
	l.tokens = min(l.n, l.tokens+float64(now.Sub(l.last))/perToken)
	l.last = now

	if l.tokens < 1 {
		return false, time.Duration((1 - l.tokens) * perToken)
	}
	l.tokens--

	return true, 0
}
