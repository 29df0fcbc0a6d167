// Package limiter throttles how fast each client can start conversation
// turns. Every client gets its own token bucket; a turn costs one token, and
// tokens refill at a fixed per-minute rate up to the burst size.
package limiter

import (
	"context"
	"sync"
	"time"
)

const (
	defaultBurst     = 10
	defaultPerMinute = 30
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter hands out turn tokens per client. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	burst   float64
	rate    float64 // tokens per second
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a Limiter allowing burst immediate turns per client and a
// sustained perMinute rate. Non-positive values fall back to defaults.
func New(burst int, perMinute float64) *Limiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}
	return &Limiter{
		burst:   float64(burst),
		rate:    perMinute / 60.0,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// SetLimits replaces the burst size and refill rate at runtime, keeping
// existing bucket balances (capped at the new burst). Non-positive values
// fall back to defaults, as in [New].
func (l *Limiter) SetLimits(burst int, perMinute float64) {
	if burst <= 0 {
		burst = defaultBurst
	}
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.burst = float64(burst)
	l.rate = perMinute / 60.0
	for _, b := range l.buckets {
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
}

// Allow takes one token from clientID's bucket if available. It never blocks.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(clientID)
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Wait blocks until clientID may start a turn or ctx is done.
func (l *Limiter) Wait(ctx context.Context, clientID string) error {
	for {
		l.mu.Lock()
		b := l.refill(clientID)
		if b.tokens >= 1 {
			b.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill credits elapsed time to clientID's bucket. Must hold l.mu.
func (l *Limiter) refill(clientID string) *bucket {
	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[clientID] = b
		return b
	}
	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now
	return b
}
