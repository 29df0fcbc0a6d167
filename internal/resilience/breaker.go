// Package resilience keeps the assistant answering when an LLM backend
// degrades. A [Breaker] stops hammering a backend that keeps failing, and a
// [Failover] chains several backends behind the [llm.Provider] interface so
// the conversation loop never has to know which one answered.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a breaker is rejecting calls because its backend
// recently failed too often.
var ErrOpen = errors.New("resilience: breaker open")

const (
	defaultTripAfter = 5
	defaultCooldown  = 30 * time.Second
)

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithTripAfter sets how many consecutive failures open the breaker.
func WithTripAfter(n int) BreakerOption {
	return func(b *Breaker) {
		if n >= 1 {
			b.tripAfter = n
		}
	}
}

// WithCooldown sets how long an open breaker waits before probing again.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithBreakerLogger sets the logger used for state transitions.
func WithBreakerLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		b.log = l
	}
}

// Breaker is a circuit breaker around one backend. Closed, it forwards every
// call. After tripAfter consecutive failures it opens and rejects calls with
// [ErrOpen] until the cooldown passes, then admits a single probe at a time:
// a successful probe closes the breaker, a failed one restarts the cooldown.
//
// Safe for concurrent use.
type Breaker struct {
	name      string
	tripAfter int
	cooldown  time.Duration
	log       *slog.Logger

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// NewBreaker creates a closed Breaker named for log messages.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		tripAfter: defaultTripAfter,
		cooldown:  defaultCooldown,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow reports whether a call may proceed right now. A true return in the
// probe phase reserves the probe slot; the caller must report the outcome via
// Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.cooldown {
		return false
	}
	// Cooldown over: admit exactly one probe at a time.
	if b.probing {
		return false
	}
	b.probing = true
	b.log.Info("breaker admitting probe", "backend", b.name)
	return true
}

// Success records a successful call, closing the breaker if it was probing.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		b.log.Info("breaker closed after successful probe", "backend", b.name)
	}
	b.open = false
	b.probing = false
	b.failures = 0
}

// Failure records a failed call, opening (or re-opening) the breaker when the
// threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		b.probing = false
		b.openedAt = time.Now()
		b.log.Warn("breaker re-opened, probe failed", "backend", b.name)
		return
	}

	b.failures++
	if !b.open && b.failures >= b.tripAfter {
		b.open = true
		b.openedAt = time.Now()
		b.log.Warn("breaker opened",
			"backend", b.name, "consecutive_failures", b.failures)
	}
}

// Do runs fn under the breaker: rejected with [ErrOpen] when open, otherwise
// executed with the outcome recorded.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil {
		b.Failure()
	} else {
		b.Success()
	}
	return err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.cooldown
}
