package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/daytrip-ai/daytrip/pkg/provider/llm"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// ErrNoBackend is returned when every backend failed or is circuit-open.
var ErrNoBackend = errors.New("resilience: no backend available")

// Backend pairs a named LLM provider with its breaker.
type Backend struct {
	Name     string
	Provider llm.Provider

	breaker *Breaker
}

// Failover is an [llm.Provider] that tries its backends in order, skipping
// any whose breaker is open, until one answers. The conversation loop sees a
// single provider; which backend served a request is a log line, not an API.
type Failover struct {
	backends []*Backend
	log      *slog.Logger
}

var _ llm.Provider = (*Failover)(nil)

// FailoverOption configures a Failover.
type FailoverOption func(*Failover)

// WithFailoverLogger sets the logger. Defaults to slog.Default().
func WithFailoverLogger(l *slog.Logger) FailoverOption {
	return func(f *Failover) {
		f.log = l
	}
}

// NewFailover creates a Failover over backends in priority order. Each backend
// gets its own breaker with default thresholds.
func NewFailover(backends []Backend, opts ...FailoverOption) (*Failover, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: at least one backend required")
	}
	f := &Failover{log: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	for _, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("resilience: backend %q has nil provider", b.Name)
		}
		entry := b
		entry.breaker = NewBreaker(b.Name, WithBreakerLogger(f.log))
		f.backends = append(f.backends, &entry)
	}
	return f, nil
}

// Complete forwards the request to the first healthy backend.
func (f *Failover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for _, b := range f.backends {
		var resp *llm.CompletionResponse
		err := b.breaker.Do(func() error {
			var ierr error
			resp, ierr = b.Provider.Complete(ctx, req)
			return ierr
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			f.log.DebugContext(ctx, "skipping backend, breaker open", "backend", b.Name)
			continue
		}
		f.log.WarnContext(ctx, "backend failed, trying next",
			"backend", b.Name, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrNoBackend, lastErr)
}

// CountTokens delegates to the first backend whose breaker is not open.
func (f *Failover) CountTokens(messages []types.Message) (int, error) {
	var lastErr error
	for _, b := range f.backends {
		if b.breaker.Open() {
			continue
		}
		n, err := b.Provider.CountTokens(messages)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %v", ErrNoBackend, lastErr)
}

// Capabilities returns the primary backend's capabilities. Capabilities are
// static metadata and do not participate in failover.
func (f *Failover) Capabilities() types.ModelCapabilities {
	return f.backends[0].Provider.Capabilities()
}
