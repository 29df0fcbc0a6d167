// Package mock provides a test double for the events.Source interface.
package mock

import (
	"context"
	"sync"

	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

// FetchCall records a single invocation of Fetch.
type FetchCall struct {
	// Query is the Query passed to Fetch.
	Query events.Query
}

// Source is a mock implementation of events.Source.
// Zero values for response fields cause methods to return zero values and nil errors.
type Source struct {
	mu sync.Mutex

	// SourceName is returned by Name. Defaults to "mock" when empty.
	SourceName string

	// FetchEvents is returned by Fetch.
	FetchEvents []events.RawEvent

	// FetchErr, if non-nil, is returned as the error from Fetch.
	FetchErr error

	// FetchFunc, if non-nil, overrides the canned response entirely. Useful
	// for blocking until a context deadline in timeout tests. The call is
	// still recorded.
	FetchFunc func(ctx context.Context, q events.Query) ([]events.RawEvent, error)

	// FetchCalls records every invocation of Fetch in order.
	FetchCalls []FetchCall
}

// Name returns SourceName, defaulting to "mock".
func (s *Source) Name() string {
	if s.SourceName == "" {
		return "mock"
	}
	return s.SourceName
}

// Fetch records the call and returns the configured response.
func (s *Source) Fetch(ctx context.Context, q events.Query) ([]events.RawEvent, error) {
	s.mu.Lock()
	s.FetchCalls = append(s.FetchCalls, FetchCall{Query: q})
	fn := s.FetchFunc
	evs, err := s.FetchEvents, s.FetchErr
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, q)
	}
	return evs, err
}

// Ensure Source implements events.Source at compile time.
var _ events.Source = (*Source)(nil)
