// Package events aggregates event listings from multiple upstream sources
// into a single deduplicated, scored, and deterministically ordered list.
//
// The aggregator fans out to all configured sources concurrently, tolerates
// individual source failures (partial success), and reports per-source
// coverage so callers can tell "every source failed" apart from "everything
// worked but nothing is on".
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daytrip-ai/daytrip/internal/observe"
	"github.com/daytrip-ai/daytrip/pkg/provider/events"
)

// ErrAllSourcesFailed is returned by [Aggregator.GetEvents] when every
// configured source returned an error. Use errors.Is to detect it; the
// returned Coverage still carries the individual failure messages.
var ErrAllSourcesFailed = errors.New("all event sources failed")

// defaultSourceTimeout bounds each individual source fetch.
const defaultSourceTimeout = 8 * time.Second

// RankedEvent is a deduplicated event with its composite ranking score.
type RankedEvent struct {
	events.RawEvent

	// Score is the composite ranking score. Higher ranks earlier.
	Score float64
}

// SourceResult describes the outcome of one source fetch within a query.
type SourceResult struct {
	// Source is the source name.
	Source string

	// Events is how many raw events the source contributed before dedup.
	Events int

	// Err is the failure message, empty on success.
	Err string
}

// Coverage reports which sources contributed to an aggregation result.
type Coverage struct {
	// Sources holds one entry per configured source, in configuration order.
	Sources []SourceResult

	// Timestamp is when the aggregation completed.
	Timestamp time.Time
}

// SourcesUsed returns the names of the sources that succeeded with at least
// one event surviving into the raw result set.
func (c Coverage) SourcesUsed() []string {
	var used []string
	for _, sr := range c.Sources {
		if sr.Err == "" && sr.Events > 0 {
			used = append(used, sr.Source)
		}
	}
	return used
}

// Errors returns the failure messages of the sources that failed, prefixed
// with the source name.
func (c Coverage) Errors() []string {
	var errs []string
	for _, sr := range c.Sources {
		if sr.Err != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", sr.Source, sr.Err))
		}
	}
	return errs
}

// Option is a functional option for the Aggregator.
type Option func(*Aggregator)

// WithTimeout sets the per-source fetch timeout. Every source gets the same
// budget, measured from the start of the fan-out.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// WithScoring overrides the default scoring weights.
func WithScoring(cfg ScoringConfig) Option {
	return func(a *Aggregator) {
		a.scorer = NewScorer(cfg)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.log = l
	}
}

// WithMetrics attaches metric instruments. Nil disables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// Aggregator fans out one query to all configured sources and merges the
// results. Safe for concurrent use.
type Aggregator struct {
	sources []events.Source
	timeout time.Duration
	log     *slog.Logger
	metrics *observe.Metrics

	// mu guards scorer, which may be swapped at runtime via SetScoring.
	mu     sync.RWMutex
	scorer *Scorer
}

// SetScoring replaces the scoring weights for subsequent queries. Zero-value
// fields take defaults, as in [NewScorer].
func (a *Aggregator) SetScoring(cfg ScoringConfig) {
	s := NewScorer(cfg)
	a.mu.Lock()
	a.scorer = s
	a.mu.Unlock()
}

func (a *Aggregator) currentScorer() *Scorer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scorer
}

// New creates an Aggregator over the given sources. At least one source is
// required.
func New(sources []events.Source, opts ...Option) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, errors.New("aggregator: at least one source is required")
	}
	a := &Aggregator{
		sources: sources,
		timeout: defaultSourceTimeout,
		scorer:  NewScorer(DefaultScoringConfig()),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// GetEvents queries every source concurrently, deduplicates and ranks the
// union, and truncates to q.MaxResults (when > 0).
//
// Individual source failures degrade the result instead of failing it; the
// returned Coverage records every outcome. Only when all sources fail does
// GetEvents return an error (wrapping [ErrAllSourcesFailed]). An empty event
// list with a nil error means the sources genuinely found nothing.
func (a *Aggregator) GetEvents(ctx context.Context, q events.Query) ([]RankedEvent, Coverage, error) {
	ctx, span := observe.StartSpan(ctx, "aggregator.GetEvents")
	defer span.End()

	raw := make([][]events.RawEvent, len(a.sources))
	errs := make([]error, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(a.sources))
	for i, src := range a.sources {
		g.Go(func() error {
			// Each source gets an identical, independent budget. Errors are
			// captured per slot, never returned, so one failing source cannot
			// cancel its siblings through the group context.
			fetchCtx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			start := time.Now()
			evs, err := src.Fetch(fetchCtx, q)
			a.metrics.RecordSourceFetch(ctx, src.Name(), time.Since(start), err)

			if err != nil {
				a.log.WarnContext(ctx, "event source failed",
					"source", src.Name(), "error", err)
				errs[i] = err
				return nil
			}
			raw[i] = evs
			return nil
		})
	}
	// Goroutines only ever return nil.
	_ = g.Wait()

	cov := Coverage{
		Sources:   make([]SourceResult, len(a.sources)),
		Timestamp: time.Now().UTC(),
	}
	failed := 0
	var merged []events.RawEvent
	for i, src := range a.sources {
		sr := SourceResult{Source: src.Name(), Events: len(raw[i])}
		if errs[i] != nil {
			sr.Err = errs[i].Error()
			failed++
		}
		cov.Sources[i] = sr
		merged = append(merged, dropUndated(raw[i])...)
	}

	if failed == len(a.sources) {
		return nil, cov, fmt.Errorf("aggregator: %w: %v", ErrAllSourcesFailed, errors.Join(errs...))
	}

	deduped := dedupe(merged)

	scorer := a.currentScorer()
	ranked := make([]RankedEvent, len(deduped))
	for i, ev := range deduped {
		ranked[i] = RankedEvent{RawEvent: ev, Score: scorer.Score(ev, q.Keyword)}
	}
	sortRanked(ranked)

	if q.MaxResults > 0 && len(ranked) > q.MaxResults {
		ranked = ranked[:q.MaxResults]
	}

	a.log.DebugContext(ctx, "aggregation complete",
		"sources", len(a.sources), "failed", failed,
		"raw", len(merged), "deduped", len(deduped), "returned", len(ranked))

	return ranked, cov, nil
}

// dropUndated filters out events without a resolvable start time. Sources
// already enforce this, but a misbehaving source must not break the date-keyed
// dedup downstream.
func dropUndated(evs []events.RawEvent) []events.RawEvent {
	out := evs[:0:len(evs)]
	for _, ev := range evs {
		if !ev.Start.IsZero() {
			out = append(out, ev)
		}
	}
	return out
}
