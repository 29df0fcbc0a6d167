// Package observe provides application-wide observability primitives for
// daytrip: OpenTelemetry metrics, tracing helpers, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName is the instrumentation scope for all daytrip metrics and spans.
const scopeName = "github.com/daytrip-ai/daytrip"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ModelDuration tracks one LLM round trip (request to full response).
	ModelDuration metric.Float64Histogram

	// ToolExecutionDuration tracks a single tool invocation.
	ToolExecutionDuration metric.Float64Histogram

	// SourceFetchDuration tracks one event/weather source fetch. Use with
	// attribute.String("source", ...).
	SourceFetchDuration metric.Float64Histogram

	// TurnDuration tracks a whole conversation turn, model iterations and
	// tool executions included.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// SourceErrors counts failed source fetches. Use with attribute:
	//   attribute.String("source", ...)
	SourceErrors metric.Int64Counter

	// TokensUsed counts LLM tokens. Use with attribute:
	//   attribute.String("kind", "prompt"|"completion")
	TokensUsed metric.Int64Counter

	// ProviderErrors counts LLM provider failures. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of conversation turns in flight.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// HTTP API and LLM round-trip latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModelDuration, err = m.Float64Histogram("daytrip.model.duration",
		metric.WithDescription("Latency of one LLM completion round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("daytrip.tool_execution.duration",
		metric.WithDescription("Latency of a single tool invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SourceFetchDuration, err = m.Float64Histogram("daytrip.source.fetch.duration",
		metric.WithDescription("Latency of one event or weather source fetch by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("daytrip.turn.duration",
		metric.WithDescription("End-to-end latency of a conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("daytrip.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.SourceErrors, err = m.Int64Counter("daytrip.source.errors",
		metric.WithDescription("Total failed source fetches by source."),
	); err != nil {
		return nil, err
	}
	if met.TokensUsed, err = m.Int64Counter("daytrip.tokens.used",
		metric.WithDescription("Total LLM tokens consumed by kind (prompt or completion)."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("daytrip.provider.errors",
		metric.WithDescription("Total LLM provider failures by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("daytrip.active_turns",
		metric.WithDescription("Number of conversation turns currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("daytrip.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation with the standard attribute set.
// Safe to call on a nil receiver, in which case it is a no-op.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolExecutionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordSourceFetch records one source fetch outcome. Safe on nil.
func (m *Metrics) RecordSourceFetch(ctx context.Context, source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SourceFetchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("source", source)),
	)
	if err != nil {
		m.SourceErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("source", source)),
		)
	}
}

// RecordModelRoundTrip records one LLM completion with its token usage.
// Safe on nil.
func (m *Metrics) RecordModelRoundTrip(ctx context.Context, d time.Duration, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.ModelDuration.Record(ctx, d.Seconds())
	m.TokensUsed.Add(ctx, int64(promptTokens),
		metric.WithAttributes(attribute.String("kind", "prompt")),
	)
	m.TokensUsed.Add(ctx, int64(completionTokens),
		metric.WithAttributes(attribute.String("kind", "completion")),
	)
}

// RecordProviderError records one LLM provider failure. Safe on nil.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
