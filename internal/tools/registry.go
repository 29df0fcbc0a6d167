// Package tools provides the static tool registry that backs LLM function
// calling.
//
// The registry is assembled once at startup — built-in Go tools plus any
// tools imported from external MCP servers — and is read-only afterwards.
// [Registry.Describe] yields the catalog handed to the model verbatim;
// [Registry.Invoke] dispatches a call and converts every possible failure
// (unknown tool, malformed arguments, schema violations, handler errors,
// even panics) into an error-shaped textual result. Invoke never returns a
// Go error: from the conversation loop's perspective a tool call always
// produces a ToolResult.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daytrip-ai/daytrip/internal/observe"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// Handler executes one tool call. args is a JSON object string ("{}" for
// parameter-less tools). A returned error marks the call as failed and is
// surfaced to the model as an error result.
type Handler func(ctx context.Context, args string) (string, error)

// Tool couples a tool's public descriptor with its implementation.
type Tool struct {
	// Definition is presented to the LLM verbatim.
	Definition types.ToolDefinition

	// Handler is invoked when the LLM calls the tool.
	Handler Handler
}

// Option is a functional option for the Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithMetrics attaches metric instruments. Nil disables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry is the static dispatch table for tool calls.
//
// Register all tools during startup, before the first Invoke; the registry
// itself is safe for concurrent Invoke/Describe use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string // registration order, drives Describe
	closers []func() error

	log     *slog.Logger
	metrics *observe.Metrics
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool to the dispatch table. Tool names must be unique;
// registering a duplicate name is a configuration mistake and returns an
// error rather than silently replacing the existing tool.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tools: tool must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: tool %q must have a non-nil handler", t.Definition.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Definition.Name]; exists {
		return fmt.Errorf("tools: tool %q is already registered", t.Definition.Name)
	}
	r.tools[t.Definition.Name] = t
	r.order = append(r.order, t.Definition.Name)
	return nil
}

// Describe returns the full tool catalog in registration order. The result
// is a fresh slice; callers may not mutate the shared definitions it points
// to.
func (r *Registry) Describe() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Invoke dispatches a tool call and always produces a textual result.
//
// Failures of any kind — unknown tool name, malformed argument JSON, schema
// violations, handler errors, handler panics — are converted into an
// error-shaped JSON result of the form {"error": "..."} so the model can read
// what went wrong and recover. Invoke itself never fails.
func (r *Registry) Invoke(ctx context.Context, name, args string) (result string) {
	start := time.Now()
	status := "ok"
	defer func() {
		if p := recover(); p != nil {
			r.log.ErrorContext(ctx, "tool handler panicked", "tool", name, "panic", p)
			result = errorResult(fmt.Sprintf("tool %q panicked: %v", name, p))
			status = "panic"
		}
		r.metrics.RecordToolCall(ctx, name, status, time.Since(start))
	}()

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		status = "unknown_tool"
		return errorResult(fmt.Sprintf("unknown tool %q", name))
	}

	argsMap, err := parseArgs(args)
	if err != nil {
		status = "bad_args"
		return errorResult(fmt.Sprintf("invalid arguments for tool %q: %v", name, err))
	}
	if err := validateArgs(t.Definition.Parameters, argsMap); err != nil {
		status = "bad_args"
		return errorResult(fmt.Sprintf("invalid arguments for tool %q: %v", name, err))
	}

	out, err := t.Handler(ctx, args)
	if err != nil {
		r.log.WarnContext(ctx, "tool execution failed", "tool", name, "error", err)
		status = "error"
		return errorResult(err.Error())
	}
	return out
}

// Close releases resources held by imported external tool servers. The
// registry must not be invoked afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var firstErr error
	for _, c := range closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// parseArgs decodes the argument JSON into a map. Empty input counts as an
// empty object, matching what most models send for parameter-less tools.
func parseArgs(args string) (map[string]any, error) {
	if args == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(args), &m); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// errorResult renders a failure as the JSON object the model receives.
func errorResult(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		// Marshalling a map[string]string cannot realistically fail.
		return `{"error":"internal error"}`
	}
	return string(b)
}
