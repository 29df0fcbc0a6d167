// Package chat implements the tool-calling conversation loop.
//
// A [Responder] drives one turn at a time: it sends the history to the LLM,
// executes any tool calls the model requests (concurrently, with results
// re-associated by call ID), feeds the results back, and repeats until the
// model answers in text or the iteration ceiling forces a degraded answer.
//
// Conversation history is an explicit value passed in and returned; the
// Responder never mutates the caller's slice and holds no per-conversation
// state, so one Responder serves any number of concurrent conversations.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daytrip-ai/daytrip/internal/accounting"
	"github.com/daytrip-ai/daytrip/internal/observe"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

const (
	// defaultMaxIterations bounds model round trips per turn.
	defaultMaxIterations = 5

	// defaultToolParallelism bounds concurrent tool executions within one
	// iteration.
	defaultToolParallelism = 4

	// exhaustedResponse is returned when the iteration ceiling is reached
	// before the model produces a final text answer.
	exhaustedResponse = "I apologize, but I've reached the maximum number of function call iterations. Please try rephrasing your request."

	// emptyResponse is returned when the model yields neither text nor tool
	// calls, even after one retry with tools withheld.
	emptyResponse = "I apologize, but I couldn't generate a response. Please try again."
)

// Registry is the slice of the tool registry the loop needs: the catalog fed
// to the model and a dispatch that never fails.
type Registry interface {
	Describe() []types.ToolDefinition
	Invoke(ctx context.Context, name, args string) string
}

// Option is a functional option for the Responder.
type Option func(*Responder)

// WithSystemPrompt sets the system prompt sent with every request.
func WithSystemPrompt(p string) Option {
	return func(r *Responder) {
		r.systemPrompt = p
	}
}

// WithMaxIterations overrides the iteration ceiling. Values < 1 are ignored.
func WithMaxIterations(n int) Option {
	return func(r *Responder) {
		if n >= 1 {
			r.maxIterations = n
		}
	}
}

// WithToolParallelism bounds concurrent tool executions. Values < 1 are
// ignored.
func WithToolParallelism(n int) Option {
	return func(r *Responder) {
		if n >= 1 {
			r.toolParallelism = n
		}
	}
}

// WithTemperature sets the sampling temperature passed to the provider.
func WithTemperature(t float64) Option {
	return func(r *Responder) {
		r.temperature = t
	}
}

// WithMaxTokens caps completion tokens per model round trip.
func WithMaxTokens(n int) Option {
	return func(r *Responder) {
		r.maxTokens = n
	}
}

// WithModelName sets the model identifier recorded in usage records.
func WithModelName(m string) Option {
	return func(r *Responder) {
		r.modelName = m
	}
}

// WithLedger attaches a usage ledger. Each completed turn is recorded;
// recording failures are logged, never propagated to the user.
func WithLedger(l accounting.Ledger) Option {
	return func(r *Responder) {
		r.ledger = l
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Responder) {
		r.log = l
	}
}

// WithMetrics attaches metric instruments. Nil disables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) {
		r.metrics = m
	}
}

// Responder runs the tool-calling loop. Safe for concurrent use.
type Responder struct {
	provider llm.Provider
	tools    Registry

	// mu guards systemPrompt, which may be swapped at runtime via
	// SetSystemPrompt while turns are in flight.
	mu           sync.RWMutex
	systemPrompt string

	maxIterations   int
	toolParallelism int
	temperature     float64
	maxTokens       int
	modelName       string

	ledger  accounting.Ledger
	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates a Responder over the given provider and tool registry.
func New(provider llm.Provider, tools Registry, opts ...Option) (*Responder, error) {
	if provider == nil {
		return nil, errors.New("chat: provider must not be nil")
	}
	if tools == nil {
		return nil, errors.New("chat: tool registry must not be nil")
	}
	r := &Responder{
		provider:        provider,
		tools:           tools,
		maxIterations:   defaultMaxIterations,
		toolParallelism: defaultToolParallelism,
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Respond runs one conversation turn for clientID.
//
// history is treated as immutable: the returned history is a fresh slice
// holding history plus, in order, the user message, every assistant message
// (tool-calling or final), and one tool-role message per requested tool call
// in the model's request order. The input turn always ends with either the
// model's final text or a fixed degraded answer; Respond returns a non-nil
// error only when the provider itself fails.
func (r *Responder) Respond(ctx context.Context, clientID, userText string, history []types.Message) (string, []types.Message, error) {
	ctx, span := observe.StartSpan(ctx, "chat.Respond")
	defer span.End()

	start := time.Now()
	if r.metrics != nil {
		r.metrics.ActiveTurns.Add(ctx, 1)
		defer r.metrics.ActiveTurns.Add(ctx, -1)
		defer func() {
			r.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	usage := accounting.TurnRecord{
		ClientID:  clientID,
		Model:     r.modelName,
		StartedAt: start,
	}
	defer func() {
		usage.Duration = time.Since(start)
		r.recordUsage(ctx, usage)
	}()

	// Copy-on-append: the caller's slice is never written through.
	hist := make([]types.Message, 0, len(history)+2)
	hist = append(hist, history...)
	hist = append(hist, types.Message{Role: "user", Content: userText})

	defs := r.tools.Describe()

	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		resp, err := r.complete(ctx, hist, defs)
		if err != nil {
			return "", hist, fmt.Errorf("chat: model round trip %d: %w", iteration, err)
		}
		usage.Iterations++
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens

		if len(resp.ToolCalls) > 0 {
			hist = append(hist, types.Message{
				Role:      "assistant",
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			})
			hist = append(hist, r.executeTools(ctx, resp.ToolCalls)...)
			usage.ToolCalls += len(resp.ToolCalls)
			continue
		}

		if resp.Content != "" {
			hist = append(hist, types.Message{Role: "assistant", Content: resp.Content})
			return resp.Content, hist, nil
		}

		// Neither text nor tool calls. Retry once with tools withheld; the
		// nudge lives only in the request, not in the returned history.
		r.log.WarnContext(ctx, "model returned empty response, retrying without tools")
		retryMsgs := append(append([]types.Message{}, hist...),
			types.Message{Role: "user", Content: "Please provide your response."})
		retry, err := r.complete(ctx, retryMsgs, nil)
		if err != nil {
			return "", hist, fmt.Errorf("chat: empty-response retry: %w", err)
		}
		usage.Iterations++
		usage.PromptTokens += retry.Usage.PromptTokens
		usage.CompletionTokens += retry.Usage.CompletionTokens

		final := retry.Content
		if final == "" {
			final = emptyResponse
		}
		hist = append(hist, types.Message{Role: "assistant", Content: final})
		return final, hist, nil
	}

	// Ceiling reached with the model still asking for tools.
	r.log.WarnContext(ctx, "iteration ceiling reached, degrading",
		"max_iterations", r.maxIterations)
	hist = append(hist, types.Message{Role: "assistant", Content: exhaustedResponse})
	return exhaustedResponse, hist, nil
}

// SetSystemPrompt replaces the system prompt for subsequent requests. Turns
// already in flight keep sending the prompt they started with or pick up the
// new one on their next iteration; either is coherent within a request.
func (r *Responder) SetSystemPrompt(p string) {
	r.mu.Lock()
	r.systemPrompt = p
	r.mu.Unlock()
}

func (r *Responder) currentSystemPrompt() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.systemPrompt
}

// complete performs one model round trip and records its latency and tokens.
func (r *Responder) complete(ctx context.Context, msgs []types.Message, defs []types.ToolDefinition) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		Tools:        defs,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
		SystemPrompt: r.currentSystemPrompt(),
	})
	if err != nil {
		r.metrics.RecordProviderError(ctx, r.modelName)
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("provider returned nil response")
	}
	r.metrics.RecordModelRoundTrip(ctx, time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// executeTools runs all requested tool calls concurrently (bounded by the
// configured parallelism) and returns one tool-role message per call, in the
// model's request order regardless of completion order. Tool failures are
// already error-shaped results; nothing here can fail the turn.
func (r *Responder) executeTools(ctx context.Context, calls []types.ToolCall) []types.Message {
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.toolParallelism)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.tools.Invoke(gctx, call.Name, call.Arguments)
			return nil
		})
	}
	// Goroutines only ever return nil.
	_ = g.Wait()

	msgs := make([]types.Message, len(calls))
	for i, call := range calls {
		msgs[i] = types.Message{
			Role:       "tool",
			Content:    results[i],
			ToolCallID: call.ID,
		}
	}
	return msgs
}

// recordUsage reports the turn to the ledger, if one is attached. Accounting
// must never fail a turn that already produced an answer.
func (r *Responder) recordUsage(ctx context.Context, rec accounting.TurnRecord) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordTurn(ctx, rec); err != nil {
		r.log.ErrorContext(ctx, "failed to record turn usage",
			"client_id", rec.ClientID, "error", err)
	}
}
