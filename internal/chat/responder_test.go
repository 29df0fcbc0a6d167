package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daytrip-ai/daytrip/internal/accounting"
	"github.com/daytrip-ai/daytrip/internal/chat"
	"github.com/daytrip-ai/daytrip/internal/tools"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm/mock"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// slowRegistry records invocations and delays per-tool so tests can force
// out-of-order completion.
type slowRegistry struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	invoked []string
}

func (r *slowRegistry) Describe() []types.ToolDefinition {
	return []types.ToolDefinition{{Name: "slow"}, {Name: "fast"}}
}

func (r *slowRegistry) Invoke(_ context.Context, name, args string) string {
	r.mu.Lock()
	d := r.delays[name]
	r.invoked = append(r.invoked, name)
	r.mu.Unlock()
	time.Sleep(d)
	return fmt.Sprintf("result of %s(%s)", name, args)
}

func textResponse(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content: text,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...types.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls: calls,
		Usage:     llm.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	}
}

// echoRegistry builds a real registry with a single echoing tool.
func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Definition: types.ToolDefinition{
			Name: "echo",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []any{"text"},
			},
		},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRespond_PlainTextAnswer(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{textResponse("Sunny all week!")}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	history := []types.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	input := make([]types.Message, len(history))
	copy(input, history)

	text, updated, err := r.Respond(context.Background(), "client-1", "What's the weather?", history)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "Sunny all week!" {
		t.Errorf("text = %q, want model answer", text)
	}

	// Strict append: prior history untouched, new turn appended.
	if len(updated) != 4 {
		t.Fatalf("len(updated) = %d, want 4", len(updated))
	}
	for i := range input {
		if !reflect.DeepEqual(history[i], input[i]) {
			t.Errorf("caller's history[%d] was mutated", i)
		}
		if !reflect.DeepEqual(updated[i], input[i]) {
			t.Errorf("updated[%d] = %+v, want original prefix preserved", i, updated[i])
		}
	}
	if updated[2].Role != "user" || updated[2].Content != "What's the weather?" {
		t.Errorf("updated[2] = %+v, want the user message", updated[2])
	}
	if updated[3].Role != "assistant" || updated[3].Content != "Sunny all week!" {
		t.Errorf("updated[3] = %+v, want the final answer", updated[3])
	}
}

func TestRespond_ToolRoundTrip(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		toolCallResponse(types.ToolCall{ID: "call-1", Name: "echo", Arguments: `{"text":"hi"}`}),
		textResponse("done"),
	}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, updated, err := r.Respond(context.Background(), "client-1", "use the tool", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q, want done", text)
	}

	// user, assistant(tool call), tool, assistant(final)
	if len(updated) != 4 {
		t.Fatalf("len(updated) = %d, want 4", len(updated))
	}
	if len(updated[1].ToolCalls) != 1 {
		t.Fatalf("assistant message carries %d tool calls, want 1", len(updated[1].ToolCalls))
	}
	if updated[2].Role != "tool" || updated[2].ToolCallID != "call-1" {
		t.Errorf("tool message = %+v, want role tool with ToolCallID call-1", updated[2])
	}
	if updated[2].Content != `{"text":"hi"}` {
		t.Errorf("tool result = %q, want echoed args", updated[2].Content)
	}

	// The second model request must include the tool result.
	if len(p.CompleteCalls) != 2 {
		t.Fatalf("len(CompleteCalls) = %d, want 2", len(p.CompleteCalls))
	}
	second := p.CompleteCalls[1].Req.Messages
	if second[len(second)-1].Role != "tool" {
		t.Errorf("second request does not end with the tool result")
	}
}

// TestRespond_ConcurrentToolsKeepRequestOrder forces the first requested tool
// to finish last and verifies the tool messages still follow request order
// with results re-associated by call ID.
func TestRespond_ConcurrentToolsKeepRequestOrder(t *testing.T) {
	t.Parallel()

	reg := &slowRegistry{delays: map[string]time.Duration{
		"slow": 50 * time.Millisecond,
		"fast": 0,
	}}
	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		toolCallResponse(
			types.ToolCall{ID: "call-slow", Name: "slow", Arguments: `{}`},
			types.ToolCall{ID: "call-fast", Name: "fast", Arguments: `{}`},
		),
		textResponse("done"),
	}}
	r, err := chat.New(p, reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, updated, err := r.Respond(context.Background(), "client-1", "go", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	// user, assistant, tool, tool, assistant
	if len(updated) != 5 {
		t.Fatalf("len(updated) = %d, want 5", len(updated))
	}
	if updated[2].ToolCallID != "call-slow" || !strings.Contains(updated[2].Content, "slow") {
		t.Errorf("updated[2] = %+v, want the slow tool's result first (request order)", updated[2])
	}
	if updated[3].ToolCallID != "call-fast" || !strings.Contains(updated[3].Content, "fast") {
		t.Errorf("updated[3] = %+v, want the fast tool's result second", updated[3])
	}
}

// TestRespond_UnknownToolDoesNotFault verifies an unknown tool name becomes
// an error-shaped tool result and the turn still completes.
func TestRespond_UnknownToolDoesNotFault(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		toolCallResponse(types.ToolCall{ID: "call-1", Name: "nonexistent", Arguments: `{}`}),
		textResponse("recovered"),
	}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, updated, err := r.Respond(context.Background(), "client-1", "go", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "recovered" {
		t.Errorf("text = %q, want recovered", text)
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(updated[2].Content), &m); err != nil || m["error"] == "" {
		t.Errorf("tool result = %q, want error-shaped JSON", updated[2].Content)
	}
}

// TestRespond_IterationCeiling verifies a model that never stops calling
// tools is cut off after exactly maxIterations round trips and the user gets
// the degraded answer.
func TestRespond_IterationCeiling(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		toolCallResponse(types.ToolCall{ID: "c", Name: "echo", Arguments: `{"text":"x"}`}),
	}}
	r, err := chat.New(p, echoRegistry(t), chat.WithMaxIterations(3))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, updated, err := r.Respond(context.Background(), "client-1", "loop forever", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(p.CompleteCalls) != 3 {
		t.Errorf("len(CompleteCalls) = %d, want exactly 3", len(p.CompleteCalls))
	}
	if !strings.Contains(text, "maximum number of function call iterations") {
		t.Errorf("text = %q, want the degraded iteration answer", text)
	}
	if last := updated[len(updated)-1]; last.Role != "assistant" || last.Content != text {
		t.Errorf("history does not end with the degraded answer: %+v", last)
	}
}

// TestRespond_EmptyResponseRetriesWithoutTools verifies the single follow-up
// request carries no tool definitions and a nudge that stays out of the
// returned history.
func TestRespond_EmptyResponseRetriesWithoutTools(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		{Usage: llm.Usage{PromptTokens: 1}}, // neither text nor tool calls
		textResponse("second try"),
	}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, updated, err := r.Respond(context.Background(), "client-1", "hello", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "second try" {
		t.Errorf("text = %q, want the retry answer", text)
	}

	if len(p.CompleteCalls) != 2 {
		t.Fatalf("len(CompleteCalls) = %d, want 2", len(p.CompleteCalls))
	}
	retryReq := p.CompleteCalls[1].Req
	if len(retryReq.Tools) != 0 {
		t.Error("retry request still offers tools, want them withheld")
	}
	if last := retryReq.Messages[len(retryReq.Messages)-1]; last.Role != "user" || !strings.Contains(last.Content, "Please provide your response") {
		t.Errorf("retry request does not end with the nudge: %+v", last)
	}

	// user + final assistant only; the nudge is not part of the history.
	if len(updated) != 2 {
		t.Fatalf("len(updated) = %d, want 2", len(updated))
	}
}

func TestRespond_EmptyTwiceGivesFallback(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		{}, {},
	}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, _, err := r.Respond(context.Background(), "client-1", "hello", nil)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(text, "couldn't generate a response") {
		t.Errorf("text = %q, want the empty-response fallback", text)
	}
}

func TestRespond_ProviderFailure(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Errs: []error{errors.New("connection reset")}}
	r, err := chat.New(p, echoRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, _, err = r.Respond(context.Background(), "client-1", "hello", nil)
	if err == nil {
		t.Fatal("Respond() error = nil, want provider failure")
	}
}

// TestRespond_UsageAttribution verifies tokens, iterations, and tool calls
// are summed over the turn and attributed to the client.
func TestRespond_UsageAttribution(t *testing.T) {
	t.Parallel()

	ledger := &accounting.MemoryLedger{}
	p := &mock.Provider{Responses: []*llm.CompletionResponse{
		toolCallResponse(types.ToolCall{ID: "c1", Name: "echo", Arguments: `{"text":"a"}`}),
		textResponse("done"),
	}}
	r, err := chat.New(p, echoRegistry(t),
		chat.WithLedger(ledger),
		chat.WithModelName("gpt-4o-mini"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, err := r.Respond(context.Background(), "client-42", "go", nil); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	recs := ledger.Records()
	if len(recs) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ClientID != "client-42" || rec.Model != "gpt-4o-mini" {
		t.Errorf("record attribution = %q/%q, want client-42/gpt-4o-mini", rec.ClientID, rec.Model)
	}
	if rec.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", rec.Iterations)
	}
	if rec.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", rec.ToolCalls)
	}
	// 20+10 prompt, 8+5 completion from the two scripted responses.
	if rec.PromptTokens != 30 || rec.CompletionTokens != 13 {
		t.Errorf("tokens = %d/%d, want 30/13", rec.PromptTokens, rec.CompletionTokens)
	}
}

// TestRespond_SystemPromptHotSwap verifies that SetSystemPrompt takes effect
// for subsequent turns without rebuilding the Responder.
func TestRespond_SystemPromptHotSwap(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		Responses: []*llm.CompletionResponse{textResponse("first"), textResponse("second")},
	}
	r, err := chat.New(provider, echoRegistry(t), chat.WithSystemPrompt("old persona"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, err := r.Respond(context.Background(), "c1", "hi", nil); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	r.SetSystemPrompt("new persona")
	if _, _, err := r.Respond(context.Background(), "c1", "hi again", nil); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("CompleteCalls = %d, want 2", len(provider.CompleteCalls))
	}
	if got := provider.CompleteCalls[0].Req.SystemPrompt; got != "old persona" {
		t.Errorf("first request system prompt = %q, want old persona", got)
	}
	if got := provider.CompleteCalls[1].Req.SystemPrompt; got != "new persona" {
		t.Errorf("second request system prompt = %q, want new persona", got)
	}
}
