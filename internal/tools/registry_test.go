package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/daytrip-ai/daytrip/internal/tools"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// echoTool returns a tool that echoes its raw argument string.
func echoTool(name string) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        name,
			Description: "echoes its arguments",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required":             []any{"text"},
				"additionalProperties": false,
			},
		},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	}
}

// decodeError extracts the "error" field of an error-shaped result. Fails the
// test when the result is not error-shaped.
func decodeError(t *testing.T, result string) string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal([]byte(result), &m); err != nil {
		t.Fatalf("result %q is not JSON: %v", result, err)
	}
	msg, ok := m["error"]
	if !ok {
		t.Fatalf("result %q has no error field", result)
	}
	return msg
}

// ─────────────────────────────────────────────────────────────────────────────
// tests
// ─────────────────────────────────────────────────────────────────────────────

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()

	if err := r.Register(tools.Tool{}); err == nil {
		t.Error("Register(empty) error = nil, want error")
	}
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Error("Register(duplicate) error = nil, want error")
	}
}

func TestDescribe_RegistrationOrder(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	defs := r.Describe()
	if len(defs) != 3 {
		t.Fatalf("len(Describe()) = %d, want 3", len(defs))
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("Describe()[%d].Name = %q, want %q", i, def.Name, want[i])
		}
	}
}

func TestInvoke_Success(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got := r.Invoke(context.Background(), "echo", `{"text":"hi"}`)
	if got != `{"text":"hi"}` {
		t.Errorf("Invoke() = %q, want echoed args", got)
	}
}

func TestInvoke_UnknownTool(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	msg := decodeError(t, r.Invoke(context.Background(), "does_not_exist", "{}"))
	if !strings.Contains(msg, "does_not_exist") {
		t.Errorf("error %q does not name the unknown tool", msg)
	}
}

func TestInvoke_MalformedArguments(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name string
		args string
	}{
		{"not JSON", `{"text": `},
		{"JSON but not an object", `[1,2,3]`},
		{"missing required", `{}`},
		{"wrong type", `{"text": 42}`},
		{"unknown property", `{"text":"hi","bogus":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := decodeError(t, r.Invoke(context.Background(), "echo", tt.args))
			if msg == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestInvoke_HandlerErrorBecomesErrorResult(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "broken"},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("upstream exploded")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	msg := decodeError(t, r.Invoke(context.Background(), "broken", "{}"))
	if msg != "upstream exploded" {
		t.Errorf("error = %q, want handler error text", msg)
	}
}

func TestInvoke_HandlerPanicBecomesErrorResult(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "panicky"},
		Handler: func(context.Context, string) (string, error) {
			panic("boom")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	msg := decodeError(t, r.Invoke(context.Background(), "panicky", "{}"))
	if !strings.Contains(msg, "boom") {
		t.Errorf("error = %q, want panic message", msg)
	}
}

func TestInvoke_EmptyArgsMeansEmptyObject(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Definition: types.ToolDefinition{
			Name: "noargs",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(context.Context, string) (string, error) {
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got := r.Invoke(context.Background(), "noargs", ""); got != "ok" {
		t.Errorf("Invoke(empty args) = %q, want ok", got)
	}
}
