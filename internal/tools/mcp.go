package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCP transport kinds accepted by [Registry.ImportMCPServer].
const (
	MCPTransportStdio = "stdio"
	MCPTransportHTTP  = "streamable-http"
)

// MCPServerConfig describes one external MCP server whose tools are imported
// into the registry at startup.
type MCPServerConfig struct {
	// Name identifies the server in logs and errors.
	Name string `yaml:"name"`

	// Transport is "stdio" or "streamable-http".
	Transport string `yaml:"transport"`

	// Command is the subprocess to launch for stdio transport, split on
	// spaces into executable + args.
	Command string `yaml:"command"`

	// URL is the endpoint for streamable-http transport.
	URL string `yaml:"url"`

	// Env holds extra environment variables for stdio subprocesses.
	Env map[string]string `yaml:"env"`
}

// ImportMCPServer connects to the MCP server described by cfg, discovers its
// tool catalog, and registers every discovered tool in the registry. The
// connection stays open for the registry's lifetime and is released by
// [Registry.Close].
//
// Imports happen at startup only; the dispatch table does not change while
// conversations are being served.
func (r *Registry) ImportMCPServer(ctx context.Context, cfg MCPServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: MCP server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case MCPTransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio MCP server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case MCPTransportHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http MCP server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return fmt.Errorf("tools: unknown MCP transport %q for server %q", cfg.Transport, cfg.Name)
	}

	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "daytrip", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to MCP server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools of MCP server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	for _, mcpTool := range discovered {
		t := Tool{}
		t.Definition.Name = mcpTool.Name
		t.Definition.Description = mcpTool.Description
		t.Definition.Parameters = schemaToMap(mcpTool.InputSchema)
		t.Handler = mcpHandler(session, mcpTool.Name)

		if err := r.Register(t); err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: import from MCP server %q: %w", cfg.Name, err)
		}
	}

	r.mu.Lock()
	r.closers = append(r.closers, session.Close)
	r.mu.Unlock()

	r.log.Info("imported MCP server tools", "server", cfg.Name, "tools", len(discovered))
	return nil
}

// mcpHandler adapts one remote MCP tool to the registry Handler contract.
func mcpHandler(session *mcpsdk.ClientSession, name string) Handler {
	return func(ctx context.Context, args string) (string, error) {
		var argsMap map[string]any
		if args != "" && args != "{}" {
			if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
				return "", fmt.Errorf("tools: invalid args JSON for MCP tool %q: %w", name, err)
			}
		}

		result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      name,
			Arguments: argsMap,
		})
		if err != nil {
			return "", fmt.Errorf("tools: MCP tool %q call: %w", name, err)
		}

		var sb strings.Builder
		for _, c := range result.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		if result.IsError {
			return "", fmt.Errorf("tools: MCP tool %q reported an error: %s", name, sb.String())
		}
		return sb.String(), nil
	}
}

// schemaToMap converts the SDK's schema value to a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
