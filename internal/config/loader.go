package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/daytrip-ai/daytrip/internal/tools"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the LLM backends the default registry knows.
// [Validate] warns about names outside this list.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// keylessProviders are backends that run locally and need no API key.
var keylessProviders = []string{"ollama", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent, returning a joined error listing
// every failure found. Missing credentials for anything that is enabled fail
// here rather than on the first request.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	errs = append(errs, validateProvider("llm.primary", cfg.LLM.Primary, true)...)
	for i, fb := range cfg.LLM.Fallbacks {
		errs = append(errs, validateProvider(fmt.Sprintf("llm.fallbacks[%d]", i), fb, true)...)
	}

	if cfg.Chat.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("chat.max_iterations %d must not be negative", cfg.Chat.MaxIterations))
	}
	if cfg.Chat.ToolParallelism < 0 {
		errs = append(errs, fmt.Errorf("chat.tool_parallelism %d must not be negative", cfg.Chat.ToolParallelism))
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature))
	}

	if cfg.Weather.APIKey == "" {
		errs = append(errs, errors.New("weather.api_key is required (the get_weather tool cannot run without it)"))
	}

	if cfg.Events.Ticketmaster.Enabled && cfg.Events.Ticketmaster.APIKey == "" {
		errs = append(errs, errors.New("events.ticketmaster.api_key is required when the source is enabled"))
	}
	if cfg.Events.Places.Enabled && cfg.Events.Places.APIKey == "" {
		errs = append(errs, errors.New("events.places.api_key is required when the source is enabled"))
	}
	if !cfg.Events.Ticketmaster.Enabled && !cfg.Events.Places.Enabled {
		slog.Warn("no event source enabled; the get_events tool will not be offered to the model")
	}
	if cfg.Events.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("events.timeout_seconds %d must not be negative", cfg.Events.TimeoutSeconds))
	}

	if cfg.Limiter.Burst < 0 {
		errs = append(errs, fmt.Errorf("limiter.burst %d must not be negative", cfg.Limiter.Burst))
	}
	if cfg.Limiter.PerMinute < 0 {
		errs = append(errs, fmt.Errorf("limiter.per_minute %.2f must not be negative", cfg.Limiter.PerMinute))
	}

	if cfg.Accounting.PostgresDSN == "" {
		slog.Warn("accounting.postgres_dsn is empty; usage accounting will not survive restarts")
	}

	seen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		switch srv.Transport {
		case tools.MCPTransportStdio:
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case tools.MCPTransportHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
	}

	return errors.Join(errs...)
}

// validateProvider checks one LLM backend entry.
func validateProvider(prefix string, entry ProviderEntry, required bool) []error {
	var errs []error
	if entry.Name == "" {
		if required {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		return errs
	}
	if !slices.Contains(ValidProviderNames, entry.Name) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"entry", prefix,
			"name", entry.Name,
			"known", ValidProviderNames,
		)
	}
	if entry.APIKey == "" && !slices.Contains(keylessProviders, entry.Name) {
		errs = append(errs, fmt.Errorf("%s.api_key is required for provider %q", prefix, entry.Name))
	}
	return errs
}
