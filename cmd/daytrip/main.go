// Command daytrip runs the activity planner assistant: a chat REPL on stdin
// backed by LLM tool calling, with health and metrics served over HTTP.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daytrip-ai/daytrip/internal/accounting"
	"github.com/daytrip-ai/daytrip/internal/chat"
	"github.com/daytrip-ai/daytrip/internal/config"
	internalevents "github.com/daytrip-ai/daytrip/internal/events"
	"github.com/daytrip-ai/daytrip/internal/health"
	"github.com/daytrip-ai/daytrip/internal/limiter"
	"github.com/daytrip-ai/daytrip/internal/observe"
	"github.com/daytrip-ai/daytrip/internal/resilience"
	"github.com/daytrip-ai/daytrip/internal/tools"
	"github.com/daytrip-ai/daytrip/internal/tools/eventfinder"
	"github.com/daytrip-ai/daytrip/internal/tools/weathertool"
	"github.com/daytrip-ai/daytrip/pkg/provider/events"
	"github.com/daytrip-ai/daytrip/pkg/provider/events/places"
	"github.com/daytrip-ai/daytrip/pkg/provider/events/ticketmaster"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm/anyllm"
	"github.com/daytrip-ai/daytrip/pkg/provider/llm/openai"
	"github.com/daytrip-ai/daytrip/pkg/provider/weather/weatherapi"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// localClientID attributes REPL turns in the usage ledger.
const localClientID = "local"

// reloadTargets holds the components that accept config changes at runtime.
// The watcher fires from its own goroutine and starts polling before the
// components exist, so access is mutex-guarded and nil fields are skipped.
type reloadTargets struct {
	mu        sync.Mutex
	logLevel  *slog.LevelVar
	responder *chat.Responder
	agg       *internalevents.Aggregator
	gate      *limiter.Limiter
}

func (rt *reloadTargets) bind(r *chat.Responder, a *internalevents.Aggregator, g *limiter.Limiter) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.responder, rt.agg, rt.gate = r, a, g
}

// apply pushes the hot-reloadable parts of a validated config edit into the
// running components. Backend and source changes still need a restart.
func (rt *reloadTargets) apply(old, updated *config.Config) {
	d := config.Compare(old, updated)
	if d.Empty() {
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if d.LogLevelChanged {
		rt.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SystemPromptChanged && rt.responder != nil {
		prompt := d.NewSystemPrompt
		if prompt == "" {
			prompt = config.DefaultSystemPrompt
		}
		rt.responder.SetSystemPrompt(prompt)
		slog.Info("system prompt updated")
	}
	if d.ScoringChanged && rt.agg != nil {
		rt.agg.SetScoring(updated.Events.Scoring)
		slog.Info("event scoring weights updated")
	}
	if d.LimiterChanged && rt.gate != nil {
		rt.gate.SetLimits(updated.Limiter.Burst, updated.Limiter.PerMinute)
		slog.Info("rate limits updated")
	}
	slog.Info("config reloaded; backend and source changes need a restart")
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "daytrip.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration (with hot reload for safe fields) ─────────────────
	logLevel := new(slog.LevelVar)
	reload := &reloadTargets{logLevel: logLevel}
	watcher, err := config.NewWatcher(*configPath, reload.apply)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "daytrip: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "daytrip: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("daytrip starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "daytrip",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── LLM backends ──────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildLLM(cfg, reg)
	if err != nil {
		slog.Error("failed to build LLM backends", "err", err)
		return 1
	}

	// ── Usage ledger ──────────────────────────────────────────────────────────
	var (
		ledger   accounting.Ledger
		pgLedger *accounting.PostgresLedger
	)
	if cfg.Accounting.PostgresDSN != "" {
		pgLedger, err = accounting.NewPostgresLedger(ctx, cfg.Accounting.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect usage database", "err", err)
			return 1
		}
		defer pgLedger.Close()
		ledger = pgLedger
		slog.Info("usage accounting backed by postgres")
	} else {
		ledger = &accounting.MemoryLedger{}
	}

	// ── Tools ─────────────────────────────────────────────────────────────────
	registry := tools.NewRegistry(tools.WithMetrics(metrics))
	defer registry.Close()

	forecaster, err := buildForecaster(cfg)
	if err != nil {
		slog.Error("failed to build weather source", "err", err)
		return 1
	}
	if err := registry.Register(weathertool.New(forecaster)); err != nil {
		slog.Error("failed to register weather tool", "err", err)
		return 1
	}

	sources, err := buildEventSources(cfg)
	if err != nil {
		slog.Error("failed to build event sources", "err", err)
		return 1
	}
	var agg *internalevents.Aggregator
	if len(sources) > 0 {
		aggOpts := []internalevents.Option{
			internalevents.WithMetrics(metrics),
			internalevents.WithScoring(cfg.Events.Scoring),
		}
		if cfg.Events.TimeoutSeconds > 0 {
			aggOpts = append(aggOpts, internalevents.WithTimeout(time.Duration(cfg.Events.TimeoutSeconds)*time.Second))
		}
		agg, err = internalevents.New(sources, aggOpts...)
		if err != nil {
			slog.Error("failed to build event aggregator", "err", err)
			return 1
		}
		if err := registry.Register(eventfinder.New(agg)); err != nil {
			slog.Error("failed to register events tool", "err", err)
			return 1
		}
	} else {
		slog.Warn("no event source enabled; get_events will not be offered")
	}

	for _, srv := range cfg.MCP.Servers {
		if err := registry.ImportMCPServer(ctx, srv); err != nil {
			slog.Warn("failed to import MCP server, continuing without it",
				"server", srv.Name, "err", err)
		}
	}

	// ── Conversation loop ─────────────────────────────────────────────────────
	systemPrompt := cfg.Chat.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = config.DefaultSystemPrompt
	}
	responder, err := chat.New(provider, registry,
		chat.WithSystemPrompt(systemPrompt),
		chat.WithMaxIterations(cfg.Chat.MaxIterations),
		chat.WithToolParallelism(cfg.Chat.ToolParallelism),
		chat.WithTemperature(cfg.Chat.Temperature),
		chat.WithMaxTokens(cfg.Chat.MaxTokens),
		chat.WithModelName(cfg.LLM.Primary.Model),
		chat.WithLedger(ledger),
		chat.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to build responder", "err", err)
		return 1
	}

	gate := limiter.New(cfg.Limiter.Burst, cfg.Limiter.PerMinute)

	// Late-bind the reload targets now that they all exist; config edits
	// before this point only adjusted the log level.
	reload.bind(responder, agg, gate)

	// ── Health + metrics endpoint ─────────────────────────────────────────────
	httpSrv := startHTTP(cfg, metrics, provider, pgLedger, forecaster, sources)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg, registry)

	// ── REPL ──────────────────────────────────────────────────────────────────
	repl(ctx, responder, gate)

	slog.Info("goodbye")
	return 0
}

// repl reads user turns from stdin until EOF or signal.
func repl(ctx context.Context, responder *chat.Responder, gate *limiter.Limiter) {
	fmt.Println("daytrip is ready — tell me a city and I'll plan your day. Ctrl+D to quit.")

	var history []types.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				slog.Error("stdin read error", "err", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !gate.Allow(localClientID) {
			fmt.Println("Whoa, slow down! Give me a moment to catch my breath.")
			continue
		}

		reply, updated, err := responder.Respond(ctx, localClientID, line, history)
		if err != nil {
			fmt.Printf("Sorry, I encountered an error: %v. Please try again!\n", err)
			continue
		}
		history = updated
		fmt.Println(reply)
	}
}

// ── LLM wiring ────────────────────────────────────────────────────────────────

// registerBuiltinProviders wires the shipped LLM backends into reg. "openai"
// uses the native SDK adapter; the rest go through the any-llm bridge.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.Register(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server; BaseURL is the address, no API key.
	reg.Register("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildLLM creates the primary backend plus configured fallbacks, chained
// behind circuit breakers.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.Create(cfg.LLM.Primary)
	if err != nil {
		return nil, fmt.Errorf("create primary %q: %w", cfg.LLM.Primary.Name, err)
	}
	slog.Info("llm backend created", "name", cfg.LLM.Primary.Name, "model", cfg.LLM.Primary.Model)

	if len(cfg.LLM.Fallbacks) == 0 {
		return primary, nil
	}

	backends := []resilience.Backend{{Name: cfg.LLM.Primary.Name, Provider: primary}}
	for _, entry := range cfg.LLM.Fallbacks {
		p, err := reg.Create(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback %q: %w", entry.Name, err)
		}
		backends = append(backends, resilience.Backend{Name: entry.Name, Provider: p})
		slog.Info("llm fallback created", "name", entry.Name, "model", entry.Model)
	}
	return resilience.NewFailover(backends)
}

// ── Data source wiring ────────────────────────────────────────────────────────

func buildForecaster(cfg *config.Config) (*weatherapi.Forecaster, error) {
	var opts []weatherapi.Option
	if cfg.Weather.BaseURL != "" {
		opts = append(opts, weatherapi.WithBaseURL(cfg.Weather.BaseURL))
	}
	return weatherapi.New(cfg.Weather.APIKey, opts...)
}

func buildEventSources(cfg *config.Config) ([]events.Source, error) {
	var sources []events.Source

	if tm := cfg.Events.Ticketmaster; tm.Enabled {
		var opts []ticketmaster.Option
		if tm.BaseURL != "" {
			opts = append(opts, ticketmaster.WithBaseURL(tm.BaseURL))
		}
		src, err := ticketmaster.New(tm.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("ticketmaster: %w", err)
		}
		sources = append(sources, src)
	}

	if pl := cfg.Events.Places; pl.Enabled {
		var opts []places.Option
		if pl.BaseURL != "" {
			opts = append(opts, places.WithBaseURL(pl.BaseURL))
		}
		src, err := places.New(pl.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("places: %w", err)
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// ── HTTP endpoint ─────────────────────────────────────────────────────────────

// startHTTP serves /healthz, /readyz, and /metrics in the background.
func startHTTP(cfg *config.Config, metrics *observe.Metrics, provider llm.Provider, pg *accounting.PostgresLedger, forecaster *weatherapi.Forecaster, sources []events.Source) *http.Server {
	checkers := []health.Checker{
		{Name: "llm", Check: func(_ context.Context) error {
			if !provider.Capabilities().SupportsToolCalling {
				return errors.New("configured model does not support tool calling")
			}
			return nil
		}},
		{Name: "weather", Check: forecaster.Healthcheck},
	}
	for _, src := range sources {
		if p, ok := src.(interface {
			Healthcheck(ctx context.Context) error
		}); ok {
			checkers = append(checkers, health.Checker{Name: src.Name(), Check: p.Healthcheck})
		}
	}
	if pg != nil {
		checkers = append(checkers, health.Checker{Name: "usage-db", Check: pg.Ping})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: observe.Middleware(metrics)(mux),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
	slog.Info("http endpoint listening", "addr", addr)
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, registry *tools.Registry) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         daytrip — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", cfg.LLM.Primary.Name+" / "+cfg.LLM.Primary.Model)
	printRow("Fallbacks", fmt.Sprintf("%d", len(cfg.LLM.Fallbacks)))
	printRow("Tools", fmt.Sprintf("%d", len(registry.Describe())))
	printRow("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	sources := "none"
	switch {
	case cfg.Events.Ticketmaster.Enabled && cfg.Events.Places.Enabled:
		sources = "ticketmaster, places"
	case cfg.Events.Ticketmaster.Enabled:
		sources = "ticketmaster"
	case cfg.Events.Places.Enabled:
		sources = "places"
	}
	printRow("Event sources", sources)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}
