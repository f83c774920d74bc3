// Nexagent server — conversational assistant with an agentic task loop,
// hardened web browsing, and per-conversation timeline streaming.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexagent/nexagent/pkg/agent"
	"github.com/nexagent/nexagent/pkg/api"
	"github.com/nexagent/nexagent/pkg/browser"
	"github.com/nexagent/nexagent/pkg/classifier"
	"github.com/nexagent/nexagent/pkg/config"
	"github.com/nexagent/nexagent/pkg/conversation"
	"github.com/nexagent/nexagent/pkg/events"
	"github.com/nexagent/nexagent/pkg/orchestrator"
	"github.com/nexagent/nexagent/pkg/responder"
	"github.com/nexagent/nexagent/pkg/tools"
	"github.com/nexagent/nexagent/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildPipeline assembles the hardened browse pipeline from configuration.
func buildPipeline(cfg *config.Config, search browser.SearchFunc) *browser.Pipeline {
	var solver *browser.Solver
	if cfg.Browser.CaptchaSolverURL != "" {
		solver = browser.NewSolver(cfg.Browser.CaptchaSolverURL, cfg.Browser.CaptchaSolverKey)
	}
	return browser.NewPipeline(browser.NewHTTPDriver(), browser.NewBasicDriver(), browser.Options{
		UserAgents:           cfg.Browser.UserAgents,
		Proxies:              cfg.Browser.Proxies,
		AntiScrapingPatterns: cfg.Browser.AntiScrapingPatterns,
		NavTimeout:           cfg.Browser.NavTimeout.Std(),
		NavTimeoutCeiling:    cfg.Browser.NavTimeoutCeiling.Std(),
		DelayMin:             time.Duration(cfg.Browser.DelayMinMS) * time.Millisecond,
		DelayMax:             time.Duration(cfg.Browser.DelayMaxMS) * time.Millisecond,
		MaxSessions:          cfg.Browser.MaxBrowsers,
		MaxDepth:             cfg.Browser.MaxDepth,
		Solver:               solver,
		Search:               search,
	})
}

func main() {
	configPath := flag.String("config",
		getEnv("NEXAGENT_CONFIG", "./nexagent.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment", "error", err)
	}

	slog.Info("Starting Nexagent",
		"version", version.Version,
		"commit", version.GitCommit,
		"config", *configPath)

	// 1. Configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Conversation storage
	manager, err := conversation.NewManager(cfg.Storage.DataRoot)
	if err != nil {
		slog.Error("Failed to initialize conversation storage",
			"data_root", cfg.Storage.DataRoot, "error", err)
		os.Exit(1)
	}
	slog.Info("Conversation storage ready", "data_root", cfg.Storage.DataRoot)

	// 3. Search backend and browse pipeline
	var searchBackend *tools.HTTPSearchBackend
	var searchFn browser.SearchFunc
	if cfg.Search.Endpoint != "" {
		searchBackend = tools.NewHTTPSearchBackend(cfg.Search.Endpoint, cfg.Search.APIKey)
		searchFn = searchBackend.Search
	}
	pipeline := buildPipeline(cfg, searchFn)
	defer pipeline.Close()

	// 4. Tool registry
	registry := tools.NewRegistry()
	toolSet := []tools.Tool{
		tools.NewTerminateTool(),
		tools.NewBrowseTool(pipeline),
		tools.NewCollectTool(pipeline),
	}
	if searchBackend != nil {
		toolSet = append(toolSet, tools.NewSearchTool(searchBackend))
	}
	for _, tool := range toolSet {
		if err := registry.Register(tool); err != nil {
			slog.Error("Failed to register tool", "error", err)
			os.Exit(1)
		}
	}
	dispatcher := tools.NewDispatcher(registry,
		cfg.Agent.ToolTimeout.Std(), cfg.Agent.HeavyToolTimeout.Std())

	// 5. LLM client and agent loop
	llmEndpoint := getEnv("NEXAGENT_LLM_ENDPOINT", "http://localhost:9000/v1/generate")
	llm := agent.NewHTTPLLMClient(llmEndpoint, os.Getenv("NEXAGENT_LLM_API_KEY"))
	cancels := agent.NewCancelRegistry()
	loop := agent.NewLoop(llm, dispatcher, cfg.Agent, cancels)
	slog.Info("Agent loop initialized", "llm_endpoint", llmEndpoint)

	// 6. Broadcaster with liveness pings
	broadcast := events.NewBroadcaster()
	ctx, stopPings := context.WithCancel(context.Background())
	defer stopPings()
	go broadcast.Run(ctx)

	// 7. Orchestrator and HTTP server
	orch := orchestrator.New(cfg, manager, classifier.New(cfg.Classifier),
		responder.New(cfg.Responder), loop, cancels, broadcast)
	httpServer := api.NewServer(cfg, orch, broadcast, registry, pipeline)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop pings, then drain HTTP with a bounded budget.
	stopPings()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
