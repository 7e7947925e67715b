package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/agent"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/browser"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/config"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/connwatch"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/fetch"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/notify"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/search"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/session"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/wikipedia"
)

// app holds the wired components shared by serve and ask.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	bus     *events.Bus
	store   *session.Store
	browser *browser.Manager
	mqtt    *notify.MQTT
	runner  *agent.Runner

	// providers are the model backends by name, for health probes.
	providers map[string]llm.Client
}

// newApp opens the session store, builds the model client and tool
// registry, and assembles the controller and runner. Background work
// (MQTT, status bridge) is bound to ctx.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	bus := events.New()

	store, err := openStore(cfg, bus, logger)
	if err != nil {
		return nil, err
	}
	if n, err := store.CleanupOrphans(ctx); err != nil {
		logger.Warn("orphan cleanup failed", "error", err)
	} else if n > 0 {
		logger.Info("removed orphaned session state", "count", n)
	}
	if n, err := store.Prune(ctx, cfg.Session.MaxSessions); err != nil {
		logger.Warn("session prune failed", "error", err)
	} else if n > 0 {
		logger.Info("pruned old sessions", "count", n, "max", cfg.Session.MaxSessions)
	}

	workspace, err := filepath.Abs(cfg.Workspace.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, bus: bus, store: store}
	registry := a.buildTools(ctx, workspace)

	client, providers := createLLMClient(cfg, logger)
	a.providers = providers
	ctrl := agent.NewController(agent.ControllerConfig{
		Worker: agent.NewWorker(client, cfg.Agent.WorkerModel, registry,
			agent.NewCompositeContextProvider(agent.WorkspaceProvider{Path: workspace}), logger),
		Evaluator:        agent.NewEvaluator(client, cfg.Agent.EvaluatorModel, logger),
		Dispatcher:       agent.NewDispatcher(registry, cfg.Agent.ToolTimeout(), logger),
		Memory:           store,
		Runs:             store,
		Bus:              bus,
		Logger:           logger,
		MaxIterations:    cfg.Agent.MaxIterations,
		IterationTimeout: cfg.Agent.IterationTimeout(),
	})
	a.runner = agent.NewRunner(ctrl, store, a.browser, bus, logger)

	logger.Info("agent ready",
		"tools", len(registry.Names()),
		"workspace", workspace,
		"headless", a.browser.Headless(),
	)
	return a, nil
}

// buildTools registers every tool the configuration allows.
func (a *app) buildTools(ctx context.Context, workspace string) *tools.Registry {
	cfg, logger := a.cfg, a.logger
	r := tools.NewEmptyRegistry()

	files := tools.NewFileTools(workspace)
	files.Register(r)

	shellCfg := tools.DefaultShellExecConfig()
	shellCfg.Enabled = cfg.ShellExec.Enabled
	shellCfg.Python = cfg.ShellExec.Python
	shellCfg.WorkingDir = workspace
	shellCfg.DefaultTimeout = time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second
	if len(cfg.ShellExec.DeniedPatterns) > 0 {
		shellCfg.DeniedPatterns = cfg.ShellExec.DeniedPatterns
	}
	tools.NewShellExec(shellCfg).Register(r)

	searchMgr := search.NewManager(cfg.Search.Default).WithLogger(logger)
	if cfg.Search.Serper.APIKey != "" {
		searchMgr.Register(search.NewSerper(cfg.Search.Serper.APIKey))
	}
	if cfg.Search.SearXNG.URL != "" {
		searchMgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.APIKey != "" {
		searchMgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	search.Register(r, searchMgr)
	if !searchMgr.Configured() {
		logger.Info("web search disabled (no provider configured)")
	}

	fetch.Register(r, fetch.New())
	wikipedia.Register(r, wikipedia.New(cfg.Wikipedia.Language))

	dispatcher := notify.NewDispatcher(a.bus, logger)
	if cfg.Notify.Pushover.Configured() {
		dispatcher.Add(notify.NewPushover(cfg.Notify.Pushover))
	}
	if cfg.Notify.Email.Configured() {
		dispatcher.Add(notify.NewEmail(cfg.Notify.Email))
	}
	if cfg.Notify.MQTT.Configured() {
		a.startMQTT(ctx, dispatcher)
	}
	notify.Register(r, dispatcher)
	logger.Info("notification channels", "channels", dispatcher.Channels())

	a.browser = browser.NewManager(browser.Options{
		Headless:  cfg.Browser.Headless,
		ExecPath:  cfg.Browser.ExecPath,
		OpTimeout: time.Duration(cfg.Browser.OpTimeoutSec) * time.Second,
	}, a.bus, logger)
	browser.Register(r, a.browser)
	browser.RegisterPDF(r, a.browser, files)

	return r
}

// startMQTT connects the MQTT channel and mirrors run status onto it.
// A failure leaves the channel out of the dispatcher.
func (a *app) startMQTT(ctx context.Context, dispatcher *notify.Dispatcher) {
	instanceID, err := notify.LoadOrCreateInstanceID(a.cfg.DataDir)
	if err != nil {
		a.logger.Error("mqtt instance id unavailable", "error", err)
		return
	}
	m := notify.NewMQTT(a.cfg.Notify.MQTT, instanceID, a.logger)
	if err := m.Start(ctx); err != nil {
		a.logger.Error("mqtt publisher failed", "error", err)
		return
	}
	a.mqtt = m
	dispatcher.Add(m)
	go m.RunStatusBridge(ctx, a.bus)
	a.logger.Info("mqtt publishing enabled",
		"broker", a.cfg.Notify.MQTT.Broker,
		"device_name", a.cfg.Notify.MQTT.DeviceName,
		"instance_id", instanceID,
	)
}

// watchServices starts reachability probes for every model provider
// and the MQTT broker.
func (a *app) watchServices(ctx context.Context) *connwatch.Monitor {
	m := connwatch.NewMonitor(a.bus, a.logger, connwatch.DefaultBackoff())
	for name, c := range a.providers {
		m.Watch(ctx, name, c.Ping)
	}
	if a.mqtt != nil {
		m.Watch(ctx, "mqtt", a.mqtt.AwaitConnection)
	}
	return m
}

// Close stops runs and releases the browser, then disconnects MQTT and
// closes the store.
func (a *app) Close(ctx context.Context) {
	if err := a.runner.Shutdown(ctx); err != nil {
		a.logger.Warn("runner shutdown incomplete", "error", err)
	}
	if a.mqtt != nil {
		if err := a.mqtt.Stop(ctx); err != nil {
			a.logger.Error("mqtt shutdown failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("session store close failed", "error", err)
	}
}

// openStore opens the session database under the data directory.
func openStore(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*session.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	path := filepath.Join(cfg.DataDir, "sidekick.db")
	store, err := session.Open(cfg.Database.Driver, path, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store %s: %w", path, err)
	}
	return store, nil
}

// createLLMClient builds a multi-provider client routed by model name,
// wrapped in retries, and returns the providers it registered. Ollama
// is always present and serves any model without a configured provider.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, map[string]llm.Client) {
	providers := map[string]llm.Client{
		"ollama": llm.NewOllamaClient(cfg.Models.OllamaURL, logger),
	}
	if cfg.Anthropic.APIKey != "" {
		providers["anthropic"] = llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		logger.Info("Anthropic provider configured")
	}
	if cfg.OpenAI.APIKey != "" {
		providers["openai"] = llm.NewGollmClient("openai", cfg.OpenAI.APIKey, logger)
		logger.Info("OpenAI provider configured")
	}

	multi := llm.NewMultiClient(providers["ollama"])
	for name, c := range providers {
		multi.AddProvider(name, c)
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}
	for _, model := range []string{cfg.Agent.WorkerModel, cfg.Agent.EvaluatorModel} {
		multi.AddModel(model, cfg.ProviderFor(model))
	}
	logger.Info("LLM client initialized",
		"worker_model", cfg.Agent.WorkerModel,
		"worker_provider", cfg.ProviderFor(cfg.Agent.WorkerModel),
		"evaluator_model", cfg.Agent.EvaluatorModel,
		"evaluator_provider", cfg.ProviderFor(cfg.Agent.EvaluatorModel),
	)

	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Agent.ModelRetries
	return llm.NewRetryClient(multi, policy, logger), providers
}
