// Package config handles Sidekick configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/sidekick/config.yaml, /etc/sidekick/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sidekick", "config.yaml"))
	}

	paths = append(paths, "/etc/sidekick/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Sidekick configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Agent     AgentConfig     `yaml:"agent"`
	Models    ModelsConfig    `yaml:"models"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Browser   BrowserConfig   `yaml:"browser"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	ShellExec ShellExecConfig `yaml:"shell_exec"`
	Search    SearchConfig    `yaml:"search"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	Notify    NotifyConfig    `yaml:"notify"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AgentConfig bounds the worker/evaluator loop.
type AgentConfig struct {
	// MaxIterations is the hard ceiling on worker turns per run (default 50).
	MaxIterations int `yaml:"max_iterations"`
	// IterationTimeoutSec is the wall-clock budget for one worker turn plus
	// its tool batch or evaluation. Exceeding it exhausts the run.
	IterationTimeoutSec int `yaml:"iteration_timeout_sec"`
	// ToolTimeoutSec caps a single tool call.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// WorkerModel and EvaluatorModel name the models for each role.
	WorkerModel    string `yaml:"worker_model"`
	EvaluatorModel string `yaml:"evaluator_model"`
	// ModelRetries is how many times a retryable model error is retried.
	ModelRetries int `yaml:"model_retries"`
}

// IterationTimeout returns the per-iteration budget as a duration.
func (c AgentConfig) IterationTimeout() time.Duration {
	return time.Duration(c.IterationTimeoutSec) * time.Second
}

// ToolTimeout returns the per-tool budget as a duration.
func (c AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// ModelsConfig maps model names to providers.
type ModelsConfig struct {
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig binds a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic, openai
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OpenAIConfig defines settings for the gollm-backed OpenAI provider.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// BrowserConfig controls the shared browser session.
type BrowserConfig struct {
	// Headless forces headless (true) or headed (false) mode. When unset
	// the mode is detected from the environment at launch.
	Headless *bool `yaml:"headless"`
	// ExecPath overrides the Chrome/Chromium binary.
	ExecPath string `yaml:"exec_path"`
	// OpTimeoutSec caps a single browser operation (default 30).
	OpTimeoutSec int `yaml:"op_timeout_sec"`
}

// WorkspaceConfig defines the sandbox root for file tools and PDFs.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// ShellExecConfig defines the code execution sandbox.
type ShellExecConfig struct {
	// Enabled allows the run_python tool. Disabled by default.
	Enabled bool `yaml:"enabled"`
	// Python is the interpreter binary (default python3).
	Python string `yaml:"python"`
	// DeniedPatterns are code patterns to block.
	DeniedPatterns []string `yaml:"denied_patterns"`
	// DefaultTimeoutSec is the default timeout in seconds (default 30).
	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
}

// SearchConfig configures web search providers.
type SearchConfig struct {
	Default string        `yaml:"default"` // serper, searxng or brave
	Serper  SerperConfig  `yaml:"serper"`
	SearXNG SearXNGConfig `yaml:"searxng"`
	Brave   BraveConfig   `yaml:"brave"`
}

// SerperConfig holds the Serper (Google) API key.
type SerperConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig points at a self-hosted SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// WikipediaConfig selects the wiki language edition.
type WikipediaConfig struct {
	Language string `yaml:"language"`
}

// NotifyConfig holds the outbound notification channels.
type NotifyConfig struct {
	Pushover PushoverConfig `yaml:"pushover"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Email    EmailConfig    `yaml:"email"`
}

// PushoverConfig holds Pushover application and user keys.
type PushoverConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
}

// Configured reports whether both keys are present.
func (c PushoverConfig) Configured() bool { return c.Token != "" && c.User != "" }

// MQTTConfig configures the MQTT publisher for notifications and run status.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://host:1883 or mqtts://host:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceName  string `yaml:"device_name"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool { return c.Broker != "" }

// EmailConfig configures SMTP delivery of notifications.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	StartTLS bool     `yaml:"starttls"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Configured reports whether enough is set to send mail.
func (c EmailConfig) Configured() bool { return c.Host != "" && c.From != "" && len(c.To) > 0 }

// SessionConfig bounds the session catalogue.
type SessionConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

// DatabaseConfig selects the SQLite driver.
type DatabaseConfig struct {
	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver string `yaml:"driver"`
}

// Load reads configuration from a YAML file, expands environment
// variables and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 50
	}
	if c.Agent.IterationTimeoutSec == 0 {
		c.Agent.IterationTimeoutSec = 300
	}
	if c.Agent.ToolTimeoutSec == 0 {
		c.Agent.ToolTimeoutSec = 120
	}
	if c.Agent.WorkerModel == "" {
		c.Agent.WorkerModel = "gpt-4o-mini"
	}
	if c.Agent.EvaluatorModel == "" {
		c.Agent.EvaluatorModel = c.Agent.WorkerModel
	}
	if c.Agent.ModelRetries == 0 {
		c.Agent.ModelRetries = 2
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	if c.Browser.OpTimeoutSec == 0 {
		c.Browser.OpTimeoutSec = 30
	}
	if c.Workspace.Path == "" {
		c.Workspace.Path = "sandbox"
	}
	if c.ShellExec.Python == "" {
		c.ShellExec.Python = "python3"
	}
	if c.ShellExec.DefaultTimeoutSec == 0 {
		c.ShellExec.DefaultTimeoutSec = 30
	}
	if c.Search.Default == "" {
		switch {
		case c.Search.Serper.APIKey != "":
			c.Search.Default = "serper"
		case c.Search.SearXNG.URL != "":
			c.Search.Default = "searxng"
		case c.Search.Brave.APIKey != "":
			c.Search.Default = "brave"
		}
	}
	if c.Wikipedia.Language == "" {
		c.Wikipedia.Language = "en"
	}
	if c.Notify.MQTT.TopicPrefix == "" {
		c.Notify.MQTT.TopicPrefix = "sidekick"
	}
	if c.Notify.MQTT.DeviceName == "" {
		if h, err := os.Hostname(); err == nil {
			c.Notify.MQTT.DeviceName = h
		} else {
			c.Notify.MQTT.DeviceName = "sidekick"
		}
	}
	if c.Notify.Email.Port == 0 {
		c.Notify.Email.Port = 587
	}
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 100
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports configuration errors that would prevent startup.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.IterationTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("agent.iteration_timeout_sec must be positive"))
	}
	if c.Agent.ToolTimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout_sec must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite3 or sqlite", c.Database.Driver))
	}
	switch c.Search.Default {
	case "", "serper", "searxng", "brave":
	default:
		errs = append(errs, fmt.Errorf("search.default %q is not a known provider", c.Search.Default))
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama", "anthropic", "openai":
		default:
			errs = append(errs, fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider))
		}
	}

	return errors.Join(errs...)
}

// ProviderFor returns the provider configured for model, inferring one
// from the name when the model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	default:
		return "ollama"
	}
}
