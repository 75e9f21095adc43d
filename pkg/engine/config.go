package engine

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is used when the configuration leaves system_prompt
// empty.
const DefaultSystemPrompt = `You are a helpful coding assistant that can read, write, and manage files.

You have access to the following tools:
- read_file: Read the contents of a file
- write_file: Write content to a file (creates or overwrites)
- list_files: List files in a directory

When given a task:
1. Think about what you need to do
2. Use tools to gather information or make changes
3. Continue until the task is complete
4. Explain what you did

Always be careful when writing files - make sure you understand the existing content first.`

// DefaultConfigFile is looked up in the working directory when no config path
// is given.
const DefaultConfigFile = "babycode.yaml"

// defaultModels maps a provider kind to the model used when none is set.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-20250514",
	"openai":    "gpt-4o",
	"gemini":    "gemini-2.5-flash",
	"grok":      "grok-3-mini-fast-beta",
}

// apiKeyEnv maps a provider kind to the environment variable holding its key.
var apiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"grok":      "GROK_API_KEY",
}

// Config is the top-level engine configuration.
type Config struct {
	Logger        *slog.Logger     `yaml:"-"` // Set by CLI, not from YAML.
	Provider      ProviderConfig   `yaml:"provider"`
	SystemPrompt  string           `yaml:"system_prompt"`
	MaxIterations int              `yaml:"max_iterations"` // 0 = unlimited.
	Timeout       string           `yaml:"timeout"`        // Per-run duration, empty = none.
	ParallelTools bool             `yaml:"parallel_tools"`
	DemoMode      bool             `yaml:"demo_mode"`
	Filesystem    FilesystemConfig `yaml:"filesystem"`
	MCPServers    []MCPConfig      `yaml:"mcp_servers"`
	Feed          FeedConfig       `yaml:"feed"`
	Log           LogConfig        `yaml:"log"`
}

// ProviderConfig describes the LLM provider.
type ProviderConfig struct {
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature float64         `yaml:"temperature"`
	Stream      bool            `yaml:"stream"`
	Retry       RetryConfig     `yaml:"retry"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig controls retries on rate-limit responses.
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3, negative disables).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// RateLimitConfig throttles requests before the provider rejects them.
type RateLimitConfig struct {
	InputTPM  int `yaml:"input_tpm"`  // Input tokens per minute (0 = no limit).
	OutputTPM int `yaml:"output_tpm"` // Output tokens per minute (0 = no limit).
	RPM       int `yaml:"rpm"`        // Requests per minute (0 = no limit).
}

// FilesystemConfig holds file tool settings.
type FilesystemConfig struct {
	Root string `yaml:"root"` // Confine file tools to this directory; empty = unrestricted.
}

// MCPConfig describes an MCP server to connect to.
type MCPConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// FeedConfig holds event feed settings.
type FeedConfig struct {
	Addr string `yaml:"addr"` // Listen address for the websocket feed; empty = disabled.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error.
	File  string `yaml:"file"`  // Empty = stderr.
}

// DefaultConfig returns the built-in configuration: Anthropic with the key
// taken from ANTHROPIC_API_KEY.
func DefaultConfig() Config {
	cfg := Config{
		Provider: ProviderConfig{
			Kind:   "anthropic",
			Stream: true,
		},
	}
	cfg.applyDefaults()

	return cfg
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. Settings missing from the file keep their DefaultConfig
// values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration data the same way LoadConfig does.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{Provider: ProviderConfig{Stream: true}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// ResolveConfig loads path when set, otherwise DefaultConfigFile if it exists
// in the working directory, otherwise DefaultConfig.
func ResolveConfig(path string) (Config, error) {
	if path != "" {
		return LoadConfig(path)
	}

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return LoadConfig(DefaultConfigFile)
	}

	return DefaultConfig(), nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Kind == "" {
		c.Provider.Kind = "anthropic"
	}
	if c.Provider.APIKey == "" {
		if env, ok := apiKeyEnv[c.Provider.Kind]; ok {
			c.Provider.APIKey = os.Getenv(env)
		}
	}
	if c.Provider.Model == "" {
		c.Provider.Model = defaultModels[c.Provider.Kind]
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = 4096
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Log.Level == "" {
		c.Log.Level = "error"
	}
}

// Validate checks that the configuration is internally consistent and
// reports the first problem found.
func (c Config) Validate() error {
	p := c.Provider

	if p.Kind == "" {
		return fmt.Errorf("engine: config: provider kind is required")
	}
	if _, ok := getFactory(p.Kind); !ok {
		return fmt.Errorf("engine: config: unknown provider kind %q", p.Kind)
	}
	if p.Model == "" {
		return fmt.Errorf("engine: config: provider model is required")
	}
	// OpenAI-compatible servers such as local ones may need no key.
	if env, ok := apiKeyEnv[p.Kind]; ok && p.Kind != "openai" && p.APIKey == "" {
		return fmt.Errorf("engine: config: provider api_key is required (set %s)", env)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("engine: config: max_tokens must not be negative")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("engine: config: temperature %v out of range [0, 2]", p.Temperature)
	}
	if _, err := p.Retry.baseDelay(); err != nil {
		return err
	}
	if rl := p.RateLimit; rl.InputTPM < 0 || rl.OutputTPM < 0 || rl.RPM < 0 {
		return fmt.Errorf("engine: config: rate_limit values must not be negative")
	}

	if c.MaxIterations < 0 {
		return fmt.Errorf("engine: config: max_iterations must not be negative")
	}
	if _, err := c.RunTimeout(); err != nil {
		return err
	}

	mcpNames := make(map[string]struct{}, len(c.MCPServers))
	for _, m := range c.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mcp server name is required")
		}
		if m.Command == "" {
			return fmt.Errorf("engine: config: mcp server %q: command is required", m.Name)
		}
		if _, dup := mcpNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate mcp server name %q", m.Name)
		}
		mcpNames[m.Name] = struct{}{}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("engine: config: unknown log level %q", c.Log.Level)
	}

	return nil
}

// RunTimeout returns the parsed per-run timeout; zero means none.
func (c Config) RunTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("engine: config: invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("engine: config: timeout must not be negative")
	}

	return d, nil
}

func (r RetryConfig) baseDelay() (time.Duration, error) {
	if r.BaseDelay == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		return 0, fmt.Errorf("engine: config: invalid base_delay %q: %w", r.BaseDelay, err)
	}

	return d, nil
}
