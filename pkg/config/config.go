package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the process-wide configuration tree, populated from the
// environment via caarlos0/env. Every leaf except the provider and
// web-search credentials and the allow-pattern list carries an
// envDefault; those start empty in a bare DefaultConfig().
type Config struct {
	Agents     AgentsConfig     `envPrefix:"TINYCLAW_AGENTS_"`
	Providers  ProvidersConfig  `envPrefix:"TINYCLAW_PROVIDER_"`
	Tools      ToolsConfig      `envPrefix:"TINYCLAW_TOOLS_"`
	Bus        BusConfig        `envPrefix:"TINYCLAW_BUS_"`
	Session    SessionConfig    `envPrefix:"TINYCLAW_SESSION_"`
	Scheduler  SchedulerConfig  `envPrefix:"TINYCLAW_SCHEDULER_"`
	Summarizer SummarizerConfig `envPrefix:"TINYCLAW_SUMMARIZER_"`
	Security   SecurityConfig   `envPrefix:"TINYCLAW_SECURITY_"`
	Heartbeat  HeartbeatConfig  `envPrefix:"TINYCLAW_HEARTBEAT_"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `envPrefix:"DEFAULT_"`
}

type AgentDefaults struct {
	Workspace            string `env:"WORKSPACE" envDefault:"~/.tinyclaw/workspace"`
	Model                string `env:"MODEL" envDefault:"openrouter/anthropic/claude-3.5-sonnet"`
	MaxTokens            int    `env:"MAX_TOKENS" envDefault:"8192"`
	MaxToolIterations    int    `env:"MAX_TOOL_ITERATIONS" envDefault:"20"`
	LLMTimeoutSeconds    int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"120"`
	ToolTimeoutSeconds   int    `env:"TOOL_TIMEOUT_SECONDS" envDefault:"60"`
	MaxParallelToolCalls int    `env:"MAX_PARALLEL_TOOL_CALLS" envDefault:"1"`
}

type ProviderCredential struct {
	APIKey  string `env:"API_KEY"`
	APIBase string `env:"API_BASE"`
}

type OpenRouterCredential struct {
	ProviderCredential
	Routing map[string]interface{}
}

type ProvidersConfig struct {
	OpenRouter OpenRouterCredential `envPrefix:"OPENROUTER_"`
	Anthropic  ProviderCredential   `envPrefix:"ANTHROPIC_"`
	OpenAI     ProviderCredential   `envPrefix:"OPENAI_"`
	Gemini     ProviderCredential   `envPrefix:"GEMINI_"`
	Zhipu      ProviderCredential   `envPrefix:"ZHIPU_"`
	Groq       ProviderCredential   `envPrefix:"GROQ_"`
	Modal      ProviderCredential   `envPrefix:"MODAL_"`
	VLLM       ProviderCredential   `envPrefix:"VLLM_"`
}

type WebSearchConfig struct {
	APIKey     string `env:"API_KEY"`
	MaxResults int    `env:"MAX_RESULTS" envDefault:"5"`
}

type WebToolsConfig struct {
	Search WebSearchConfig `envPrefix:"SEARCH_"`
}

type ToolsConfig struct {
	Web WebToolsConfig `envPrefix:"WEB_"`
}

type BusConfig struct {
	InboundCapacity  int `env:"INBOUND_CAPACITY" envDefault:"100"`
	OutboundCapacity int `env:"OUTBOUND_CAPACITY" envDefault:"100"`
}

type SessionConfig struct {
	WorkspacePath string `env:"WORKSPACE_PATH" envDefault:"sessions"`
}

type SchedulerConfig struct {
	TickIntervalMs int `env:"TICK_INTERVAL_MS" envDefault:"1000"`
}

type SummarizerConfig struct {
	MessageThreshold      int `env:"MESSAGE_THRESHOLD" envDefault:"40"`
	TokenPercentage       int `env:"TOKEN_PERCENTAGE" envDefault:"80"`
	RecentMessagesToKeep  int `env:"RECENT_MESSAGES_TO_KEEP" envDefault:"10"`
}

type SecurityConfig struct {
	RestrictToWorkspace  bool     `env:"RESTRICT_TO_WORKSPACE" envDefault:"true"`
	AllowCommandPatterns []string `env:"ALLOW_COMMAND_PATTERNS" envSeparator:","`
	DenyCommandPatterns  []string `env:"DENY_COMMAND_PATTERNS" envSeparator:"," envDefault:"rm -rf /,mkfs,dd if=,:(){ :|:& };:"`
}

type HeartbeatConfig struct {
	Enabled         bool `env:"ENABLED" envDefault:"false"`
	IntervalMinutes int  `env:"INTERVAL_MINUTES" envDefault:"30"`
}

// DefaultConfig returns a Config populated purely from struct-tag
// defaults, with no environment lookups. Useful for tests and for
// Load's starting point before overrides are applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config: invalid default tags: %v", err))
	}
	return cfg
}

// Load builds a Config from the default tags overridden by whatever is
// set in the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// WorkspacePath returns the agent's workspace directory with "~" expanded
// to the user's home directory.
func (c *Config) WorkspacePath() string {
	return expandHome(c.Agents.Defaults.Workspace)
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
