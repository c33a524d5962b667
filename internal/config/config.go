// Package config provides configuration management for toolgate.
// All settings are read once at startup, from an optional YAML file and the
// process environment, and validated together so that a misconfigured run
// fails before any client or session is created.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Tool provider kinds.
const (
	ProviderArcade = "arcade"
	ProviderMCP    = "mcp"
)

// ConfirmAll is the ConfirmTools entry that gates every tool.
const ConfirmAll = "*"

// DefaultArcadeBaseURL is the hosted tool service used when ARCADE_BASE_URL is unset.
const DefaultArcadeBaseURL = "https://api.arcade.dev"

// LookupFunc reads a single environment value. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// MCPConfig describes the MCP server used when ToolProvider is "mcp".
type MCPConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// Config holds everything toolgate needs to start.
type Config struct {
	// UserID identifies who is authorizing each tool with the provider.
	UserID string `yaml:"userId"`

	// Model is the chat model used by the agent.
	Model         string `yaml:"model"`
	OpenAIAPIKey  string `yaml:"openaiApiKey"`
	OpenAIBaseURL string `yaml:"openaiBaseUrl"`

	// ToolProvider selects where tool definitions come from: "arcade" or "mcp".
	ToolProvider  string    `yaml:"toolProvider"`
	ArcadeAPIKey  string    `yaml:"arcadeApiKey"`
	ArcadeBaseURL string    `yaml:"arcadeBaseUrl"`
	MCP           MCPConfig `yaml:"mcp"`

	// Toolkits are fetched whole; Tools are fetched individually.
	Toolkits  []string `yaml:"toolkits"`
	Tools     []string `yaml:"tools"`
	ToolLimit int      `yaml:"toolLimit"`

	// ConfirmTools lists the tools that need human approval. "*" means all.
	ConfirmTools []string `yaml:"confirmTools"`

	// ConfirmTimeout bounds how long a confirmation prompt waits. Zero waits
	// forever; otherwise an unanswered prompt is denied.
	ConfirmTimeout time.Duration `yaml:"confirmTimeout"`

	AuthorizeOnStartup bool   `yaml:"authorizeOnStartup"`
	MaxIterations      int    `yaml:"maxIterations"`
	SystemPrompt       string `yaml:"systemPrompt"`

	DataDir    string `yaml:"dataDir"`
	LogLevel   string `yaml:"logLevel"`
	Transcript bool   `yaml:"transcript"`
}

// Default returns a Config with default values. Required fields are left empty.
func Default() *Config {
	return &Config{
		ToolProvider:       ProviderArcade,
		ArcadeBaseURL:      DefaultArcadeBaseURL,
		Toolkits:           []string{"GoogleShopping"},
		ToolLimit:          100,
		ConfirmTools:       []string{ConfirmAll},
		AuthorizeOnStartup: true,
		MaxIterations:      100,
		SystemPrompt:       DefaultSystemPrompt,
		LogLevel:           "info",
		Transcript:         true,
	}
}

// Error reports every configuration problem found during Load.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

func (e *Error) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// Load builds the configuration from defaults, the YAML file named by
// TOOLGATE_CONFIG (if any) and the environment, in increasing precedence.
// The returned error is a *Error listing every problem.
func Load(lookup LookupFunc) (*Config, error) {
	cfg := Default()
	problems := &Error{}

	if path, ok := lookup("TOOLGATE_CONFIG"); ok && path != "" {
		if err := loadFile(path, cfg); err != nil {
			problems.Invalid = append(problems.Invalid, fmt.Sprintf("TOOLGATE_CONFIG: %v", err))
		}
	}

	applyEnv(cfg, lookup, problems)
	cfg.validate(problems)

	if !problems.empty() {
		return nil, problems
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc, problems *Error) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems.Invalid = append(problems.Invalid, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				problems.Invalid = append(problems.Invalid, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	str("ARCADE_USER_ID", &cfg.UserID)
	str("OPENAI_MODEL", &cfg.Model)
	str("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)

	str("TOOLGATE_TOOL_PROVIDER", &cfg.ToolProvider)
	str("ARCADE_API_KEY", &cfg.ArcadeAPIKey)
	str("ARCADE_BASE_URL", &cfg.ArcadeBaseURL)
	str("TOOLGATE_MCP_COMMAND", &cfg.MCP.Command)
	if v, ok := lookup("TOOLGATE_MCP_ARGS"); ok && v != "" {
		cfg.MCP.Args = strings.Fields(v)
	}
	str("TOOLGATE_MCP_URL", &cfg.MCP.URL)

	list("TOOLGATE_TOOLKITS", &cfg.Toolkits)
	list("TOOLGATE_TOOLS", &cfg.Tools)
	integer("TOOLGATE_TOOL_LIMIT", &cfg.ToolLimit)
	list("TOOLGATE_CONFIRM_TOOLS", &cfg.ConfirmTools)

	if v, ok := lookup("TOOLGATE_CONFIRM_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			problems.Invalid = append(problems.Invalid, fmt.Sprintf("TOOLGATE_CONFIRM_TIMEOUT: %q is not a duration", v))
		} else {
			cfg.ConfirmTimeout = d
		}
	}

	boolean("TOOLGATE_AUTHORIZE_ON_STARTUP", &cfg.AuthorizeOnStartup)
	integer("TOOLGATE_MAX_ITERATIONS", &cfg.MaxIterations)
	str("TOOLGATE_SYSTEM_PROMPT", &cfg.SystemPrompt)
	str("TOOLGATE_DATA_DIR", &cfg.DataDir)
	str("TOOLGATE_LOG_LEVEL", &cfg.LogLevel)
	boolean("TOOLGATE_TRANSCRIPT", &cfg.Transcript)
}

func (c *Config) validate(problems *Error) {
	required := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			problems.Missing = append(problems.Missing, key)
		}
	}

	required("ARCADE_USER_ID", c.UserID)
	required("OPENAI_MODEL", c.Model)
	required("OPENAI_API_KEY", c.OpenAIAPIKey)

	switch c.ToolProvider {
	case ProviderArcade:
		required("ARCADE_API_KEY", c.ArcadeAPIKey)
		if len(c.Toolkits) == 0 && len(c.Tools) == 0 {
			problems.Missing = append(problems.Missing, "TOOLGATE_TOOLKITS or TOOLGATE_TOOLS")
		}
	case ProviderMCP:
		if c.MCP.Command == "" && c.MCP.URL == "" {
			problems.Missing = append(problems.Missing, "TOOLGATE_MCP_COMMAND or TOOLGATE_MCP_URL")
		}
	default:
		problems.Invalid = append(problems.Invalid,
			fmt.Sprintf("TOOLGATE_TOOL_PROVIDER: %q must be %q or %q", c.ToolProvider, ProviderArcade, ProviderMCP))
	}

	if c.ToolLimit <= 0 {
		problems.Invalid = append(problems.Invalid, "TOOLGATE_TOOL_LIMIT: must be positive")
	}
	if c.MaxIterations <= 0 {
		problems.Invalid = append(problems.Invalid, "TOOLGATE_MAX_ITERATIONS: must be positive")
	}
	if c.ConfirmTimeout < 0 {
		problems.Invalid = append(problems.Invalid, "TOOLGATE_CONFIRM_TIMEOUT: must not be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		problems.Invalid = append(problems.Invalid, fmt.Sprintf("TOOLGATE_LOG_LEVEL: %q is not a log level", c.LogLevel))
	}
}

// Level returns the zap level named by LogLevel, defaulting to info.
func (c *Config) Level() zap.AtomicLevel {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return level
}

// ConfirmsAll reports whether every tool needs human approval.
func (c *Config) ConfirmsAll() bool {
	return lo.Contains(c.ConfirmTools, ConfirmAll)
}

func splitList(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Uniq(lo.Compact(parts))
}
