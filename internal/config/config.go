// Package config loads and defaults the tactical memory engine's
// configuration from a YAML file, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tactical/internal/logging"
)

// LoggingConfig mirrors internal/logging's own local copy of this shape —
// kept here as the source of truth that gets marshaled to config.yaml.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// Config holds all tactical memory engine configuration.
type Config struct {
	// Source discovery toggles and roots.
	CodexEnabled      bool     `yaml:"codex_enabled"`
	ClaudeCodeEnabled bool     `yaml:"claude_code_enabled"`
	GeminiEnabled     bool     `yaml:"gemini_enabled"`
	CodexPaths        []string `yaml:"codex_paths"`
	ClaudeCodePaths   []string `yaml:"claude_code_paths"`
	GeminiPaths       []string `yaml:"gemini_paths"`

	// Store location.
	DBPath string `yaml:"db_path"`

	// Worker pool sizes.
	SummarizeWorkers int `yaml:"summarize_workers"`
	PromoteWorkers   int `yaml:"promote_workers"`

	// Cooldowns and budgets.
	PromoteCooldownSeconds int `yaml:"promote_cooldown_seconds"`
	L1BudgetTokens         int `yaml:"l1_budget_tokens"`
	MinUserMessages        int `yaml:"min_user_messages"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration, matching spec.md §6's
// Configuration table.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		CodexEnabled:      true,
		ClaudeCodeEnabled: true,
		GeminiEnabled:     true,
		CodexPaths:        []string{filepath.Join(home, ".codex")},
		ClaudeCodePaths:   []string{filepath.Join(home, ".claude")},
		GeminiPaths:       []string{filepath.Join(home, ".gemini")},

		DBPath: filepath.Join(home, ".tactical", "memory.sqlite"),

		SummarizeWorkers: 8,
		PromoteWorkers:   4,

		PromoteCooldownSeconds: 3600,
		L1BudgetTokens:         2000,
		MinUserMessages:        3,

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults (with
// env overrides applied) when the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: db_path=%s", cfg.DBPath)
	return cfg, nil
}

// Save writes configuration to a YAML file, creating the parent directory
// if needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever was loaded from disk (or the defaults).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TACTICAL_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TACTICAL_CLAUDE_PATHS"); v != "" {
		c.ClaudeCodePaths = splitPathList(v)
	}
	if v := os.Getenv("TACTICAL_CODEX_PATHS"); v != "" {
		c.CodexPaths = splitPathList(v)
	}
	if v := os.Getenv("TACTICAL_GEMINI_PATHS"); v != "" {
		c.GeminiPaths = splitPathList(v)
	}

	if v := os.Getenv("TACTICAL_CLAUDE_ENABLED"); v != "" {
		c.ClaudeCodeEnabled = parseBoolEnv(v, c.ClaudeCodeEnabled)
	}
	if v := os.Getenv("TACTICAL_CODEX_ENABLED"); v != "" {
		c.CodexEnabled = parseBoolEnv(v, c.CodexEnabled)
	}
	if v := os.Getenv("TACTICAL_GEMINI_ENABLED"); v != "" {
		c.GeminiEnabled = parseBoolEnv(v, c.GeminiEnabled)
	}

	if v := os.Getenv("TACTICAL_DEBUG"); v != "" {
		c.Logging.DebugMode = parseBoolEnv(v, c.Logging.DebugMode)
	}
}

func splitPathList(v string) []string {
	parts := strings.Split(v, string(os.PathListSeparator))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// GetPromoteCooldown returns the promote cooldown as a duration, falling
// back to 1 hour if unset.
func (c *Config) GetPromoteCooldown() time.Duration {
	if c.PromoteCooldownSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.PromoteCooldownSeconds) * time.Second
}

// GetL1Budget returns the L1 context token budget, falling back to 2000.
func (c *Config) GetL1Budget() int {
	if c.L1BudgetTokens <= 0 {
		return 2000
	}
	return c.L1BudgetTokens
}

// GetMinUserMessages returns the quality-filter threshold, falling back to 3.
func (c *Config) GetMinUserMessages() int {
	if c.MinUserMessages <= 0 {
		return 3
	}
	return c.MinUserMessages
}
