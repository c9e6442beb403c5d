package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.ClaudeCodeEnabled || !cfg.CodexEnabled || !cfg.GeminiEnabled {
		t.Error("expected all three sources enabled by default")
	}
	if cfg.SummarizeWorkers != 8 {
		t.Errorf("expected SummarizeWorkers=8, got %d", cfg.SummarizeWorkers)
	}
	if cfg.PromoteWorkers != 4 {
		t.Errorf("expected PromoteWorkers=4, got %d", cfg.PromoteWorkers)
	}
	if cfg.PromoteCooldownSeconds != 3600 {
		t.Errorf("expected PromoteCooldownSeconds=3600, got %d", cfg.PromoteCooldownSeconds)
	}
	if cfg.L1BudgetTokens != 2000 {
		t.Errorf("expected L1BudgetTokens=2000, got %d", cfg.L1BudgetTokens)
	}
	if cfg.MinUserMessages != 3 {
		t.Errorf("expected MinUserMessages=3, got %d", cfg.MinUserMessages)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(tmpDir, "custom.sqlite")
	cfg.SummarizeWorkers = 16

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DBPath != cfg.DBPath {
		t.Errorf("expected DBPath=%s, got %s", cfg.DBPath, loaded.DBPath)
	}
	if loaded.SummarizeWorkers != 16 {
		t.Errorf("expected SummarizeWorkers=16, got %d", loaded.SummarizeWorkers)
	}
}

func TestConfigLoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "does-not-exist.yaml")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SummarizeWorkers != 8 {
		t.Errorf("expected defaults to apply, got SummarizeWorkers=%d", loaded.SummarizeWorkers)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("TACTICAL_DB_PATH", "/tmp/override.sqlite")
	t.Setenv("TACTICAL_CLAUDE_ENABLED", "false")
	t.Setenv("TACTICAL_CLAUDE_PATHS", "/a/claude"+string(os.PathListSeparator)+"/b/claude")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.DBPath != "/tmp/override.sqlite" {
		t.Errorf("expected DBPath override, got %s", cfg.DBPath)
	}
	if cfg.ClaudeCodeEnabled {
		t.Error("expected TACTICAL_CLAUDE_ENABLED=false to disable the source")
	}
	if len(cfg.ClaudeCodePaths) != 2 || cfg.ClaudeCodePaths[0] != "/a/claude" || cfg.ClaudeCodePaths[1] != "/b/claude" {
		t.Errorf("expected split claude paths, got %v", cfg.ClaudeCodePaths)
	}
}

func TestConfigHelperFallbacks(t *testing.T) {
	cfg := &Config{}
	if cfg.GetPromoteCooldown().Seconds() != 3600 {
		t.Errorf("expected 1h fallback, got %v", cfg.GetPromoteCooldown())
	}
	if cfg.GetL1Budget() != 2000 {
		t.Errorf("expected 2000 fallback, got %d", cfg.GetL1Budget())
	}
	if cfg.GetMinUserMessages() != 3 {
		t.Errorf("expected 3 fallback, got %d", cfg.GetMinUserMessages())
	}

	cfg.PromoteCooldownSeconds = 120
	cfg.L1BudgetTokens = 500
	cfg.MinUserMessages = 1
	if cfg.GetPromoteCooldown().Seconds() != 120 {
		t.Errorf("expected configured cooldown, got %v", cfg.GetPromoteCooldown())
	}
	if cfg.GetL1Budget() != 500 {
		t.Errorf("expected configured budget, got %d", cfg.GetL1Budget())
	}
	if cfg.GetMinUserMessages() != 1 {
		t.Errorf("expected configured threshold, got %d", cfg.GetMinUserMessages())
	}
}
