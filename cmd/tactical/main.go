// Package main implements the tactical CLI — a thin front-end over the
// memory engine's ingest/summarize/promote pipeline and its read-side
// search/timeline/context/recall operations.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, wiring helpers
//   - cmd_pipeline.go - ingestCmd, summarizeCmd, promoteCmd, dailyCmd
//   - cmd_query.go    - searchCmd, timelineCmd, contextCmd, recallCmd
//   - cmd_serve.go    - serveCmd (stdio tool host)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tactical/internal/config"
	"tactical/internal/ingest"
	"tactical/internal/llm"
	"tactical/internal/logging"
	"tactical/internal/orchestrate"
	"tactical/internal/parse"
	"tactical/internal/promote"
	"tactical/internal/query"
	"tactical/internal/store"
	"tactical/internal/summarize"
)

var (
	verbose   bool
	workspace string

	cfgPath string
	cfg     *config.Config

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tactical",
	Short: "tactical - life-long memory engine for CLI coding assistants",
	Long: `tactical consolidates Claude Code, Codex, and Gemini CLI transcripts into a
searchable, tiered memory: raw sessions (L3), per-session summaries (L2), and
accumulated project knowledge (L1).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		loadedCfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loadedCfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", filepath.Join(home, ".tactical", "config.yaml"), "config file path")

	rootCmd.AddCommand(
		ingestCmd,
		summarizeCmd,
		promoteCmd,
		dailyCmd,
		searchCmd,
		timelineCmd,
		contextCmd,
		recallCmd,
		serveCmd,
	)
}

// openStore opens the configured store, creating its parent directory first.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return store.Open(cfg.DBPath)
}

// sources builds the configured ingest.Source list from cfg's source toggles
// and paths.
func sources() []ingest.Source {
	home, _ := os.UserHomeDir()
	var out []ingest.Source
	if cfg.ClaudeCodeEnabled {
		out = append(out, ingest.Source{Name: "claude_code", Parser: parse.NewClaudeParser(home), Paths: cfg.ClaudeCodePaths})
	}
	if cfg.CodexEnabled {
		out = append(out, ingest.Source{Name: "codex", Parser: parse.NewCodexParser(home), Paths: cfg.CodexPaths})
	}
	if cfg.GeminiEnabled {
		out = append(out, ingest.Source{Name: "gemini", Parser: parse.NewGeminiParser(home), Paths: cfg.GeminiPaths})
	}
	return out
}

// buildOrchestrator wires an Orchestrator from the given store plus the
// configured sources and LLM client.
func buildOrchestrator(s *store.Store) *orchestrate.Orchestrator {
	home, _ := os.UserHomeDir()
	client := llm.NewClient()
	ing := ingest.New(s, sources())
	summ := summarize.New(s, client)
	prom := promote.New(s, client)

	return orchestrate.New(s, ing, summ, prom, orchestrate.Options{
		HomeDir:          home,
		SummarizeWorkers: cfg.SummarizeWorkers,
		PromoteWorkers:   cfg.PromoteWorkers,
		MinUserMessages:  cfg.MinUserMessages,
	})
}

// buildQueryService wires a query.Service sharing the given store and
// orchestrator.
func buildQueryService(s *store.Store, orch *orchestrate.Orchestrator) *query.Service {
	client := llm.NewClient()
	prom := promote.New(s, client)
	return query.New(s, orch, prom, cfg.L1BudgetTokens)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
