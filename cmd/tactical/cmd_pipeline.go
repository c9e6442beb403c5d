package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tactical/internal/llm"
	"tactical/internal/promote"
	"tactical/internal/summarize"
)

var forceDaily bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scan configured transcript sources and persist new/updated sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		orch := buildOrchestrator(s)
		stats, err := orch.AutoIngest()
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		fmt.Printf("ingested %d sessions (%d new, %d updated), %d messages\n",
			stats.Sessions, len(stats.NewSessionIDs), len(stats.UpdatedSessionIDs), stats.Messages)
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize every unsummarized session with at least the configured number of user messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sessions, err := s.GetUnsummarizedSessions(cfg.MinUserMessages)
		if err != nil {
			return fmt.Errorf("failed to list unsummarized sessions: %w", err)
		}

		summ := summarize.New(s, llm.NewClient())
		ctx := context.Background()
		done := 0
		for _, sess := range sessions {
			summary, err := summ.SummarizeSession(ctx, sess.ID, "", "")
			if err != nil {
				fmt.Printf("skipping %s: %v\n", sess.ID, err)
				continue
			}
			if summary != nil {
				done++
			}
		}
		fmt.Printf("summarized %d/%d sessions\n", done, len(sessions))
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote every project with at least two session summaries into accumulated knowledge",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		projects, err := s.ListDistinctProjects()
		if err != nil {
			return fmt.Errorf("failed to list projects: %w", err)
		}

		prom := promote.New(s, llm.NewClient())
		ctx := context.Background()
		total := 0
		for _, p := range projects {
			result, err := prom.PromoteProjectKnowledge(ctx, p, "", "")
			if err != nil {
				fmt.Printf("skipping %s: %v\n", p, err)
				continue
			}
			total += len(result.Entries)
		}
		fmt.Printf("promoted %d knowledge entries across %d projects\n", total, len(projects))
		return nil
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the full ingest/summarize/promote pipeline, honoring the daily cooldown",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		orch := buildOrchestrator(s)
		stats, err := orch.DailyAutoProcess(context.Background(), forceDaily)
		if err != nil {
			return fmt.Errorf("daily pipeline failed: %w", err)
		}
		fmt.Printf("ingested=%d summarized=%d promoted=%d\n", stats.Ingested, stats.Summarized, stats.Promoted)
		return nil
	},
}

func init() {
	dailyCmd.Flags().BoolVar(&forceDaily, "force", false, "bypass the once-per-day cooldown")
}
