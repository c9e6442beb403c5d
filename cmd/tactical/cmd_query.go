package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tactical/internal/query"
)

var (
	queryProject string
	queryAfter   string
	queryBefore  string
	queryLimit   int
)

func formatEpoch(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid FTS/recency/importance search over sessions and their summaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		after, _ := query.ParseDateFilter(queryAfter)
		svc := buildQueryService(s, buildOrchestrator(s))
		results, err := svc.Search(context.Background(), args[0], queryLimit, queryProject, after)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for _, r := range results {
			fmt.Printf("%-36s %6.2f  %-12s %s\n", r.SessionID, r.Score, r.Source, r.Title)
			if r.Summary != "" {
				fmt.Printf("    %s\n", r.Summary)
			}
		}
		fmt.Printf("%d result(s)\n", len(results))
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List sessions chronologically, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		after, _ := query.ParseDateFilter(queryAfter)
		before, _ := query.ParseDateFilter(queryBefore)
		svc := buildQueryService(s, buildOrchestrator(s))
		entries, err := svc.Timeline(context.Background(), queryProject, after, before, queryLimit)
		if err != nil {
			return fmt.Errorf("timeline failed: %w", err)
		}
		for _, e := range entries {
			fmt.Printf("%s  %-12s %-6s %s\n", formatEpoch(e.FirstMessageAt), e.Source, e.Tier, e.Title)
		}
		fmt.Printf("%d session(s)\n", len(entries))
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <project-path>",
	Short: "Show accumulated L1 knowledge plus recent session summaries for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		svc := buildQueryService(s, buildOrchestrator(s))
		ctx, err := svc.ProjectContext(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("project context failed: %w", err)
		}
		if ctx.L1Context != "" {
			fmt.Println(ctx.L1Context)
			fmt.Println()
		}
		for _, rs := range ctx.RecentSummaries {
			fmt.Printf("%s  %s\n    %s\n", formatEpoch(rs.FirstMessageAt), rs.Title, rs.SummaryText)
		}
		return nil
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <session-id>",
	Short: "Show a session's full detail: record, summary, and first 100 messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		svc := buildQueryService(s, buildOrchestrator(s))
		recalled, err := svc.RecallSession(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("recall failed: %w", err)
		}
		if recalled == nil {
			fmt.Println("no such session")
			return nil
		}
		fmt.Printf("%s  %s  %s\n", recalled.Session.ID, recalled.Session.Source, recalled.Session.Title)
		if recalled.Summary != nil {
			fmt.Printf("summary: %s\n", recalled.Summary.SummaryText)
		}
		for _, m := range recalled.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.ContentText)
		}
		if recalled.Truncated {
			fmt.Printf("... truncated to first %d of %d messages\n", len(recalled.Messages), recalled.TotalMessages)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, timelineCmd} {
		c.Flags().StringVar(&queryProject, "project", "", "restrict to a project path")
		c.Flags().StringVar(&queryAfter, "after", "", "only sessions starting on/after this ISO date")
		c.Flags().IntVar(&queryLimit, "limit", 20, "maximum results")
	}
	timelineCmd.Flags().StringVar(&queryBefore, "before", "", "only sessions starting on/before this ISO date")
}
