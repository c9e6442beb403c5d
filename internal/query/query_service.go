// Package query implements the externally-visible read operations:
// search, timeline, project context, and session recall. Every operation
// runs the lightweight on-query refresh first, then reads structured data —
// rendering to markdown or any other presentation is the caller's job.
package query

import (
	"context"
	"time"

	"tactical/internal/logging"
	"tactical/internal/model"
	"tactical/internal/orchestrate"
	"tactical/internal/promote"
	"tactical/internal/rank"
	"tactical/internal/store"
)

const recentSessionsInProjectContext = 5
const recalledMessageLimit = 100

// Service answers read queries against the store, refreshing via the
// orchestrator before each one.
type Service struct {
	store        *store.Store
	orchestrator *orchestrate.Orchestrator
	promoter     *promote.Promoter
	l1Budget     int
}

// New returns a Service. l1BudgetTokens <= 0 uses the default of 2000.
func New(s *store.Store, o *orchestrate.Orchestrator, p *promote.Promoter, l1BudgetTokens int) *Service {
	if l1BudgetTokens <= 0 {
		l1BudgetTokens = 2000
	}
	return &Service{store: s, orchestrator: o, promoter: p, l1Budget: l1BudgetTokens}
}

func (s *Service) refresh(ctx context.Context) {
	if s.orchestrator == nil {
		return
	}
	if _, err := s.orchestrator.OnQuery(ctx); err != nil {
		if log := logging.Get(logging.CategoryQuery); log != nil {
			log.Warn("on-query refresh failed: %v", err)
		}
	}
}

// Search runs hybrid search. after, if non-zero, is a unix epoch filtering
// out sessions that started before it. A malformed caller-side date filter
// is the caller's concern to resolve before calling Search — this layer only
// accepts an already-parsed epoch.
func (s *Service) Search(ctx context.Context, queryText string, limit int, projectPath string, after int64) ([]*model.SearchResult, error) {
	s.refresh(ctx)
	return rank.HybridSearch(s.store, queryText, rank.SearchFilter{
		ProjectPath: projectPath,
		After:       after,
		Limit:       limit,
	})
}

// Timeline lists sessions chronologically (oldest first).
func (s *Service) Timeline(ctx context.Context, projectPath string, after, before int64, limit int) ([]*model.TimelineEntry, error) {
	s.refresh(ctx)
	return rank.Timeline(s.store, rank.TimelineFilter{
		ProjectPath: projectPath,
		After:       after,
		Before:      before,
		Limit:       limit,
	})
}

// ProjectContext is the L1 knowledge block plus a handful of the project's
// most recent session summaries.
type ProjectContext struct {
	ProjectPath     string
	L1Context       string
	RecentSummaries []RecentSessionSummary
}

// RecentSessionSummary is one entry of ProjectContext.RecentSummaries.
type RecentSessionSummary struct {
	SessionID      string
	Title          string
	FirstMessageAt int64
	SummaryText    string
}

// ProjectContext returns the accumulated L1 knowledge for a project plus its
// most recent summarized sessions. Returns a zero-value ProjectContext (not
// an error) if the project has no accumulated knowledge or summaries.
func (s *Service) ProjectContext(ctx context.Context, projectPath string) (*ProjectContext, error) {
	s.refresh(ctx)

	l1Text, err := s.promoter.SelectL1Context(projectPath, s.l1Budget)
	if err != nil {
		return nil, err
	}

	sessions, err := s.store.ListSessions(store.ListSessionsFilter{ProjectPath: projectPath, Limit: recentSessionsInProjectContext})
	if err != nil {
		return nil, err
	}

	out := &ProjectContext{ProjectPath: projectPath, L1Context: l1Text}
	for _, sess := range sessions {
		summary, err := s.store.GetSummary(sess.ID)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			continue
		}
		out.RecentSummaries = append(out.RecentSummaries, RecentSessionSummary{
			SessionID:      sess.ID,
			Title:          sess.Title,
			FirstMessageAt: sess.FirstMessageAt,
			SummaryText:    summary.SummaryText,
		})
	}
	return out, nil
}

// RecalledSession is the full detail returned by RecallSession.
type RecalledSession struct {
	Session       *model.Session
	Summary       *model.Summary
	Messages      []*model.Message
	TotalMessages int
	Truncated     bool
}

// RecallSession returns a session's full record, its summary (if any), and
// its first recalledMessageLimit messages. Returns (nil, nil) if the session
// doesn't exist.
func (s *Service) RecallSession(ctx context.Context, sessionID string) (*RecalledSession, error) {
	s.refresh(ctx)

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	messages, err := s.store.GetSessionMessages(sessionID)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.GetSummary(sessionID)
	if err != nil {
		return nil, err
	}

	total := len(messages)
	truncated := total > recalledMessageLimit
	if truncated {
		messages = messages[:recalledMessageLimit]
	}

	return &RecalledSession{
		Session:       sess,
		Summary:       summary,
		Messages:      messages,
		TotalMessages: total,
		Truncated:     truncated,
	}, nil
}

// parseISODate converts a caller-supplied ISO8601 date (or date-time) into a
// unix epoch, returning (0, false) if it can't be parsed — callers treat a
// malformed filter as "no filter", never as an error.
func parseISODate(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Unix(), true
		}
	}
	return 0, false
}

// ParseDateFilter is the exported form of parseISODate, for callers (e.g. a
// CLI or MCP layer) translating user-facing date strings into Search/
// Timeline's epoch parameters.
func ParseDateFilter(s string) (int64, bool) {
	return parseISODate(s)
}
