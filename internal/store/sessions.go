package store

import (
	"database/sql"
	"fmt"
	"strings"

	"tactical/internal/logging"
	"tactical/internal/model"
)

// UpsertSession inserts a new session or updates the mutable fields of an
// existing one (message counts, token totals, tools used, title). Fields set
// only at ingest time (source, project identity, tier) are left untouched on
// conflict.
func (s *Store) UpsertSession(sess *model.Session) error {
	timer := logging.StartTimer(logging.CategoryStore, "store.UpsertSession")
	defer timer.Stop()

	tools := strings.Join(sess.ToolsUsed, ",")
	tier := sess.Tier
	if tier == "" {
		tier = model.TierL3
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (
			id, source, project_path, project_name, cwd, model,
			git_branch, first_message_at, last_message_at,
			message_count, user_message_count, total_tokens,
			compaction_count, tools_used, tier, raw_path,
			ingested_at, title
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = excluded.last_message_at,
			message_count = excluded.message_count,
			user_message_count = excluded.user_message_count,
			total_tokens = excluded.total_tokens,
			compaction_count = excluded.compaction_count,
			tools_used = excluded.tools_used,
			ingested_at = excluded.ingested_at,
			title = excluded.title
		`,
		sess.ID, sess.Source, sess.ProjectPath, sess.ProjectName, sess.CWD, sess.Model,
		sess.GitBranch, sess.FirstMessageAt, sess.LastMessageAt,
		sess.MessageCount, sess.UserMessageCount, sess.TotalTokens,
		sess.CompactionCount, tools, string(tier), sess.RawPath,
		sess.IngestedAt, sess.Title,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// SessionExists reports whether a session with the given id has already been
// ingested.
func (s *Store) SessionExists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return true, nil
}

// GetSession returns a single session by id, or nil if not found.
func (s *Store) GetSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, source, project_path, project_name, cwd, model, git_branch,
			first_message_at, last_message_at, message_count, user_message_count,
			total_tokens, compaction_count, tools_used, tier, raw_path, ingested_at, title
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var sess model.Session
	var tools, tier, projectPath, projectName, cwd, modelName, gitBranch, rawPath, title sql.NullString
	var ingestedAt sql.NullInt64

	if err := row.Scan(
		&sess.ID, &sess.Source, &projectPath, &projectName, &cwd, &modelName, &gitBranch,
		&sess.FirstMessageAt, &sess.LastMessageAt, &sess.MessageCount, &sess.UserMessageCount,
		&sess.TotalTokens, &sess.CompactionCount, &tools, &tier, &rawPath, &ingestedAt, &title,
	); err != nil {
		return nil, err
	}

	sess.ProjectPath = projectPath.String
	sess.ProjectName = projectName.String
	sess.CWD = cwd.String
	sess.Model = modelName.String
	sess.GitBranch = gitBranch.String
	sess.RawPath = rawPath.String
	sess.IngestedAt = ingestedAt.Int64
	sess.Title = title.String
	sess.Tier = model.Tier(tier.String)
	if tools.String != "" {
		sess.ToolsUsed = strings.Split(tools.String, ",")
	}
	return &sess, nil
}

// ListSessionsFilter narrows ListSessions.
type ListSessionsFilter struct {
	Source      string
	ProjectPath string
	After       int64
	Before      int64
	Limit       int
}

// ListSessions returns sessions matching the filter, most recent first.
func (s *Store) ListSessions(f ListSessionsFilter) ([]*model.Session, error) {
	query := "SELECT id, source, project_path, project_name, cwd, model, git_branch, " +
		"first_message_at, last_message_at, message_count, user_message_count, " +
		"total_tokens, compaction_count, tools_used, tier, raw_path, ingested_at, title " +
		"FROM sessions WHERE 1=1"
	var args []interface{}

	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.ProjectPath != "" {
		query += " AND project_path = ?"
		args = append(args, f.ProjectPath)
	}
	if f.After > 0 {
		query += " AND first_message_at >= ?"
		args = append(args, f.After)
	}
	if f.Before > 0 {
		query += " AND first_message_at <= ?"
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY first_message_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetUnsummarizedSessions returns L3 sessions with at least minUserMessages
// user turns that have no session summary yet, most recent first.
func (s *Store) GetUnsummarizedSessions(minUserMessages int) ([]*model.Session, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.source, s.project_path, s.project_name, s.cwd, s.model, s.git_branch,
			s.first_message_at, s.last_message_at, s.message_count, s.user_message_count,
			s.total_tokens, s.compaction_count, s.tools_used, s.tier, s.raw_path, s.ingested_at, s.title
		FROM sessions s
		LEFT JOIN session_summaries ss ON s.id = ss.session_id
		WHERE ss.session_id IS NULL AND s.user_message_count >= ?
		ORDER BY s.first_message_at DESC`, minUserMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsummarized sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListDistinctProjects returns every non-empty project_path that has at
// least one session, for fan-out over per-project promote work.
func (s *Store) ListDistinctProjects() ([]string, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT project_path FROM sessions WHERE project_path IS NOT NULL AND project_path != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct projects: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan project path row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
