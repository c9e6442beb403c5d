package store

import (
	"fmt"
	"strings"

	"tactical/internal/logging"
)

// escapeFTS5 quotes each whitespace-separated token of a query so FTS5 treats
// it as a literal phrase rather than interpreting characters like - : * ^ or
// keywords AND/OR/NOT as operators. An empty query is returned unchanged.
func escapeFTS5(query string) string {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return query
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// FTSHit is one row returned by SearchFTS: a matching message plus the
// parent session context needed to rank and display it.
type FTSHit struct {
	MessageID   int64
	SessionID   string
	Ordinal     int
	Role        string
	ContentText string
	Source      string
	ProjectName string
	CWD         string
	BM25        float64
}

// SearchFTS runs a full-text query across message content, ranked by SQLite's
// bm25() (more negative is more relevant; callers normalize as needed).
func (s *Store) SearchFTS(query string, limit int) ([]*FTSHit, error) {
	timer := logging.StartTimer(logging.CategorySearch, "store.SearchFTS")
	defer timer.Stop()

	escaped := escapeFTS5(query)
	rows, err := s.db.Query(`
		SELECT m.id, m.session_id, m.ordinal, m.role, m.content_text,
			s.source, s.project_name, s.cwd, bm25(messages_fts) as rank
		FROM messages_fts fts
		JOIN messages m ON m.id = fts.rowid
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, escaped, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages for %q: %w", query, err)
	}
	defer rows.Close()

	var out []*FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(
			&h.MessageID, &h.SessionID, &h.Ordinal, &h.Role, &h.ContentText,
			&h.Source, &h.ProjectName, &h.CWD, &h.BM25,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
