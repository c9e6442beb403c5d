package store

import (
	"database/sql"
	"fmt"

	"tactical/internal/logging"
	"tactical/internal/model"
)

// UpsertProjectKnowledge inserts a new L1 knowledge entry and returns its id.
// Deduplication against existing entries is the promoter's job (fuzzy
// similarity comparison), not the store's — the store only inserts.
func (s *Store) UpsertProjectKnowledge(entry *model.ProjectKnowledge) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.UpsertProjectKnowledge")
	defer timer.Stop()

	res, err := s.db.Exec(`
		INSERT INTO project_knowledge (
			project_path, knowledge_type, content, confidence,
			evidence_count, source_sessions, first_seen_at, last_confirmed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ProjectPath, entry.KnowledgeType, entry.Content, entry.Confidence,
		entry.EvidenceCount, encodeStringList(entry.SourceSessions),
		entry.FirstSeenAt, entry.LastConfirmedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert project knowledge for %s: %w", entry.ProjectPath, err)
	}
	return res.LastInsertId()
}

// ConfirmKnowledge bumps evidence_count and last_confirmed_at for an existing
// entry (used when a new session's candidate fact is judged a near-duplicate
// of one already recorded). If confidence is non-nil, the stored confidence
// is raised to the max of the two.
func (s *Store) ConfirmKnowledge(knowledgeID int64, confirmedAt int64, confidence *float64) error {
	var err error
	if confidence != nil {
		_, err = s.db.Exec(`
			UPDATE project_knowledge
			SET evidence_count = evidence_count + 1,
				last_confirmed_at = ?,
				confidence = MAX(confidence, ?)
			WHERE id = ?`, confirmedAt, *confidence, knowledgeID)
	} else {
		_, err = s.db.Exec(`
			UPDATE project_knowledge
			SET evidence_count = evidence_count + 1,
				last_confirmed_at = ?
			WHERE id = ?`, confirmedAt, knowledgeID)
	}
	if err != nil {
		return fmt.Errorf("failed to confirm knowledge %d: %w", knowledgeID, err)
	}
	return nil
}

// GetProjectKnowledge returns all non-superseded knowledge entries for a
// project, highest confidence first.
func (s *Store) GetProjectKnowledge(projectPath string) ([]*model.ProjectKnowledge, error) {
	rows, err := s.db.Query(`
		SELECT id, project_path, knowledge_type, content, confidence,
			evidence_count, source_sessions, first_seen_at, last_confirmed_at, superseded_by
		FROM project_knowledge
		WHERE project_path = ? AND superseded_by IS NULL
		ORDER BY confidence DESC, last_confirmed_at DESC`, projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get project knowledge for %s: %w", projectPath, err)
	}
	defer rows.Close()

	var out []*model.ProjectKnowledge
	for rows.Next() {
		var k model.ProjectKnowledge
		var sourceSessions sql.NullString
		var supersededBy sql.NullInt64
		if err := rows.Scan(
			&k.ID, &k.ProjectPath, &k.KnowledgeType, &k.Content, &k.Confidence,
			&k.EvidenceCount, &sourceSessions, &k.FirstSeenAt, &k.LastConfirmedAt, &supersededBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		k.SourceSessions = decodeStringList(sourceSessions.String)
		if supersededBy.Valid {
			v := supersededBy.Int64
			k.SupersededBy = &v
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// ClearProjectKnowledge deletes all non-superseded knowledge entries for a
// project (used to force a clean re-promotion) and returns the count
// removed.
func (s *Store) ClearProjectKnowledge(projectPath string) (int, error) {
	res, err := s.db.Exec(
		"DELETE FROM project_knowledge WHERE project_path = ? AND superseded_by IS NULL",
		projectPath,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear project knowledge for %s: %w", projectPath, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeletedCounts reports how many rows of each kind DeleteProjectData removed.
type DeletedCounts struct {
	Knowledge int
	Summaries int
	Messages  int
	Sessions  int
}

// DeleteProjectData removes all L1 knowledge, L2 summaries, messages, and
// sessions belonging to a project, in one transaction.
func (s *Store) DeleteProjectData(projectPath string) (DeletedCounts, error) {
	var counts DeletedCounts
	err := s.withTx(func(tx *sql.Tx) error {
		idRows, err := tx.Query("SELECT id FROM sessions WHERE project_path = ?", projectPath)
		if err != nil {
			return fmt.Errorf("failed to list sessions for %s: %w", projectPath, err)
		}
		var ids []string
		for idRows.Next() {
			var id string
			if err := idRows.Scan(&id); err != nil {
				idRows.Close()
				return fmt.Errorf("failed to scan session id: %w", err)
			}
			ids = append(ids, id)
		}
		idRows.Close()

		res, err := tx.Exec("DELETE FROM project_knowledge WHERE project_path = ?", projectPath)
		if err != nil {
			return fmt.Errorf("failed to delete project knowledge for %s: %w", projectPath, err)
		}
		n, _ := res.RowsAffected()
		counts.Knowledge = int(n)

		if len(ids) > 0 {
			placeholders := make([]interface{}, len(ids))
			qMarks := ""
			for i, id := range ids {
				placeholders[i] = id
				if i > 0 {
					qMarks += ","
				}
				qMarks += "?"
			}

			res, err = tx.Exec(fmt.Sprintf("DELETE FROM session_summaries WHERE session_id IN (%s)", qMarks), placeholders...)
			if err != nil {
				return fmt.Errorf("failed to delete summaries for %s: %w", projectPath, err)
			}
			n, _ = res.RowsAffected()
			counts.Summaries = int(n)

			res, err = tx.Exec(fmt.Sprintf("DELETE FROM messages WHERE session_id IN (%s)", qMarks), placeholders...)
			if err != nil {
				return fmt.Errorf("failed to delete messages for %s: %w", projectPath, err)
			}
			n, _ = res.RowsAffected()
			counts.Messages = int(n)
		}

		res, err = tx.Exec("DELETE FROM sessions WHERE project_path = ?", projectPath)
		if err != nil {
			return fmt.Errorf("failed to delete sessions for %s: %w", projectPath, err)
		}
		n, _ = res.RowsAffected()
		counts.Sessions = int(n)
		return nil
	})
	return counts, err
}
