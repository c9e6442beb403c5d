package store

import (
	"database/sql"
	"fmt"

	"tactical/internal/logging"
	"tactical/internal/model"
)

// InsertMessages bulk-inserts messages for a session in a single transaction.
// Duplicate (session_id, ordinal) pairs are silently ignored, so re-ingesting
// an unchanged transcript is a no-op.
func (s *Store) InsertMessages(messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "store.InsertMessages")
	defer timer.Stop()

	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO messages (
				session_id, ordinal, role, content_type,
				content_text, content_json, tool_name,
				token_count, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare message insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range messages {
			if _, err := stmt.Exec(
				m.SessionID, m.Ordinal, m.Role, m.ContentType,
				m.ContentText, m.ContentJSON, m.ToolName,
				m.TokenCount, m.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert message %s#%d: %w", m.SessionID, m.Ordinal, err)
			}
		}
		return nil
	})
}

// GetSessionMessages returns all messages for a session in ordinal order.
func (s *Store) GetSessionMessages(sessionID string) ([]*model.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, ordinal, role, content_type, content_text,
			content_json, tool_name, token_count, created_at
		FROM messages WHERE session_id = ? ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var contentType, contentText, contentJSON, toolName sql.NullString
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.Ordinal, &m.Role, &contentType, &contentText,
			&contentJSON, &toolName, &m.TokenCount, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.ContentType = contentType.String
		m.ContentText = contentText.String
		m.ContentJSON = contentJSON.String
		m.ToolName = toolName.String
		out = append(out, &m)
	}
	return out, rows.Err()
}
