package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"tactical/internal/logging"
	"tactical/internal/model"
)

func encodeStringList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// UpsertSummary writes the L2 summary for a session and atomically promotes
// the session's tier to L2 in the same transaction, so a reader never
// observes an L2-tagged session with no summary row.
func (s *Store) UpsertSummary(sum *model.Summary) error {
	timer := logging.StartTimer(logging.CategoryStore, "store.UpsertSummary")
	defer timer.Stop()

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO session_summaries (
				session_id, summary_text, key_decisions, files_touched,
				commands_run, outcome, generated_at, generator_model,
				thinking, usage, claude_session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO UPDATE SET
				summary_text = excluded.summary_text,
				key_decisions = excluded.key_decisions,
				files_touched = excluded.files_touched,
				commands_run = excluded.commands_run,
				outcome = excluded.outcome,
				generated_at = excluded.generated_at,
				generator_model = excluded.generator_model,
				thinking = excluded.thinking,
				usage = excluded.usage,
				claude_session_id = excluded.claude_session_id`,
			sum.SessionID, sum.SummaryText, encodeStringList(sum.KeyDecisions),
			encodeStringList(sum.FilesTouched), encodeStringList(sum.CommandsRun),
			sum.Outcome, sum.GeneratedAt, sum.GeneratorModel,
			sum.Thinking, sum.Usage, sum.ClaudeSessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert summary for %s: %w", sum.SessionID, err)
		}

		if _, err := tx.Exec("UPDATE sessions SET tier = ? WHERE id = ?", model.TierL2, sum.SessionID); err != nil {
			return fmt.Errorf("failed to promote session %s to L2: %w", sum.SessionID, err)
		}
		return nil
	})
}

// GetSummary returns the L2 summary for a session, or nil if none exists.
func (s *Store) GetSummary(sessionID string) (*model.Summary, error) {
	row := s.db.QueryRow(`
		SELECT session_id, summary_text, key_decisions, files_touched,
			commands_run, outcome, generated_at, generator_model,
			thinking, usage, claude_session_id
		FROM session_summaries WHERE session_id = ?`, sessionID)

	var sum model.Summary
	var keyDecisions, filesTouched, commandsRun, outcome, generatorModel, thinking, usage, claudeSessionID sql.NullString
	var generatedAt sql.NullInt64

	err := row.Scan(
		&sum.SessionID, &sum.SummaryText, &keyDecisions, &filesTouched,
		&commandsRun, &outcome, &generatedAt, &generatorModel,
		&thinking, &usage, &claudeSessionID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for %s: %w", sessionID, err)
	}

	sum.KeyDecisions = decodeStringList(keyDecisions.String)
	sum.FilesTouched = decodeStringList(filesTouched.String)
	sum.CommandsRun = decodeStringList(commandsRun.String)
	sum.Outcome = outcome.String
	sum.GeneratedAt = generatedAt.Int64
	sum.GeneratorModel = generatorModel.String
	sum.Thinking = thinking.String
	sum.Usage = usage.String
	sum.ClaudeSessionID = claudeSessionID.String
	return &sum, nil
}

// DeleteSummary removes a session's L2 summary and reverts its tier to L3 in
// one transaction, mirroring UpsertSummary's atomicity. Returns whether a row
// was actually deleted.
func (s *Store) DeleteSummary(sessionID string) (bool, error) {
	var deleted bool
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM session_summaries WHERE session_id = ?", sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete summary for %s: %w", sessionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count deleted summary rows: %w", err)
		}
		deleted = n > 0
		if deleted {
			if _, err := tx.Exec("UPDATE sessions SET tier = ? WHERE id = ?", model.TierL3, sessionID); err != nil {
				return fmt.Errorf("failed to revert session %s to L3: %w", sessionID, err)
			}
		}
		return nil
	})
	return deleted, err
}
