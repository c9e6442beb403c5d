package store

import (
	"fmt"

	"tactical/internal/logging"
	"tactical/internal/model"
)

// UpsertEntity inserts a new entity or, if (entityType, canonicalValue)
// already exists, bumps its occurrence count and extends last_seen_at.
// Returns the entity's row id either way.
func (s *Store) UpsertEntity(entityType, canonicalValue string, seenAt int64) (int64, error) {
	row := s.db.QueryRow(`
		INSERT INTO entities (entity_type, canonical_value, first_seen_at, last_seen_at, occurrence_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(entity_type, canonical_value) DO UPDATE SET
			last_seen_at = MAX(excluded.last_seen_at, entities.last_seen_at),
			occurrence_count = entities.occurrence_count + 1
		RETURNING id`,
		entityType, canonicalValue, seenAt, seenAt,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert entity %s/%s: %w", entityType, canonicalValue, err)
	}
	return id, nil
}

// InsertEntityOccurrence links an entity to the (session, message) it was
// found in. Duplicate links are ignored.
func (s *Store) InsertEntityOccurrence(occ *model.EntityOccurrence) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO entity_occurrences
		(entity_id, session_id, message_id, context_snippet)
		VALUES (?, ?, ?, ?)`,
		occ.EntityID, occ.SessionID, occ.MessageID, occ.Context,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entity occurrence: %w", err)
	}
	return nil
}

// RecordEntity is a convenience that upserts the entity and its occurrence
// in one call, as the extractor does per match.
func (s *Store) RecordEntity(entityType, canonicalValue string, sessionID string, messageID int64, context string, seenAt int64) error {
	timer := logging.StartTimer(logging.CategoryStore, "store.RecordEntity")
	defer timer.Stop()

	id, err := s.UpsertEntity(entityType, canonicalValue, seenAt)
	if err != nil {
		return err
	}
	return s.InsertEntityOccurrence(&model.EntityOccurrence{
		EntityID:  id,
		SessionID: sessionID,
		MessageID: messageID,
		Context:   context,
	})
}
