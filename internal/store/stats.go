package store

import "fmt"

// Stats summarizes the database's current contents, used by the "stats" CLI
// subcommand and diagnostics.
type Stats struct {
	TotalSessions        int
	TotalMessages        int
	TotalEntities        int
	TotalSummaries       int
	TotalKnowledgeEntries int
	SessionsBySource     map[string]int
	SessionsByTier       map[string]int
	JobsByStatus         map[string]int
}

// Stats gathers row counts and per-category breakdowns across the database.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{
		SessionsBySource: map[string]int{},
		SessionsByTier:   map[string]int{},
		JobsByStatus:     map[string]int{},
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&st.TotalSessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&st.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&st.TotalEntities); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM session_summaries").Scan(&st.TotalSummaries); err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM project_knowledge").Scan(&st.TotalKnowledgeEntries); err != nil {
		return nil, fmt.Errorf("failed to count knowledge entries: %w", err)
	}

	if err := fillCounts(s, "SELECT source, COUNT(*) FROM sessions GROUP BY source", st.SessionsBySource); err != nil {
		return nil, err
	}
	if err := fillCounts(s, "SELECT tier, COUNT(*) FROM sessions GROUP BY tier", st.SessionsByTier); err != nil {
		return nil, err
	}
	if err := fillCounts(s, "SELECT status, COUNT(*) FROM memory_jobs GROUP BY status", st.JobsByStatus); err != nil {
		return nil, err
	}

	return st, nil
}

func fillCounts(s *Store, query string, into map[string]int) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to run grouped count query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan grouped count row: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}
