package store

import (
	"database/sql"
	"fmt"

	"tactical/internal/logging"
	"tactical/internal/model"
)

// EnqueueJob adds a job to the background work queue and returns its id.
func (s *Store) EnqueueJob(jobType, targetID string, priority int, createdAt int64) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO memory_jobs (job_type, target_id, priority, created_at)
		VALUES (?, ?, ?, ?)`, jobType, targetID, priority, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s job for %s: %w", jobType, targetID, err)
	}
	return res.LastInsertId()
}

// ClaimJob atomically claims and returns the next pending job (highest
// priority, then oldest), marking it running. Returns nil if the queue is
// empty.
//
// Implemented as an explicit transaction rather than the original's two
// free-standing statements: SELECT the candidate row, then UPDATE it gated on
// status = 'pending', checking exactly one row was affected before
// committing. Under SQLite's single-writer serialization this guarantees no
// two callers can claim the same job, even if invoked concurrently from
// multiple goroutines sharing one *Store.
func (s *Store) ClaimJob(startedAt int64) (*model.Job, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.ClaimJob")
	defer timer.Stop()

	var job *model.Job
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, job_type, target_id, status, priority, retry_remaining,
				created_at, started_at, finished_at, last_error
			FROM memory_jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1`)

		j, err := scanJob(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select candidate job: %w", err)
		}

		res, err := tx.Exec(
			"UPDATE memory_jobs SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'",
			startedAt, j.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to claim job %d: %w", j.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count claimed rows: %w", err)
		}
		if n != 1 {
			// Another claimer won the race within the same process; caller
			// retries rather than blocking here.
			return nil
		}

		j.Status = model.JobRunning
		j.StartedAt = startedAt
		job = j
		return nil
	})
	return job, err
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var status string
	var startedAt, finishedAt sql.NullInt64
	var lastError sql.NullString

	if err := row.Scan(
		&j.ID, &j.JobType, &j.TargetID, &status, &j.Priority, &j.RetryRemaining,
		&j.CreatedAt, &startedAt, &finishedAt, &lastError,
	); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.StartedAt = startedAt.Int64
	j.FinishedAt = finishedAt.Int64
	j.LastError = lastError.String
	return &j, nil
}

// FinishJob marks a job done, or error (decrementing retry_remaining) if
// errMsg is non-empty.
func (s *Store) FinishJob(jobID int64, finishedAt int64, errMsg string) error {
	var err error
	if errMsg != "" {
		_, err = s.db.Exec(`
			UPDATE memory_jobs SET status = 'error',
				finished_at = ?, last_error = ?,
				retry_remaining = retry_remaining - 1
			WHERE id = ?`, finishedAt, errMsg, jobID)
	} else {
		_, err = s.db.Exec(
			"UPDATE memory_jobs SET status = 'done', finished_at = ? WHERE id = ?",
			finishedAt, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to finish job %d: %w", jobID, err)
	}
	return nil
}
