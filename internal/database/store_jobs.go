package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"supportbridge/internal/models"
)

// CreateSyncJob persists a new job. The active-job invariant is enforced
// by the caller under its own lock; this only writes the row.
func (d *Database) CreateSyncJob(ctx context.Context, job *models.SyncJob) error {
	contacts, err := json.Marshal(job.Contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal contact stats: %w", err)
	}
	messages, err := json.Marshal(job.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal message stats: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (id, session_id, type, status, window_days, started_at, contacts, messages, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.ExecContext(ctx, query,
		job.ID, job.SessionID, string(job.Type), string(job.Status), job.WindowDays,
		job.StartedAt, string(contacts), string(messages), job.Error)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

// UpdateSyncJob rewrites a job's status, stats and error.
func (d *Database) UpdateSyncJob(ctx context.Context, job *models.SyncJob) error {
	contacts, err := json.Marshal(job.Contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal contact stats: %w", err)
	}
	messages, err := json.Marshal(job.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal message stats: %w", err)
	}

	query := `
		UPDATE sync_jobs
		SET status = ?, ended_at = ?, contacts = ?, messages = ?, error = ?
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query,
		string(job.Status), job.EndedAt, string(contacts), string(messages), job.Error, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no sync job found with id: %s", job.ID)
	}
	return nil
}

// GetLatestSyncJob returns the most recently started job for a session,
// or nil when the session never ran one.
func (d *Database) GetLatestSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	query := `
		SELECT id, session_id, type, status, window_days, started_at, ended_at, contacts, messages, error
		FROM sync_jobs
		WHERE session_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`
	return d.scanSyncJob(d.db.QueryRowContext(ctx, query, sessionID))
}

// GetActiveSyncJob returns the running job for a session, or nil.
func (d *Database) GetActiveSyncJob(ctx context.Context, sessionID string) (*models.SyncJob, error) {
	query := `
		SELECT id, session_id, type, status, window_days, started_at, ended_at, contacts, messages, error
		FROM sync_jobs
		WHERE session_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`
	return d.scanSyncJob(d.db.QueryRowContext(ctx, query, sessionID, string(models.JobStatusRunning)))
}

func (d *Database) scanSyncJob(row *sql.Row) (*models.SyncJob, error) {
	job := &models.SyncJob{}
	var typ, status, contacts, messages string
	var endedAt sql.NullTime

	err := row.Scan(&job.ID, &job.SessionID, &typ, &status, &job.WindowDays,
		&job.StartedAt, &endedAt, &contacts, &messages, &job.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	job.Type = models.JobType(typ)
	job.Status = models.JobStatus(status)
	if endedAt.Valid {
		ended := endedAt.Time
		job.EndedAt = &ended
	}
	if err := json.Unmarshal([]byte(contacts), &job.Contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact stats: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &job.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message stats: %w", err)
	}
	return job, nil
}

// FailStaleSyncJobs marks every running job as failed. Called on startup
// so that jobs interrupted by a crash do not block new runs forever.
func (d *Database) FailStaleSyncJobs(ctx context.Context, reason string) (int64, error) {
	query := `
		UPDATE sync_jobs
		SET status = ?, ended_at = ?, error = ?
		WHERE status = ?
	`

	result, err := d.db.ExecContext(ctx, query,
		string(models.JobStatusFailed), time.Now(), reason, string(models.JobStatusRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale sync jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
