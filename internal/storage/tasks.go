package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertTask appends one scheduled row to the agent task queue.
func (s *Store) InsertTask(t Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = "scheduled"
	}
	now := time.Now()
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_task_queue (id, org_id, type, priority, payload_json, status, scheduled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrgID, t.Type, t.Priority, t.PayloadJSON, t.Status,
		fmtTime(t.ScheduledAt), fmtTime(now))
	return err
}

// ListTasks returns queued tasks for an org, highest priority first.
func (s *Store) ListTasks(orgID string, limit int) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, type, priority, payload_json, status, scheduled_at, created_at
		FROM agent_task_queue WHERE org_id = ?
		ORDER BY priority DESC, scheduled_at ASC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Task
	for rows.Next() {
		var t Task
		var scheduledAt, createdAt string
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Type, &t.Priority, &t.PayloadJSON, &t.Status, &scheduledAt, &createdAt); err != nil {
			return nil, err
		}
		if t.ScheduledAt, err = parseTime(scheduledAt); err != nil {
			return nil, fmt.Errorf("parsing scheduled_at: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// InsertIngestionRun opens a run row in "running" state and returns its id.
func (s *Store) InsertIngestionRun(orgID, adapter string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO ingestion_runs (id, org_id, adapter, status, started_at)
		VALUES (?, ?, ?, 'running', ?)`,
		id, orgID, adapter, fmtTime(time.Now()))
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishIngestionRun closes a run row with its final status and counters.
func (s *Store) FinishIngestionRun(id, status string, inserted, skipped, failures int, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE ingestion_runs SET status = ?, inserted = ?, skipped = ?, failures = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		status, inserted, skipped, failures, errMsg, fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIngestionRuns returns recent runs for an org, newest first.
func (s *Store) ListIngestionRuns(orgID string, limit int) ([]IngestionRun, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, adapter, status, inserted, skipped, failures, error, started_at, finished_at
		FROM ingestion_runs WHERE org_id = ?
		ORDER BY started_at DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestionRun
	for rows.Next() {
		var r IngestionRun
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Adapter, &r.Status, &r.Inserted, &r.Skipped, &r.Failures, &r.Error, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if r.FinishedAt, err = parseNullTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
