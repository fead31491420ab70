package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, org_id, type, payload_json, status, error, policy_version_id, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (LearningJob, error) {
	var j LearningJob
	var createdAt, updatedAt string
	err := row.Scan(&j.ID, &j.OrgID, &j.Type, &j.PayloadJSON, &j.Status, &j.Error,
		&j.PolicyVersionID, &createdAt, &updatedAt)
	if err != nil {
		return LearningJob{}, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return LearningJob{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return LearningJob{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

// InsertLearningJob appends a new job in pending state and returns its id.
func (s *Store) InsertLearningJob(j LearningJob) (string, error) {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO agent_learning_jobs (id, org_id, type, payload_json, status, error, policy_version_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.OrgID, j.Type, j.PayloadJSON, j.Status, j.Error, j.PolicyVersionID, now, now)
	if err != nil {
		return "", err
	}
	return j.ID, nil
}

// GetLearningJob returns one job by id.
func (s *Store) GetLearningJob(id string) (LearningJob, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM agent_learning_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return LearningJob{}, ErrNotFound
	}
	return j, err
}

// ClaimNextLearningJob transitions the oldest pending job to processing and
// returns it, or nil when the queue is drained. The claim is transactional so
// concurrent processors never double-claim.
func (s *Store) ClaimNextLearningJob() (*LearningJob, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	row := tx.QueryRow(`SELECT ` + jobColumns + ` FROM agent_learning_jobs
		WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	now := fmtTime(time.Now())
	res, err := tx.Exec(`UPDATE agent_learning_jobs SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = JobProcessing
	return &j, nil
}

// UpdateLearningJobStatus moves a job to a new state, recording an error
// string for failure transitions.
func (s *Store) UpdateLearningJobStatus(id, status, errMsg string) error {
	res, err := s.db.Exec(`UPDATE agent_learning_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, fmtTime(time.Now()), id)
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

// ListJobsByStatus returns jobs in a given state, oldest first, up to limit.
func (s *Store) ListJobsByStatus(status string, limit int) ([]LearningJob, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM agent_learning_jobs
		WHERE status = ? ORDER BY created_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LearningJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

// ListJobsByVersion returns every job bound to a policy version.
func (s *Store) ListJobsByVersion(versionID string) ([]LearningJob, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM agent_learning_jobs
		WHERE policy_version_id = ? ORDER BY created_at ASC`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LearningJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

// BindJobsToVersion transitions a set of jobs to needs_approval referencing
// the policy version, atomically: either the whole group moves or none does.
func (s *Store) BindJobsToVersion(jobIDs []string, versionID string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bind transaction: %w", err)
	}
	defer tx.Rollback()

	now := fmtTime(time.Now())
	placeholders := strings.Repeat(",?", len(jobIDs)-1)
	args := []any{JobNeedsApproval, versionID, now}
	for _, id := range jobIDs {
		args = append(args, id)
	}
	res, err := tx.Exec(`UPDATE agent_learning_jobs
		SET status = ?, policy_version_id = ?, updated_at = ?
		WHERE id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(jobIDs) {
		return fmt.Errorf("bound %d of %d jobs", n, len(jobIDs))
	}
	return tx.Commit()
}

// RollBackJobsForVersion transitions every job referencing a policy version
// to rolled_back and returns how many moved.
func (s *Store) RollBackJobsForVersion(versionID string) (int, error) {
	res, err := s.db.Exec(`UPDATE agent_learning_jobs SET status = ?, updated_at = ? WHERE policy_version_id = ?`,
		JobRolledBack, fmtTime(time.Now()), versionID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
