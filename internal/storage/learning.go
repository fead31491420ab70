package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// --- Event streams harvested by the signal collector ---

func (s *Store) InsertAgentRun(r AgentRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_runs (id, org_id, status, question, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.OrgID, r.Status, r.Question, fmtTime(r.OccurredAt))
	return err
}

// ListAgentRunsSince returns agent runs observed at or after the cutoff,
// oldest first.
func (s *Store) ListAgentRunsSince(orgID string, since time.Time) ([]AgentRun, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, status, question, occurred_at FROM agent_runs
		WHERE org_id = ? AND occurred_at >= ? ORDER BY occurred_at ASC`,
		orgID, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AgentRun
	for rows.Next() {
		var r AgentRun
		var occurredAt string
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Status, &r.Question, &occurredAt); err != nil {
			return nil, err
		}
		if r.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListRecentAgentRuns returns the last n agent runs, newest first.
func (s *Store) ListRecentAgentRuns(orgID string, n int) ([]AgentRun, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, status, question, occurred_at FROM agent_runs
		WHERE org_id = ? ORDER BY occurred_at DESC LIMIT ?`, orgID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AgentRun
	for rows.Next() {
		var r AgentRun
		var occurredAt string
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Status, &r.Question, &occurredAt); err != nil {
			return nil, err
		}
		if r.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) InsertCitation(c Citation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	allowlisted := 0
	if c.Allowlisted {
		allowlisted = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_citations (id, run_id, org_id, source_url, allowlisted, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.RunID, c.OrgID, c.SourceURL, allowlisted, fmtTime(c.CheckedAt))
	return err
}

// ListCitationsForRuns joins citations onto a set of run ids.
func (s *Store) ListCitationsForRuns(runIDs []string) ([]Citation, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat(",?", len(runIDs)-1)
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, org_id, source_url, allowlisted, checked_at
		FROM agent_citations WHERE run_id IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Citation
	for rows.Next() {
		var c Citation
		var allowlisted int
		var checkedAt string
		if err := rows.Scan(&c.ID, &c.RunID, &c.OrgID, &c.SourceURL, &allowlisted, &checkedAt); err != nil {
			return nil, err
		}
		c.Allowlisted = allowlisted != 0
		if c.CheckedAt, err = parseTime(checkedAt); err != nil {
			return nil, fmt.Errorf("parsing checked_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ListCitationsSince returns citation checks observed at or after the cutoff.
func (s *Store) ListCitationsSince(orgID string, since time.Time) ([]Citation, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, org_id, source_url, allowlisted, checked_at
		FROM agent_citations WHERE org_id = ? AND checked_at >= ?
		ORDER BY checked_at ASC`, orgID, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Citation
	for rows.Next() {
		var c Citation
		var allowlisted int
		var checkedAt string
		if err := rows.Scan(&c.ID, &c.RunID, &c.OrgID, &c.SourceURL, &allowlisted, &checkedAt); err != nil {
			return nil, err
		}
		c.Allowlisted = allowlisted != 0
		if c.CheckedAt, err = parseTime(checkedAt); err != nil {
			return nil, fmt.Errorf("parsing checked_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (s *Store) InsertTelemetryEvent(e TelemetryEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO tool_telemetry (id, org_id, run_id, tool, outcome, duration_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrgID, e.RunID, e.Tool, e.Outcome, e.DurationMs, fmtTime(e.OccurredAt))
	return err
}

// ListTelemetrySince returns telemetry events observed at or after the cutoff.
func (s *Store) ListTelemetrySince(orgID string, since time.Time) ([]TelemetryEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, run_id, tool, outcome, duration_ms, occurred_at
		FROM tool_telemetry WHERE org_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC`, orgID, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TelemetryEvent
	for rows.Next() {
		var e TelemetryEvent
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.OrgID, &e.RunID, &e.Tool, &e.Outcome, &e.DurationMs, &occurredAt); err != nil {
			return nil, err
		}
		if e.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *Store) InsertReviewAction(a ReviewAction) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO review_actions (id, org_id, run_id, reviewer, decision, notes, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrgID, a.RunID, a.Reviewer, a.Decision, a.Notes, fmtTime(a.OccurredAt))
	return err
}

// ListReviewActionsSince returns reviewer decisions observed at or after the
// cutoff.
func (s *Store) ListReviewActionsSince(orgID string, since time.Time) ([]ReviewAction, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, run_id, reviewer, decision, notes, occurred_at
		FROM review_actions WHERE org_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC`, orgID, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ReviewAction
	for rows.Next() {
		var a ReviewAction
		var occurredAt string
		if err := rows.Scan(&a.ID, &a.OrgID, &a.RunID, &a.Reviewer, &a.Decision, &a.Notes, &occurredAt); err != nil {
			return nil, err
		}
		if a.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Signal log (append-only) ---

func (s *Store) InsertLearningSignal(sig LearningSignal) error {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO learning_signals (id, org_id, run_id, source_id, signal_type, kind, payload_json, observed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.OrgID, sig.RunID, sig.SourceID, sig.SignalType, sig.Kind,
		sig.PayloadJSON, fmtTime(sig.ObservedAt), fmtTime(time.Now()))
	return err
}

// CountSignals returns the number of signal rows for an org, optionally
// narrowed to one signal type.
func (s *Store) CountSignals(orgID, signalType string) (int, error) {
	var n int
	var err error
	if signalType == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM learning_signals WHERE org_id = ?`, orgID).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM learning_signals WHERE org_id = ? AND signal_type = ?`, orgID, signalType).Scan(&n)
	}
	return n, err
}

// --- Metrics (append-only time series) ---

func (s *Store) InsertMetric(m LearningMetric) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.ComputedAt.IsZero() {
		m.ComputedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO learning_metrics (id, org_id, name, value, window_label, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.OrgID, m.Name, m.Value, m.Window, fmtTime(m.ComputedAt))
	return err
}

// LatestMetric resolves the newest value of a named metric by computed_at
// descending.
func (s *Store) LatestMetric(orgID, name string) (LearningMetric, error) {
	var m LearningMetric
	var computedAt string
	err := s.db.QueryRow(`
		SELECT id, org_id, name, value, window_label, computed_at FROM learning_metrics
		WHERE org_id = ? AND name = ? ORDER BY computed_at DESC, id DESC LIMIT 1`,
		orgID, name,
	).Scan(&m.ID, &m.OrgID, &m.Name, &m.Value, &m.Window, &computedAt)
	if err == sql.ErrNoRows {
		return LearningMetric{}, ErrNotFound
	}
	if err != nil {
		return LearningMetric{}, err
	}
	if m.ComputedAt, err = parseTime(computedAt); err != nil {
		return LearningMetric{}, fmt.Errorf("parsing computed_at: %w", err)
	}
	return m, nil
}
