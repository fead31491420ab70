package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertCaseTreatment records a treatment edge from a citing case to a cited
// case. Re-deriving the same edge refreshes its verdict and weight.
func (s *Store) UpsertCaseTreatment(t CaseTreatment) error {
	if t.CitingSourceID == "" || t.CitedSourceID == "" {
		return fmt.Errorf("case treatment requires citing and cited source ids")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO case_treatments (id, org_id, citing_source_id, cited_source_id, treatment, weight, decided_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (citing_source_id, cited_source_id) DO UPDATE SET
			treatment = excluded.treatment,
			weight = excluded.weight,
			decided_at = excluded.decided_at`,
		t.ID, t.OrgID, t.CitingSourceID, t.CitedSourceID, t.Treatment, t.Weight,
		fmtNullTime(t.DecidedAt), fmtTime(time.Now()))
	return err
}

// ListTreatmentsForSource returns treatment edges where the source is the
// citing side.
func (s *Store) ListTreatmentsForSource(citingSourceID string) ([]CaseTreatment, error) {
	rows, err := s.db.Query(`
		SELECT id, org_id, citing_source_id, cited_source_id, treatment, weight, decided_at, created_at
		FROM case_treatments WHERE citing_source_id = ? ORDER BY created_at ASC`, citingSourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CaseTreatment
	for rows.Next() {
		var t CaseTreatment
		var decidedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &t.OrgID, &t.CitingSourceID, &t.CitedSourceID, &t.Treatment, &t.Weight, &decidedAt, &createdAt); err != nil {
			return nil, err
		}
		if t.DecidedAt, err = parseNullTime(decidedAt); err != nil {
			return nil, fmt.Errorf("parsing decided_at: %w", err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}
