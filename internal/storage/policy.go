package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const policyColumns = `id, org_id, version, status, changes_json, notes, approved_by, approved_at, created_at, updated_at`

func scanPolicyVersion(row interface{ Scan(...any) error }) (PolicyVersion, error) {
	var v PolicyVersion
	var approvedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&v.ID, &v.OrgID, &v.Version, &v.Status, &v.ChangesJSON, &v.Notes,
		&v.ApprovedBy, &approvedAt, &createdAt, &updatedAt)
	if err != nil {
		return PolicyVersion{}, err
	}
	if v.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return PolicyVersion{}, fmt.Errorf("parsing approved_at: %w", err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return PolicyVersion{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return PolicyVersion{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return v, nil
}

// InsertPolicyVersion creates a draft version with the next monotonic version
// number for the org and returns it. The version number is assigned inside a
// transaction; the org+version unique constraint backstops races.
func (s *Store) InsertPolicyVersion(orgID, changesJSON, notes string) (PolicyVersion, error) {
	if orgID == "" {
		return PolicyVersion{}, fmt.Errorf("policy version requires org_id")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return PolicyVersion{}, fmt.Errorf("beginning version transaction: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM agent_policy_versions WHERE org_id = ?`, orgID).Scan(&maxVersion); err != nil {
		return PolicyVersion{}, fmt.Errorf("reading max version: %w", err)
	}

	v := PolicyVersion{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		Version:     int(maxVersion.Int64) + 1,
		Status:      PolicyDraft,
		ChangesJSON: changesJSON,
		Notes:       notes,
	}
	now := fmtTime(time.Now())
	if _, err := tx.Exec(`
		INSERT INTO agent_policy_versions (id, org_id, version, status, changes_json, notes, approved_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		v.ID, v.OrgID, v.Version, v.Status, v.ChangesJSON, v.Notes, now, now); err != nil {
		return PolicyVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return PolicyVersion{}, fmt.Errorf("committing version: %w", err)
	}

	v.CreatedAt = time.Now().UTC()
	v.UpdatedAt = v.CreatedAt
	return v, nil
}

// GetPolicyVersion returns one version by id.
func (s *Store) GetPolicyVersion(id string) (PolicyVersion, error) {
	row := s.db.QueryRow(`SELECT `+policyColumns+` FROM agent_policy_versions WHERE id = ?`, id)
	v, err := scanPolicyVersion(row)
	if err == sql.ErrNoRows {
		return PolicyVersion{}, ErrNotFound
	}
	return v, err
}

// LatestApprovedVersion returns the approved version with the highest version
// number for an org.
func (s *Store) LatestApprovedVersion(orgID string) (PolicyVersion, error) {
	row := s.db.QueryRow(`SELECT `+policyColumns+` FROM agent_policy_versions
		WHERE org_id = ? AND status = ? ORDER BY version DESC LIMIT 1`,
		orgID, PolicyApproved)
	v, err := scanPolicyVersion(row)
	if err == sql.ErrNoRows {
		return PolicyVersion{}, ErrNotFound
	}
	return v, err
}

// ApprovePolicyVersion marks a version approved with approval metadata.
func (s *Store) ApprovePolicyVersion(id, approver string) error {
	now := fmtTime(time.Now())
	res, err := s.db.Exec(`UPDATE agent_policy_versions
		SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ?`, PolicyApproved, approver, now, now, id)
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

// RollBackPolicyVersion forces a version into rolled_back with a note listing
// the breach reasons and clears its approval metadata.
func (s *Store) RollBackPolicyVersion(id, note string) error {
	res, err := s.db.Exec(`UPDATE agent_policy_versions
		SET status = ?, notes = ?, approved_by = '', approved_at = NULL, updated_at = ?
		WHERE id = ?`, PolicyRolledBack, note, fmtTime(time.Now()), id)
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

// AppendPolicyNote appends an audit line to the latest non-terminal version
// for the org. A no-op when no such version exists.
func (s *Store) AppendPolicyNote(orgID, note string) error {
	_, err := s.db.Exec(`UPDATE agent_policy_versions
		SET notes = CASE WHEN notes = '' THEN ? ELSE notes || char(10) || ? END, updated_at = ?
		WHERE id = (
			SELECT id FROM agent_policy_versions
			WHERE org_id = ? AND status IN (?, ?)
			ORDER BY version DESC LIMIT 1
		)`,
		note, note, fmtTime(time.Now()), orgID, PolicyDraft, PolicyNeedsApproval)
	return err
}

// --- Synonyms ---

// UpsertSynonym records one query-expansion term keyed by jurisdiction+term.
func (s *Store) UpsertSynonym(jurisdiction, term, origin string) error {
	if term == "" {
		return fmt.Errorf("synonym requires a term")
	}
	_, err := s.db.Exec(`
		INSERT INTO agent_synonyms (jurisdiction, term, origin, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (jurisdiction, term) DO UPDATE SET
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		jurisdiction, term, origin, fmtTime(time.Now()))
	return err
}

// ListSynonyms returns all expansion terms for a jurisdiction.
func (s *Store) ListSynonyms(jurisdiction string) ([]Synonym, error) {
	rows, err := s.db.Query(`SELECT jurisdiction, term, origin, updated_at
		FROM agent_synonyms WHERE jurisdiction = ? ORDER BY term ASC`, jurisdiction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Synonym
	for rows.Next() {
		var syn Synonym
		var updatedAt string
		if err := rows.Scan(&syn.Jurisdiction, &syn.Term, &syn.Origin, &updatedAt); err != nil {
			return nil, err
		}
		if syn.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, syn)
	}
	return results, rows.Err()
}
