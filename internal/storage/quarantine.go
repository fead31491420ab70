package storage

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// UpsertQuarantine records a rejected document. Re-rejections for the same
// org + URL + reason refresh the existing row instead of stacking duplicates.
func (s *Store) UpsertQuarantine(q QuarantineEntry) error {
	if q.OrgID == "" || q.SourceURL == "" || q.Reason == "" {
		return fmt.Errorf("quarantine entry requires org_id, source_url, and reason")
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO ingestion_quarantine (id, org_id, source_url, reason, detail, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, source_url, reason) DO UPDATE SET
			detail = excluded.detail,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at`,
		q.ID, q.OrgID, q.SourceURL, q.Reason, q.Detail, q.MetadataJSON, now, now)
	return err
}

// QuarantineFilter narrows ListQuarantine. Zero values mean "any".
type QuarantineFilter struct {
	OrgID  string
	Reason string
	Limit  uint64
}

// ListQuarantine returns quarantine entries matching the filter, newest first.
func (s *Store) ListQuarantine(f QuarantineFilter) ([]QuarantineEntry, error) {
	b := sq.Select("id", "org_id", "source_url", "reason", "detail", "metadata_json", "created_at", "updated_at").
		From("ingestion_quarantine").
		OrderBy("updated_at DESC")
	if f.OrgID != "" {
		b = b.Where(sq.Eq{"org_id": f.OrgID})
	}
	if f.Reason != "" {
		b = b.Where(sq.Eq{"reason": f.Reason})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building quarantine query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QuarantineEntry
	for rows.Next() {
		var q QuarantineEntry
		var createdAt, updatedAt string
		if err := rows.Scan(&q.ID, &q.OrgID, &q.SourceURL, &q.Reason, &q.Detail, &q.MetadataJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if q.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if q.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// CountQuarantine returns the number of quarantine rows for an org.
func (s *Store) CountQuarantine(orgID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ingestion_quarantine WHERE org_id = ?`, orgID).Scan(&n)
	return n, err
}
