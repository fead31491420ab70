package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const sourceColumns = `id, org_id, jurisdiction, source_type, title, publisher,
	binding_language, consolidated, adopted_at, effective_at, version_label,
	language_note, canonical_url, content_hash, etag, last_modified,
	residency_zone, link_status, link_error, link_checked_at, eli, ecli,
	body_json, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (Source, error) {
	var s Source
	var consolidated int
	var adoptedAt, effectiveAt sql.NullString
	var linkCheckedAt, createdAt, updatedAt string
	err := row.Scan(
		&s.ID, &s.OrgID, &s.Jurisdiction, &s.SourceType, &s.Title, &s.Publisher,
		&s.BindingLanguage, &consolidated, &adoptedAt, &effectiveAt, &s.VersionLabel,
		&s.LanguageNote, &s.CanonicalURL, &s.ContentHash, &s.ETag, &s.LastModified,
		&s.ResidencyZone, &s.LinkStatus, &s.LinkError, &linkCheckedAt, &s.ELI, &s.ECLI,
		&s.BodyJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return Source{}, err
	}
	s.Consolidated = consolidated != 0
	if s.AdoptedAt, err = parseNullTime(adoptedAt); err != nil {
		return Source{}, fmt.Errorf("parsing adopted_at: %w", err)
	}
	if s.EffectiveAt, err = parseNullTime(effectiveAt); err != nil {
		return Source{}, fmt.Errorf("parsing effective_at: %w", err)
	}
	if s.LinkCheckedAt, err = parseTime(linkCheckedAt); err != nil {
		return Source{}, fmt.Errorf("parsing link_checked_at: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return Source{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Source{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return s, nil
}

// GetSourceByURL looks up the source for an org + canonical URL pair.
func (s *Store) GetSourceByURL(orgID, canonicalURL string) (Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE org_id = ? AND canonical_url = ?`,
		orgID, canonicalURL)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	return src, err
}

// UpsertSource inserts or updates a source keyed on org + canonical URL and
// returns its id. Persistence for one key must be serialized by the caller;
// the unique constraint backstops concurrent double-inserts.
func (s *Store) UpsertSource(src Source) (string, error) {
	if src.OrgID == "" || src.CanonicalURL == "" {
		return "", fmt.Errorf("source requires org_id and canonical_url")
	}
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	now := fmtTime(time.Now())
	consolidated := 0
	if src.Consolidated {
		consolidated = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO sources (id, org_id, jurisdiction, source_type, title, publisher,
			binding_language, consolidated, adopted_at, effective_at, version_label,
			language_note, canonical_url, content_hash, etag, last_modified,
			residency_zone, link_status, link_error, link_checked_at, eli, ecli,
			body_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, canonical_url) DO UPDATE SET
			jurisdiction = excluded.jurisdiction,
			source_type = excluded.source_type,
			title = excluded.title,
			publisher = excluded.publisher,
			binding_language = excluded.binding_language,
			consolidated = excluded.consolidated,
			adopted_at = excluded.adopted_at,
			effective_at = excluded.effective_at,
			version_label = excluded.version_label,
			language_note = excluded.language_note,
			content_hash = excluded.content_hash,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			residency_zone = excluded.residency_zone,
			link_status = excluded.link_status,
			link_error = excluded.link_error,
			link_checked_at = excluded.link_checked_at,
			eli = excluded.eli,
			ecli = excluded.ecli,
			body_json = excluded.body_json,
			updated_at = excluded.updated_at`,
		src.ID, src.OrgID, src.Jurisdiction, src.SourceType, src.Title, src.Publisher,
		src.BindingLanguage, consolidated, fmtNullTime(src.AdoptedAt), fmtNullTime(src.EffectiveAt),
		src.VersionLabel, src.LanguageNote, src.CanonicalURL, src.ContentHash, src.ETag,
		src.LastModified, src.ResidencyZone, src.LinkStatus, src.LinkError,
		fmtTime(src.LinkCheckedAt), src.ELI, src.ECLI, src.BodyJSON, now, now,
	)
	if err != nil {
		return "", err
	}

	// The insert id loses to the existing row on conflict; read the winner back.
	var id string
	if err := s.db.QueryRow(`SELECT id FROM sources WHERE org_id = ? AND canonical_url = ?`,
		src.OrgID, src.CanonicalURL).Scan(&id); err != nil {
		return "", fmt.Errorf("reading back source id: %w", err)
	}
	return id, nil
}

// RefreshSourceHealth updates only the bookkeeping fields of an existing
// source: link health, residency, and HTTP validators. Used for the
// unchanged-content fast path.
func (s *Store) RefreshSourceHealth(orgID, canonicalURL, linkStatus, linkError, etag, lastModified, residency string) error {
	res, err := s.db.Exec(`
		UPDATE sources SET link_status = ?, link_error = ?, link_checked_at = ?,
			etag = ?, last_modified = ?, residency_zone = ?, updated_at = ?
		WHERE org_id = ? AND canonical_url = ?`,
		linkStatus, linkError, fmtTime(time.Now()), etag, lastModified, residency,
		fmtTime(time.Now()), orgID, canonicalURL,
	)
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

// MarkSourceLinkFailed records a link-health failure on an existing source.
// Missing sources are not an error: a download can fail before any source row
// exists.
func (s *Store) MarkSourceLinkFailed(orgID, canonicalURL, linkError string) error {
	_, err := s.db.Exec(`
		UPDATE sources SET link_status = 'failed', link_error = ?, link_checked_at = ?, updated_at = ?
		WHERE org_id = ? AND canonical_url = ?`,
		linkError, fmtTime(time.Now()), fmtTime(time.Now()), orgID, canonicalURL,
	)
	return err
}

// SourceFilter narrows ListSources. Zero values mean "any".
type SourceFilter struct {
	OrgID        string
	Jurisdiction string
	SourceType   string
	LinkStatus   string
	Limit        uint64
}

// ListSources returns sources matching the filter, newest first.
func (s *Store) ListSources(f SourceFilter) ([]Source, error) {
	b := sq.Select(strings.Fields(strings.ReplaceAll(sourceColumns, ",", " "))...).
		From("sources").
		OrderBy("updated_at DESC")
	if f.OrgID != "" {
		b = b.Where(sq.Eq{"org_id": f.OrgID})
	}
	if f.Jurisdiction != "" {
		b = b.Where(sq.Eq{"jurisdiction": f.Jurisdiction})
	}
	if f.SourceType != "" {
		b = b.Where(sq.Eq{"source_type": f.SourceType})
	}
	if f.LinkStatus != "" {
		b = b.Where(sq.Eq{"link_status": f.LinkStatus})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building source query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, src)
	}
	return results, rows.Err()
}

// FindCaseByECLI resolves a case source by exact ECLI within a jurisdiction.
func (s *Store) FindCaseByECLI(orgID, jurisdiction, ecli string) (Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources
		WHERE org_id = ? AND jurisdiction = ? AND source_type = 'case' AND ecli = ?
		LIMIT 1`, orgID, jurisdiction, ecli)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	return src, err
}

// FindCaseByTitle resolves a case source whose title contains the fragment,
// case-insensitively, within a jurisdiction.
func (s *Store) FindCaseByTitle(orgID, jurisdiction, fragment string) (Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources
		WHERE org_id = ? AND jurisdiction = ? AND source_type = 'case'
		AND LOWER(title) LIKE '%' || LOWER(?) || '%'
		ORDER BY updated_at DESC LIMIT 1`, orgID, jurisdiction, fragment)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	return src, err
}

// FindCaseByVersionLabel resolves a case source by exact version label within
// a jurisdiction.
func (s *Store) FindCaseByVersionLabel(orgID, jurisdiction, label string) (Source, error) {
	row := s.db.QueryRow(`SELECT `+sourceColumns+` FROM sources
		WHERE org_id = ? AND jurisdiction = ? AND source_type = 'case' AND version_label = ?
		ORDER BY updated_at DESC LIMIT 1`, orgID, jurisdiction, label)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return Source{}, ErrNotFound
	}
	return src, err
}

// CountSources returns the number of source rows for an org.
func (s *Store) CountSources(orgID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sources WHERE org_id = ?`, orgID).Scan(&n)
	return n, err
}
