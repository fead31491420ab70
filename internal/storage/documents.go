package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertDocument inserts or replaces the document row for an org + bucket +
// storage path and returns its id.
func (s *Store) UpsertDocument(d Document) (string, error) {
	if d.SourceID == "" {
		return "", fmt.Errorf("document requires source_id")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.SyncStatus == "" {
		d.SyncStatus = SyncPending
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, org_id, source_id, bucket, storage_path, byte_size,
			mime_type, vector_file_id, sync_status, sync_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, bucket, storage_path) DO UPDATE SET
			source_id = excluded.source_id,
			byte_size = excluded.byte_size,
			mime_type = excluded.mime_type,
			vector_file_id = excluded.vector_file_id,
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error`,
		d.ID, d.OrgID, d.SourceID, d.Bucket, d.StoragePath, d.ByteSize,
		d.MimeType, d.VectorFileID, d.SyncStatus, d.SyncError, fmtTime(time.Now()),
	)
	if err != nil {
		return "", err
	}

	var id string
	if err := s.db.QueryRow(`SELECT id FROM documents WHERE org_id = ? AND bucket = ? AND storage_path = ?`,
		d.OrgID, d.Bucket, d.StoragePath).Scan(&id); err != nil {
		return "", fmt.Errorf("reading back document id: %w", err)
	}
	return id, nil
}

// UpdateDocumentSync records the vector-store sync outcome for a document.
func (s *Store) UpdateDocumentSync(id, vectorFileID, status, syncErr string) error {
	res, err := s.db.Exec(`UPDATE documents SET vector_file_id = ?, sync_status = ?, sync_error = ? WHERE id = ?`,
		vectorFileID, status, syncErr, id)
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

// GetDocumentBySource returns the stored document for a source, if any.
func (s *Store) GetDocumentBySource(sourceID string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, org_id, source_id, bucket, storage_path, byte_size, mime_type,
			vector_file_id, sync_status, sync_error, created_at
		FROM documents WHERE source_id = ? ORDER BY created_at DESC LIMIT 1`, sourceID,
	).Scan(&d.ID, &d.OrgID, &d.SourceID, &d.Bucket, &d.StoragePath, &d.ByteSize,
		&d.MimeType, &d.VectorFileID, &d.SyncStatus, &d.SyncError, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return d, nil
}

// CountDocuments returns the number of document rows for an org.
func (s *Store) CountDocuments(orgID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE org_id = ?`, orgID).Scan(&n)
	return n, err
}
