package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedAuthorityDomain registers a trusted host for a jurisdiction. Existing
// rows keep their health counters.
func (s *Store) SeedAuthorityDomain(host, jurisdiction string) error {
	_, err := s.db.Exec(`
		INSERT INTO authority_domains (host, jurisdiction, failure_count)
		VALUES (?, ?, 0)
		ON CONFLICT (host, jurisdiction) DO NOTHING`,
		host, jurisdiction)
	return err
}

// AllowedHosts returns the set of allowlisted hosts across all jurisdictions.
func (s *Store) AllowedHosts() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT DISTINCT host FROM authority_domains`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hosts := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hosts[h] = true
	}
	return hosts, rows.Err()
}

// RecordDomainSuccess resets the consecutive-failure counter for a host.
func (s *Store) RecordDomainSuccess(host, jurisdiction string) error {
	_, err := s.db.Exec(`
		INSERT INTO authority_domains (host, jurisdiction, failure_count, last_success_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (host, jurisdiction) DO UPDATE SET
			failure_count = 0,
			last_success_at = excluded.last_success_at`,
		host, jurisdiction, fmtTime(time.Now()))
	return err
}

// RecordDomainFailure increments the consecutive-failure counter for a host.
func (s *Store) RecordDomainFailure(host, jurisdiction string) error {
	_, err := s.db.Exec(`
		INSERT INTO authority_domains (host, jurisdiction, failure_count, last_failure_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (host, jurisdiction) DO UPDATE SET
			failure_count = authority_domains.failure_count + 1,
			last_failure_at = excluded.last_failure_at`,
		host, jurisdiction, fmtTime(time.Now()))
	return err
}

// GetAuthorityDomain returns health bookkeeping for one host + jurisdiction.
func (s *Store) GetAuthorityDomain(host, jurisdiction string) (AuthorityDomain, error) {
	var d AuthorityDomain
	var lastSuccess, lastFailure sql.NullString
	err := s.db.QueryRow(`
		SELECT host, jurisdiction, failure_count, last_success_at, last_failure_at
		FROM authority_domains WHERE host = ? AND jurisdiction = ?`,
		host, jurisdiction,
	).Scan(&d.Host, &d.Jurisdiction, &d.FailureCount, &lastSuccess, &lastFailure)
	if err == sql.ErrNoRows {
		return AuthorityDomain{}, ErrNotFound
	}
	if err != nil {
		return AuthorityDomain{}, err
	}
	if d.LastSuccessAt, err = parseNullTime(lastSuccess); err != nil {
		return AuthorityDomain{}, fmt.Errorf("parsing last_success_at: %w", err)
	}
	if d.LastFailureAt, err = parseNullTime(lastFailure); err != nil {
		return AuthorityDomain{}, fmt.Errorf("parsing last_failure_at: %w", err)
	}
	return d, nil
}
