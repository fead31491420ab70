// Package ingest drives one crawl -> normalize -> dedupe -> quarantine ->
// persist run per adapter. No candidate is ever silently discarded: every
// rejection leaves a quarantine trail and every run ends in a summary.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/juridex/juridex/internal/adapters"
	"github.com/juridex/juridex/internal/extract"
	"github.com/juridex/juridex/internal/fetch"
	"github.com/juridex/juridex/internal/legalid"
	"github.com/juridex/juridex/internal/notify"
	"github.com/juridex/juridex/internal/objstore"
	"github.com/juridex/juridex/internal/scheduler"
	"github.com/juridex/juridex/internal/storage"
	"github.com/juridex/juridex/internal/vecstore"
)

// Store is the slice of storage the orchestrator needs.
type Store interface {
	AllowedHosts() (map[string]bool, error)
	GetSourceByURL(orgID, canonicalURL string) (storage.Source, error)
	UpsertSource(src storage.Source) (string, error)
	RefreshSourceHealth(orgID, canonicalURL, linkStatus, linkError, etag, lastModified, residency string) error
	MarkSourceLinkFailed(orgID, canonicalURL, linkError string) error
	UpsertDocument(d storage.Document) (string, error)
	UpdateDocumentSync(id, vectorFileID, status, syncErr string) error
	RecordDomainSuccess(host, jurisdiction string) error
	RecordDomainFailure(host, jurisdiction string) error
	UpsertQuarantine(q storage.QuarantineEntry) error
}

// CaseEnricher links case-law treatments after a successful case ingestion.
type CaseEnricher interface {
	Enrich(citing storage.Source, text string) int
}

// Summary is the outcome of one run.
type Summary struct {
	Inserted int
	Skipped  int
	Failures int
}

// Options configures an Orchestrator.
type Options struct {
	Bucket        string
	VectorStoreID string
	// RequireBindingLanguage lists jurisdictions whose documents must carry
	// a binding language to be trusted.
	RequireBindingLanguage map[string]bool
}

// Orchestrator runs the ingestion pipeline for one adapter at a time.
type Orchestrator struct {
	store      Store
	downloader fetch.Downloader
	objects    objstore.ObjectStore
	vectors    vecstore.Client // nil disables vector sync
	sched      *scheduler.Scheduler
	enricher   CaseEnricher // nil disables treatment enrichment
	notifier   notify.Notifier
	opts       Options
	keys       *keyedMutex
	logger     *slog.Logger
}

// New wires an Orchestrator. vectors and enricher may be nil; notifier
// defaults to a no-op.
func New(store Store, downloader fetch.Downloader, objects objstore.ObjectStore,
	vectors vecstore.Client, sched *scheduler.Scheduler, enricher CaseEnricher,
	notifier notify.Notifier, opts Options) *Orchestrator {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if opts.Bucket == "" {
		opts.Bucket = "corpus"
	}
	return &Orchestrator{
		store:      store,
		downloader: downloader,
		objects:    objects,
		vectors:    vectors,
		sched:      sched,
		enricher:   enricher,
		notifier:   notifier,
		opts:       opts,
		keys:       newKeyedMutex(),
		logger:     slog.Default(),
	}
}

// Run executes one ingestion run for an adapter and org. It returns an error
// only when the run cannot start at all (allowlist unavailable); per-candidate
// failures land in the summary and the quarantine table.
func (o *Orchestrator) Run(ctx context.Context, adapter adapters.Adapter, orgID string) (Summary, error) {
	allowed, err := o.store.AllowedHosts()
	if err != nil {
		return Summary{}, fmt.Errorf("loading allowlist: %w", err)
	}

	runID := o.sched.StartIngestionRun(orgID, adapter.Name())

	candidates := adapters.Dedup(adapter.FetchDocuments(ctx))
	var sum Summary
	for _, cand := range candidates {
		switch o.processCandidate(ctx, orgID, cand, allowed) {
		case outcomeInserted:
			sum.Inserted++
		case outcomeSkipped:
			sum.Skipped++
		case outcomeFailed:
			sum.Failures++
		}
	}

	status := "completed"
	if sum.Failures > 0 {
		status = "failed"
		msg := fmt.Sprintf("adapter %s: %d of %d candidates failed (inserted %d, skipped %d)",
			adapter.Name(), sum.Failures, len(candidates), sum.Inserted, sum.Skipped)
		if err := o.notifier.Notify(ctx, "ingestion failures", msg); err != nil {
			o.logger.Warn("ingest: notify failed", "error", err)
		}
	}
	o.sched.CompleteIngestionRun(runID, status, sum.Inserted, sum.Skipped, sum.Failures, "")

	o.logger.Info("ingestion run finished",
		"adapter", adapter.Name(), "org", orgID,
		"inserted", sum.Inserted, "skipped", sum.Skipped, "failures", sum.Failures)
	return sum, nil
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o *Orchestrator) processCandidate(ctx context.Context, orgID string, cand adapters.NormalizedDocument, allowed map[string]bool) outcome {
	u, err := url.Parse(cand.CanonicalURL)
	if err != nil || u.Host == "" {
		o.quarantine(orgID, cand, storage.QuarantineInvalidURL, "canonical URL is unparsable")
		return outcomeFailed
	}
	host := strings.ToLower(u.Host)

	if !hostAllowed(host, allowed) {
		o.quarantine(orgID, cand, storage.QuarantineNotAllowlisted,
			fmt.Sprintf("host %s is not a trusted authority domain", host))
		return outcomeSkipped
	}

	if o.opts.RequireBindingLanguage[strings.ToLower(cand.Jurisdiction)] && cand.BindingLanguage == "" {
		o.quarantine(orgID, cand, storage.QuarantineMissingLanguage,
			fmt.Sprintf("jurisdiction %s requires a binding language", cand.Jurisdiction))
		return outcomeSkipped
	}

	downloadURL := cand.DownloadURL
	if downloadURL == "" {
		downloadURL = cand.CanonicalURL
	}
	res, downloadErr := o.downloader.Fetch(ctx, downloadURL)
	payload := res.Body
	if downloadErr != nil {
		// Deterministic placeholder keeps hashing and storage from failing
		// outright; the real error rides on link health and domain counters.
		payload = fetch.Placeholder(downloadURL)
		o.logger.Warn("ingest: download failed, using placeholder",
			"url", downloadURL, "error", downloadErr)
	}

	mimeType := cand.MimeType
	if mimeType == "" && res.ContentType != "" {
		mimeType = strings.SplitN(res.ContentType, ";", 2)[0]
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// Persistence for one org+URL is a check-then-act sequence; serialize it.
	unlock := o.keys.lock(orgID + "|" + strings.ToLower(cand.CanonicalURL))
	defer unlock()

	result, err := o.persistCandidate(ctx, orgID, cand, host, payload, mimeType, res, downloadErr)
	if err != nil {
		o.logger.Warn("ingest: candidate failed", "url", cand.CanonicalURL, "error", err)
		if markErr := o.store.MarkSourceLinkFailed(orgID, cand.CanonicalURL, err.Error()); markErr != nil {
			o.logger.Warn("ingest: marking link failed", "url", cand.CanonicalURL, "error", markErr)
		}
		if domErr := o.store.RecordDomainFailure(host, cand.Jurisdiction); domErr != nil {
			o.logger.Warn("ingest: recording domain failure", "host", host, "error", domErr)
		}
		o.quarantine(orgID, cand, storage.QuarantineIngestionFailure, err.Error())
		return outcomeFailed
	}
	return result
}

// persistCandidate covers hash, identifier derivation, change detection, and
// the Source/Document/object/vector writes. Any error escalates to an
// ingestion_failure quarantine in the caller.
func (o *Orchestrator) persistCandidate(ctx context.Context, orgID string, cand adapters.NormalizedDocument,
	host string, payload []byte, mimeType string, res fetch.Result, downloadErr error) (outcome, error) {

	hash := legalid.ContentHash(payload)
	residency := legalid.ResolveResidency(cand.ResidencyOverride, cand.Jurisdiction)

	etag := cand.ETag
	if res.ETag != "" {
		etag = res.ETag
	}
	lastModified := cand.LastModified
	if res.LastModified != "" {
		lastModified = res.LastModified
	}

	existing, lookupErr := o.store.GetSourceByURL(orgID, cand.CanonicalURL)
	haveExisting := lookupErr == nil
	if lookupErr != nil && lookupErr != storage.ErrNotFound {
		return outcomeFailed, fmt.Errorf("looking up source: %w", lookupErr)
	}

	if haveExisting && downloadErr != nil {
		// Keep the trusted payload; refresh only health bookkeeping.
		if err := o.store.RefreshSourceHealth(orgID, cand.CanonicalURL, "failed", downloadErr.Error(), existing.ETag, existing.LastModified, residency); err != nil {
			return outcomeFailed, fmt.Errorf("refreshing health after download failure: %w", err)
		}
		if err := o.store.RecordDomainFailure(host, cand.Jurisdiction); err != nil {
			o.logger.Warn("ingest: recording domain failure", "host", host, "error", err)
		}
		return outcomeSkipped, nil
	}

	// Unchanged content is a no-op refresh: no re-upload, no re-write of the
	// body. Hash or ETag matching counts as unchanged; a stale upstream ETag
	// can therefore mask an edit, which is accepted behavior.
	if haveExisting && (existing.ContentHash == hash || (etag != "" && existing.ETag == etag)) {
		if err := o.store.RefreshSourceHealth(orgID, cand.CanonicalURL, "ok", "", etag, lastModified, residency); err != nil {
			return outcomeFailed, fmt.Errorf("refreshing source health: %w", err)
		}
		if err := o.store.RecordDomainSuccess(host, cand.Jurisdiction); err != nil {
			o.logger.Warn("ingest: recording domain success", "host", host, "error", err)
		}
		return outcomeSkipped, nil
	}

	text, extractErr := extract.Text(payload, mimeType)
	if extractErr != nil {
		o.logger.Warn("ingest: text extraction failed", "url", cand.CanonicalURL, "error", extractErr)
		text = ""
	}

	eli := cand.ELI
	if eli == "" {
		eli, _ = legalid.DeriveELI(cand.CanonicalURL)
	}
	ecli := cand.ECLI
	if ecli == "" {
		ecli, _ = legalid.DeriveECLI(cand.CanonicalURL, text)
	}

	linkStatus, linkError := "ok", ""
	if downloadErr != nil {
		linkStatus, linkError = "failed", downloadErr.Error()
	}

	src := storage.Source{
		OrgID:           orgID,
		Jurisdiction:    cand.Jurisdiction,
		SourceType:      cand.SourceType,
		Title:           cand.Title,
		Publisher:       cand.Publisher,
		BindingLanguage: cand.BindingLanguage,
		Consolidated:    cand.Consolidated,
		AdoptedAt:       cand.AdoptedAt,
		EffectiveAt:     cand.EffectiveAt,
		VersionLabel:    cand.VersionLabel,
		LanguageNote:    cand.LanguageNote,
		CanonicalURL:    cand.CanonicalURL,
		ContentHash:     hash,
		ETag:            etag,
		LastModified:    lastModified,
		ResidencyZone:   residency,
		LinkStatus:      linkStatus,
		LinkError:       linkError,
		LinkCheckedAt:   time.Now().UTC(),
		ELI:             eli,
		ECLI:            ecli,
		BodyJSON:        extract.SectionsJSON(text),
	}
	sourceID, err := o.store.UpsertSource(src)
	if err != nil {
		return outcomeFailed, fmt.Errorf("upserting source: %w", err)
	}
	src.ID = sourceID

	storagePath := fmt.Sprintf("%s/%s/%s-%s", orgID, residency, legalid.Slug(cand.Title), hash[:12])
	if err := o.objects.Put(ctx, o.opts.Bucket, storagePath, payload, mimeType); err != nil {
		return outcomeFailed, fmt.Errorf("storing payload: %w", err)
	}

	docID, err := o.store.UpsertDocument(storage.Document{
		OrgID:       orgID,
		SourceID:    sourceID,
		Bucket:      o.opts.Bucket,
		StoragePath: storagePath,
		ByteSize:    int64(len(payload)),
		MimeType:    mimeType,
		SyncStatus:  storage.SyncPending,
	})
	if err != nil {
		return outcomeFailed, fmt.Errorf("upserting document: %w", err)
	}

	// Vector-store sync is independent of ingestion success.
	if o.vectors != nil {
		o.syncVectors(ctx, docID, payload, mimeType, storagePath)
	}

	if downloadErr == nil {
		if err := o.store.RecordDomainSuccess(host, cand.Jurisdiction); err != nil {
			o.logger.Warn("ingest: recording domain success", "host", host, "error", err)
		}
	} else {
		if err := o.store.RecordDomainFailure(host, cand.Jurisdiction); err != nil {
			o.logger.Warn("ingest: recording domain failure", "host", host, "error", err)
		}
	}

	if cand.SourceType == "case" && text != "" && o.enricher != nil {
		edges := o.enricher.Enrich(src, text)
		if edges > 0 {
			o.logger.Debug("ingest: treatment edges written", "source", sourceID, "edges", edges)
		}
	}

	return outcomeInserted, nil
}

func (o *Orchestrator) syncVectors(ctx context.Context, docID string, payload []byte, mimeType, name string) {
	fileID, err := o.vectors.UploadFile(ctx, payload, mimeType, name)
	if err == nil && o.opts.VectorStoreID != "" {
		err = o.vectors.AttachToStore(ctx, o.opts.VectorStoreID, fileID)
	}
	if err != nil {
		o.logger.Warn("ingest: vector sync failed", "document", docID, "error", err)
		if updErr := o.store.UpdateDocumentSync(docID, fileID, storage.SyncFailed, err.Error()); updErr != nil {
			o.logger.Warn("ingest: recording sync failure", "document", docID, "error", updErr)
		}
		return
	}
	if err := o.store.UpdateDocumentSync(docID, fileID, storage.SyncUploaded, ""); err != nil {
		o.logger.Warn("ingest: recording sync success", "document", docID, "error", err)
	}
}

func (o *Orchestrator) quarantine(orgID string, cand adapters.NormalizedDocument, reason, detail string) {
	meta, err := json.Marshal(cand)
	if err != nil {
		meta = nil
	}
	err = o.store.UpsertQuarantine(storage.QuarantineEntry{
		OrgID:        orgID,
		SourceURL:    cand.CanonicalURL,
		Reason:       reason,
		Detail:       detail,
		MetadataJSON: string(meta),
	})
	if err != nil {
		o.logger.Error("ingest: writing quarantine entry failed",
			"url", cand.CanonicalURL, "reason", reason, "error", err)
	}
}

// hostAllowed accepts exact allowlist matches and strict subdomains. A host
// that merely contains an allowlisted domain as a substring is rejected.
func hostAllowed(host string, allowed map[string]bool) bool {
	if allowed[host] {
		return true
	}
	for domain := range allowed {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
