package storage

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSource(orgID, url string) Source {
	return Source{
		OrgID:        orgID,
		Jurisdiction: "eu",
		SourceType:   "statute",
		Title:        "GDPR",
		CanonicalURL: url,
		ContentHash:  "abc",
		LinkStatus:   "ok",
	}
}

func TestUpsertSourceKeepsWinningID(t *testing.T) {
	store := newTestStore(t)
	url := "https://eur-lex.europa.eu/eli/reg/2016/679/oj"

	id1, err := store.UpsertSource(sampleSource("org-1", url))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	updated := sampleSource("org-1", url)
	updated.ContentHash = "def"
	updated.Title = "GDPR (consolidated)"
	id2, err := store.UpsertSource(updated)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("conflicting upsert changed id: %s != %s", id1, id2)
	}

	src, err := store.GetSourceByURL("org-1", url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if src.ContentHash != "def" || src.Title != "GDPR (consolidated)" {
		t.Errorf("update not applied: %+v", src)
	}

	if n, err := store.CountSources("org-1"); err != nil || n != 1 {
		t.Errorf("sources = %d (%v), want 1", n, err)
	}
}

func TestUpsertSourceScopedByOrg(t *testing.T) {
	store := newTestStore(t)
	url := "https://eur-lex.europa.eu/eli/reg/2016/679/oj"

	id1, err := store.UpsertSource(sampleSource("org-a", url))
	if err != nil {
		t.Fatalf("org-a upsert: %v", err)
	}
	id2, err := store.UpsertSource(sampleSource("org-b", url))
	if err != nil {
		t.Fatalf("org-b upsert: %v", err)
	}
	if id1 == id2 {
		t.Error("same URL in different orgs must be distinct rows")
	}
}

func TestRefreshSourceHealthTouchesOnlyBookkeeping(t *testing.T) {
	store := newTestStore(t)
	url := "https://eur-lex.europa.eu/eli/reg/2016/679/oj"
	if _, err := store.UpsertSource(sampleSource("org-1", url)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.RefreshSourceHealth("org-1", url, "ok", "", `"e2"`, "Tue, 01 Sep 2026 00:00:00 GMT", "eu"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	src, err := store.GetSourceByURL("org-1", url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if src.ContentHash != "abc" {
		t.Error("refresh must not touch content hash")
	}
	if src.ETag != `"e2"` || src.ResidencyZone != "eu" {
		t.Errorf("validators not refreshed: %+v", src)
	}

	if err := store.RefreshSourceHealth("org-1", "https://other.example/x", "ok", "", "", "", "eu"); err != ErrNotFound {
		t.Errorf("refresh of missing source = %v, want ErrNotFound", err)
	}
}

func TestQuarantineUpsertDeduplicates(t *testing.T) {
	store := newTestStore(t)
	entry := QuarantineEntry{
		OrgID:     "org-1",
		SourceURL: "https://blog.example.com/fake",
		Reason:    QuarantineNotAllowlisted,
		Detail:    "first",
	}
	if err := store.UpsertQuarantine(entry); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	entry.Detail = "second"
	if err := store.UpsertQuarantine(entry); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	entries, err := store.ListQuarantine(QuarantineFilter{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Detail != "second" {
		t.Errorf("detail = %q, want refreshed value", entries[0].Detail)
	}

	// A different reason for the same URL is a separate row.
	entry.Reason = QuarantineIngestionFailure
	if err := store.UpsertQuarantine(entry); err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if n, err := store.CountQuarantine("org-1"); err != nil || n != 2 {
		t.Errorf("quarantine rows = %d (%v), want 2", n, err)
	}
}

func TestDomainHealthCounters(t *testing.T) {
	store := newTestStore(t)
	if err := store.SeedAuthorityDomain("eur-lex.europa.eu", "eu"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.RecordDomainFailure("eur-lex.europa.eu", "eu"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	dom, err := store.GetAuthorityDomain("eur-lex.europa.eu", "eu")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dom.FailureCount != 3 {
		t.Errorf("failure count = %d, want 3", dom.FailureCount)
	}
	if dom.LastFailureAt == nil {
		t.Error("last failure timestamp not set")
	}

	if err := store.RecordDomainSuccess("eur-lex.europa.eu", "eu"); err != nil {
		t.Fatalf("success: %v", err)
	}
	dom, err = store.GetAuthorityDomain("eur-lex.europa.eu", "eu")
	if err != nil {
		t.Fatalf("get after success: %v", err)
	}
	if dom.FailureCount != 0 {
		t.Errorf("failure count after success = %d, want 0", dom.FailureCount)
	}
	if dom.LastSuccessAt == nil {
		t.Error("last success timestamp not set")
	}
}

func TestClaimNextLearningJob(t *testing.T) {
	store := newTestStore(t)

	job, err := store.ClaimNextLearningJob()
	if err != nil {
		t.Fatalf("claim on empty queue: %v", err)
	}
	if job != nil {
		t.Fatalf("claimed %+v from empty queue", job)
	}

	id, err := store.InsertLearningJob(LearningJob{OrgID: "org-1", Type: JobTypeIndexing})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	job, err = store.ClaimNextLearningJob()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("claimed %+v, want job %s", job, id)
	}
	if job.Status != JobProcessing {
		t.Errorf("status = %q, want processing", job.Status)
	}

	// The claimed job is no longer pending.
	job, err = store.ClaimNextLearningJob()
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if job != nil {
		t.Errorf("double-claimed job %+v", job)
	}
}

func TestPolicyVersionMonotonicPerOrg(t *testing.T) {
	store := newTestStore(t)

	for want := 1; want <= 3; want++ {
		v, err := store.InsertPolicyVersion("org-a", "[]", "")
		if err != nil {
			t.Fatalf("insert %d: %v", want, err)
		}
		if v.Version != want {
			t.Errorf("org-a version = %d, want %d", v.Version, want)
		}
	}

	v, err := store.InsertPolicyVersion("org-b", "[]", "")
	if err != nil {
		t.Fatalf("org-b insert: %v", err)
	}
	if v.Version != 1 {
		t.Errorf("org-b version = %d, want independent counter starting at 1", v.Version)
	}
}

func TestBindJobsToVersionIsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	id, err := store.InsertLearningJob(LearningJob{OrgID: "org-1", Type: JobTypeGuardrailTune, Status: JobReady})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	v, err := store.InsertPolicyVersion("org-1", "[]", "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if err := store.BindJobsToVersion([]string{id, "no-such-job"}, v.ID); err == nil {
		t.Fatal("binding with a missing job id must fail")
	}
	job, err := store.GetLearningJob(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != JobReady || job.PolicyVersionID != "" {
		t.Errorf("partial bind leaked through: %+v", job)
	}

	if err := store.BindJobsToVersion([]string{id}, v.ID); err != nil {
		t.Fatalf("bind: %v", err)
	}
	job, err = store.GetLearningJob(id)
	if err != nil {
		t.Fatalf("get after bind: %v", err)
	}
	if job.Status != JobNeedsApproval || job.PolicyVersionID != v.ID {
		t.Errorf("bind not applied: %+v", job)
	}
}

func TestAppendPolicyNote(t *testing.T) {
	store := newTestStore(t)

	// No draft version: silently a no-op.
	if err := store.AppendPolicyNote("org-1", "orphan note"); err != nil {
		t.Fatalf("append without version: %v", err)
	}

	v, err := store.InsertPolicyVersion("org-1", "[]", "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if err := store.AppendPolicyNote("org-1", "first"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendPolicyNote("org-1", "second"); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.GetPolicyVersion(v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Notes != "first\nsecond" {
		t.Errorf("notes = %q, want newline-joined audit trail", got.Notes)
	}
}

func TestLatestMetricPicksNewest(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i, value := range []float64{0.5, 0.7, 0.9} {
		err := store.InsertMetric(LearningMetric{
			OrgID: "org-1", Name: "citations_allowlisted_ratio", Value: value,
			Window: "last_200_runs", ComputedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	m, err := store.LatestMetric("org-1", "citations_allowlisted_ratio")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if m.Value != 0.9 {
		t.Errorf("latest value = %v, want 0.9", m.Value)
	}

	if _, err := store.LatestMetric("org-1", "unknown_metric"); err != ErrNotFound {
		t.Errorf("missing metric = %v, want ErrNotFound", err)
	}
}

func TestUpsertSynonymRefreshesOrigin(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertSynonym("eu", "resiliation", "job-1"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.UpsertSynonym("eu", "resiliation", "job-2"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	synonyms, err := store.ListSynonyms("eu")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(synonyms) != 1 {
		t.Fatalf("synonyms = %d, want 1", len(synonyms))
	}
	if synonyms[0].Origin != "job-2" {
		t.Errorf("origin = %q, want job-2", synonyms[0].Origin)
	}
}

func TestUpsertCaseTreatmentRefreshesVerdict(t *testing.T) {
	store := newTestStore(t)
	edge := CaseTreatment{
		OrgID: "org-1", CitingSourceID: "src-a", CitedSourceID: "src-b",
		Treatment: "affirmed", Weight: 0.6,
	}
	if err := store.UpsertCaseTreatment(edge); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	edge.Treatment = "overturned"
	edge.Weight = 1.0
	if err := store.UpsertCaseTreatment(edge); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	edges, err := store.ListTreatmentsForSource("src-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(edges))
	}
	if edges[0].Treatment != "overturned" || edges[0].Weight != 1.0 {
		t.Errorf("verdict not refreshed: %+v", edges[0])
	}
}

func TestIngestionRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	id, err := store.InsertIngestionRun("org-1", "eu-feed")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	runs, err := store.ListIngestionRuns("org-1", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list: %v %+v", err, runs)
	}
	if runs[0].Status != "running" || runs[0].FinishedAt != nil {
		t.Errorf("open run: %+v", runs[0])
	}

	if err := store.FinishIngestionRun(id, "completed", 3, 2, 0, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	runs, err = store.ListIngestionRuns("org-1", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list after finish: %v %+v", err, runs)
	}
	r := runs[0]
	if r.Status != "completed" || r.Inserted != 3 || r.Skipped != 2 || r.FinishedAt == nil {
		t.Errorf("closed run: %+v", r)
	}
}
