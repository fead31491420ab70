package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juridex/juridex/internal/scheduler"
	"github.com/juridex/juridex/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRunWithCitations(t *testing.T, store *storage.Store, orgID, runID string, at time.Time, allowlisted, rejected int) {
	t.Helper()
	require.NoError(t, store.InsertAgentRun(storage.AgentRun{
		ID: runID, OrgID: orgID, Status: "succeeded", Question: "q", OccurredAt: at,
	}))
	for i := 0; i < allowlisted; i++ {
		require.NoError(t, store.InsertCitation(storage.Citation{
			RunID: runID, OrgID: orgID, SourceURL: "https://eur-lex.europa.eu/x", Allowlisted: true, CheckedAt: at,
		}))
	}
	for i := 0; i < rejected; i++ {
		require.NoError(t, store.InsertCitation(storage.Citation{
			RunID: runID, OrgID: orgID, SourceURL: "https://blog.example.com/x", Allowlisted: false, CheckedAt: at,
		}))
	}
}

func TestCollectorHarvestsWindowOnly(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	old := now.Add(-time.Hour)

	seedRunWithCitations(t, store, "org-1", "run-new", now.Add(-time.Minute), 2, 0)
	seedRunWithCitations(t, store, "org-1", "run-old", old, 3, 1)
	require.NoError(t, store.InsertTelemetryEvent(storage.TelemetryEvent{
		OrgID: "org-1", RunID: "run-new", Tool: "search", Outcome: "ok", DurationMs: 120, OccurredAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.InsertReviewAction(storage.ReviewAction{
		OrgID: "org-1", RunID: "run-new", Reviewer: "ana", Decision: "approved", OccurredAt: now.Add(-time.Minute),
	}))

	written, err := NewCollector(store).Collect(context.Background(), "org-1")
	require.NoError(t, err)
	// 1 run + 2 citations + 1 telemetry + 1 review inside the window.
	assert.Equal(t, 5, written)

	total, err := store.CountSignals("org-1", "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	runs, err := store.CountSignals("org-1", "agent_run")
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestDiagnoserDefaultsOnEmptyWindow(t *testing.T) {
	store := newTestStore(t)

	diag, err := NewDiagnoser(store).Diagnose(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, diag.AllowlistedRatio)
	assert.Equal(t, 0.0, diag.DeadLinkRate)
	assert.Empty(t, diag.JobsCreated)

	m, err := store.LatestMetric("org-1", MetricAllowlistedRatio)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Value)
}

func TestDiagnoserEmitsJobsOnBreach(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	seedRunWithCitations(t, store, "org-1", "run-1", now, 8, 2)

	diag, err := NewDiagnoser(store).Diagnose(context.Background(), "org-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.80, diag.AllowlistedRatio, 1e-9)
	assert.InDelta(t, 0.20, diag.DeadLinkRate, 1e-9)
	// Both thresholds breached: guardrail tune and canonicalizer update.
	require.Len(t, diag.JobsCreated, 2)

	types := map[string]bool{}
	for _, id := range diag.JobsCreated {
		job, err := store.GetLearningJob(id)
		require.NoError(t, err)
		assert.Equal(t, storage.JobPending, job.Status)
		types[job.Type] = true
	}
	assert.True(t, types[storage.JobTypeGuardrailTune])
	assert.True(t, types[storage.JobTypeCanonicalizer])
}

func TestProcessorQueryRewriteExtractsSynonyms(t *testing.T) {
	store := newTestStore(t)
	jobID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID:       "org-1",
		Type:        storage.JobTypeQueryRewrite,
		PayloadJSON: `{"question":"Quelle est la procédure de résiliation anticipée?","jurisdiction":"eu"}`,
	})
	require.NoError(t, err)

	p := NewProcessor(store, scheduler.New(store))
	claimed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	job, err := store.GetLearningJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobReady, job.Status)

	synonyms, err := store.ListSynonyms("eu")
	require.NoError(t, err)
	terms := map[string]bool{}
	for _, s := range synonyms {
		terms[s.Term] = true
		assert.Equal(t, jobID, s.Origin)
	}
	assert.True(t, terms["procedure"], "diacritics stripped from procédure")
	assert.True(t, terms["resiliation"])
	assert.True(t, terms["anticipee"])
	assert.False(t, terms["est"], "short tokens filtered")
	assert.False(t, terms["la"])
}

func TestProcessorQueryRewriteFailureModes(t *testing.T) {
	store := newTestStore(t)
	p := NewProcessor(store, scheduler.New(store))

	emptyID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: storage.JobTypeQueryRewrite,
	})
	require.NoError(t, err)
	noQuestionID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: storage.JobTypeQueryRewrite, PayloadJSON: `{"jurisdiction":"eu"}`,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		claimed, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		require.True(t, claimed)
	}

	empty, err := store.GetLearningJob(emptyID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobFailed, empty.Status)
	assert.Equal(t, "payload_invalid", empty.Error)

	noQuestion, err := store.GetLearningJob(noQuestionID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobFailed, noQuestion.Status)
	assert.Equal(t, "question_missing", noQuestion.Error)
}

func TestProcessorIndexingTicket(t *testing.T) {
	store := newTestStore(t)
	p := NewProcessor(store, scheduler.New(store))

	missingOrgID, err := store.InsertLearningJob(storage.LearningJob{
		Type: storage.JobTypeIndexing, PayloadJSON: `{"source_id":"s-1"}`,
	})
	require.NoError(t, err)
	okID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: storage.JobTypeIndexing, PayloadJSON: `{"source_id":"s-2"}`,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		claimed, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		require.True(t, claimed)
	}

	missing, err := store.GetLearningJob(missingOrgID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobFailed, missing.Status)
	assert.Equal(t, "missing_org", missing.Error)

	ok, err := store.GetLearningJob(okID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobReady, ok.Status)

	tasks, err := store.ListTasks("org-1", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "indexing_review", tasks[0].Type)
}

func TestProcessorUnknownTypeCompletes(t *testing.T) {
	store := newTestStore(t)
	p := NewProcessor(store, scheduler.New(store))

	jobID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: "future_experiment",
	})
	require.NoError(t, err)

	claimed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	job, err := store.GetLearningJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobCompleted, job.Status)
	assert.Empty(t, job.Error)
}

func TestProcessorDrainsQueue(t *testing.T) {
	store := newTestStore(t)
	p := NewProcessor(store, scheduler.New(store))

	claimed, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed, "empty queue claims nothing")
}

func TestApplierGroupsByOrg(t *testing.T) {
	store := newTestStore(t)
	readyJob := func(org string) string {
		id, err := store.InsertLearningJob(storage.LearningJob{
			OrgID: org, Type: storage.JobTypeGuardrailTune, Status: storage.JobReady,
		})
		require.NoError(t, err)
		return id
	}
	a1 := readyJob("org-a")
	a2 := readyJob("org-a")
	b1 := readyJob("org-b")

	created, err := NewApplier(store).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	jobA1, err := store.GetLearningJob(a1)
	require.NoError(t, err)
	jobA2, err := store.GetLearningJob(a2)
	require.NoError(t, err)
	jobB1, err := store.GetLearningJob(b1)
	require.NoError(t, err)

	assert.Equal(t, storage.JobNeedsApproval, jobA1.Status)
	assert.Equal(t, storage.JobNeedsApproval, jobA2.Status)
	assert.Equal(t, storage.JobNeedsApproval, jobB1.Status)
	assert.Equal(t, jobA1.PolicyVersionID, jobA2.PolicyVersionID, "one version per org group")
	assert.NotEqual(t, jobA1.PolicyVersionID, jobB1.PolicyVersionID)

	version, err := store.GetPolicyVersion(jobA1.PolicyVersionID)
	require.NoError(t, err)
	assert.Equal(t, storage.PolicyDraft, version.Status)
	assert.Equal(t, 1, version.Version)
	assert.Contains(t, version.ChangesJSON, storage.JobTypeGuardrailTune)

	// No ready jobs left; a second run is a no-op.
	created, err = NewApplier(store).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestApproveCompletesBoundJobs(t *testing.T) {
	store := newTestStore(t)
	jobID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: storage.JobTypeGuardrailTune, Status: storage.JobReady,
	})
	require.NoError(t, err)

	applier := NewApplier(store)
	_, err = applier.Apply(context.Background())
	require.NoError(t, err)

	job, err := store.GetLearningJob(jobID)
	require.NoError(t, err)
	require.NoError(t, applier.Approve(context.Background(), job.PolicyVersionID, "ana"))

	job, err = store.GetLearningJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobCompleted, job.Status)

	version, err := store.GetPolicyVersion(job.PolicyVersionID)
	require.NoError(t, err)
	assert.Equal(t, storage.PolicyApproved, version.Status)
	assert.Equal(t, "ana", version.ApprovedBy)
	require.NotNil(t, version.ApprovedAt)
}

func TestGateRollsBackApprovedVersion(t *testing.T) {
	store := newTestStore(t)

	// Three versions; only the latest is approved.
	var versionIDs []string
	for i := 0; i < 3; i++ {
		v, err := store.InsertPolicyVersion("org-1", "[]", "")
		require.NoError(t, err)
		versionIDs = append(versionIDs, v.ID)
	}
	require.NoError(t, store.ApprovePolicyVersion(versionIDs[2], "ana"))

	jobID, err := store.InsertLearningJob(storage.LearningJob{
		OrgID: "org-1", Type: storage.JobTypeGuardrailTune, Status: storage.JobNeedsApproval,
		PolicyVersionID: versionIDs[2],
	})
	require.NoError(t, err)

	require.NoError(t, store.InsertMetric(storage.LearningMetric{
		OrgID: "org-1", Name: MetricAllowlistedRatio, Value: 0.80, Window: "last_200_runs",
	}))

	gate := NewGate(store, nil)
	rolledBack, err := gate.Evaluate(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, rolledBack)

	version, err := store.GetPolicyVersion(versionIDs[2])
	require.NoError(t, err)
	assert.Equal(t, storage.PolicyRolledBack, version.Status)
	assert.Contains(t, version.Notes, "allowlisted_precision_regression")
	assert.Empty(t, version.ApprovedBy)
	assert.Nil(t, version.ApprovedAt)

	job, err := store.GetLearningJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobRolledBack, job.Status)

	// Idempotent: no approved version remains, so a re-run is a no-op.
	rolledBack, err = gate.Evaluate(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, rolledBack)
}

func TestGateNoBreachNoRollback(t *testing.T) {
	store := newTestStore(t)
	v, err := store.InsertPolicyVersion("org-1", "[]", "")
	require.NoError(t, err)
	require.NoError(t, store.ApprovePolicyVersion(v.ID, "ana"))
	require.NoError(t, store.InsertMetric(storage.LearningMetric{
		OrgID: "org-1", Name: MetricAllowlistedRatio, Value: 0.99, Window: "last_200_runs",
	}))

	rolledBack, err := NewGate(store, nil).Evaluate(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, rolledBack)

	got, err := store.GetPolicyVersion(v.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.PolicyApproved, got.Status)
}

func TestGateMissingMetricsDefaultHealthy(t *testing.T) {
	store := newTestStore(t)
	v, err := store.InsertPolicyVersion("org-1", "[]", "")
	require.NoError(t, err)
	require.NoError(t, store.ApprovePolicyVersion(v.ID, "ana"))

	rolledBack, err := NewGate(store, nil).Evaluate(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, rolledBack, "no metrics on record must not trip the breaker")
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Quelle est la procédure de résiliation anticipée?", []string{"quelle", "procedure", "resiliation", "anticipee"}},
		{"What is GDPR?", nil},
		{"", nil},
		{"données données DONNÉES", []string{"donnees"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Tokenize(tc.in), "input %q", tc.in)
	}
}
