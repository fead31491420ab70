package learning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/juridex/juridex/internal/storage"
)

// Metric names written by the diagnoser and read by the evaluation gate.
const (
	MetricAllowlistedRatio = "citations_allowlisted_ratio"
	MetricDeadLinkRate     = "dead_link_rate"
)

// Calibrated invariants of the feedback loop, not configuration.
const (
	allowlistedRatioFloor = 0.95
	deadLinkRateCeiling   = 0.01
)

// diagnosisLookback is the number of recent runs joined per diagnosis pass.
const diagnosisLookback = 200

// DiagnosisStore is the slice of storage the diagnoser needs.
type DiagnosisStore interface {
	ListRecentAgentRuns(orgID string, n int) ([]storage.AgentRun, error)
	ListCitationsForRuns(runIDs []string) ([]storage.Citation, error)
	InsertMetric(m storage.LearningMetric) error
	InsertLearningJob(j storage.LearningJob) (string, error)
}

// Diagnosis is the outcome of one diagnoser pass.
type Diagnosis struct {
	AllowlistedRatio float64
	DeadLinkRate     float64
	JobsCreated      []string
}

// Diagnoser turns recent citation evidence into metrics and remediation jobs.
type Diagnoser struct {
	store  DiagnosisStore
	logger *slog.Logger
}

// NewDiagnoser builds a Diagnoser.
func NewDiagnoser(store DiagnosisStore) *Diagnoser {
	return &Diagnoser{store: store, logger: slog.Default()}
}

// Diagnose joins citations onto the most recent runs, writes both metrics,
// and emits remediation jobs on threshold breach. With zero citations in the
// window the metrics default to 1.0 and 0.0: absence of evidence is not
// evidence of failure.
func (d *Diagnoser) Diagnose(ctx context.Context, orgID string) (Diagnosis, error) {
	runs, err := d.store.ListRecentAgentRuns(orgID, diagnosisLookback)
	if err != nil {
		return Diagnosis{}, fmt.Errorf("listing recent runs: %w", err)
	}
	runIDs := make([]string, len(runs))
	for i, r := range runs {
		runIDs[i] = r.ID
	}

	citations, err := d.store.ListCitationsForRuns(runIDs)
	if err != nil {
		return Diagnosis{}, fmt.Errorf("joining citations: %w", err)
	}

	diag := Diagnosis{AllowlistedRatio: 1.0, DeadLinkRate: 0.0}
	if len(citations) > 0 {
		allowlisted := 0
		for _, c := range citations {
			if c.Allowlisted {
				allowlisted++
			}
		}
		total := float64(len(citations))
		diag.AllowlistedRatio = float64(allowlisted) / total
		diag.DeadLinkRate = float64(len(citations)-allowlisted) / total
	}

	window := fmt.Sprintf("last_%d_runs", diagnosisLookback)
	if err := d.store.InsertMetric(storage.LearningMetric{
		OrgID: orgID, Name: MetricAllowlistedRatio, Value: diag.AllowlistedRatio, Window: window,
	}); err != nil {
		return diag, fmt.Errorf("writing %s: %w", MetricAllowlistedRatio, err)
	}
	if err := d.store.InsertMetric(storage.LearningMetric{
		OrgID: orgID, Name: MetricDeadLinkRate, Value: diag.DeadLinkRate, Window: window,
	}); err != nil {
		return diag, fmt.Errorf("writing %s: %w", MetricDeadLinkRate, err)
	}

	if diag.AllowlistedRatio < allowlistedRatioFloor {
		id, err := d.emitJob(orgID, storage.JobTypeGuardrailTune, MetricAllowlistedRatio, diag.AllowlistedRatio)
		if err != nil {
			return diag, err
		}
		diag.JobsCreated = append(diag.JobsCreated, id)
	}
	if diag.DeadLinkRate > deadLinkRateCeiling {
		id, err := d.emitJob(orgID, storage.JobTypeCanonicalizer, MetricDeadLinkRate, diag.DeadLinkRate)
		if err != nil {
			return diag, err
		}
		diag.JobsCreated = append(diag.JobsCreated, id)
	}

	d.logger.Info("diagnosis finished", "org", orgID,
		"allowlisted_ratio", diag.AllowlistedRatio, "dead_link_rate", diag.DeadLinkRate,
		"jobs", len(diag.JobsCreated))
	return diag, nil
}

func (d *Diagnoser) emitJob(orgID, jobType, metric string, value float64) (string, error) {
	id, err := d.store.InsertLearningJob(storage.LearningJob{
		OrgID:       orgID,
		Type:        jobType,
		Status:      storage.JobPending,
		PayloadJSON: marshalPayload(map[string]any{"metric": metric, "value": value}),
	})
	if err != nil {
		return "", fmt.Errorf("emitting %s job: %w", jobType, err)
	}
	return id, nil
}
