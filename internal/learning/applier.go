package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/juridex/juridex/internal/storage"
)

// applierBatchSize bounds one apply pass. Leftover ready jobs wait for the
// next invocation.
const applierBatchSize = 50

// ApplyStore is the slice of storage the applier needs.
type ApplyStore interface {
	ListJobsByStatus(status string, limit int) ([]storage.LearningJob, error)
	InsertPolicyVersion(orgID, changesJSON, notes string) (storage.PolicyVersion, error)
	BindJobsToVersion(jobIDs []string, versionID string) error
	ApprovePolicyVersion(id, approver string) error
	ListJobsByVersion(versionID string) ([]storage.LearningJob, error)
	UpdateLearningJobStatus(id, status, errMsg string) error
}

// Applier folds ready jobs into per-org draft policy versions.
type Applier struct {
	store  ApplyStore
	logger *slog.Logger
}

// NewApplier builds an Applier.
func NewApplier(store ApplyStore) *Applier {
	return &Applier{store: store, logger: slog.Default()}
}

// Apply batches ready jobs oldest-first, groups them by org, and creates one
// draft policy version per group, moving the group's jobs to needs_approval.
// A failed version insert skips that org only; its jobs stay ready for the
// next run. Within one org the move is all-or-nothing. Returns the number of
// versions created.
func (a *Applier) Apply(ctx context.Context) (int, error) {
	jobs, err := a.store.ListJobsByStatus(storage.JobReady, applierBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing ready jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	// Group by org, preserving oldest-first order within and across groups.
	var orgs []string
	grouped := make(map[string][]storage.LearningJob)
	for _, j := range jobs {
		if _, ok := grouped[j.OrgID]; !ok {
			orgs = append(orgs, j.OrgID)
		}
		grouped[j.OrgID] = append(grouped[j.OrgID], j)
	}

	created := 0
	for _, org := range orgs {
		group := grouped[org]
		changes := make([]map[string]any, len(group))
		jobIDs := make([]string, len(group))
		for i, j := range group {
			changes[i] = map[string]any{"job_type": j.Type, "payload": j.PayloadJSON}
			jobIDs[i] = j.ID
		}
		changesJSON, err := json.Marshal(changes)
		if err != nil {
			a.logger.Error("marshaling change set failed, skipping org", "org", org, "error", err)
			continue
		}

		version, err := a.store.InsertPolicyVersion(org, string(changesJSON),
			fmt.Sprintf("drafted from %d learning jobs", len(group)))
		if err != nil {
			a.logger.Error("creating policy version failed, skipping org", "org", org, "error", err)
			continue
		}
		if err := a.store.BindJobsToVersion(jobIDs, version.ID); err != nil {
			a.logger.Error("binding jobs to version failed, jobs remain ready",
				"org", org, "version", version.ID, "error", err)
			continue
		}
		created++
		a.logger.Info("policy version drafted", "org", org,
			"version", version.Version, "jobs", len(group))
	}
	return created, nil
}

// Approve marks a policy version approved and completes every job bound to
// it.
func (a *Applier) Approve(ctx context.Context, versionID, approver string) error {
	if err := a.store.ApprovePolicyVersion(versionID, approver); err != nil {
		return fmt.Errorf("approving version: %w", err)
	}
	jobs, err := a.store.ListJobsByVersion(versionID)
	if err != nil {
		return fmt.Errorf("listing version jobs: %w", err)
	}
	for _, j := range jobs {
		if j.Status != storage.JobNeedsApproval {
			continue
		}
		if err := a.store.UpdateLearningJobStatus(j.ID, storage.JobCompleted, ""); err != nil {
			return fmt.Errorf("completing job %s: %w", j.ID, err)
		}
	}
	return nil
}
