package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/juridex/juridex/internal/storage"
)

// JobStore is the slice of storage the processor needs.
type JobStore interface {
	ClaimNextLearningJob() (*storage.LearningJob, error)
	UpdateLearningJobStatus(id, status, errMsg string) error
	UpsertSynonym(jurisdiction, term, origin string) error
	AppendPolicyNote(orgID, note string) error
}

// TaskQueue is the scheduler surface the processor enqueues into.
type TaskQueue interface {
	EnqueueTask(taskType, orgID string, priority int, payload map[string]any, scheduledAt time.Time)
}

// Processor consumes claimed learning jobs one at a time. Claiming moves a
// job to processing; dispatch always lands it in a terminal-for-this-phase
// state, so no job is ever left processing indefinitely.
type Processor struct {
	store  JobStore
	queue  TaskQueue
	logger *slog.Logger
}

// NewProcessor builds a Processor over the given store and queue.
func NewProcessor(store JobStore, queue TaskQueue) *Processor {
	return &Processor{store: store, queue: queue, logger: slog.Default()}
}

// Run drains the queue on a fixed interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				claimed, err := p.RunOnce(ctx)
				if err != nil {
					p.logger.Error("processing job failed", "error", err)
					break
				}
				if !claimed {
					break
				}
			}
		}
	}
}

// RunOnce claims and dispatches at most one pending job. Returns false when
// the queue is empty.
func (p *Processor) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.store.ClaimNextLearningJob()
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	status, dispatchErr := p.dispatch(ctx, job)
	errMsg := ""
	if dispatchErr != nil {
		status = storage.JobFailed
		errMsg = dispatchErr.Error()
	}
	if err := p.store.UpdateLearningJobStatus(job.ID, status, errMsg); err != nil {
		return true, fmt.Errorf("finalizing job %s: %w", job.ID, err)
	}
	p.logger.Info("job processed", "job", job.ID, "type", job.Type, "status", status)
	return true, nil
}

// dispatch performs the job's side effect and returns the terminal status.
// Jobs whose output should be folded into a policy version come back ready;
// trivial or unrecognized jobs complete directly.
func (p *Processor) dispatch(_ context.Context, job *storage.LearningJob) (string, error) {
	switch job.Type {
	case storage.JobTypeIndexing:
		if job.OrgID == "" {
			return "", fmt.Errorf("missing_org")
		}
		p.queue.EnqueueTask("indexing_review", job.OrgID, 5, decodePayload(job.PayloadJSON), time.Time{})
		return storage.JobReady, nil

	case storage.JobTypeQueryRewrite:
		return p.dispatchQueryRewrite(job)

	case storage.JobTypeGuardrailTune, storage.JobTypeCanonicalizer:
		if job.OrgID == "" {
			return "", fmt.Errorf("missing_org")
		}
		p.queue.EnqueueTask("guardrail_review", job.OrgID, 8, decodePayload(job.PayloadJSON), time.Time{})
		note := fmt.Sprintf("guardrail tune requested by job %s (%s)", job.ID, job.Type)
		if err := p.store.AppendPolicyNote(job.OrgID, note); err != nil {
			p.logger.Warn("appending policy note failed", "job", job.ID, "error", err)
		}
		return storage.JobReady, nil

	case storage.JobTypeReviewFeedback:
		if job.OrgID == "" {
			return "", fmt.Errorf("missing_org")
		}
		p.queue.EnqueueTask("review_feedback", job.OrgID, 3, decodePayload(job.PayloadJSON), time.Time{})
		return storage.JobReady, nil

	default:
		// Forward-compatible default: unknown types complete as a no-op.
		p.logger.Warn("unrecognized job type", "job", job.ID, "type", job.Type)
		return storage.JobCompleted, nil
	}
}

func (p *Processor) dispatchQueryRewrite(job *storage.LearningJob) (string, error) {
	if job.PayloadJSON == "" {
		return "", fmt.Errorf("payload_invalid")
	}
	var payload struct {
		Question     string `json:"question"`
		Jurisdiction string `json:"jurisdiction"`
	}
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("payload_invalid")
	}
	if payload.Question == "" {
		return "", fmt.Errorf("question_missing")
	}
	jurisdiction := payload.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = "global"
	}

	terms := Tokenize(payload.Question)
	if len(terms) == 0 {
		return storage.JobCompleted, nil
	}
	for _, term := range terms {
		if err := p.store.UpsertSynonym(jurisdiction, term, job.ID); err != nil {
			return "", fmt.Errorf("upserting synonym %q: %w", term, err)
		}
	}
	return storage.JobReady, nil
}

func decodePayload(payloadJSON string) map[string]any {
	if payloadJSON == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &m); err != nil {
		return nil
	}
	return m
}
