// Package scheduler is a thin, advisory queue layer over the shared store.
// Insert and update failures are logged and swallowed: callers needing
// stronger guarantees check the store directly.
package scheduler

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/juridex/juridex/internal/storage"
)

// TaskStore is the slice of storage the scheduler needs.
type TaskStore interface {
	InsertTask(t storage.Task) error
	InsertIngestionRun(orgID, adapter string) (string, error)
	FinishIngestionRun(id, status string, inserted, skipped, failures int, errMsg string) error
}

// Scheduler enqueues typed tasks and brackets ingestion runs.
type Scheduler struct {
	store  TaskStore
	logger *slog.Logger
}

// New builds a Scheduler over the given store.
func New(store TaskStore) *Scheduler {
	return &Scheduler{store: store, logger: slog.Default()}
}

// EnqueueTask inserts one scheduled task. payload is marshaled to JSON; a
// zero scheduledAt means "now". Failures are logged, never returned.
func (s *Scheduler) EnqueueTask(taskType, orgID string, priority int, payload map[string]any, scheduledAt time.Time) {
	var payloadJSON string
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("scheduler: marshaling task payload failed", "type", taskType, "error", err)
		} else {
			payloadJSON = string(raw)
		}
	}
	err := s.store.InsertTask(storage.Task{
		OrgID:       orgID,
		Type:        taskType,
		Priority:    priority,
		PayloadJSON: payloadJSON,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		s.logger.Warn("scheduler: enqueue failed", "type", taskType, "org", orgID, "error", err)
	}
}

// StartIngestionRun opens a run row. Returns "" when bookkeeping fails; the
// ingestion itself proceeds regardless.
func (s *Scheduler) StartIngestionRun(orgID, adapter string) string {
	id, err := s.store.InsertIngestionRun(orgID, adapter)
	if err != nil {
		s.logger.Warn("scheduler: starting run row failed", "adapter", adapter, "error", err)
		return ""
	}
	return id
}

// CompleteIngestionRun closes a run row with its final counters.
func (s *Scheduler) CompleteIngestionRun(runID, status string, inserted, skipped, failures int, errMsg string) {
	if runID == "" {
		return
	}
	if err := s.store.FinishIngestionRun(runID, status, inserted, skipped, failures, errMsg); err != nil {
		s.logger.Warn("scheduler: completing run row failed", "run", runID, "error", err)
	}
}
