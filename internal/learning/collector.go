// Package learning implements the feedback loop over agent activity: signal
// collection, diagnosis, job processing, policy application, and the
// evaluation gate. The phases share no in-memory state; all coordination goes
// through the store, so each phase can run as an independent scheduled
// invocation.
package learning

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/juridex/juridex/internal/storage"
)

// defaultWindow bounds one collection pass. Windows are time-bounded and
// scheduled back to back, so the collector does not deduplicate.
const defaultWindow = 10 * time.Minute

// SignalStore is the slice of storage the collector needs.
type SignalStore interface {
	ListAgentRunsSince(orgID string, since time.Time) ([]storage.AgentRun, error)
	ListCitationsSince(orgID string, since time.Time) ([]storage.Citation, error)
	ListTelemetrySince(orgID string, since time.Time) ([]storage.TelemetryEvent, error)
	ListReviewActionsSince(orgID string, since time.Time) ([]storage.ReviewAction, error)
	InsertLearningSignal(sig storage.LearningSignal) error
}

// Collector harvests recent event streams into the unified signal log.
type Collector struct {
	store  SignalStore
	window time.Duration
	logger *slog.Logger
}

// NewCollector builds a Collector with the default lookback window.
func NewCollector(store SignalStore) *Collector {
	return &Collector{store: store, window: defaultWindow, logger: slog.Default()}
}

// Collect harvests all four event streams for one org and appends one signal
// per event. Returns the number of signals written.
func (c *Collector) Collect(ctx context.Context, orgID string) (int, error) {
	since := time.Now().Add(-c.window)
	written := 0

	runs, err := c.store.ListAgentRunsSince(orgID, since)
	if err != nil {
		return written, err
	}
	for _, r := range runs {
		sig := storage.LearningSignal{
			OrgID:       orgID,
			RunID:       r.ID,
			SignalType:  "agent_run",
			Kind:        r.Status,
			PayloadJSON: marshalPayload(map[string]any{"question": r.Question}),
			ObservedAt:  r.OccurredAt,
		}
		if err := c.store.InsertLearningSignal(sig); err != nil {
			return written, err
		}
		written++
	}

	citations, err := c.store.ListCitationsSince(orgID, since)
	if err != nil {
		return written, err
	}
	for _, cit := range citations {
		kind := "allowlisted"
		if !cit.Allowlisted {
			kind = "not_allowlisted"
		}
		sig := storage.LearningSignal{
			OrgID:       orgID,
			RunID:       cit.RunID,
			SignalType:  "citation_check",
			Kind:        kind,
			PayloadJSON: marshalPayload(map[string]any{"source_url": cit.SourceURL}),
			ObservedAt:  cit.CheckedAt,
		}
		if err := c.store.InsertLearningSignal(sig); err != nil {
			return written, err
		}
		written++
	}

	telemetry, err := c.store.ListTelemetrySince(orgID, since)
	if err != nil {
		return written, err
	}
	for _, e := range telemetry {
		sig := storage.LearningSignal{
			OrgID:       orgID,
			RunID:       e.RunID,
			SignalType:  "tool_telemetry",
			Kind:        e.Outcome,
			PayloadJSON: marshalPayload(map[string]any{"tool": e.Tool, "duration_ms": e.DurationMs}),
			ObservedAt:  e.OccurredAt,
		}
		if err := c.store.InsertLearningSignal(sig); err != nil {
			return written, err
		}
		written++
	}

	reviews, err := c.store.ListReviewActionsSince(orgID, since)
	if err != nil {
		return written, err
	}
	for _, a := range reviews {
		sig := storage.LearningSignal{
			OrgID:       orgID,
			RunID:       a.RunID,
			SignalType:  "review_action",
			Kind:        a.Decision,
			PayloadJSON: marshalPayload(map[string]any{"reviewer": a.Reviewer, "notes": a.Notes}),
			ObservedAt:  a.OccurredAt,
		}
		if err := c.store.InsertLearningSignal(sig); err != nil {
			return written, err
		}
		written++
	}

	c.logger.Info("signal collection finished", "org", orgID, "signals", written)
	return written, nil
}

func marshalPayload(m map[string]any) string {
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
