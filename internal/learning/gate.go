package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/juridex/juridex/internal/notify"
	"github.com/juridex/juridex/internal/storage"
)

// GateStore is the slice of storage the gate needs.
type GateStore interface {
	LatestMetric(orgID, name string) (storage.LearningMetric, error)
	LatestApprovedVersion(orgID string) (storage.PolicyVersion, error)
	RollBackPolicyVersion(id, note string) error
	RollBackJobsForVersion(versionID string) (int, error)
}

// Gate is the circuit breaker: when the latest metrics breach the calibrated
// thresholds it rolls back the current approved policy version. With no
// approved version the gate is a no-op, which makes re-runs idempotent.
type Gate struct {
	store    GateStore
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewGate builds a Gate. notifier may be nil.
func NewGate(store GateStore, notifier notify.Notifier) *Gate {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Gate{store: store, notifier: notifier, logger: slog.Default()}
}

// Evaluate reads the latest metrics for one org and rolls back on breach.
// Returns true when a rollback happened.
func (g *Gate) Evaluate(ctx context.Context, orgID string) (bool, error) {
	ratio, err := g.latestValue(orgID, MetricAllowlistedRatio, 1.0)
	if err != nil {
		return false, err
	}
	deadLinks, err := g.latestValue(orgID, MetricDeadLinkRate, 0.0)
	if err != nil {
		return false, err
	}

	var reasons []string
	if ratio < allowlistedRatioFloor {
		reasons = append(reasons, "allowlisted_precision_regression")
	}
	if deadLinks > deadLinkRateCeiling {
		reasons = append(reasons, "dead_link_rate_exceeded")
	}
	if len(reasons) == 0 {
		return false, nil
	}

	version, err := g.store.LatestApprovedVersion(orgID)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finding approved version: %w", err)
	}

	note := strings.Join(reasons, ",")
	if err := g.store.RollBackPolicyVersion(version.ID, note); err != nil {
		return false, fmt.Errorf("rolling back version %d: %w", version.Version, err)
	}
	cascaded, err := g.store.RollBackJobsForVersion(version.ID)
	if err != nil {
		return true, fmt.Errorf("cascading rollback to jobs: %w", err)
	}

	g.logger.Warn("policy version rolled back", "org", orgID,
		"version", version.Version, "reasons", note, "jobs", cascaded)
	msg := fmt.Sprintf("org %s: policy version %d rolled back (%s), %d jobs cancelled",
		orgID, version.Version, note, cascaded)
	if err := g.notifier.Notify(ctx, "policy rollback", msg); err != nil {
		g.logger.Warn("rollback notification failed", "error", err)
	}
	return true, nil
}

func (g *Gate) latestValue(orgID, name string, fallback float64) (float64, error) {
	m, err := g.store.LatestMetric(orgID, name)
	if err == storage.ErrNotFound {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading metric %s: %w", name, err)
	}
	return m.Value, nil
}
