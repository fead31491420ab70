// Package api exposes a thin inspection and trigger surface over the
// pipeline. No business logic lives here.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/juridex/juridex/internal/ingest"
	"github.com/juridex/juridex/internal/learning"
	"github.com/juridex/juridex/internal/storage"
)

// Runner triggers one ingestion run by adapter name.
type Runner interface {
	RunAdapter(ctx context.Context, adapterName, orgID string) (ingest.Summary, error)
}

// ReadStore is the slice of storage the API reads from.
type ReadStore interface {
	ListQuarantine(f storage.QuarantineFilter) ([]storage.QuarantineEntry, error)
	ListIngestionRuns(orgID string, limit int) ([]storage.IngestionRun, error)
	LatestMetric(orgID, name string) (storage.LearningMetric, error)
}

// Handler serves the HTTP surface.
type Handler struct {
	store  ReadStore
	runner Runner
	orgID  string
	logger *slog.Logger
}

// NewHandler builds the router.
func NewHandler(store ReadStore, runner Runner, orgID string) http.Handler {
	h := &Handler{store: store, runner: runner, orgID: orgID, logger: slog.Default()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/runs/{adapter}", h.triggerRun)
	r.Get("/runs", h.listRuns)
	r.Get("/quarantine", h.listQuarantine)
	r.Get("/metrics/latest", h.latestMetrics)
	return r
}

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	adapterName := chi.URLParam(r, "adapter")
	sum, err := h.runner.RunAdapter(r.Context(), adapterName, h.orgID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"adapter":  adapterName,
		"inserted": sum.Inserted,
		"skipped":  sum.Skipped,
		"failures": sum.Failures,
	})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.store.ListIngestionRuns(h.orgID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) listQuarantine(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListQuarantine(storage.QuarantineFilter{
		OrgID:  h.orgID,
		Reason: r.URL.Query().Get("reason"),
		Limit:  200,
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) latestMetrics(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	for _, name := range []string{learning.MetricAllowlistedRatio, learning.MetricDeadLinkRate} {
		m, err := h.store.LatestMetric(h.orgID, name)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		out[name] = map[string]any{
			"value":       m.Value,
			"window":      m.Window,
			"computed_at": m.ComputedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("api: encoding response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
