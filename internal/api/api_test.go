package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/juridex/juridex/internal/ingest"
	"github.com/juridex/juridex/internal/learning"
	"github.com/juridex/juridex/internal/storage"
)

type fakeStore struct {
	quarantine []storage.QuarantineEntry
	runs       []storage.IngestionRun
	metrics    map[string]storage.LearningMetric
}

func (f *fakeStore) ListQuarantine(storage.QuarantineFilter) ([]storage.QuarantineEntry, error) {
	return f.quarantine, nil
}

func (f *fakeStore) ListIngestionRuns(string, int) ([]storage.IngestionRun, error) {
	return f.runs, nil
}

func (f *fakeStore) LatestMetric(_, name string) (storage.LearningMetric, error) {
	m, ok := f.metrics[name]
	if !ok {
		return storage.LearningMetric{}, storage.ErrNotFound
	}
	return m, nil
}

type fakeRunner struct {
	runFn func(ctx context.Context, adapterName, orgID string) (ingest.Summary, error)
}

func (f *fakeRunner) RunAdapter(ctx context.Context, adapterName, orgID string) (ingest.Summary, error) {
	return f.runFn(ctx, adapterName, orgID)
}

func TestTriggerRun(t *testing.T) {
	runner := &fakeRunner{runFn: func(_ context.Context, adapterName, orgID string) (ingest.Summary, error) {
		if adapterName != "eu-feed" || orgID != "org-1" {
			t.Errorf("adapter=%q org=%q", adapterName, orgID)
		}
		return ingest.Summary{Inserted: 2, Skipped: 1}, nil
	}}
	h := NewHandler(&fakeStore{}, runner, "org-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/eu-feed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["inserted"].(float64) != 2 || body["skipped"].(float64) != 1 {
		t.Errorf("body = %v", body)
	}
}

func TestTriggerRunUnknownAdapter(t *testing.T) {
	runner := &fakeRunner{runFn: func(context.Context, string, string) (ingest.Summary, error) {
		return ingest.Summary{}, fmt.Errorf("unknown adapter %q", "nope")
	}}
	h := NewHandler(&fakeStore{}, runner, "org-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLatestMetricsSkipsMissing(t *testing.T) {
	store := &fakeStore{metrics: map[string]storage.LearningMetric{
		learning.MetricAllowlistedRatio: {Name: learning.MetricAllowlistedRatio, Value: 0.97, Window: "last_200_runs"},
	}}
	h := NewHandler(store, &fakeRunner{}, "org-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body[learning.MetricAllowlistedRatio]["value"].(float64) != 0.97 {
		t.Errorf("body = %v", body)
	}
	if _, present := body[learning.MetricDeadLinkRate]; present {
		t.Error("missing metric must be omitted, not zero-filled")
	}
}

func TestListQuarantine(t *testing.T) {
	store := &fakeStore{quarantine: []storage.QuarantineEntry{
		{OrgID: "org-1", SourceURL: "https://blog.example.com/x", Reason: storage.QuarantineNotAllowlisted},
	}}
	h := NewHandler(store, &fakeRunner{}, "org-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quarantine", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entries []storage.QuarantineEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != storage.QuarantineNotAllowlisted {
		t.Errorf("entries = %+v", entries)
	}
}
