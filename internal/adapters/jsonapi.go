package adapters

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// apiDocument is the wire shape of one record from a JSON document API.
type apiDocument struct {
	Title           string `json:"title"`
	URL             string `json:"url"`
	DownloadURL     string `json:"download_url"`
	Type            string `json:"type"`
	Publisher       string `json:"publisher"`
	Language        string `json:"language"`
	Consolidated    bool   `json:"consolidated"`
	VersionLabel    string `json:"version"`
	MimeType        string `json:"mime_type"`
	ELI             string `json:"eli"`
	ECLI            string `json:"ecli"`
	ETag            string `json:"etag"`
	LastModified    string `json:"last_modified"`
	AdoptedAt       string `json:"adopted_at"`
	EffectiveAt     string `json:"effective_at"`
	TranslationNote string `json:"translation_note"`
}

// APIAdapter ingests a JSON document-listing API.
type APIAdapter struct {
	name         string
	jurisdiction string
	endpoint     string
	sourceType   string
	residency    string
	client       *http.Client
	logger       *slog.Logger
}

// NewAPIAdapter builds a JSON API adapter for one endpoint. sourceType is the
// default when the API omits a per-record type.
func NewAPIAdapter(name, jurisdiction, endpoint, sourceType, residency string) *APIAdapter {
	return &APIAdapter{
		name:         name,
		jurisdiction: jurisdiction,
		endpoint:     endpoint,
		sourceType:   sourceType,
		residency:    residency,
		client:       &http.Client{Timeout: 15 * time.Second},
		logger:       slog.Default(),
	}
}

func (a *APIAdapter) Name() string         { return a.name }
func (a *APIAdapter) Jurisdiction() string { return a.jurisdiction }

func (a *APIAdapter) FetchDocuments(ctx context.Context) []NormalizedDocument {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		a.logger.Warn("api adapter: building request failed", "adapter", a.name, "error", err)
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("api adapter: fetch failed", "adapter", a.name, "url", a.endpoint, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("api adapter: unexpected status", "adapter", a.name, "status", resp.Status)
		return nil
	}

	var records []apiDocument
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		a.logger.Warn("api adapter: decode failed", "adapter", a.name, "error", err)
		return nil
	}

	var docs []NormalizedDocument
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		doc := NormalizedDocument{
			Title:             rec.Title,
			Jurisdiction:      a.jurisdiction,
			SourceType:        a.sourceType,
			Publisher:         rec.Publisher,
			CanonicalURL:      rec.URL,
			DownloadURL:       rec.DownloadURL,
			BindingLanguage:   rec.Language,
			Consolidated:      rec.Consolidated,
			VersionLabel:      rec.VersionLabel,
			LanguageNote:      rec.TranslationNote,
			MimeType:          rec.MimeType,
			ETag:              rec.ETag,
			LastModified:      rec.LastModified,
			ELI:               rec.ELI,
			ECLI:              rec.ECLI,
			ResidencyOverride: a.residency,
		}
		if rec.Type != "" {
			doc.SourceType = rec.Type
		}
		if doc.DownloadURL == "" {
			doc.DownloadURL = doc.CanonicalURL
		}
		if doc.MimeType == "" {
			doc.MimeType = "text/html"
		}
		if t, err := time.Parse("2006-01-02", rec.AdoptedAt); err == nil {
			doc.AdoptedAt = &t
		}
		if t, err := time.Parse("2006-01-02", rec.EffectiveAt); err == nil {
			doc.EffectiveAt = &t
		}
		docs = append(docs, doc)
	}
	return Dedup(docs)
}
