// Package adapters implements source-specific fetch strategies for
// government and court feeds. Adapters never fail: on upstream errors they
// return whatever candidates they could gather, usually an empty list.
package adapters

import (
	"context"
	"strings"
	"time"
)

// NormalizedDocument is the ephemeral candidate shape every adapter yields.
type NormalizedDocument struct {
	Title             string
	Jurisdiction      string
	SourceType        string // "statute", "case", "gazette", "regulation"
	Publisher         string
	CanonicalURL      string
	DownloadURL       string
	BindingLanguage   string
	Consolidated      bool
	AdoptedAt         *time.Time
	EffectiveAt       *time.Time
	VersionLabel      string
	LanguageNote      string
	MimeType          string
	ETag              string
	LastModified      string
	ELI               string
	ECLI              string
	ResidencyOverride string
}

// Adapter is one named per-jurisdiction fetch strategy.
type Adapter interface {
	Name() string
	Jurisdiction() string
	// FetchDocuments never returns an error: adapters degrade to an empty
	// candidate list when the upstream is unreachable.
	FetchDocuments(ctx context.Context) []NormalizedDocument
}

// Dedup removes candidates whose canonical URL repeats within the batch,
// case-insensitively. The first occurrence wins.
func Dedup(docs []NormalizedDocument) []NormalizedDocument {
	seen := make(map[string]bool, len(docs))
	out := docs[:0]
	for _, d := range docs {
		key := strings.ToLower(d.CanonicalURL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
