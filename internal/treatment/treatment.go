// Package treatment links case-law sources by the way one decision treats
// another (affirmed, overturned, distinguished). Enrichment is best-effort:
// unmatched citation hints are dropped, never quarantined.
package treatment

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/juridex/juridex/internal/storage"
)

// CaseResolver is the slice of storage the enricher needs.
type CaseResolver interface {
	FindCaseByECLI(orgID, jurisdiction, ecli string) (storage.Source, error)
	FindCaseByTitle(orgID, jurisdiction, fragment string) (storage.Source, error)
	FindCaseByVersionLabel(orgID, jurisdiction, label string) (storage.Source, error)
	UpsertCaseTreatment(t storage.CaseTreatment) error
}

// Hint is one citation-like phrase found in a case text.
type Hint struct {
	Treatment string
	Reference string
	Weight    float64
}

// Enricher scans case text and records treatment edges.
type Enricher struct {
	store  CaseResolver
	logger *slog.Logger
}

// NewEnricher builds an Enricher over the given resolver.
func NewEnricher(store CaseResolver) *Enricher {
	return &Enricher{store: store, logger: slog.Default()}
}

// Verbs that signal a treatment, with the weight of the relationship.
var treatmentVerbs = []struct {
	pattern   *regexp.Regexp
	treatment string
	weight    float64
}{
	{regexp.MustCompile(`(?i)\b(?:overturns?|overrules?|quashes|infirme|casse)\b`), "overturned", 1.0},
	{regexp.MustCompile(`(?i)\b(?:affirms?|upholds?|confirms?|confirme)\b`), "affirmed", 0.6},
	{regexp.MustCompile(`(?i)\b(?:distinguish(?:es)?|distingue)\b`), "distinguished", 0.3},
}

// referencePattern captures the cited reference after a treatment verb: an
// ECLI token, a quoted case name, or a short capitalized phrase.
var referencePattern = regexp.MustCompile(
	`^\s*(ECLI:[A-Z]{2}:[A-Z0-9]+:\d{4}:[A-Za-z0-9.]+|"[^"]{3,120}"|[A-ZÀ-Ý][^.;,]{2,80})`)

var honorifics = regexp.MustCompile(`(?i)\b(?:mr|mrs|ms|me|dr|prof|justice|judge|m)\.?\s+`)

// ScanHints finds treatment hints in extracted case text.
func ScanHints(text string) []Hint {
	var hints []Hint
	for _, verb := range treatmentVerbs {
		for _, loc := range verb.pattern.FindAllStringIndex(text, -1) {
			rest := text[loc[1]:]
			m := referencePattern.FindStringSubmatch(rest)
			if m == nil {
				continue
			}
			ref := NormalizeReference(m[1])
			if ref == "" {
				continue
			}
			hints = append(hints, Hint{
				Treatment: verb.treatment,
				Reference: ref,
				Weight:    verb.weight,
			})
		}
	}
	return hints
}

// NormalizeReference strips honorifics, quotes, and trailing punctuation from
// a cited reference string.
func NormalizeReference(ref string) string {
	ref = strings.Trim(ref, `"`)
	ref = honorifics.ReplaceAllString(ref, "")
	ref = strings.Trim(ref, " .,;:()[]")
	return strings.Join(strings.Fields(ref), " ")
}

// Enrich resolves every hint in the citing case's text against existing case
// sources in the same jurisdiction and upserts treatment edges. Returns the
// number of edges written. Resolution order: ECLI, fuzzy title, version
// label.
func (e *Enricher) Enrich(citing storage.Source, text string) int {
	hints := ScanHints(text)
	if len(hints) == 0 {
		return 0
	}

	var decided *time.Time
	if citing.EffectiveAt != nil {
		decided = citing.EffectiveAt
	} else if citing.AdoptedAt != nil {
		decided = citing.AdoptedAt
	}

	written := 0
	for _, hint := range hints {
		cited, ok := e.resolve(citing.OrgID, citing.Jurisdiction, hint.Reference)
		if !ok {
			continue
		}
		if cited.ID == citing.ID {
			continue
		}
		err := e.store.UpsertCaseTreatment(storage.CaseTreatment{
			OrgID:          citing.OrgID,
			CitingSourceID: citing.ID,
			CitedSourceID:  cited.ID,
			Treatment:      hint.Treatment,
			Weight:         hint.Weight,
			DecidedAt:      decided,
		})
		if err != nil {
			e.logger.Warn("treatment: upsert failed",
				"citing", citing.ID, "cited", cited.ID, "error", err)
			continue
		}
		written++
	}
	return written
}

func (e *Enricher) resolve(orgID, jurisdiction, ref string) (storage.Source, bool) {
	if strings.HasPrefix(ref, "ECLI:") {
		if src, err := e.store.FindCaseByECLI(orgID, jurisdiction, ref); err == nil {
			return src, true
		}
		return storage.Source{}, false
	}
	if src, err := e.store.FindCaseByTitle(orgID, jurisdiction, ref); err == nil {
		return src, true
	}
	if src, err := e.store.FindCaseByVersionLabel(orgID, jurisdiction, ref); err == nil {
		return src, true
	}
	return storage.Source{}, false
}
