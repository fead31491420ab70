package treatment

import (
	"testing"

	"github.com/juridex/juridex/internal/storage"
)

type fakeResolver struct {
	findByECLIFn  func(orgID, jurisdiction, ecli string) (storage.Source, error)
	findByTitleFn func(orgID, jurisdiction, fragment string) (storage.Source, error)
	findByLabelFn func(orgID, jurisdiction, label string) (storage.Source, error)
	upserted      []storage.CaseTreatment
}

func (f *fakeResolver) FindCaseByECLI(orgID, jurisdiction, ecli string) (storage.Source, error) {
	if f.findByECLIFn == nil {
		return storage.Source{}, storage.ErrNotFound
	}
	return f.findByECLIFn(orgID, jurisdiction, ecli)
}

func (f *fakeResolver) FindCaseByTitle(orgID, jurisdiction, fragment string) (storage.Source, error) {
	if f.findByTitleFn == nil {
		return storage.Source{}, storage.ErrNotFound
	}
	return f.findByTitleFn(orgID, jurisdiction, fragment)
}

func (f *fakeResolver) FindCaseByVersionLabel(orgID, jurisdiction, label string) (storage.Source, error) {
	if f.findByLabelFn == nil {
		return storage.Source{}, storage.ErrNotFound
	}
	return f.findByLabelFn(orgID, jurisdiction, label)
}

func (f *fakeResolver) UpsertCaseTreatment(t storage.CaseTreatment) error {
	f.upserted = append(f.upserted, t)
	return nil
}

func TestScanHints(t *testing.T) {
	text := `The court overturns ECLI:FR:CCASS:2023:C100001 on the first ground.
It affirms "Dupont v Martin" as to costs. La cour distingue Societe Horizon.`

	hints := ScanHints(text)
	found := map[string]Hint{}
	for _, h := range hints {
		found[h.Treatment] = h
	}

	over, ok := found["overturned"]
	if !ok || over.Reference != "ECLI:FR:CCASS:2023:C100001" || over.Weight != 1.0 {
		t.Errorf("overturned hint = %+v", over)
	}
	aff, ok := found["affirmed"]
	if !ok || aff.Reference != "Dupont v Martin" || aff.Weight != 0.6 {
		t.Errorf("affirmed hint = %+v", aff)
	}
	dist, ok := found["distinguished"]
	if !ok || dist.Reference != "Societe Horizon" || dist.Weight != 0.3 {
		t.Errorf("distinguished hint = %+v", dist)
	}
}

func TestScanHintsNoVerbs(t *testing.T) {
	if hints := ScanHints("Article 5 applies to all processing of personal data."); hints != nil {
		t.Errorf("hints = %+v, want none", hints)
	}
}

func TestNormalizeReference(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"Dupont v Martin"`, "Dupont v Martin"},
		{"Justice Dupont, concurring", "Dupont, concurring"},
		{"  Societe   Horizon.  ", "Societe Horizon"},
	}
	for _, tc := range cases {
		if got := NormalizeReference(tc.in); got != tc.want {
			t.Errorf("NormalizeReference(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEnrichResolvesAndSkipsSelfCitation(t *testing.T) {
	resolver := &fakeResolver{
		findByECLIFn: func(_, _, ecli string) (storage.Source, error) {
			if ecli == "ECLI:FR:CCASS:2023:C100001" {
				return storage.Source{ID: "cited-1"}, nil
			}
			return storage.Source{}, storage.ErrNotFound
		},
		findByTitleFn: func(_, _, fragment string) (storage.Source, error) {
			if fragment == "Self Case" {
				return storage.Source{ID: "citing-1"}, nil
			}
			return storage.Source{}, storage.ErrNotFound
		},
	}
	enricher := NewEnricher(resolver)

	citing := storage.Source{ID: "citing-1", OrgID: "org-1", Jurisdiction: "fr", SourceType: "case"}
	text := `This decision overturns ECLI:FR:CCASS:2023:C100001. It affirms Self Case.
It distinguishes Unknown Matter entirely.`

	written := enricher.Enrich(citing, text)
	if written != 1 {
		t.Fatalf("written = %d, want 1 (self-cite and unresolved hint dropped)", written)
	}
	edge := resolver.upserted[0]
	if edge.CitingSourceID != "citing-1" || edge.CitedSourceID != "cited-1" {
		t.Errorf("edge endpoints: %+v", edge)
	}
	if edge.Treatment != "overturned" || edge.Weight != 1.0 {
		t.Errorf("edge verdict: %+v", edge)
	}
}

func TestEnrichEmptyText(t *testing.T) {
	enricher := NewEnricher(&fakeResolver{})
	if n := enricher.Enrich(storage.Source{ID: "x"}, ""); n != 0 {
		t.Errorf("written = %d, want 0", n)
	}
}
