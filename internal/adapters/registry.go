package adapters

import (
	"fmt"
)

// SourceSpec declares one adapter in configuration.
type SourceSpec struct {
	Name            string       `yaml:"name"`
	Jurisdiction    string       `yaml:"jurisdiction"`
	Kind            string       `yaml:"kind"` // "feed", "api", "index", "static", "fanout"
	URL             string       `yaml:"url"`
	Selector        string       `yaml:"selector"`
	SourceType      string       `yaml:"sourceType"`
	Publisher       string       `yaml:"publisher"`
	BindingLanguage string       `yaml:"bindingLanguage"`
	Residency       string       `yaml:"residency"`
	Subs            []SourceSpec `yaml:"subs"`
	Documents       []StaticDoc  `yaml:"documents"`
}

// StaticDoc is the YAML shape of one curated document in a static list.
type StaticDoc struct {
	Title        string `yaml:"title"`
	URL          string `yaml:"url"`
	DownloadURL  string `yaml:"downloadUrl"`
	SourceType   string `yaml:"sourceType"`
	MimeType     string `yaml:"mimeType"`
	VersionLabel string `yaml:"version"`
	ELI          string `yaml:"eli"`
	ECLI         string `yaml:"ecli"`
}

// Build constructs the adapter declared by a spec.
func Build(spec SourceSpec) (Adapter, error) {
	if spec.Name == "" || spec.Jurisdiction == "" {
		return nil, fmt.Errorf("adapter spec requires name and jurisdiction")
	}
	switch spec.Kind {
	case "feed":
		return NewFeedAdapter(spec.Name, spec.Jurisdiction, spec.URL, defaultType(spec.SourceType),
			spec.Publisher, spec.BindingLanguage, spec.Residency), nil
	case "api":
		return NewAPIAdapter(spec.Name, spec.Jurisdiction, spec.URL, defaultType(spec.SourceType), spec.Residency), nil
	case "index":
		return NewIndexPageAdapter(spec.Name, spec.Jurisdiction, spec.URL, spec.Selector,
			defaultType(spec.SourceType), spec.Publisher, spec.BindingLanguage, spec.Residency), nil
	case "static":
		docs := make([]NormalizedDocument, 0, len(spec.Documents))
		for _, d := range spec.Documents {
			doc := NormalizedDocument{
				Title:             d.Title,
				Jurisdiction:      spec.Jurisdiction,
				SourceType:        defaultType(firstNonEmpty(d.SourceType, spec.SourceType)),
				Publisher:         spec.Publisher,
				CanonicalURL:      d.URL,
				DownloadURL:       firstNonEmpty(d.DownloadURL, d.URL),
				BindingLanguage:   spec.BindingLanguage,
				VersionLabel:      d.VersionLabel,
				MimeType:          firstNonEmpty(d.MimeType, "text/html"),
				ELI:               d.ELI,
				ECLI:              d.ECLI,
				ResidencyOverride: spec.Residency,
			}
			docs = append(docs, doc)
		}
		return NewStaticListAdapter(spec.Name, spec.Jurisdiction, docs), nil
	case "fanout":
		if len(spec.Subs) == 0 {
			return nil, fmt.Errorf("fanout adapter %q requires subs", spec.Name)
		}
		subs := make([]Adapter, 0, len(spec.Subs))
		for _, sub := range spec.Subs {
			a, err := Build(sub)
			if err != nil {
				return nil, fmt.Errorf("building sub-adapter of %q: %w", spec.Name, err)
			}
			subs = append(subs, a)
		}
		return NewFanOutAdapter(spec.Name, spec.Jurisdiction, subs), nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", spec.Kind)
	}
}

// BuildAll constructs every adapter declared in configuration, keyed by name.
func BuildAll(specs []SourceSpec) (map[string]Adapter, error) {
	out := make(map[string]Adapter, len(specs))
	for _, spec := range specs {
		a, err := Build(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := out[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate adapter name %q", a.Name())
		}
		out[a.Name()] = a
	}
	return out, nil
}

func defaultType(t string) string {
	if t == "" {
		return "statute"
	}
	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
