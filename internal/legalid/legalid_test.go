package legalid

import (
	"strings"
	"testing"
)

func TestDeriveELI(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{
			name:   "legifrance eli path",
			url:    "https://www.legifrance.gouv.fr/eli/loi/2018/6/20/2018-493/jo/texte",
			want:   "eli/loi/2018/6/20/2018-493/jo/texte",
			wantOK: true,
		},
		{
			name:   "eurlex celex query",
			url:    "https://eur-lex.europa.eu/legal-content/EN/TXT/?uri=CELEX:32016R0679",
			want:   "CELEX:32016R0679",
			wantOK: true,
		},
		{
			name:   "eli segment on unknown host still counts",
			url:    "https://laws.example.org/eli/act/2020/12",
			want:   "eli/act/2020/12",
			wantOK: true,
		},
		{
			name:   "no eli shape",
			url:    "https://example.com/documents/123",
			wantOK: false,
		},
		{
			name:   "unparsable url",
			url:    "://nope",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DeriveELI(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("DeriveELI(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("DeriveELI(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestDeriveECLI(t *testing.T) {
	t.Run("url query on known court host", func(t *testing.T) {
		got, ok := DeriveECLI("https://curia.europa.eu/juris/document.jsf?ecli=ECLI:EU:C:2019:801", "")
		if !ok || got != "ECLI:EU:C:2019:801" {
			t.Fatalf("got %q ok=%v", got, ok)
		}
	})

	t.Run("path segment on known court host", func(t *testing.T) {
		got, ok := DeriveECLI("https://www.rechtspraak.nl/ECLI:NL:HR:2020:1234", "")
		if !ok || got != "ECLI:NL:HR:2020:1234" {
			t.Fatalf("got %q ok=%v", got, ok)
		}
	})

	t.Run("text fallback", func(t *testing.T) {
		text := "The court held in ECLI:FR:CCASS:2021:CO00123 that the clause was void."
		got, ok := DeriveECLI("https://example.org/judgment/99", text)
		if !ok || got != "ECLI:FR:CCASS:2021:CO00123" {
			t.Fatalf("got %q ok=%v", got, ok)
		}
	})

	t.Run("ecli query on unknown host is ignored without text match", func(t *testing.T) {
		if got, ok := DeriveECLI("https://random.example.com/x?ecli=ECLI:EU:C:2019:801", "no token here"); ok {
			t.Fatalf("expected no match, got %q", got)
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		if got, ok := DeriveECLI("https://example.org/judgment/99", "plain text"); ok {
			t.Fatalf("expected no match, got %q", got)
		}
	})
}

func TestResolveResidency(t *testing.T) {
	if got := ResolveResidency("", "fr"); got != ZoneEU {
		t.Errorf("fr = %q, want %q", got, ZoneEU)
	}
	if got := ResolveResidency("", "ca-qc"); got != ZoneCanada {
		t.Errorf("ca-qc = %q, want %q", got, ZoneCanada)
	}
	if got := ResolveResidency("", "sn"); got != ZoneOHADA {
		t.Errorf("sn = %q, want %q", got, ZoneOHADA)
	}
	if got := ResolveResidency("", "jp"); got != ZoneGlobal {
		t.Errorf("jp = %q, want %q", got, ZoneGlobal)
	}
	// Explicit override always wins.
	if got := ResolveResidency("eu", "jp"); got != ZoneEU {
		t.Errorf("override = %q, want %q", got, ZoneEU)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	c := ContentHash([]byte("hellp"))
	if a != b {
		t.Error("hash not stable for identical payloads")
	}
	if a == c {
		t.Error("hash collision for distinct payloads")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("Loi n° 2018-493 du 20 juin 2018"); got != "loi-n-2018-493-du-20-juin-2018" {
		t.Errorf("Slug = %q", got)
	}
	if got := Slug("///"); got != "untitled" {
		t.Errorf("empty slug = %q, want untitled", got)
	}
	long := Slug(strings.Repeat("abc ", 100))
	if len(long) > 80 {
		t.Errorf("slug length = %d, want <= 80", len(long))
	}
}
