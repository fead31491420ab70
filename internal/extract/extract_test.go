package extract

import (
	"strings"
	"testing"
)

func TestTextHTML(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head>
		<body><h1>Loi 2018-493</h1><p>Article 1. Les dispositions   suivantes.</p>
		<script>alert(1)</script></body></html>`
	got, err := Text([]byte(html), "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("script/style leaked into text: %q", got)
	}
	if !strings.Contains(got, "Loi 2018-493") || !strings.Contains(got, "dispositions suivantes") {
		t.Errorf("missing body text: %q", got)
	}
}

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("hello world"), "text/plain")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestTextUnknownBinary(t *testing.T) {
	got, err := Text([]byte{0x00, 0x01}, "application/octet-stream")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty text for unknown binary, got %q", got)
	}
}

func TestSections(t *testing.T) {
	text := "Article 1. Les juges statuent. Article 2. La cour décide."
	sections := Sections(text)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2: %+v", len(sections), sections)
	}
	if sections[0].Heading != "Article 1." {
		t.Errorf("first heading = %q", sections[0].Heading)
	}
	if !strings.Contains(sections[1].Text, "cour") {
		t.Errorf("second section text = %q", sections[1].Text)
	}
}

func TestSectionsNoMarkers(t *testing.T) {
	sections := Sections("just some prose without structure")
	if len(sections) != 1 || sections[0].Heading != "" {
		t.Fatalf("got %+v, want single unheaded section", sections)
	}
}

func TestSectionsEmpty(t *testing.T) {
	if got := Sections("   "); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}
