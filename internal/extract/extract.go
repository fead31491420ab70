// Package extract turns downloaded legal documents into plain text and
// structured body sections, dispatching on MIME type.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// Text extracts plain text from a payload based on its MIME type. Unknown
// binary types yield an empty string, not an error: extraction is best-effort
// and never gates ingestion.
func Text(payload []byte, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return htmlText(payload)
	case mt == "application/pdf":
		return pdfText(payload)
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return string(payload), nil
	default:
		return "", nil
	}
}

func htmlText(payload []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	return collapseWhitespace(text), nil
}

func pdfText(payload []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	var buf bytes.Buffer
	b, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return collapseWhitespace(buf.String()), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Section is one structured slice of a document body.
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// Sections splits extracted text into headed sections using common legal
// drafting markers (Article, Section, §, TITRE). Text without markers becomes
// a single unheaded section.
func Sections(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	words := strings.Fields(text)
	var sections []Section
	current := Section{}
	var body []string

	flush := func() {
		if current.Heading == "" && len(body) == 0 {
			return
		}
		current.Text = strings.Join(body, " ")
		sections = append(sections, current)
		body = nil
	}

	for i := 0; i < len(words); i++ {
		w := words[i]
		if isSectionMarker(w) && i+1 < len(words) {
			flush()
			current = Section{Heading: w + " " + words[i+1]}
			i++
			continue
		}
		body = append(body, w)
	}
	flush()

	if len(sections) == 0 {
		return []Section{{Text: text}}
	}
	return sections
}

func isSectionMarker(w string) bool {
	switch strings.TrimSuffix(strings.ToLower(w), ".") {
	case "article", "section", "§", "titre", "chapitre", "art":
		return true
	}
	return false
}

// SectionsJSON renders sections as the JSON stored on a source row.
func SectionsJSON(text string) string {
	sections := Sections(text)
	if len(sections) == 0 {
		return ""
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		return ""
	}
	return string(raw)
}
