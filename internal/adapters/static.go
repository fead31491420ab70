package adapters

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// StaticListAdapter yields a fixed, curated document list. Used for
// jurisdictions that publish a stable set of consolidated instruments rather
// than a feed.
type StaticListAdapter struct {
	name         string
	jurisdiction string
	docs         []NormalizedDocument
}

// NewStaticListAdapter wraps a curated candidate list.
func NewStaticListAdapter(name, jurisdiction string, docs []NormalizedDocument) *StaticListAdapter {
	return &StaticListAdapter{name: name, jurisdiction: jurisdiction, docs: docs}
}

func (a *StaticListAdapter) Name() string         { return a.name }
func (a *StaticListAdapter) Jurisdiction() string { return a.jurisdiction }

func (a *StaticListAdapter) FetchDocuments(_ context.Context) []NormalizedDocument {
	out := make([]NormalizedDocument, len(a.docs))
	copy(out, a.docs)
	return Dedup(out)
}

// IndexPageAdapter scrapes an HTML index page for document links matching a
// CSS selector. Used for registries without a feed or API.
type IndexPageAdapter struct {
	name            string
	jurisdiction    string
	pageURL         string
	selector        string
	sourceType      string
	publisher       string
	bindingLanguage string
	residency       string
	client          *http.Client
	logger          *slog.Logger
}

// NewIndexPageAdapter builds a scraping adapter. selector picks anchor
// elements; each anchor's href becomes a candidate canonical URL.
func NewIndexPageAdapter(name, jurisdiction, pageURL, selector, sourceType, publisher, bindingLanguage, residency string) *IndexPageAdapter {
	if selector == "" {
		selector = "a"
	}
	return &IndexPageAdapter{
		name:            name,
		jurisdiction:    jurisdiction,
		pageURL:         pageURL,
		selector:        selector,
		sourceType:      sourceType,
		publisher:       publisher,
		bindingLanguage: bindingLanguage,
		residency:       residency,
		client:          &http.Client{Timeout: 15 * time.Second},
		logger:          slog.Default(),
	}
}

func (a *IndexPageAdapter) Name() string         { return a.name }
func (a *IndexPageAdapter) Jurisdiction() string { return a.jurisdiction }

func (a *IndexPageAdapter) FetchDocuments(ctx context.Context) []NormalizedDocument {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.pageURL, nil)
	if err != nil {
		a.logger.Warn("index adapter: building request failed", "adapter", a.name, "error", err)
		return nil
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("index adapter: fetch failed", "adapter", a.name, "url", a.pageURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("index adapter: unexpected status", "adapter", a.name, "status", resp.Status)
		return nil
	}

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		a.logger.Warn("index adapter: parse failed", "adapter", a.name, "error", err)
		return nil
	}

	base, err := url.Parse(a.pageURL)
	if err != nil {
		return nil
	}

	var docs []NormalizedDocument
	page.Find(a.selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = abs
		}
		mime := "text/html"
		if strings.HasSuffix(strings.ToLower(abs), ".pdf") {
			mime = "application/pdf"
		}
		docs = append(docs, NormalizedDocument{
			Title:             title,
			Jurisdiction:      a.jurisdiction,
			SourceType:        a.sourceType,
			Publisher:         a.publisher,
			CanonicalURL:      abs,
			DownloadURL:       abs,
			BindingLanguage:   a.bindingLanguage,
			MimeType:          mime,
			ResidencyOverride: a.residency,
		})
	})
	return Dedup(docs)
}
