package adapters

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

// rssFeed covers the RSS 2.0 and Atom shapes the gazette feeds actually use.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Link  struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Updated string `xml:"updated"`
}

// FeedAdapter ingests an RSS/Atom gazette or case-law feed.
type FeedAdapter struct {
	name            string
	jurisdiction    string
	feedURL         string
	sourceType      string
	publisher       string
	bindingLanguage string
	residency       string
	client          *http.Client
	logger          *slog.Logger
}

// NewFeedAdapter builds an RSS/Atom adapter for one feed.
func NewFeedAdapter(name, jurisdiction, feedURL, sourceType, publisher, bindingLanguage, residency string) *FeedAdapter {
	return &FeedAdapter{
		name:            name,
		jurisdiction:    jurisdiction,
		feedURL:         feedURL,
		sourceType:      sourceType,
		publisher:       publisher,
		bindingLanguage: bindingLanguage,
		residency:       residency,
		client:          &http.Client{Timeout: 15 * time.Second},
		logger:          slog.Default(),
	}
}

func (a *FeedAdapter) Name() string         { return a.name }
func (a *FeedAdapter) Jurisdiction() string { return a.jurisdiction }

// FetchDocuments pulls and parses the feed. Government feeds are frequently
// served in ISO-8859-1, so decoding goes through a charset-aware reader.
func (a *FeedAdapter) FetchDocuments(ctx context.Context) []NormalizedDocument {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		a.logger.Warn("feed adapter: building request failed", "adapter", a.name, "error", err)
		return nil
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("feed adapter: fetch failed", "adapter", a.name, "url", a.feedURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("feed adapter: unexpected status", "adapter", a.name, "status", resp.Status)
		return nil
	}

	return a.parse(resp.Body)
}

func (a *FeedAdapter) parse(r io.Reader) []NormalizedDocument {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var feed rssFeed
	if err := dec.Decode(&feed); err != nil {
		a.logger.Warn("feed adapter: parse failed", "adapter", a.name, "error", err)
		return nil
	}

	var docs []NormalizedDocument
	for _, item := range feed.Channel.Items {
		if item.Link == "" {
			continue
		}
		docs = append(docs, NormalizedDocument{
			Title:             item.Title,
			Jurisdiction:      a.jurisdiction,
			SourceType:        a.sourceType,
			Publisher:         a.publisher,
			CanonicalURL:      item.Link,
			DownloadURL:       item.Link,
			BindingLanguage:   a.bindingLanguage,
			MimeType:          "text/html",
			ResidencyOverride: a.residency,
		})
	}
	for _, entry := range feed.Entries {
		if entry.Link.Href == "" {
			continue
		}
		docs = append(docs, NormalizedDocument{
			Title:             entry.Title,
			Jurisdiction:      a.jurisdiction,
			SourceType:        a.sourceType,
			Publisher:         a.publisher,
			CanonicalURL:      entry.Link.Href,
			DownloadURL:       entry.Link.Href,
			BindingLanguage:   a.bindingLanguage,
			MimeType:          "text/html",
			ResidencyOverride: a.residency,
		})
	}
	return Dedup(docs)
}
