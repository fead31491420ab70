// Package fetch downloads document payloads from authority hosts with a
// bounded timeout and per-host rate limiting.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is one downloaded payload with its HTTP validators.
type Result struct {
	Body         []byte
	ETag         string
	LastModified string
	ContentType  string
}

// Downloader fetches a document by URL.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string) (Result, error)
}

// HTTPDownloader implements Downloader over net/http with a per-host token
// bucket so one run never hammers a single authority host.
type HTTPDownloader struct {
	client   *http.Client
	maxBytes int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// NewHTTPDownloader builds a downloader with a 20s request timeout and the
// given sustained per-host request rate.
func NewHTTPDownloader(requestsPerSecond float64) *HTTPDownloader {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &HTTPDownloader{
		client:   &http.Client{Timeout: 20 * time.Second},
		maxBytes: 32 << 20, // 32MB cap per document
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(requestsPerSecond),
		burst:    3,
	}
}

func (d *HTTPDownloader) limiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[host]
	if !ok {
		l = rate.NewLimiter(d.perHost, d.burst)
		d.limiters[host] = l
	}
	return l
}

// Fetch downloads one URL. Timeouts and HTTP errors are normal download
// failures: callers substitute a placeholder payload rather than aborting.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parsing url: %w", err)
	}

	if err := d.limiter(u.Host).Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "juridex/1.0 (+legal corpus ingestion)")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("get %s: unexpected status %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("reading body: %w", err)
	}

	return Result{
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

// Placeholder synthesizes a deterministic payload for a URL whose download
// failed, so hashing and storage downstream never fail outright.
func Placeholder(rawURL string) []byte {
	return []byte("juridex:download-unavailable:" + rawURL)
}
