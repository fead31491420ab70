package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchReturnsBodyAndValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>doc</html>"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(100)
	res, err := d.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "<html>doc</html>" {
		t.Errorf("body = %q", res.Body)
	}
	if res.ETag != `"abc123"` {
		t.Errorf("etag = %q", res.ETag)
	}
	if res.LastModified == "" {
		t.Error("last-modified missing")
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	d := NewHTTPDownloader(100)
	if _, err := d.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 410 response")
	}
}

func TestPlaceholderDeterministic(t *testing.T) {
	a := Placeholder("https://example.org/doc")
	b := Placeholder("https://example.org/doc")
	if string(a) != string(b) {
		t.Error("placeholder not deterministic")
	}
	if string(a) == string(Placeholder("https://example.org/other")) {
		t.Error("placeholder does not vary by url")
	}
}
