package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFetcherRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "AtlasCrawler/1.0", 0, nil)
	result, err := f.Render(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != 200 {
		t.Errorf("status = %d, want 200", result.Status)
	}
	if string(result.Body) != "<html><body>hello</body></html>" {
		t.Errorf("body = %q", result.Body)
	}
	if result.ContentType != "text/html" {
		t.Errorf("content type = %q", result.ContentType)
	}
}

func TestHTTPFetcherRespectsMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "AtlasCrawler/1.0", 100, nil)
	result, err := f.Render(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Body) != 100 {
		t.Errorf("body length = %d, want 100", len(result.Body))
	}
}
