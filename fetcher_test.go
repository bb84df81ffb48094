package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchMarkdownConvertsHTML(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><h2>1.2.0</h2><ul><li>Faster indexing</li></ul></body></html>"))
	}))
	defer server.Close()

	f := NewPageFetcher()
	f.client = server.Client()

	got, err := f.FetchMarkdown(server.URL)
	if err != nil {
		t.Fatalf("FetchMarkdown() error = %v", err)
	}
	if !strings.Contains(got, "1.2.0") {
		t.Errorf("markdown output missing heading text: %q", got)
	}
	if !strings.Contains(got, "Faster indexing") {
		t.Errorf("markdown output missing list item: %q", got)
	}
	if strings.Contains(got, "<li>") {
		t.Errorf("markdown output still contains HTML tags: %q", got)
	}
	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Errorf("request went out with user agent %q, want a browser string", gotUA)
	}
}

func TestFetchMarkdownPassesThroughPlainText(t *testing.T) {
	body := "# 1.2.0\n\n- Faster indexing\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := NewPageFetcher()
	f.client = server.Client()

	got, err := f.FetchMarkdown(server.URL)
	if err != nil {
		t.Fatalf("FetchMarkdown() error = %v", err)
	}
	if got != body {
		t.Errorf("FetchMarkdown() = %q, want untouched body", got)
	}
}

func TestFetchMarkdownSniffsMislabeledHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("<!DOCTYPE html><html><body><p>Release notes</p></body></html>"))
	}))
	defer server.Close()

	f := NewPageFetcher()
	f.client = server.Client()

	got, err := f.FetchMarkdown(server.URL)
	if err != nil {
		t.Fatalf("FetchMarkdown() error = %v", err)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("mislabeled HTML was not converted: %q", got)
	}
}

func TestFetchReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewPageFetcher()
	f.client = server.Client()

	_, err := f.FetchMarkdown(server.URL)
	if err == nil {
		t.Fatal("FetchMarkdown() should fail on HTTP 404")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %T, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusNotFound)
	}
	if httpErr.URL != server.URL {
		t.Errorf("URL = %q, want %q", httpErr.URL, server.URL)
	}
}

func TestFetchRawKeepsHTML(t *testing.T) {
	body := "<html><body><h2>v0.50.0</h2><p>Notes</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := NewPageFetcher()
	f.client = server.Client()

	got, err := f.FetchRaw(server.URL)
	if err != nil {
		t.Fatalf("FetchRaw() error = %v", err)
	}
	if got != body {
		t.Errorf("FetchRaw() = %q, want untouched HTML", got)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"doctype", "<!DOCTYPE html><html>", true},
		{"bare html tag", "  \n<HTML lang=\"en\">", true},
		{"markdown", "# Release 1.2.0\n- fix", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeHTML([]byte(tt.body)); got != tt.want {
				t.Errorf("looksLikeHTML() = %v, want %v", got, tt.want)
			}
		})
	}
}
