package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/gocollect/internal/retry"
)

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "gocollect-test", PerRequestTimeout: 2 * time.Second}
	body, ct, err := c.Get(context.Background(), srv.URL, Options{AllowContentType: IsHTMLContentType})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct == "" || len(body) == 0 {
		t.Fatalf("expected content type and body")
	}
}

func TestGet_SetsRefererAndUserAgent(t *testing.T) {
	var gotReferer, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer srv.Close()

	c := &Client{UserAgent: "gocollect-test"}
	_, _, err := c.Get(context.Background(), srv.URL, Options{Referer: srv.URL + "/pic.png", AllowContentType: IsImageContentType})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotReferer != srv.URL+"/pic.png" {
		t.Fatalf("referer = %q", gotReferer)
	}
	if gotUA != "gocollect-test" {
		t.Fatalf("user-agent = %q", gotUA)
	}
}

func TestGet_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
	}))
	defer srv.Close()

	c := &Client{}
	_, _, err := c.Get(context.Background(), srv.URL, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsPermanent(err) {
		t.Fatalf("5xx should stay retryable, got permanent: %v", err)
	}
}

func TestGet_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Client{}
	_, _, err := c.Get(context.Background(), srv.URL, Options{})
	if !retry.IsPermanent(err) {
		t.Fatalf("403 should be permanent, got %v", err)
	}
}

func TestGet_SizeCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	c := &Client{}
	_, _, err := c.Get(context.Background(), srv.URL, Options{MaxBytes: 1024})
	if !retry.IsPermanent(err) {
		t.Fatalf("oversized body should be permanent, got %v", err)
	}

	body, _, err := c.Get(context.Background(), srv.URL, Options{MaxBytes: 8192})
	if err != nil {
		t.Fatalf("unexpected error under ceiling: %v", err)
	}
	if len(body) != 4096 {
		t.Fatalf("body length = %d", len(body))
	}
}

func TestGet_ContentTypeGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not an image"))
	}))
	defer srv.Close()

	c := &Client{}
	_, _, err := c.Get(context.Background(), srv.URL, Options{AllowContentType: IsImageContentType})
	if !retry.IsPermanent(err) {
		t.Fatalf("content-type mismatch should be permanent, got %v", err)
	}
}

func TestGet_RejectsNonHTTPScheme(t *testing.T) {
	c := &Client{}
	_, _, err := c.Get(context.Background(), "ftp://example.org/file", Options{})
	if !retry.IsPermanent(err) {
		t.Fatalf("expected permanent scheme error, got %v", err)
	}
}
