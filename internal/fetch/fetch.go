// Package fetch provides the shared HTTP client used for page loads and
// image downloads. It applies timeouts, a redirect cap and a byte ceiling,
// and classifies failures for the retry framework: 5xx and transport errors
// stay retryable, 4xx and oversized bodies are permanent.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/gocollect/internal/retry"
)

// ErrTooLarge indicates the response body exceeded the caller's byte
// ceiling. Retrying past the ceiling cannot help, so it is permanent.
var ErrTooLarge = errors.New("response exceeds size ceiling")

// Client wraps http.Client for the pipeline's network-bound stages. Unlike
// a bare http.Client it never follows redirects off http(s) and never reads
// more than the configured ceiling. Retry is the caller's concern via the
// retry package; Get itself performs exactly one attempt.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int

	limiter     chan struct{}
	limiterOnce sync.Once
}

// Options tune a single Get.
type Options struct {
	// Referer is set verbatim when non-empty. Image downloads set it to the
	// image's own URL to defeat referrer-based hot-link protection.
	Referer string
	// Accept overrides the Accept header when non-empty.
	Accept string
	// MaxBytes caps the body size. Zero means unlimited.
	MaxBytes int64
	// AllowContentType, when non-nil, gates the response by Content-Type.
	// A mismatch is a permanent failure.
	AllowContentType func(ct string) bool
}

// Get issues one GET with context, user-agent and the given options. The
// returned error is wrapped with retry.Permanent where another attempt
// cannot succeed.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) ([]byte, string, error) {
	c.acquire()
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, "", retry.Permanent(fmt.Errorf("unsupported URL scheme: %q", rawURL))
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}

	httpClient := c.getHTTPClient()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, "", fmt.Errorf("server error: %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", retry.Permanent(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if opts.AllowContentType != nil && !opts.AllowContentType(contentType) {
		return nil, "", retry.Permanent(fmt.Errorf("unsupported content type: %s", contentType))
	}
	if opts.MaxBytes > 0 && resp.ContentLength > opts.MaxBytes {
		return nil, "", retry.Permanent(fmt.Errorf("%w: %d bytes declared", ErrTooLarge, resp.ContentLength))
	}

	reader := io.Reader(resp.Body)
	if opts.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, opts.MaxBytes+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if opts.MaxBytes > 0 && int64(len(b)) > opts.MaxBytes {
		return nil, "", retry.Permanent(fmt.Errorf("%w: over %d bytes", ErrTooLarge, opts.MaxBytes))
	}
	return b, contentType, nil
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsHTMLContentType accepts text/html variants and application/xhtml+xml.
func IsHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// IsImageContentType accepts any image/* media type.
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ct)), "image/")
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
		// should not happen, but avoid blocking
	}
}
