// Package render abstracts the browser-automation backend that turns a URL
// into fully loaded HTML. The pipeline treats rendering as a fallible,
// retryable black box.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperifyio/gocollect/internal/fetch"
	"github.com/hyperifyio/gocollect/internal/retry"
)

// Backend renders a URL after dynamic content and lazy-loaded images have
// settled.
type Backend interface {
	Render(ctx context.Context, url string) (string, error)
}

// Service talks to a headless-browser sidecar over HTTP. The sidecar is
// expected to scroll the page to trigger lazy loading before returning the
// final DOM.
type Service struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	// WaitMillis is passed to the sidecar as the settle delay after load.
	WaitMillis int
}

type renderRequest struct {
	URL        string `json:"url"`
	WaitMillis int    `json:"waitMillis,omitempty"`
	Scroll     bool   `json:"scroll"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

func (s *Service) Render(ctx context.Context, url string) (string, error) {
	if s.BaseURL == "" {
		return "", retry.Permanent(fmt.Errorf("missing render service base url"))
	}
	payload, err := json.Marshal(renderRequest{URL: url, WaitMillis: s.WaitMillis, Scroll: true})
	if err != nil {
		return "", retry.Permanent(err)
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/render"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("render service error: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", retry.Permanent(fmt.Errorf("render service status: %d", resp.StatusCode))
	}
	var rr renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("decode render response: %w", err)
	}
	if strings.TrimSpace(rr.HTML) == "" {
		return "", fmt.Errorf("render service returned empty document")
	}
	return rr.HTML, nil
}

// Static fetches the raw HTML without a browser. It is the backend of last
// resort for pages that do not need script execution, and the default when
// no sidecar is configured.
type Static struct {
	Client *fetch.Client
}

func (s *Static) Render(ctx context.Context, url string) (string, error) {
	body, _, err := s.Client.Get(ctx, url, fetch.Options{
		Accept:           "text/html,application/xhtml+xml",
		AllowContentType: fetch.IsHTMLContentType,
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}
