package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/retry"
)

// TokenSource supplies the bearer credential for each request and accepts
// notice that the store rejected it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a fixed credential, for stores that issue long-lived
// tokens and for tests.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

func (StaticToken) Invalidate() {}

// AppCredentials exchanges an app id/secret pair for a tenant access token
// and caches it. Store-issued tokens carry a bounded lifetime (typically
// two hours); refresh happens five minutes early so an in-flight request
// never rides an expiring credential.
type AppCredentials struct {
	AppID     string
	AppSecret string
	// BaseURL is the API root, same value as Client.BaseURL.
	BaseURL    string
	HTTPClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	// now is replaceable for expiry tests.
	now func() time.Time
}

const refreshMargin = 5 * time.Minute

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

func (a *AppCredentials) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *AppCredentials) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// Token returns the cached token while it is fresh, otherwise exchanges
// the app credentials for a new one.
func (a *AppCredentials) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && a.clock().Before(a.expiresAt.Add(-refreshMargin)) {
		return a.token, nil
	}

	payload, err := json.Marshal(tokenRequest{AppID: a.AppID, AppSecret: a.AppSecret})
	if err != nil {
		return "", retry.Permanent(err)
	}
	endpoint := a.BaseURL + "/auth/v3/tenant_access_token/internal"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	switch {
	case res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("token exchange: status %d", res.StatusCode)
	case res.StatusCode != http.StatusOK:
		return "", retry.Permanent(fmt.Errorf("token exchange: status %d", res.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.Code != 0 {
		return "", retry.Permanent(fmt.Errorf("token exchange: store error %d: %s", tr.Code, tr.Msg))
	}
	if tr.TenantAccessToken == "" {
		return "", retry.Permanent(fmt.Errorf("token exchange: response carries no token"))
	}

	a.token = tr.TenantAccessToken
	a.expiresAt = a.clock().Add(time.Duration(tr.Expire) * time.Second)
	log.Info().Time("expires", a.expiresAt).Msg("document store access token refreshed")
	return a.token, nil
}

// Invalidate drops the cached token so the next request exchanges anew.
func (a *AppCredentials) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.expiresAt = time.Time{}
	a.mu.Unlock()
}
