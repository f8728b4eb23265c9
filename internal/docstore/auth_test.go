package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/gocollect/internal/retry"
)

// tokenServer issues tok-1, tok-2, ... from the exchange endpoint and
// counts exchanges.
func tokenServer(t *testing.T, expire int, handle http.HandlerFunc) (*httptest.Server, *int) {
	t.Helper()
	exchanges := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v3/tenant_access_token/internal" {
			var req tokenRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode token request: %v", err)
			}
			if req.AppID != "cli_app" || req.AppSecret != "s3cret" {
				t.Errorf("token request = %+v", req)
			}
			*exchanges++
			fmt.Fprintf(w, `{"code":0,"msg":"ok","tenant_access_token":"tok-%d","expire":%d}`, *exchanges, expire)
			return
		}
		handle(w, r)
	}))
	return srv, exchanges
}

func TestAppCredentialsCachesUntilNearExpiry(t *testing.T) {
	srv, exchanges := tokenServer(t, 7200, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	defer srv.Close()

	now := time.Now()
	a := &AppCredentials{
		AppID: "cli_app", AppSecret: "s3cret", BaseURL: srv.URL,
		now: func() time.Time { return now },
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		tok, err := a.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("tok = %q, want cached tok-1", tok)
		}
	}
	if *exchanges != 1 {
		t.Fatalf("exchanges = %d, want 1", *exchanges)
	}

	// Inside the 5-minute refresh margin the cached token no longer counts
	// as fresh.
	now = now.Add(7200*time.Second - 4*time.Minute)
	tok, err := a.Token(ctx)
	if err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if tok != "tok-2" || *exchanges != 2 {
		t.Fatalf("tok = %q, exchanges = %d; want refreshed tok-2", tok, *exchanges)
	}
}

func TestClientInvalidatesRejectedToken(t *testing.T) {
	// The store rejects tok-1; the client must drop it so the next call
	// exchanges anew and succeeds with tok-2.
	srv, exchanges := tokenServer(t, 7200, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":99991663,"msg":"token invalid"}`)
			return
		}
		fmt.Fprint(w, `{"code":0,"msg":"success","data":{"items":[],"has_more":false}}`)
	})
	defer srv.Close()

	c := &Client{
		BaseURL: srv.URL,
		Auth:    &AppCredentials{AppID: "cli_app", AppSecret: "s3cret", BaseURL: srv.URL},
	}
	_, err := c.ListNodes(context.Background(), "12345")
	if err == nil {
		t.Fatal("want error for rejected token")
	}
	if retry.IsPermanent(err) {
		t.Errorf("rejection with exchangeable credentials must stay retryable: %v", err)
	}
	if _, err := c.ListNodes(context.Background(), "12345"); err != nil {
		t.Fatalf("ListNodes after invalidation: %v", err)
	}
	if *exchanges != 2 {
		t.Errorf("exchanges = %d, want 2", *exchanges)
	}
}

func TestStaticTokenRejectionIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "stale"}
	_, err := c.ListNodes(context.Background(), "12345")
	if err == nil {
		t.Fatal("want error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("a fixed token cannot recover from 401, retrying is pointless: %v", err)
	}
}

func TestAppCredentialsStoreErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":10003,"msg":"invalid app_secret"}`)
	}))
	defer srv.Close()

	a := &AppCredentials{AppID: "cli_app", AppSecret: "wrong", BaseURL: srv.URL}
	_, err := a.Token(context.Background())
	if err == nil {
		t.Fatal("want error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("rejected credentials should not be retried: %v", err)
	}
	if !strings.Contains(err.Error(), "invalid app_secret") {
		t.Errorf("error should carry the store message: %v", err)
	}
}
