// Package blob adapts GitHub's contents API as the pipeline's durable blob
// store and jsDelivr as the CDN in front of it.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/gocollect/internal/retry"
)

// GitHubStore stores objects as files in a repository branch. Implements
// rehost.BlobStore.
type GitHubStore struct {
	// Repo is "owner/name".
	Repo   string
	Branch string
	Token  string
	// BaseURL defaults to https://api.github.com; tests point it at a stub.
	BaseURL    string
	HTTPClient *http.Client
}

func (g *GitHubStore) baseURL() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	return "https://api.github.com"
}

func (g *GitHubStore) httpClient() *http.Client {
	if g.HTTPClient != nil {
		return g.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (g *GitHubStore) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", g.baseURL(), g.Repo, escapePath(path), url.QueryEscape(g.Branch))
}

// Exists checks whether a file is already stored at path on the branch.
func (g *GitHubStore) Exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.contentsURL(path), nil)
	if err != nil {
		return false, retry.Permanent(err)
	}
	g.auth(req)
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, retry.Permanent(fmt.Errorf("github contents: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("github contents: status %d", resp.StatusCode)
	default:
		return false, retry.Permanent(fmt.Errorf("github contents: status %d", resp.StatusCode))
	}
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

// Put creates the file at path. A 422 for an already-existing file counts
// as success: the path is content-addressed, so identical bytes are
// already there.
func (g *GitHubStore) Put(ctx context.Context, path string, data []byte) error {
	body, err := json.Marshal(putRequest{
		Message: "Add " + path,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  g.Branch,
	})
	if err != nil {
		return retry.Permanent(err)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL(), g.Repo, escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.auth(req)
	resp, err := g.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// Lost a create race; the object is there, which is all we need.
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(fmt.Errorf("github put: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return fmt.Errorf("github put: status %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("github put: status %d", resp.StatusCode))
	}
}

func (g *GitHubStore) auth(req *http.Request) {
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// JsDelivrURL maps a repository file path to its jsDelivr CDN URL:
// https://cdn.jsdelivr.net/gh/{owner}/{repo}@{branch}/{path}. Pure
// function, no network.
func JsDelivrURL(repo, branch, path string) string {
	return fmt.Sprintf("https://cdn.jsdelivr.net/gh/%s@%s/%s", repo, branch, escapePath(path))
}
