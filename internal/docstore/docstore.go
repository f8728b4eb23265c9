// Package docstore is an HTTP client for the wiki-style document store that
// holds the directory taxonomy and receives published documents. Calls are
// single-attempt; callers wrap them with the retry framework and rely on the
// error classification done here.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// Client talks to one document-store instance.
type Client struct {
	// BaseURL is the API root, e.g. https://open.example.com/open-apis.
	BaseURL string
	// Auth supplies the bearer credential per request. When nil, the fixed
	// Token is sent instead.
	Auth TokenSource
	// Token authorizes every request when no Auth source is configured.
	Token string
	// PageSize bounds one node-listing page. Zero means 50.
	PageSize int

	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return 50
}

// envelope is the store's uniform response wrapper. A non-zero code means
// the request was understood and rejected, which is never worth retrying.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type nodePage struct {
	Items []struct {
		NodeToken       string `json:"node_token"`
		Title           string `json:"title"`
		ParentNodeToken string `json:"parent_node_token"`
		HasChild        bool   `json:"has_child"`
		ObjType         string `json:"obj_type"`
	} `json:"items"`
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
}

// ListNodes walks the space's node pages and returns the directory tree
// with depths computed from parent links. Non-directory objects are
// skipped. Implements taxonomy.Provider.
func (c *Client) ListNodes(ctx context.Context, spaceID string) ([]taxonomy.Node, error) {
	var nodes []taxonomy.Node
	pageToken := ""
	for {
		page, err := c.listPage(ctx, spaceID, pageToken)
		if err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			if it.ObjType != "wiki" {
				continue
			}
			nodes = append(nodes, taxonomy.Node{
				ID:       it.NodeToken,
				Name:     it.Title,
				ParentID: it.ParentNodeToken,
			})
		}
		if !page.HasMore {
			break
		}
		pageToken = page.PageToken
	}
	assignDepths(nodes)
	log.Debug().Str("space", spaceID).Int("nodes", len(nodes)).Msg("listed taxonomy nodes")
	return nodes, nil
}

func (c *Client) listPage(ctx context.Context, spaceID, pageToken string) (nodePage, error) {
	q := url.Values{"page_size": {strconv.Itoa(c.pageSize())}}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	endpoint := fmt.Sprintf("%s/wiki/v2/spaces/%s/nodes?%s",
		c.BaseURL, url.PathEscape(spaceID), q.Encode())

	var page nodePage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nodePage{}, fmt.Errorf("list nodes: %w", err)
	}
	return page, nil
}

// assignDepths resolves each node's depth from parent links. Pages can
// return children before their parents, so depths are settled after the
// full listing. Orphans (parent outside the listing) count as roots.
func assignDepths(nodes []taxonomy.Node) {
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = i
	}
	var depthOf func(i int, seen map[int]bool) int
	depthOf = func(i int, seen map[int]bool) int {
		if nodes[i].Depth > 0 {
			return nodes[i].Depth
		}
		parent, ok := byID[nodes[i].ParentID]
		if nodes[i].ParentID == "" || !ok || seen[i] {
			nodes[i].Depth = 1
			return 1
		}
		seen[i] = true
		nodes[i].Depth = depthOf(parent, seen) + 1
		return nodes[i].Depth
	}
	for i := range nodes {
		depthOf(i, map[int]bool{})
	}
}

type createRequest struct {
	FolderToken string `json:"folder_token"`
	Title       string `json:"title"`
	Content     string `json:"content"`
}

type createResponse struct {
	Document struct {
		DocumentID string `json:"document_id"`
		URL        string `json:"url"`
	} `json:"document"`
}

// CreateDocument creates one document under the given directory and
// returns a reference to it (the document URL when the store provides
// one, otherwise its ID).
func (c *Client) CreateDocument(ctx context.Context, parentID, title, content string) (string, error) {
	endpoint := c.BaseURL + "/docx/v1/documents"
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, endpoint, createRequest{
		FolderToken: parentID,
		Title:       title,
		Content:     content,
	}, &resp); err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	ref := resp.Document.URL
	if ref == "" {
		ref = resp.Document.DocumentID
	}
	if ref == "" {
		return "", retry.Permanent(fmt.Errorf("create document: response carries no reference"))
	}
	log.Info().Str("title", title).Str("ref", ref).Msg("document created")
	return ref, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	token := c.Token
	if c.Auth != nil {
		token, err = c.Auth.Token(ctx)
		if err != nil {
			return fmt.Errorf("credential: %w", err)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	switch {
	case res.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d", method, endpoint, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s %s: status %d", method, endpoint, res.StatusCode)
	case res.StatusCode == http.StatusUnauthorized && c.Auth != nil:
		// The next attempt exchanges the credentials for a fresh token.
		c.Auth.Invalidate()
		return fmt.Errorf("%s %s: status 401, credential invalidated", method, endpoint)
	case res.StatusCode != http.StatusOK:
		return retry.Permanent(fmt.Errorf("%s %s: status %d", method, endpoint, res.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return retry.Permanent(fmt.Errorf("%s %s: store error %d: %s", method, endpoint, env.Code, env.Msg))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
