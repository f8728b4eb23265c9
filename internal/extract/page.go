package extract

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/render"
	"github.com/hyperifyio/gocollect/internal/retry"
)

// SelectorSet holds the per-platform CSS selectors tried in order for each
// field. The first selector yielding a non-empty value wins.
type SelectorSet struct {
	Title     []string
	Author    []string
	Published []string
	Content   []string
}

// GenericSelectors cover ordinary web pages.
var GenericSelectors = SelectorSet{
	Title:     []string{"meta[property='og:title']", "h1", "title"},
	Author:    []string{"meta[name='author']", ".author", ".byline"},
	Published: []string{"meta[property='article:published_time']", "time[datetime]"},
	Content:   []string{"article", "main", "#content", ".post-content", "body"},
}

// WeChatSelectors cover the mp.weixin.qq.com article layout.
var WeChatSelectors = SelectorSet{
	Title:     []string{"#activity-name", "h1.rich_media_title", ".rich_media_title", "title"},
	Author:    []string{"#js_name", "#js_author_name", ".rich_media_meta_nickname"},
	Published: []string{"#publish_time", "#em_publish_time"},
	Content:   []string{"#js_content", ".rich_media_content", "body"},
}

// unavailableMarkers appear on WeChat tombstone pages for deleted, banned
// or rule-violating articles. No amount of re-rendering brings those back.
var unavailableMarkers = []string{
	"该内容已被发布者删除",
	"此内容因违规无法查看",
	"该公众号已被封禁",
}

// PageExtractor renders a page and extracts title, author, date, body and
// image URLs using its selector set.
type PageExtractor struct {
	Backend   render.Backend
	Selectors SelectorSet
	Retry     retry.Policy
}

func (e *PageExtractor) Extract(ctx context.Context, url string) (*ContentRecord, error) {
	page, err := retry.Do(ctx, e.Retry, "render", func(ctx context.Context) (string, error) {
		return e.Backend.Render(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(page, marker) {
			return nil, fmt.Errorf("article unavailable: %s", marker)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	base, _ := neturl.Parse(url)

	title := firstValue(doc, e.Selectors.Title)
	body, imageURLs := e.contentMarkdown(doc, base)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("no content extracted from %s", url)
	}
	if title == "" {
		log.Debug().Str("url", url).Msg("no title found; using host")
		if base != nil {
			title = base.Hostname()
		}
	}

	images := make([]ImageRef, 0, len(imageURLs))
	seen := make(map[string]bool, len(imageURLs))
	for _, u := range imageURLs {
		if seen[u] {
			continue
		}
		seen[u] = true
		images = append(images, ImageRef{OriginalURL: u})
	}

	return &ContentRecord{
		Title:       title,
		Author:      firstValue(doc, e.Selectors.Author),
		PublishedAt: firstValue(doc, e.Selectors.Published),
		Body:        body,
		Images:      images,
	}, nil
}

// contentMarkdown renders the first matching content root as markdown.
func (e *PageExtractor) contentMarkdown(doc *goquery.Document, base *neturl.URL) (string, []string) {
	for _, sel := range e.Selectors.Content {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		md, images := markdownFromNode(s.Nodes[0], base)
		if strings.TrimSpace(md) != "" {
			return md, images
		}
	}
	return "", nil
}

// firstValue resolves a selector list to its first non-empty value. Meta
// tags yield their content attribute, time elements their datetime
// attribute, everything else its text.
func firstValue(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		var v string
		switch {
		case strings.HasPrefix(sel, "meta"):
			v = s.AttrOr("content", "")
		case strings.HasPrefix(sel, "time"):
			v = s.AttrOr("datetime", s.Text())
		default:
			v = s.Text()
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
