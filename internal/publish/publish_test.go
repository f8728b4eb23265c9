package publish

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

type fakeStore struct {
	parentID string
	title    string
	content  string
	calls    int
	errs     []error
}

func (f *fakeStore) CreateDocument(ctx context.Context, parentID, title, content string) (string, error) {
	f.calls++
	f.parentID, f.title, f.content = parentID, title, content
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "https://wiki.example.com/doc1", nil
}

func record() *extract.ContentRecord {
	return &extract.ContentRecord{
		Title:       "2026年中国AI市场规模预测",
		Author:      "张三",
		PublishedAt: "2026-03-01",
		Body:        "正文第一段。\n\n![](https://cdn.example.com/a.jpg)",
		Images: []extract.ImageRef{
			{OriginalURL: "https://origin.example.com/a.jpg", HostedURL: "https://cdn.example.com/a.jpg"},
		},
	}
}

func TestPublishAssemblesTrailer(t *testing.T) {
	store := &fakeStore{}
	p := &Publisher{Store: store, Retry: retry.Policy{MaxAttempts: 1}}

	ref, err := p.Publish(context.Background(), record(), taxonomy.Node{ID: "n-ai", Name: "AI产品", Depth: 2}, "https://mp.weixin.qq.com/s/abc")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ref != "https://wiki.example.com/doc1" {
		t.Errorf("ref = %q", ref)
	}
	if store.parentID != "n-ai" {
		t.Errorf("parentID = %q", store.parentID)
	}
	if store.calls != 1 {
		t.Errorf("calls = %d, want 1", store.calls)
	}

	body, trailer, ok := strings.Cut(store.content, "\n---\n")
	if !ok {
		t.Fatalf("content missing metadata separator:\n%s", store.content)
	}
	if !strings.HasPrefix(body, "# 2026年中国AI市场规模预测\n") {
		t.Errorf("body missing title heading:\n%s", body)
	}
	if !strings.Contains(body, "正文第一段。") {
		t.Errorf("body missing content:\n%s", body)
	}
	for _, want := range []string{
		"**作者**: 张三",
		"**发布日期**: 2026-03-01",
		"**原文链接**: https://mp.weixin.qq.com/s/abc",
		"**图片**: 1 张已转存",
	} {
		if !strings.Contains(trailer, want) {
			t.Errorf("trailer missing %q:\n%s", want, trailer)
		}
	}
}

func TestPublishOmitsMissingMetadata(t *testing.T) {
	store := &fakeStore{}
	p := &Publisher{Store: store, Retry: retry.Policy{MaxAttempts: 1}}
	rec := &extract.ContentRecord{Title: "t", Body: "b"}

	if _, err := p.Publish(context.Background(), rec, taxonomy.Node{ID: "n"}, ""); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for _, absent := range []string{"**作者**", "**发布日期**", "**原文链接**", "**图片**"} {
		if strings.Contains(store.content, absent) {
			t.Errorf("content should omit %q:\n%s", absent, store.content)
		}
	}
}

func TestPublishRetriesTransientStoreFailure(t *testing.T) {
	store := &fakeStore{errs: []error{errors.New("status 502")}}
	p := &Publisher{Store: store, Retry: retry.Policy{MaxAttempts: 3, BaseDelay: 1}}

	if _, err := p.Publish(context.Background(), record(), taxonomy.Node{ID: "n"}, ""); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if store.calls != 2 {
		t.Errorf("calls = %d, want 2", store.calls)
	}
}

func TestPublishEmptyTitleRefused(t *testing.T) {
	store := &fakeStore{}
	p := &Publisher{Store: store, Retry: retry.Policy{MaxAttempts: 3}}
	rec := &extract.ContentRecord{Title: "  ", Body: "b"}

	if _, err := p.Publish(context.Background(), rec, taxonomy.Node{ID: "n"}, ""); err == nil {
		t.Fatal("want error for empty title")
	}
	if store.calls != 0 {
		t.Errorf("store called %d times for an unpublishable record", store.calls)
	}
}
