// Package publish assembles the final document from an extracted record and
// its classification target, and writes it to the document store. It is the
// only component allowed to create documents; a run either publishes a
// complete document or nothing at all.
package publish

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// Store creates documents in the external document store.
type Store interface {
	CreateDocument(ctx context.Context, parentID, title, content string) (ref string, err error)
}

// Publisher writes one document per run.
type Publisher struct {
	Store Store
	Retry retry.Policy
}

// Publish assembles the record into a document body with a trailing
// metadata block and creates it once under the target directory. The
// returned ref points at the created document.
func (p *Publisher) Publish(ctx context.Context, rec *extract.ContentRecord, target taxonomy.Node, sourceURL string) (string, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return "", retry.Permanent(fmt.Errorf("refusing to publish untitled document"))
	}
	content := assemble(rec, sourceURL)

	ref, err := retry.Do(ctx, p.Retry, "publish", func(ctx context.Context) (string, error) {
		return p.Store.CreateDocument(ctx, target.ID, title, content)
	})
	if err != nil {
		return "", fmt.Errorf("publish %q: %w", title, err)
	}
	log.Info().Str("title", title).Str("directory", target.Name).Str("ref", ref).Msg("published")
	return ref, nil
}

// assemble renders the document body followed by a metadata trailer. Only
// fields the extractor actually produced appear in the trailer.
func assemble(rec *extract.ContentRecord, sourceURL string) string {
	var b strings.Builder
	b.WriteString("# " + strings.TrimSpace(rec.Title) + "\n\n")
	b.WriteString(strings.TrimSpace(rec.Body))
	b.WriteString("\n\n---\n")

	if a := strings.TrimSpace(rec.Author); a != "" {
		b.WriteString("\n**作者**: " + a)
	}
	if d := strings.TrimSpace(rec.PublishedAt); d != "" {
		b.WriteString("\n**发布日期**: " + d)
	}
	if sourceURL != "" {
		b.WriteString("\n**原文链接**: " + sourceURL)
	}
	if hosted := countHosted(rec.Images); hosted > 0 {
		b.WriteString(fmt.Sprintf("\n**图片**: %d 张已转存", hosted))
	}
	b.WriteString("\n")
	return b.String()
}

func countHosted(images []extract.ImageRef) int {
	n := 0
	for _, img := range images {
		if img.HostedURL != "" {
			n++
		}
	}
	return n
}
