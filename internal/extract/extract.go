// Package extract turns a URL into a ContentRecord using source-specific
// strategies: generic browser-rendered pages, specialized article platforms
// with their own selector sets, and audio/video transcription. Strategy
// failure can degrade to another strategy through a declarative transition
// table rather than nested error recovery.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/source"
)

// ErrExhausted indicates the selected strategy and its fallback degrade
// both failed. This is fatal for the EXTRACT stage.
var ErrExhausted = errors.New("all extraction strategies exhausted")

// Extractor is one strategy. Implementations wrap their own network calls
// with the retry framework; the error returned here is terminal for the
// strategy.
type Extractor interface {
	Extract(ctx context.Context, url string) (*ContentRecord, error)
}

// DefaultDegrades is the strategy transition table: when the key strategy
// fails terminally, the chain retries the same URL with the value strategy.
// Media content degrades to a plain page scrape of the platform's page,
// which still yields a title and show notes when the audio track is
// unreachable.
func DefaultDegrades() map[source.Kind]source.Kind {
	return map[source.Kind]source.Kind{
		source.KindMedia: source.KindPage,
	}
}

// Chain resolves the strategy for a URL and walks the degrade table until a
// strategy succeeds or the table is exhausted.
type Chain struct {
	Strategies map[source.Kind]Extractor
	Degrades   map[source.Kind]source.Kind
}

func (c *Chain) Extract(ctx context.Context, url string) (*ContentRecord, error) {
	kind := source.Resolve(url)
	log.Debug().Str("url", url).Str("kind", string(kind)).Msg("source kind resolved")
	tried := make(map[source.Kind]bool)
	var lastErr error
	for {
		ext, ok := c.Strategies[kind]
		if !ok {
			return nil, fmt.Errorf("%w: no extractor for kind %q", ErrExhausted, kind)
		}
		rec, err := ext.Extract(ctx, url)
		if err == nil {
			rec.Kind = kind
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		tried[kind] = true

		next, ok := c.Degrades[kind]
		if !ok || tried[next] {
			return nil, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
		}
		log.Warn().Str("url", url).Str("from", string(kind)).Str("to", string(next)).
			Err(err).Msg("strategy failed; degrading")
		kind = next
	}
}
