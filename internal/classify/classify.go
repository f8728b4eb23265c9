// Package classify maps an extracted title to the best-fit leaf directory
// of the taxonomy, or to the fallback bucket when nothing matches with
// enough confidence. Two interchangeable matching strategies sit behind the
// same contract: embedding cosine similarity and LLM name selection.
package classify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// ErrQuotaExceeded marks a rate-limit/quota response from the matching
// backend. It is never retried; classification degrades to the fallback
// bucket instead.
var ErrQuotaExceeded = errors.New("classification quota exceeded")

// Band is the discrete confidence label derived from a continuous score.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor buckets a score: high ≥0.85, medium ∈[0.70,0.85), low <0.70.
func BandFor(score float64) Band {
	switch {
	case score >= 0.85:
		return BandHigh
	case score >= 0.70:
		return BandMedium
	default:
		return BandLow
	}
}

// Result is the outcome of one classification.
type Result struct {
	Target     taxonomy.Node
	Confidence float64
	Matched    bool
	Band       Band
}

// Matcher scores a title against candidate leaves. Candidates exclude the
// fallback bucket by construction; implementations wrap their own network
// calls with the retry framework.
type Matcher interface {
	Match(ctx context.Context, title string, candidates []taxonomy.Node) (Result, error)
}

// Classifier wraps a Matcher with the degraded default: any error, and any
// below-threshold match, lands in the fallback bucket. Classify never
// returns an error.
type Classifier struct {
	Matcher  Matcher
	Fallback taxonomy.Node
}

func (c *Classifier) Classify(ctx context.Context, title string, candidates []taxonomy.Node) Result {
	if len(candidates) == 0 {
		log.Warn().Msg("no classification candidates; using fallback bucket")
		return c.fallback(0)
	}
	res, err := c.Matcher.Match(ctx, title, candidates)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			log.Error().Err(err).Msg("classification quota exceeded; using fallback bucket")
		} else {
			log.Error().Err(err).Msg("classification failed; using fallback bucket")
		}
		return c.fallback(0)
	}
	if !res.Matched {
		log.Info().Str("title", title).Float64("score", res.Confidence).
			Msg("no confident match; using fallback bucket")
		return c.fallback(res.Confidence)
	}
	log.Info().Str("title", title).Str("target", res.Target.Name).
		Float64("score", res.Confidence).Str("band", string(res.Band)).Msg("classified")
	return res
}

func (c *Classifier) fallback(score float64) Result {
	return Result{Target: c.Fallback, Confidence: score, Matched: false, Band: BandFor(score)}
}
