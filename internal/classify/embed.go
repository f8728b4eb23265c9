package classify

import (
	"context"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/text/width"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// EmbeddingMatcher scores candidates by cosine similarity between the
// title embedding and each candidate name embedding, picking the argmax.
type EmbeddingMatcher struct {
	Embedder llm.Embedder
	Model    string
	// Threshold is the minimum score for Matched. Tunable, not baked into
	// logic.
	Threshold float64
	// Limiter paces embedding calls against a rate-limited backend. Nil
	// means unpaced.
	Limiter *rate.Limiter
	Retry   retry.Policy
}

// Match embeds the title and all candidate names in one batch call.
func (m *EmbeddingMatcher) Match(ctx context.Context, title string, candidates []taxonomy.Node) (Result, error) {
	inputs := make([]string, 0, len(candidates)+1)
	inputs = append(inputs, foldWidth(title))
	for _, c := range candidates {
		inputs = append(inputs, foldWidth(c.Name))
	}

	resp, err := retry.Do(ctx, m.Retry, "embed", func(ctx context.Context) (openai.EmbeddingResponse, error) {
		// Each attempt takes a limiter token, retries included.
		if m.Limiter != nil {
			if err := m.Limiter.Wait(ctx); err != nil {
				return openai.EmbeddingResponse{}, err
			}
		}
		resp, err := m.Embedder.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: openai.EmbeddingModel(m.Model),
		})
		if err != nil && llm.IsQuotaError(err) {
			return resp, retry.Permanent(fmt.Errorf("%w: %v", ErrQuotaExceeded, err))
		}
		return resp, err
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Data) != len(inputs) {
		return Result{}, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(inputs))
	}

	titleVec := resp.Data[0].Embedding
	best := -1
	bestScore := math.Inf(-1)
	for i := range candidates {
		score := cosine(titleVec, resp.Data[i+1].Embedding)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return Result{}, fmt.Errorf("no candidates scored")
	}
	return Result{
		Target:     candidates[best],
		Confidence: bestScore,
		Matched:    bestScore >= m.Threshold,
		Band:       BandFor(bestScore),
	}, nil
}

// cosine clamps into [0, 1]; embedding backends occasionally return
// slightly out-of-range values near identical vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(magA)*math.Sqrt(magB))))
}

// foldWidth normalizes full-width characters so titles copied from CJK
// platforms embed consistently with candidate names.
func foldWidth(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}
