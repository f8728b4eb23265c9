// Package pipeline sequences one ingestion run: resolve the source kind,
// extract content, rehost images, classify and publish. Run always returns
// an Outcome for expected failure modes; degraded defaults (fallback
// bucket, dropped images, degraded extraction strategy) absorb stage-local
// errors, and only extraction exhaustion, publish failure and budget
// expiry end a run without a document.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/classify"
	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/publish"
	"github.com/hyperifyio/gocollect/internal/rehost"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// SourceRequest is the immutable input of one run. RawText is whatever free
// text surrounded the URL upstream; the pipeline ignores it.
type SourceRequest struct {
	URL     string
	RawText string
}

// Stage identifies where in the run an error was recorded.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageExtract  Stage = "extract"
	StageImages   Stage = "images"
	StageClassify Stage = "classify"
	StagePublish  Stage = "publish"
)

// StageError is one recorded failure. Non-fatal entries document degraded
// results; fatal ones explain why no document was published.
type StageError struct {
	Stage Stage
	Err   error
}

func (e StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e StageError) Unwrap() error { return e.Err }

// Outcome is the terminal result of a run. PublishedRef is empty when the
// run failed; Errors keeps every recorded failure in stage order.
type Outcome struct {
	Content        *extract.ContentRecord
	Classification classify.Result
	PublishedRef   string
	Errors         []StageError
}

// Published reports whether the run ended with a created document.
func (o *Outcome) Published() bool { return o.PublishedRef != "" }

// Pipeline wires the stages together. All fields must be set except
// RunBudget, which defaults to 10 minutes.
type Pipeline struct {
	Extract   *extract.Chain
	Rehost    *rehost.Rehoster
	Taxonomy  taxonomy.Provider
	Matcher   classify.Matcher
	Publisher *publish.Publisher

	// SpaceID selects the knowledge space whose taxonomy is the
	// classification target set.
	SpaceID string
	// FallbackName is the depth-1 bucket for unmatched content. Its
	// absence from the taxonomy fails the run before extraction starts.
	FallbackName string

	// RunBudget bounds the whole run's wall clock. A stuck collaborator
	// cannot hold a run open past it.
	RunBudget time.Duration
	// Retry applies to the per-run taxonomy listing.
	Retry retry.Policy
}

const defaultRunBudget = 10 * time.Minute

// Run executes the stage sequence for one request.
func (p *Pipeline) Run(ctx context.Context, req SourceRequest) Outcome {
	budget := p.RunBudget
	if budget <= 0 {
		budget = defaultRunBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	runID := uuid.NewString()
	logger := log.With().Str("run", runID).Str("url", req.URL).Logger()

	var out Outcome
	fail := func(stage Stage, err error) Outcome {
		if ctx.Err() != nil {
			err = fmt.Errorf("run budget exceeded: %w", err)
		}
		out.Errors = append(out.Errors, StageError{Stage: stage, Err: err})
		logger.Error().Err(err).Str("stage", string(stage)).Msg("run failed")
		return out
	}

	// The taxonomy snapshot is fetched fresh every run so edits take
	// effect immediately. A missing fallback bucket means there is
	// nowhere to file unmatched content, so the run stops before any
	// extraction work.
	snap, err := retry.Do(ctx, p.Retry, "taxonomy snapshot", func(ctx context.Context) (taxonomy.Snapshot, error) {
		return taxonomy.Load(ctx, p.Taxonomy, p.SpaceID, p.FallbackName)
	})
	if err != nil {
		return fail(StageResolve, err)
	}

	logger.Info().Int("candidates", len(snap.Candidates)).Msg("run started")

	rec, err := p.Extract.Extract(ctx, req.URL)
	if err != nil {
		return fail(StageExtract, err)
	}
	out.Content = rec
	defer func() { removeLocalFiles(rec.Images) }()

	survivors := p.Rehost.Rehost(ctx, rec.Images)
	for _, dropped := range droppedImages(rec.Images, survivors) {
		out.Errors = append(out.Errors, StageError{
			Stage: StageImages,
			Err:   fmt.Errorf("image dropped: %s", dropped),
		})
	}
	rec.Body = rehost.RewriteBody(rec.Body, survivors)
	rec.Images = survivors

	classifier := &classify.Classifier{Matcher: p.Matcher, Fallback: snap.Fallback}
	res := classifier.Classify(ctx, rec.Title, snap.Candidates)
	out.Classification = res
	if !res.Matched {
		out.Errors = append(out.Errors, StageError{
			Stage: StageClassify,
			Err:   fmt.Errorf("no confident match; filing under %q", snap.Fallback.Name),
		})
	}

	// A run that already blew its budget must not publish a document
	// assembled from whatever the earlier stages managed to finish.
	if err := ctx.Err(); err != nil {
		return fail(StagePublish, fmt.Errorf("publish skipped: %w", err))
	}

	ref, err := p.Publisher.Publish(ctx, rec, res.Target, req.URL)
	if err != nil {
		return fail(StagePublish, err)
	}
	out.PublishedRef = ref
	logger.Info().Str("ref", ref).Str("directory", res.Target.Name).
		Int("images", len(survivors)).Msg("run published")
	return out
}

// droppedImages lists original URLs present in before but not in after.
func droppedImages(before, after []extract.ImageRef) []string {
	kept := make(map[string]bool, len(after))
	for _, img := range after {
		kept[img.OriginalURL] = true
	}
	var dropped []string
	for _, img := range before {
		if !kept[img.OriginalURL] {
			dropped = append(dropped, img.OriginalURL)
		}
	}
	return dropped
}

func removeLocalFiles(images []extract.ImageRef) {
	for _, img := range images {
		if img.LocalPath != "" {
			_ = os.Remove(img.LocalPath)
		}
	}
}
