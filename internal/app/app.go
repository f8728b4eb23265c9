// Package app wires configuration into a runnable ingestion pipeline.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/gocollect/internal/blob"
	"github.com/hyperifyio/gocollect/internal/classify"
	"github.com/hyperifyio/gocollect/internal/docstore"
	"github.com/hyperifyio/gocollect/internal/extract"
	"github.com/hyperifyio/gocollect/internal/fetch"
	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/media"
	"github.com/hyperifyio/gocollect/internal/pipeline"
	"github.com/hyperifyio/gocollect/internal/publish"
	"github.com/hyperifyio/gocollect/internal/rehost"
	"github.com/hyperifyio/gocollect/internal/render"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/source"
)

// App owns the wired pipeline and the run-scoped work directory.
type App struct {
	cfg     Config
	pipe    *pipeline.Pipeline
	workDir string
}

// New validates cfg, creates the work directory and wires every stage.
func New(cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workRoot := cfg.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	workDir := filepath.Join(workRoot, "gocollect-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	transportCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		transportCfg.BaseURL = cfg.LLMBaseURL
	}
	provider := &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(transportCfg)}

	policy := retry.Default
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}

	httpClient := &fetch.Client{
		UserAgent:         cfg.UserAgent,
		PerRequestTimeout: 60 * time.Second,
		MaxConcurrent:     8,
	}

	var backend render.Backend
	if cfg.RenderURL != "" {
		backend = &render.Service{
			BaseURL:    cfg.RenderURL,
			UserAgent:  cfg.UserAgent,
			WaitMillis: cfg.RenderWaitMillis,
		}
	} else {
		log.Warn().Msg("no render service configured; scraping without a browser")
		backend = &render.Static{Client: httpClient}
	}

	chain := &extract.Chain{
		Strategies: map[source.Kind]extract.Extractor{
			source.KindPage: &extract.PageExtractor{
				Backend:   backend,
				Selectors: extract.GenericSelectors,
				Retry:     policy,
			},
			source.KindArticle: &extract.PageExtractor{
				Backend:   backend,
				Selectors: extract.WeChatSelectors,
				Retry:     policy,
			},
			source.KindMedia: &extract.MediaExtractor{
				Fetcher:     &media.YTDLP{Binary: cfg.YTDLPPath},
				Transcriber: &media.OpenAITranscriber{Client: provider, Model: cfg.AudioModel},
				Chat:        provider,
				Model:       cfg.LLMModel,
				WorkDir:     workDir,
				Retry:       policy,
			},
		},
		Degrades: extract.DefaultDegrades(),
	}

	branch := cfg.GitHubBranch
	if branch == "" {
		branch = "main"
	}
	rehoster := &rehost.Rehoster{
		Client:  httpClient,
		Store:   &blob.GitHubStore{Repo: cfg.GitHubRepo, Branch: branch, Token: cfg.GitHubToken},
		CDNURL:  func(path string) string { return blob.JsDelivrURL(cfg.GitHubRepo, branch, path) },
		WorkDir: workDir,
		Workers: cfg.ImageWorkers,
		Retry:   policy,
	}

	store := &docstore.Client{BaseURL: cfg.DocstoreURL, Token: cfg.DocstoreToken}
	if cfg.DocstoreAppID != "" {
		store.Auth = &docstore.AppCredentials{
			AppID:     cfg.DocstoreAppID,
			AppSecret: cfg.DocstoreAppSecret,
			BaseURL:   cfg.DocstoreURL,
		}
	}

	threshold := cfg.MatchThreshold
	if threshold <= 0 {
		threshold = 0.70
	}
	fallbackName := cfg.FallbackName
	if fallbackName == "" {
		fallbackName = "待整理"
	}
	var matcher classify.Matcher
	if cfg.ClassifyStrategy == "llm" {
		matcher = &classify.LLMMatcher{
			Chat:        provider,
			Model:       cfg.LLMModel,
			AbstainName: fallbackName,
			Retry:       policy,
		}
	} else {
		var limiter *rate.Limiter
		if cfg.EmbedRateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), 1)
		}
		matcher = &classify.EmbeddingMatcher{
			Embedder:  provider,
			Model:     cfg.EmbeddingModel,
			Threshold: threshold,
			Limiter:   limiter,
			Retry:     policy,
		}
	}

	pipe := &pipeline.Pipeline{
		Extract:      chain,
		Rehost:       rehoster,
		Taxonomy:     store,
		Matcher:      matcher,
		Publisher:    &publish.Publisher{Store: store, Retry: policy},
		SpaceID:      cfg.SpaceID,
		FallbackName: fallbackName,
		RunBudget:    cfg.RunBudget,
		Retry:        policy,
	}

	return &App{cfg: cfg, pipe: pipe, workDir: workDir}, nil
}

// Run ingests one URL. The outcome is always returned; err is non-nil only
// when no document was published, so the CLI can apply its exit policy.
func (a *App) Run(ctx context.Context, url string) (pipeline.Outcome, error) {
	out := a.pipe.Run(ctx, pipeline.SourceRequest{URL: url})
	if !out.Published() {
		if len(out.Errors) > 0 {
			return out, out.Errors[len(out.Errors)-1]
		}
		return out, fmt.Errorf("run ended without a published document")
	}
	return out, nil
}

// Close removes the run's transient files.
func (a *App) Close() {
	if a.workDir != "" {
		_ = os.RemoveAll(a.workDir)
	}
}
