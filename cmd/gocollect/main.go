package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gocollect/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Secrets usually arrive via a local .env during development; absence
	// is not an error.
	_ = godotenv.Load()

	var (
		configPath string

		llmBaseURL     string
		llmModel       string
		llmKey         string
		embeddingModel string
		audioModel     string

		renderURL        string
		renderWaitMillis int

		githubRepo   string
		githubBranch string
		githubToken  string

		docstoreURL       string
		docstoreToken     string
		docstoreAppID     string
		docstoreAppSecret string
		docstoreSpace     string
		docstoreFallback  string

		classifyStrategy  string
		classifyThreshold float64
		classifyRateLimit float64

		ytdlpPath string

		userAgent   string
		runBudget   time.Duration
		maxAttempts int
		baseDelay   time.Duration
		workRoot    string
		workers     int
		verbose     bool
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML or JSON config file")
	flag.StringVar(&llmBaseURL, "llm.base", os.Getenv("LLM_BASE_URL"), "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", os.Getenv("LLM_MODEL"), "Chat model for transcript reformatting and LLM classification")
	flag.StringVar(&llmKey, "llm.key", os.Getenv("LLM_API_KEY"), "API key for OpenAI-compatible server")
	flag.StringVar(&embeddingModel, "llm.embeddingModel", os.Getenv("EMBEDDING_MODEL"), "Embedding model for similarity classification")
	flag.StringVar(&audioModel, "llm.audioModel", "", "Transcription model (default whisper-1)")
	flag.StringVar(&renderURL, "render.url", os.Getenv("RENDER_URL"), "Headless-browser render service base URL; empty scrapes without a browser")
	flag.IntVar(&renderWaitMillis, "render.waitMillis", 0, "Settle delay after page load, milliseconds")
	flag.StringVar(&githubRepo, "github.repo", os.Getenv("IMAGE_GITHUB_REPO"), "GitHub repo (owner/name) for rehosted images")
	flag.StringVar(&githubBranch, "github.branch", "", "Branch for rehosted images (default main)")
	flag.StringVar(&githubToken, "github.token", os.Getenv("IMAGE_GITHUB_TOKEN"), "GitHub token with contents write access")
	flag.StringVar(&docstoreURL, "docstore.url", os.Getenv("DOCSTORE_URL"), "Document store API base URL")
	flag.StringVar(&docstoreToken, "docstore.token", os.Getenv("DOCSTORE_TOKEN"), "Document store access token")
	flag.StringVar(&docstoreAppID, "docstore.appId", os.Getenv("DOCSTORE_APP_ID"), "App ID for tenant token exchange (alternative to docstore.token)")
	flag.StringVar(&docstoreAppSecret, "docstore.appSecret", os.Getenv("DOCSTORE_APP_SECRET"), "App secret for tenant token exchange")
	flag.StringVar(&docstoreSpace, "docstore.space", os.Getenv("DOCSTORE_SPACE_ID"), "Knowledge space ID holding the directory taxonomy")
	flag.StringVar(&docstoreFallback, "docstore.fallback", "", "Name of the depth-1 bucket for unmatched content (default 待整理)")
	flag.StringVar(&classifyStrategy, "classify.strategy", "embedding", "Classification strategy: embedding or llm")
	flag.Float64Var(&classifyThreshold, "classify.threshold", 0, "Minimum similarity score to accept a match (default 0.70)")
	flag.Float64Var(&classifyRateLimit, "classify.rateLimit", 0, "Embedding calls per second (0 disables pacing)")
	flag.StringVar(&ytdlpPath, "media.ytdlp", "", "Path to the yt-dlp binary (default from PATH)")
	flag.StringVar(&userAgent, "ua", "gocollect/1.0 (+https://github.com/hyperifyio/gocollect)", "User-Agent for outbound HTTP requests")
	flag.DurationVar(&runBudget, "budget", 0, "Wall-clock budget for the whole run (default 10m)")
	flag.IntVar(&maxAttempts, "retry.maxAttempts", 0, "Attempts per network operation (default 3)")
	flag.DurationVar(&baseDelay, "retry.baseDelay", 0, "Base backoff delay (default 2s)")
	flag.StringVar(&workRoot, "workdir", "", "Root directory for transient files (default system temp)")
	flag.IntVar(&workers, "images.workers", 0, "Image download/upload pool size (default 4)")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	url := flag.Arg(0)
	if url == "" {
		fmt.Fprintln(os.Stderr, "usage: gocollect [flags] <url>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := app.Config{
		LLMBaseURL:        llmBaseURL,
		LLMModel:          llmModel,
		LLMAPIKey:         llmKey,
		EmbeddingModel:    embeddingModel,
		AudioModel:        audioModel,
		RenderURL:         renderURL,
		RenderWaitMillis:  renderWaitMillis,
		GitHubRepo:        githubRepo,
		GitHubBranch:      githubBranch,
		GitHubToken:       githubToken,
		DocstoreURL:       docstoreURL,
		DocstoreToken:     docstoreToken,
		DocstoreAppID:     docstoreAppID,
		DocstoreAppSecret: docstoreAppSecret,
		SpaceID:           docstoreSpace,
		FallbackName:      docstoreFallback,
		ClassifyStrategy:  classifyStrategy,
		MatchThreshold:    classifyThreshold,
		EmbedRateLimit:    classifyRateLimit,
		YTDLPPath:         ytdlpPath,
		UserAgent:         userAgent,
		RunBudget:         runBudget,
		MaxAttempts:       maxAttempts,
		BaseDelay:         baseDelay,
		WorkRoot:          workRoot,
		ImageWorkers:      workers,
		Verbose:           verbose,
	}

	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("config file unreadable")
			os.Exit(2)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvToConfig(&cfg)

	a, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		os.Exit(2)
	}
	defer a.Close()

	out, err := a.Run(context.Background(), url)
	if err != nil {
		log.Error().Err(err).Msg("ingestion failed")
		os.Exit(1)
	}
	for _, se := range out.Errors {
		log.Warn().Str("stage", string(se.Stage)).Err(se.Err).Msg("degraded")
	}
	fmt.Println(out.PublishedRef)
}
