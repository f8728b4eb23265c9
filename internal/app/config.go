package app

import (
	"fmt"
	"strings"
	"time"
)

// Config holds runtime configuration for the application.
type Config struct {
	// LLM (OpenAI-compatible backend)
	LLMBaseURL     string
	LLMModel       string
	LLMAPIKey      string
	EmbeddingModel string
	AudioModel     string

	// Render backend; empty means plain HTTP fetch without a browser.
	RenderURL        string
	RenderWaitMillis int

	// Blob storage / CDN
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string

	// Document store. Either a fixed token or an app id/secret pair that
	// the client exchanges for short-lived tokens.
	DocstoreURL       string
	DocstoreToken     string
	DocstoreAppID     string
	DocstoreAppSecret string
	SpaceID           string
	FallbackName      string

	// Classification
	ClassifyStrategy string // "embedding" or "llm"
	MatchThreshold   float64
	EmbedRateLimit   float64 // calls per second, 0 disables pacing

	// Media
	YTDLPPath string

	// Behavior
	UserAgent    string
	RunBudget    time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	WorkRoot     string
	ImageWorkers int
	Verbose      bool
}

// Validate reports every missing required field at once so a misconfigured
// deployment fails with one actionable message.
func (c Config) Validate() error {
	var missing []string
	if c.DocstoreURL == "" {
		missing = append(missing, "docstore.url")
	}
	if c.DocstoreToken == "" && (c.DocstoreAppID == "" || c.DocstoreAppSecret == "") {
		missing = append(missing, "docstore.token (or docstore.appId + docstore.appSecret)")
	}
	if c.SpaceID == "" {
		missing = append(missing, "docstore.space")
	}
	if c.GitHubRepo == "" {
		missing = append(missing, "github.repo")
	}
	if c.GitHubToken == "" {
		missing = append(missing, "github.token")
	}
	if c.LLMAPIKey == "" {
		missing = append(missing, "llm.key")
	}
	switch c.ClassifyStrategy {
	case "", "embedding":
		if c.EmbeddingModel == "" {
			missing = append(missing, "llm.embeddingModel")
		}
	case "llm":
		if c.LLMModel == "" {
			missing = append(missing, "llm.model")
		}
	default:
		return fmt.Errorf("unknown classify strategy %q (want embedding or llm)", c.ClassifyStrategy)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
