package app

import (
	"os"
	"strconv"
)

// ApplyEnvToConfig populates unset fields of cfg from environment
// variables. Explicit cfg values take precedence over env. Secrets are
// usually delivered this way (dotenv file or CI secret store).
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = os.Getenv("LLM_MODEL")
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = os.Getenv("EMBEDDING_MODEL")
	}

	if cfg.RenderURL == "" {
		cfg.RenderURL = os.Getenv("RENDER_URL")
	}

	if cfg.GitHubRepo == "" {
		cfg.GitHubRepo = os.Getenv("IMAGE_GITHUB_REPO")
	}
	if cfg.GitHubBranch == "" {
		cfg.GitHubBranch = os.Getenv("IMAGE_GITHUB_BRANCH")
	}
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("IMAGE_GITHUB_TOKEN")
	}

	if cfg.DocstoreURL == "" {
		cfg.DocstoreURL = os.Getenv("DOCSTORE_URL")
	}
	if cfg.DocstoreToken == "" {
		cfg.DocstoreToken = os.Getenv("DOCSTORE_TOKEN")
	}
	if cfg.DocstoreAppID == "" {
		cfg.DocstoreAppID = os.Getenv("DOCSTORE_APP_ID")
	}
	if cfg.DocstoreAppSecret == "" {
		cfg.DocstoreAppSecret = os.Getenv("DOCSTORE_APP_SECRET")
	}
	if cfg.SpaceID == "" {
		cfg.SpaceID = os.Getenv("DOCSTORE_SPACE_ID")
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = os.Getenv("DOCSTORE_FALLBACK")
	}

	if cfg.MatchThreshold == 0 {
		if v := os.Getenv("MATCH_THRESHOLD"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				cfg.MatchThreshold = f
			}
		}
	}
}
