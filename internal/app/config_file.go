package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema. Nested
// sections map naturally to the dotted flag names.
type FileConfig struct {
	LLM struct {
		BaseURL        string `yaml:"base" json:"base"`
		Model          string `yaml:"model" json:"model"`
		APIKey         string `yaml:"key" json:"key"`
		EmbeddingModel string `yaml:"embeddingModel" json:"embeddingModel"`
		AudioModel     string `yaml:"audioModel" json:"audioModel"`
	} `yaml:"llm" json:"llm"`

	Render struct {
		URL        string `yaml:"url" json:"url"`
		WaitMillis int    `yaml:"waitMillis" json:"waitMillis"`
	} `yaml:"render" json:"render"`

	GitHub struct {
		Repo   string `yaml:"repo" json:"repo"`
		Branch string `yaml:"branch" json:"branch"`
		Token  string `yaml:"token" json:"token"`
	} `yaml:"github" json:"github"`

	Docstore struct {
		URL       string `yaml:"url" json:"url"`
		Token     string `yaml:"token" json:"token"`
		AppID     string `yaml:"appId" json:"appId"`
		AppSecret string `yaml:"appSecret" json:"appSecret"`
		Space     string `yaml:"space" json:"space"`
		Fallback  string `yaml:"fallback" json:"fallback"`
	} `yaml:"docstore" json:"docstore"`

	Classify struct {
		Strategy  string  `yaml:"strategy" json:"strategy"`
		Threshold float64 `yaml:"threshold" json:"threshold"`
		RateLimit float64 `yaml:"rateLimit" json:"rateLimit"`
	} `yaml:"classify" json:"classify"`

	Media struct {
		YTDLPPath string `yaml:"ytdlpPath" json:"ytdlpPath"`
	} `yaml:"media" json:"media"`

	UserAgent    string        `yaml:"userAgent" json:"userAgent"`
	RunBudget    time.Duration `yaml:"runBudget" json:"runBudget"`
	MaxAttempts  int           `yaml:"maxAttempts" json:"maxAttempts"`
	BaseDelay    time.Duration `yaml:"baseDelay" json:"baseDelay"`
	WorkRoot     string        `yaml:"workRoot" json:"workRoot"`
	ImageWorkers int           `yaml:"imageWorkers" json:"imageWorkers"`
	Verbose      bool          `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields
// that are currently unset/zero in cfg. Flags should already have been
// parsed; file config supplies defaults while explicit flags win.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	// Defaults from flag parsing that file config may override when the
	// flags were not set explicitly.
	const (
		strategyDefault  = "embedding"
		userAgentDefault = "gocollect/1.0 (+https://github.com/hyperifyio/gocollect)"
	)

	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if cfg.EmbeddingModel == "" && fc.LLM.EmbeddingModel != "" {
		cfg.EmbeddingModel = fc.LLM.EmbeddingModel
	}
	if cfg.AudioModel == "" && fc.LLM.AudioModel != "" {
		cfg.AudioModel = fc.LLM.AudioModel
	}

	if cfg.RenderURL == "" && fc.Render.URL != "" {
		cfg.RenderURL = fc.Render.URL
	}
	if cfg.RenderWaitMillis == 0 && fc.Render.WaitMillis > 0 {
		cfg.RenderWaitMillis = fc.Render.WaitMillis
	}

	if cfg.GitHubRepo == "" && fc.GitHub.Repo != "" {
		cfg.GitHubRepo = fc.GitHub.Repo
	}
	if cfg.GitHubBranch == "" && fc.GitHub.Branch != "" {
		cfg.GitHubBranch = fc.GitHub.Branch
	}
	if cfg.GitHubToken == "" && fc.GitHub.Token != "" {
		cfg.GitHubToken = fc.GitHub.Token
	}

	if cfg.DocstoreURL == "" && fc.Docstore.URL != "" {
		cfg.DocstoreURL = fc.Docstore.URL
	}
	if cfg.DocstoreToken == "" && fc.Docstore.Token != "" {
		cfg.DocstoreToken = fc.Docstore.Token
	}
	if cfg.DocstoreAppID == "" && fc.Docstore.AppID != "" {
		cfg.DocstoreAppID = fc.Docstore.AppID
	}
	if cfg.DocstoreAppSecret == "" && fc.Docstore.AppSecret != "" {
		cfg.DocstoreAppSecret = fc.Docstore.AppSecret
	}
	if cfg.SpaceID == "" && fc.Docstore.Space != "" {
		cfg.SpaceID = fc.Docstore.Space
	}
	if cfg.FallbackName == "" && fc.Docstore.Fallback != "" {
		cfg.FallbackName = fc.Docstore.Fallback
	}

	if (cfg.ClassifyStrategy == "" || cfg.ClassifyStrategy == strategyDefault) && fc.Classify.Strategy != "" {
		cfg.ClassifyStrategy = fc.Classify.Strategy
	}
	if cfg.MatchThreshold == 0 && fc.Classify.Threshold > 0 {
		cfg.MatchThreshold = fc.Classify.Threshold
	}
	if cfg.EmbedRateLimit == 0 && fc.Classify.RateLimit > 0 {
		cfg.EmbedRateLimit = fc.Classify.RateLimit
	}

	if cfg.YTDLPPath == "" && fc.Media.YTDLPPath != "" {
		cfg.YTDLPPath = fc.Media.YTDLPPath
	}

	if (cfg.UserAgent == "" || cfg.UserAgent == userAgentDefault) && fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if cfg.RunBudget == 0 && fc.RunBudget > 0 {
		cfg.RunBudget = fc.RunBudget
	}
	if cfg.MaxAttempts == 0 && fc.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
	if cfg.BaseDelay == 0 && fc.BaseDelay > 0 {
		cfg.BaseDelay = fc.BaseDelay
	}
	if cfg.WorkRoot == "" && fc.WorkRoot != "" {
		cfg.WorkRoot = fc.WorkRoot
	}
	if cfg.ImageWorkers == 0 && fc.ImageWorkers > 0 {
		cfg.ImageWorkers = fc.ImageWorkers
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}
