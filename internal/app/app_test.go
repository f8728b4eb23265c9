package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		LLMAPIKey:      "sk-test",
		EmbeddingModel: "bge-m3",
		GitHubRepo:     "owner/images",
		GitHubToken:    "ghp-test",
		DocstoreURL:    "https://open.example.com/open-apis",
		DocstoreToken:  "t-test",
		SpaceID:        "12345",
	}
}

func TestValidateListsAllMissing(t *testing.T) {
	err := Config{}.Validate()
	if err == nil {
		t.Fatal("want error for empty config")
	}
	for _, field := range []string{"docstore.url", "docstore.token", "docstore.space", "github.repo", "github.token", "llm.key", "llm.embeddingModel"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q missing field %q", err, field)
		}
	}
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := validConfig()
	cfg.ClassifyStrategy = "magic"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown classify strategy accepted")
	}
}

func TestValidateRequiresModelForStrategy(t *testing.T) {
	// The default strategy embeds candidate names, so an empty embedding
	// model would be sent verbatim to the backend.
	cfg := validConfig()
	cfg.EmbeddingModel = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "llm.embeddingModel") {
		t.Errorf("embedding strategy without model accepted: %v", err)
	}

	cfg = validConfig()
	cfg.ClassifyStrategy = "llm"
	cfg.EmbeddingModel = ""
	cfg.LLMModel = ""
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "llm.model") {
		t.Errorf("llm strategy without model accepted: %v", err)
	}
	cfg.LLMModel = "qwen2.5"
	if err := cfg.Validate(); err != nil {
		t.Errorf("llm strategy does not need an embedding model: %v", err)
	}
}

func TestValidateAcceptsAppCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.DocstoreToken = ""
	cfg.DocstoreAppID = "cli_app"
	cfg.DocstoreAppSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("app credential pair rejected: %v", err)
	}
	cfg.DocstoreAppSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("app id without secret accepted")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gocollect.yaml")
	content := `
llm:
  base: http://localhost:1234/v1
  model: qwen2.5
  embeddingModel: bge-m3
docstore:
  url: https://open.example.com/open-apis
  space: "12345"
  fallback: 待整理
classify:
  strategy: embedding
  threshold: 0.75
runBudget: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if fc.LLM.Model != "qwen2.5" || fc.Docstore.Fallback != "待整理" {
		t.Errorf("parsed = %+v", fc)
	}
	if fc.Classify.Threshold != 0.75 {
		t.Errorf("threshold = %v", fc.Classify.Threshold)
	}
	if fc.RunBudget != 5*time.Minute {
		t.Errorf("runBudget = %v", fc.RunBudget)
	}
}

func TestApplyFileConfigPreservesExplicitValues(t *testing.T) {
	var fc FileConfig
	fc.LLM.Model = "from-file"
	fc.Docstore.Space = "99999"
	fc.Classify.Threshold = 0.8

	cfg := Config{LLMModel: "from-flag"}
	ApplyFileConfig(&cfg, fc)

	if cfg.LLMModel != "from-flag" {
		t.Errorf("flag value overridden: %q", cfg.LLMModel)
	}
	if cfg.SpaceID != "99999" {
		t.Errorf("unset field not filled: %q", cfg.SpaceID)
	}
	if cfg.MatchThreshold != 0.8 {
		t.Errorf("threshold = %v", cfg.MatchThreshold)
	}
}

func TestApplyEnvToConfig(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-env")
	t.Setenv("DOCSTORE_SPACE_ID", "777")
	t.Setenv("MATCH_THRESHOLD", "0.72")

	cfg := Config{LLMAPIKey: "sk-explicit"}
	ApplyEnvToConfig(&cfg)

	if cfg.LLMAPIKey != "sk-explicit" {
		t.Errorf("explicit key overridden: %q", cfg.LLMAPIKey)
	}
	if cfg.SpaceID != "777" {
		t.Errorf("SpaceID = %q", cfg.SpaceID)
	}
	if cfg.MatchThreshold != 0.72 {
		t.Errorf("MatchThreshold = %v", cfg.MatchThreshold)
	}
}

func TestNewCreatesWorkDirAndCloseRemovesIt(t *testing.T) {
	cfg := validConfig()
	cfg.WorkRoot = t.TempDir()

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := os.Stat(a.workDir); err != nil {
		t.Fatalf("work dir missing: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(a.workDir), "gocollect-") {
		t.Errorf("work dir name = %q", a.workDir)
	}
	a.Close()
	if _, err := os.Stat(a.workDir); !os.IsNotExist(err) {
		t.Errorf("work dir still present after Close: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("want validation error")
	}
}
