package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/dossier/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Watcher.QuietWindow != 5*time.Second || cfg.Watcher.SettleDelay != 500*time.Millisecond {
		t.Errorf("watcher = %+v", cfg.Watcher)
	}
	if !cfg.Indexer.PurgeStale {
		t.Error("purge_stale should default to true")
	}
	if cfg.Retrieval.rag().Budget != 1500 || cfg.Generation.options().MaxTokens != 300 {
		t.Errorf("retrieval = %+v, generation = %+v", cfg.Retrieval, cfg.Generation)
	}
}

func TestIndexerConfig_OverlapMustBeSmaller(t *testing.T) {
	cfg := IndexerConfig{ChunkSize: 100, ChunkOverlap: 100}
	if err := cfg.Validate(); err == nil {
		t.Fatal("overlap equal to size should fail")
	}
}

func TestRerankConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     RerankConfig
		wantErr bool
	}{
		{"cross-encoder with url", RerankConfig{Mode: RerankCrossEncoder, URL: "http://tei:80"}, false},
		{"cross-encoder without url", RerankConfig{Mode: RerankCrossEncoder}, true},
		{"keyword", RerankConfig{Mode: RerankKeyword}, false},
		{"llm", RerankConfig{Mode: RerankLLM, Workers: 2}, false},
		{"unknown", RerankConfig{Mode: "magic"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestModelsConfig_GeminiNeedsKey(t *testing.T) {
	cfg := NewDefaultConfig().Models
	cfg.Provider = "gemini"
	if err := cfg.Validate(); err == nil {
		t.Fatal("gemini without api_key should fail")
	}
	cfg.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("gemini with api_key: %v", err)
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	t.Setenv("DOSSIER_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `app:
  log_level: debug
  http:
    port: 9090
documents:
  path: /srv/dossiers
auth:
  mode: token
  token: ${DOSSIER_TEST_TOKEN}
watcher:
  quiet_window: 2s
rerank:
  mode: keyword
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Address() != ":9090" || cfg.Documents.Path != "/srv/dossiers" {
		t.Errorf("app = %+v, documents = %+v", cfg.App, cfg.Documents)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Watcher.QuietWindow != 2*time.Second || cfg.Watcher.SettleDelay != 500*time.Millisecond {
		t.Errorf("watcher = %+v", cfg.Watcher)
	}
	if cfg.Rerank.Mode != RerankKeyword || cfg.Models.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("rerank = %+v, models = %+v", cfg.Rerank, cfg.Models)
	}
}
