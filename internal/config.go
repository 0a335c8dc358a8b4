package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/llm/provider"
	"github.com/starford/dossier/internal/rag"
	"github.com/starford/dossier/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Rerank modes.
const (
	RerankCrossEncoder = "cross-encoder"
	RerankLLM          = "llm"
	RerankKeyword      = "keyword"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Documents  DocumentsConfig   `yaml:"documents"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Watcher    WatcherConfig     `yaml:"watcher"`
	Indexer    IndexerConfig     `yaml:"indexer"`
	Metadata   MetadataConfig    `yaml:"metadata"`
	Models     ModelsConfig      `yaml:"models"`
	Generation GenerationConfig  `yaml:"generation"`
	Rerank     RerankConfig      `yaml:"rerank"`
	Retrieval  RetrievalConfig   `yaml:"retrieval"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Documents, &c.SQLite, &c.Auth, &c.Watcher, &c.Indexer,
		&c.Models, &c.Generation, &c.Rerank, &c.Retrieval,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DocumentsConfig holds the path to the watched document root.
type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the documents configuration.
func (c *DocumentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatcherConfig tunes change detection.
type WatcherConfig struct {
	QuietWindow time.Duration `yaml:"quiet_window"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	QueueSize   int           `yaml:"queue_size"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.QuietWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.QueueSize, validation.Min(0)),
	)
}

func (c *WatcherConfig) watcher() watcher.Config {
	return watcher.Config{QuietWindow: c.QuietWindow, SettleDelay: c.SettleDelay, QueueSize: c.QueueSize}
}

// IndexerConfig controls chunking and stale-entry handling.
type IndexerConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap int  `yaml:"chunk_overlap"`
	PurgeStale   bool `yaml:"purge_stale"`
}

// Validate validates the indexer configuration.
func (c *IndexerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ChunkOverlap, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return errors.New("indexer: chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// MetadataConfig holds the optional JSON mirror of the metadata records.
type MetadataConfig struct {
	JSONPath string `yaml:"json_path"`
}

// ModelsConfig selects the embedding and generation backend.
type ModelsConfig struct {
	Provider        string        `yaml:"provider"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	EmbeddingModel  string        `yaml:"embedding_model"`
	GenerationModel string        `yaml:"generation_model"`
	EmbedRPS        float64       `yaml:"embed_rps"`
	EmbedBatch      int           `yaml:"embed_batch"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Validate validates the models configuration.
func (c *ModelsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(provider.Ollama, provider.OpenAI, provider.Gemini)),
		validation.Field(&c.EmbeddingModel, validation.Required),
		validation.Field(&c.GenerationModel, validation.Required),
		validation.Field(&c.APIKey, validation.When(c.Provider == provider.Gemini, validation.Required)),
		validation.Field(&c.EmbedRPS, validation.Min(0.0)),
		validation.Field(&c.EmbedBatch, validation.Min(0)),
	)
}

// GenerationConfig holds the sampling options sent with every generation.
type GenerationConfig struct {
	NumCtx      int     `yaml:"num_ctx"`
	Temperature float64 `yaml:"temperature"`
	TopK        int     `yaml:"top_k"`
	NumPredict  int     `yaml:"num_predict"`
}

// Validate validates the generation configuration.
func (c *GenerationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NumCtx, validation.Min(0)),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.TopK, validation.Min(0)),
		validation.Field(&c.NumPredict, validation.Min(0)),
	)
}

func (c *GenerationConfig) options() llm.Options {
	return llm.Options{NumCtx: c.NumCtx, Temperature: c.Temperature, TopK: c.TopK, MaxTokens: c.NumPredict}
}

// RerankConfig selects the reranker. URL is the cross-encoder server.
type RerankConfig struct {
	Mode    string `yaml:"mode"`
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
	Workers int    `yaml:"workers"`
}

// Validate validates the rerank configuration.
func (c *RerankConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(RerankCrossEncoder, RerankLLM, RerankKeyword)),
		validation.Field(&c.URL, validation.When(c.Mode == RerankCrossEncoder, validation.Required)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// RetrievalConfig holds the search and context limits.
type RetrievalConfig struct {
	K             int `yaml:"k"`
	FileK         int `yaml:"file_k"`
	TopN          int `yaml:"top_n"`
	ContextBudget int `yaml:"context_budget"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.K, validation.Required, validation.Min(1)),
		validation.Field(&c.FileK, validation.Required, validation.Min(1)),
		validation.Field(&c.TopN, validation.Required, validation.Min(1)),
		validation.Field(&c.ContextBudget, validation.Required, validation.Min(1)),
	)
}

func (c *RetrievalConfig) rag() rag.Config {
	return rag.Config{K: c.K, FileK: c.FileK, TopN: c.TopN, Budget: c.ContextBudget}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	w := watcher.DefaultConfig()
	r := rag.DefaultConfig()
	opts := llm.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Documents: DocumentsConfig{
			Path: "./documents",
		},
		SQLite: SQLiteConfig{
			Path: "./dossier.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watcher: WatcherConfig{
			QuietWindow: w.QuietWindow,
			SettleDelay: w.SettleDelay,
			QueueSize:   w.QueueSize,
		},
		Indexer: IndexerConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			PurgeStale:   true,
		},
		Models: ModelsConfig{
			Provider:        provider.Ollama,
			BaseURL:         "http://localhost:11434",
			EmbeddingModel:  "nomic-embed-text",
			GenerationModel: "llama3.2:3b-instruct-q4_K_M",
			EmbedRPS:        10,
			EmbedBatch:      32,
			Timeout:         120 * time.Second,
		},
		Generation: GenerationConfig{
			NumCtx:      opts.NumCtx,
			Temperature: opts.Temperature,
			TopK:        opts.TopK,
			NumPredict:  opts.MaxTokens,
		},
		Rerank: RerankConfig{
			Mode:  RerankCrossEncoder,
			URL:   "http://localhost:8081",
			Model: "BAAI/bge-reranker-v2-m3",
		},
		Retrieval: RetrievalConfig{
			K:             r.K,
			FileK:         r.FileK,
			TopN:          r.TopN,
			ContextBudget: r.Budget,
		},
	}
}
