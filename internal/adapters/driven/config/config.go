// Package config loads the typed Atlas configuration from a TOML file with
// environment overrides. The configuration is constructed once at process
// start and passed into each component's constructor; no component reads
// ambient global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the complete Atlas configuration.
type Config struct {
	// DataDir is where the SQLite databases live.
	// Defaults to ~/.atlas/data.
	DataDir string `toml:"data_dir"`

	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Corpus    CorpusConfig    `toml:"corpus"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Rerank    RerankConfig    `toml:"rerank"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Agent     AgentConfig     `toml:"agent"`
	Chunker   ChunkerConfig   `toml:"chunker"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address (default :8080).
	Addr string `toml:"addr"`
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	// Enabled turns JWT verification on. When false, requests run as a
	// fixed development user.
	Enabled bool `toml:"enabled"`

	// JWTSecret signs and verifies HS256 tokens.
	JWTSecret string `toml:"jwt_secret"`

	// ExpiryHours is the lifetime of issued tokens (default 72).
	ExpiryHours int `toml:"expiry_hours"`
}

// CorpusConfig points ingestion at its inputs.
type CorpusConfig struct {
	// Dir is the root of the category-folder document tree.
	Dir string `toml:"dir"`

	// KPIFile is the metric catalog CSV.
	KPIFile string `toml:"kpi_file"`

	// DirectoryFile is the people directory JSON.
	DirectoryFile string `toml:"directory_file"`
}

// EmbeddingConfig configures the embedding collaborator.
type EmbeddingConfig struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Dimensions        int     `toml:"dimensions"`
	BatchSize         int     `toml:"batch_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// LLMConfig configures the completion collaborator.
type LLMConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RerankConfig configures the optional rerank collaborator.
type RerankConfig struct {
	// Enabled turns reranking on. Requires an API key; without one the
	// engine silently keeps the RRF order.
	Enabled bool `toml:"enabled"`

	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	VectorLimit  int `toml:"vector_limit"`
	KeywordLimit int `toml:"keyword_limit"`
	FinalLimit   int `toml:"final_limit"`
	RRFK         int `toml:"rrf_k"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// MaxToolCalls caps tool invocations per turn (default 5).
	MaxToolCalls int `toml:"max_tool_calls"`
}

// ChunkerConfig tunes document chunking.
type ChunkerConfig struct {
	MinTokens int `toml:"min_tokens"`
	MaxTokens int `toml:"max_tokens"`
}

// DefaultPath returns the default config file location, ~/.atlas/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".atlas", "config.toml"), nil
}

// Load builds the configuration: defaults, then the TOML file (when it
// exists), then environment variables. A .env file next to the working
// directory is honoured for development.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it only exists in development setups.
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file yet - defaults plus environment is fine
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// defaults returns the baseline configuration.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Auth:   AuthConfig{ExpiryHours: 72},
		Embedding: EmbeddingConfig{
			Model:             "text-embedding-3-small",
			BatchSize:         64,
			RequestsPerSecond: 5,
		},
		LLM: LLMConfig{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 120,
		},
		Rerank: RerankConfig{
			Model:     "rerank-v3.5",
			TimeoutMS: 3000,
		},
		Retrieval: RetrievalConfig{
			VectorLimit:  10,
			KeywordLimit: 10,
			FinalLimit:   5,
			RRFK:         60,
		},
		Agent: AgentConfig{MaxToolCalls: 5},
		Chunker: ChunkerConfig{
			MinTokens: 300,
			MaxTokens: 500,
		},
	}
}

// applyEnv overlays environment variables. Secrets in particular should
// come from the environment rather than the config file.
func applyEnv(cfg *Config) {
	setString(&cfg.DataDir, "ATLAS_DATA_DIR")
	setString(&cfg.Server.Addr, "ATLAS_SERVER_ADDR")

	setBool(&cfg.Auth.Enabled, "ATLAS_AUTH_ENABLED")
	setString(&cfg.Auth.JWTSecret, "ATLAS_JWT_SECRET")

	setString(&cfg.Corpus.Dir, "ATLAS_CORPUS_DIR")
	setString(&cfg.Corpus.KPIFile, "ATLAS_KPI_FILE")
	setString(&cfg.Corpus.DirectoryFile, "ATLAS_DIRECTORY_FILE")

	setString(&cfg.Embedding.APIKey, "ATLAS_OPENAI_API_KEY")
	setString(&cfg.Embedding.BaseURL, "ATLAS_OPENAI_BASE_URL")
	setString(&cfg.LLM.APIKey, "ATLAS_OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "ATLAS_OPENAI_BASE_URL")
	setString(&cfg.LLM.Model, "ATLAS_LLM_MODEL")

	setBool(&cfg.Rerank.Enabled, "ATLAS_RERANK_ENABLED")
	setString(&cfg.Rerank.APIKey, "ATLAS_COHERE_API_KEY")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}
