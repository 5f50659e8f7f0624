// Package cli implements the atlas command line interface using cobra.
// The root command loads configuration once and hands a typed Config to
// every subcommand; services are wired on demand so offline commands
// never require API keys they do not use.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/adapters/driven/config"
	embeddingopenai "github.com/northwind-labs/atlas/internal/adapters/driven/embedding/openai"
	llmopenai "github.com/northwind-labs/atlas/internal/adapters/driven/llm/openai"
	"github.com/northwind-labs/atlas/internal/adapters/driven/rerank/cohere"
	"github.com/northwind-labs/atlas/internal/adapters/driven/storage/sqlite"
	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/core/services"
	"github.com/northwind-labs/atlas/internal/logger"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

var (
	cfgPath string
	verbose bool

	// cfg is loaded once in the root PersistentPreRunE.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Employee knowledge assistant backend",
	Long: `Atlas answers employee questions against an internal knowledge corpus.
It ingests markdown documents and structured tables, retrieves evidence by
hybrid search and serves grounded, cited answers over an HTTP chat API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.atlas/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildEmbedding constructs the embedding adapter from configuration.
func buildEmbedding() (driven.EmbeddingService, error) {
	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("embedding API key not configured (set ATLAS_OPENAI_API_KEY)")
	}
	return embeddingopenai.NewEmbeddingService(embeddingopenai.Config{
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Model:             cfg.Embedding.Model,
		Dimensions:        cfg.Embedding.Dimensions,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
}

// buildLLM constructs the completion adapter from configuration.
func buildLLM() (driven.LLMService, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM API key not configured (set ATLAS_OPENAI_API_KEY)")
	}
	return llmopenai.NewLLMService(llmopenai.LLMConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
}

// buildReranker constructs the optional rerank adapter. Returns nil when
// reranking is disabled; the fusion engine treats a nil reranker as
// "keep the RRF order".
func buildReranker() (driven.RerankService, error) {
	if !cfg.Rerank.Enabled || cfg.Rerank.APIKey == "" {
		return nil, nil
	}
	return cohere.NewRerankService(cohere.Config{
		APIKey:  cfg.Rerank.APIKey,
		BaseURL: cfg.Rerank.BaseURL,
		Model:   cfg.Rerank.Model,
	})
}

// buildRetrieval wires the fusion engine and its stores. The returned
// closer releases every opened store.
func buildRetrieval() (*services.RetrievalEngine, *sqlite.IndexStore, func(), error) {
	index, err := sqlite.NewIndexStore(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening index store: %w", err)
	}

	embedder, err := buildEmbedding()
	if err != nil {
		index.Close() //nolint:errcheck
		return nil, nil, nil, err
	}

	reranker, err := buildReranker()
	if err != nil {
		index.Close() //nolint:errcheck
		return nil, nil, nil, fmt.Errorf("configuring reranker: %w", err)
	}

	engine := services.NewRetrievalEngine(index, embedder, reranker)
	if cfg.Rerank.TimeoutMS > 0 {
		engine.SetRerankTimeout(time.Duration(cfg.Rerank.TimeoutMS) * time.Millisecond)
	}

	closer := func() {
		index.Close()    //nolint:errcheck
		embedder.Close() //nolint:errcheck
		if reranker != nil {
			reranker.Close() //nolint:errcheck
		}
	}
	return engine, index, closer, nil
}

// retrievalOptions builds the base search tuning from the [retrieval]
// configuration section.
func retrievalOptions() domain.RetrievalOptions {
	return domain.RetrievalOptions{
		VectorLimit:  cfg.Retrieval.VectorLimit,
		KeywordLimit: cfg.Retrieval.KeywordLimit,
		FinalLimit:   cfg.Retrieval.FinalLimit,
		RRFK:         cfg.Retrieval.RRFK,
	}
}

// buildQueryGuard wires the query guard over the structured store.
func buildQueryGuard() (*services.QueryGuard, func(), error) {
	structured, err := sqlite.NewStructuredStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening structured store: %w", err)
	}
	guard := services.NewQueryGuard(structured)
	closer := func() { structured.Close() } //nolint:errcheck
	return guard, closer, nil
}
