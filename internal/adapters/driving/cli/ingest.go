package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/adapters/driven/storage/sqlite"
	"github.com/northwind-labs/atlas/internal/chunker"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/core/services"
)

var (
	ingestCorpusDir string
	ingestKPIFile   string
	ingestDirFile   string
	ingestWatch     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index the corpus and structured tables",
	Long: `Walks the corpus category folders, chunks and embeds each markdown
document, and upserts the KPI catalog and employee directory. The run is
idempotent: re-ingesting a document replaces its chunks wholesale.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCorpusDir, "corpus", "", "corpus root directory (default from config)")
	ingestCmd.Flags().StringVar(&ingestKPIFile, "kpis", "", "KPI catalog CSV (default from config)")
	ingestCmd.Flags().StringVar(&ingestDirFile, "directory", "", "people directory JSON (default from config)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "watch the corpus and re-ingest on changes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ingestCfg := services.IngestConfig{
		CorpusDir:      cfg.Corpus.Dir,
		KPIFile:        cfg.Corpus.KPIFile,
		DirectoryFile:  cfg.Corpus.DirectoryFile,
		EmbedBatchSize: cfg.Embedding.BatchSize,
	}
	if ingestCorpusDir != "" {
		ingestCfg.CorpusDir = ingestCorpusDir
	}
	if ingestKPIFile != "" {
		ingestCfg.KPIFile = ingestKPIFile
	}
	if ingestDirFile != "" {
		ingestCfg.DirectoryFile = ingestDirFile
	}
	if ingestCfg.CorpusDir == "" && ingestCfg.KPIFile == "" && ingestCfg.DirectoryFile == "" {
		return fmt.Errorf("nothing to ingest: set corpus.dir, corpus.kpi_file or corpus.directory_file")
	}

	index, err := sqlite.NewIndexStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening index store: %w", err)
	}
	defer index.Close() //nolint:errcheck

	structured, err := sqlite.NewStructuredStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening structured store: %w", err)
	}
	defer structured.Close() //nolint:errcheck

	embedder, err := buildEmbedding()
	if err != nil {
		return err
	}
	defer embedder.Close() //nolint:errcheck

	ch := chunker.New(
		chunker.WithMinTokens(cfg.Chunker.MinTokens),
		chunker.WithMaxTokens(cfg.Chunker.MaxTokens),
	)

	svc := services.NewIngestService(ch, embedder, index, structured, ingestCfg)

	report, err := svc.Run(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Println(ingestSummary(report))

	if ingestWatch {
		cmd.Println("Watching corpus for changes (Ctrl-C to stop)...")
		return svc.Watch(cmd.Context())
	}
	return nil
}

// ingestSummary renders the one-line outcome of an ingestion run.
func ingestSummary(report *driving.IngestReport) string {
	return fmt.Sprintf("Ingested %d documents (%d chunks), %d KPIs, %d people; %d records skipped",
		report.Documents, report.Chunks, report.KPIs, report.People, len(report.Skipped))
}
