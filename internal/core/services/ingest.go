package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/northwind-labs/atlas/internal/chunker"
	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultEmbedBatchSize is the number of chunks embedded per API call.
const DefaultEmbedBatchSize = 64

// watchDebounce coalesces bursts of filesystem events into one re-run.
const watchDebounce = 2 * time.Second

// IngestConfig points the pipeline at its inputs.
type IngestConfig struct {
	// CorpusDir is the root of the category-folder document tree.
	CorpusDir string

	// KPIFile is the metric catalog CSV.
	KPIFile string

	// DirectoryFile is the hierarchical people directory JSON.
	DirectoryFile string

	// EmbedBatchSize overrides the embedding batch size.
	EmbedBatchSize int
}

// IngestService runs the offline indexing pipeline: chunk, embed, index,
// plus the structured upserts. Re-runnable without clearing state; all
// writes are upserts by natural key.
type IngestService struct {
	chunker    *chunker.Chunker
	embedder   driven.EmbeddingService
	index      driven.IndexStore
	structured driven.StructuredStore
	cfg        IngestConfig
}

// NewIngestService creates the ingestion pipeline.
func NewIngestService(
	ch *chunker.Chunker,
	embedder driven.EmbeddingService,
	index driven.IndexStore,
	structured driven.StructuredStore,
	cfg IngestConfig,
) *IngestService {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	return &IngestService{
		chunker:    ch,
		embedder:   embedder,
		index:      index,
		structured: structured,
		cfg:        cfg,
	}
}

// Run executes one full ingestion pass.
func (s *IngestService) Run(ctx context.Context) (*driving.IngestReport, error) {
	logger.Section("Ingestion")
	report := &driving.IngestReport{}

	if s.cfg.CorpusDir != "" {
		if err := s.ingestCorpus(ctx, report); err != nil {
			return nil, err
		}
	}

	if s.cfg.KPIFile != "" {
		if err := s.ingestKPIs(ctx, report); err != nil {
			return nil, err
		}
	}

	if s.cfg.DirectoryFile != "" {
		if err := s.ingestDirectory(ctx, report); err != nil {
			return nil, err
		}
	}

	logger.Info("Ingestion complete: %d documents, %d chunks, %d KPIs, %d people, %d skipped",
		report.Documents, report.Chunks, report.KPIs, report.People, len(report.Skipped))
	return report, nil
}

// ingestCorpus walks the category folders and indexes every markdown file.
func (s *IngestService) ingestCorpus(ctx context.Context, report *driving.IngestReport) error {
	for _, category := range domain.Categories {
		dir := filepath.Join(s.cfg.CorpusDir, category)

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue // Category folder absent is not an error
			}
			return fmt.Errorf("read category %s: %w", category, err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.ingestDocument(ctx, category, filepath.Join(dir, name), report); err != nil {
				return err
			}
		}
	}
	return nil
}

// ingestDocument chunks, embeds and indexes one document. The document
// name (natural key) is the category-qualified file name.
func (s *IngestService) ingestDocument(ctx context.Context, category, path string, report *driving.IngestReport) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	documentName := category + "/" + filepath.Base(path)

	chunks, err := s.chunker.ChunkDocument(documentName, category, string(content))
	if err != nil {
		return fmt.Errorf("chunk %s: %w", documentName, err)
	}
	if len(chunks) == 0 {
		report.Skipped = append(report.Skipped, documentName+": empty document")
		return nil
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		return fmt.Errorf("embed %s: %w", documentName, err)
	}

	// Wholesale replacement by natural key keeps re-runs idempotent even
	// when heading edits shift chunk ids.
	if err := s.index.ReplaceDocument(ctx, documentName, chunks); err != nil {
		return fmt.Errorf("index %s: %w", documentName, err)
	}

	report.Documents++
	report.Chunks += len(chunks)
	logger.Debug("Indexed %s: %d chunks", documentName, len(chunks))
	return nil
}

// embedChunks fills chunk embeddings in batches. Embedding is essential at
// index time; a failure aborts the run.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].RetrievalText
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: embedding count mismatch: got %d, want %d", domain.ErrUpstream, len(vectors), len(texts))
		}

		for i := start; i < end; i++ {
			chunks[i].Embedding = vectors[i-start]
		}
	}
	return nil
}

// ingestKPIs parses and upserts the metric catalog CSV.
// Expected header: kpi_name,definition,formula,owner,target.
func (s *IngestService) ingestKPIs(ctx context.Context, report *driving.IngestReport) error {
	f, err := os.Open(s.cfg.KPIFile)
	if err != nil {
		return fmt.Errorf("open kpi file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read kpi header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"kpi_name", "definition"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("%w: kpi file missing column %q", domain.ErrInvalidInput, required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []domain.KPIRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read kpi row: %w", err)
		}

		rec := domain.KPIRecord{
			KPIName:    field(row, "kpi_name"),
			Definition: field(row, "definition"),
			Formula:    field(row, "formula"),
			Owner:      field(row, "owner"),
			Target:     field(row, "target"),
		}
		if err := rec.Validate(); err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("kpi row: %v", err))
			continue
		}
		records = append(records, rec)
	}

	if err := s.structured.UpsertKPIs(ctx, records); err != nil {
		return fmt.Errorf("upsert kpis: %w", err)
	}
	report.KPIs = len(records)
	return nil
}

// directoryEntry mirrors the hierarchical directory JSON: each person may
// carry direct reports, whose manager is implied by nesting.
type directoryEntry struct {
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	Role       string           `json:"role"`
	Department string           `json:"department"`
	Location   string           `json:"location"`
	Reports    []directoryEntry `json:"reports,omitempty"`
}

// ingestDirectory parses and upserts the people directory JSON.
func (s *IngestService) ingestDirectory(ctx context.Context, report *driving.IngestReport) error {
	data, err := os.ReadFile(s.cfg.DirectoryFile)
	if err != nil {
		return fmt.Errorf("open directory file: %w", err)
	}

	var roots []directoryEntry
	if err := json.Unmarshal(data, &roots); err != nil {
		return fmt.Errorf("%w: parse directory file: %v", domain.ErrInvalidInput, err)
	}

	var records []domain.DirectoryRecord
	var flatten func(entry directoryEntry, managerEmail string)
	flatten = func(entry directoryEntry, managerEmail string) {
		rec := domain.DirectoryRecord{
			Email:        entry.Email,
			Name:         entry.Name,
			Role:         entry.Role,
			Department:   entry.Department,
			Location:     entry.Location,
			ManagerEmail: managerEmail,
		}
		if err := rec.Validate(); err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("directory entry: %v", err))
		} else {
			records = append(records, rec)
		}
		for _, child := range entry.Reports {
			flatten(child, entry.Email)
		}
	}
	for _, root := range roots {
		flatten(root, "")
	}

	if err := s.structured.UpsertDirectory(ctx, records); err != nil {
		return fmt.Errorf("upsert directory: %w", err)
	}
	report.People = len(records)
	return nil
}

// Watch re-runs ingestion whenever the corpus or structured files change,
// debouncing event bursts. Blocks until the context is cancelled.
func (s *IngestService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if s.cfg.CorpusDir != "" {
		if err := watcher.Add(s.cfg.CorpusDir); err != nil {
			return fmt.Errorf("watch corpus dir: %w", err)
		}
		for _, category := range domain.Categories {
			dir := filepath.Join(s.cfg.CorpusDir, category)
			if _, statErr := os.Stat(dir); statErr == nil {
				if err := watcher.Add(dir); err != nil {
					return fmt.Errorf("watch %s: %w", dir, err)
				}
			}
		}
	}
	for _, file := range []string{s.cfg.KPIFile, s.cfg.DirectoryFile} {
		if file == "" {
			continue
		}
		if err := watcher.Add(filepath.Dir(file)); err != nil {
			return fmt.Errorf("watch %s: %w", file, err)
		}
	}

	logger.Info("Watching for corpus changes")

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Watch event: %s", event)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-fire:
			if _, err := s.Run(ctx); err != nil {
				logger.Error("Re-ingestion failed: %v", err)
			}
		}
	}
}
