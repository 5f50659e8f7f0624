package driving

import "context"

// IngestReport summarises one ingestion run.
type IngestReport struct {
	// Documents is the number of documents indexed.
	Documents int

	// Chunks is the number of chunks written.
	Chunks int

	// KPIs is the number of metric records upserted.
	KPIs int

	// People is the number of directory records upserted.
	People int

	// Skipped lists files that were skipped with the reason.
	Skipped []string
}

// IngestService runs the offline indexing pipeline: chunk, embed, index,
// plus the structured-table upserts. Safe to re-run; upserts are keyed by
// natural key.
type IngestService interface {
	// Run executes one full ingestion pass over the corpus directory and
	// the structured source files.
	Run(ctx context.Context) (*IngestReport, error)
}
