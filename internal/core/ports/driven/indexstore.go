package driven

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// SearchHit is one candidate from a single index list.
type SearchHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the list-local relevance score (cosine similarity for the
	// vector list, bm25 for the keyword list). Fusion uses ranks, not
	// scores, so values are never compared across lists.
	Score float64
}

// IndexStats summarises the indexed corpus.
type IndexStats struct {
	// TotalChunks is the number of indexed chunks.
	TotalChunks int

	// TotalDocuments is the number of distinct documents.
	TotalDocuments int

	// ByCategory maps category name to chunk count.
	ByCategory map[string]int
}

// IndexStore persists chunks together with their vectors and keyword
// postings, and answers top-k queries over each list. Vectors and postings
// are always regenerated with the chunk, never independently.
type IndexStore interface {
	// ReplaceDocument atomically replaces all chunks for a document.
	// This is the idempotent ingestion upsert: keyed by document name
	// (the natural key), not by chunk id, since headings can shift.
	ReplaceDocument(ctx context.Context, documentName string, chunks []domain.Chunk) error

	// VectorSearch returns the top-k chunks by cosine similarity to the
	// query embedding, optionally restricted to one category.
	VectorSearch(ctx context.Context, embedding []float32, limit int, category string) ([]SearchHit, error)

	// KeywordSearch returns the top-k chunks by stemmed-token relevance,
	// optionally restricted to one category.
	KeywordSearch(ctx context.Context, query string, limit int, category string) ([]SearchHit, error)

	// GetChunk retrieves a chunk by id. Returns domain.ErrNotFound when
	// the chunk does not exist.
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)

	// Stats returns corpus counts.
	Stats(ctx context.Context) (*IndexStats, error)

	// Close releases resources.
	Close() error
}
