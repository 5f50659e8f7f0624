package driving

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// RetrievalService performs hybrid search over the indexed corpus.
type RetrievalService interface {
	// Search embeds the query, gathers vector and keyword candidates,
	// fuses them by reciprocal rank fusion and optionally reranks.
	Search(ctx context.Context, query string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error)
}
