package driven

import "context"

// RerankHit is one re-scored document from the rerank collaborator.
type RerankHit struct {
	// Index is the position of the document in the request list.
	Index int

	// Score is the relevance score assigned by the reranker.
	Score float64
}

// RerankService re-scores a candidate list against the original query.
// This is an optional, non-essential collaborator: callers fall back to the
// pre-rerank order when it errors or times out (fail-open).
type RerankService interface {
	// Rerank scores documents against the query and returns hits ordered
	// by descending relevance.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankHit, error)

	// ModelName returns the name of the rerank model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
