package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
	"github.com/northwind-labs/atlas/internal/logger"
)

// Ensure RetrievalEngine implements the interface.
var _ driving.RetrievalService = (*RetrievalEngine)(nil)

// DefaultRerankTimeout bounds the non-essential rerank call.
const DefaultRerankTimeout = 3 * time.Second

// fusedChunk holds intermediate fusion state before hydration.
type fusedChunk struct {
	chunkID string
	score   float64

	// Rank in each source list, -1 when absent. The vector list is the
	// higher-priority tie-breaker.
	vectorRank  int
	keywordRank int

	chunk *domain.Chunk
}

// RetrievalEngine performs hybrid search: vector and keyword candidates are
// gathered in parallel, fused by reciprocal rank fusion and optionally
// refined by a rerank collaborator that fails open to the fused order.
type RetrievalEngine struct {
	index         driven.IndexStore
	embedder      driven.EmbeddingService
	reranker      driven.RerankService
	rerankTimeout time.Duration
}

// NewRetrievalEngine creates a retrieval engine. The reranker is optional
// (can be nil); retrieval then returns the pure RRF order.
func NewRetrievalEngine(
	index driven.IndexStore,
	embedder driven.EmbeddingService,
	reranker driven.RerankService,
) *RetrievalEngine {
	return &RetrievalEngine{
		index:         index,
		embedder:      embedder,
		reranker:      reranker,
		rerankTimeout: DefaultRerankTimeout,
	}
}

// SetRerankTimeout overrides the rerank deadline. Useful for tests.
func (e *RetrievalEngine) SetRerankTimeout(d time.Duration) {
	e.rerankTimeout = d
}

// Search runs one hybrid retrieval pass.
func (e *RetrievalEngine) Search(
	ctx context.Context, query string, opts domain.RetrievalOptions,
) ([]domain.RetrievalResult, error) {
	logger.Section("Hybrid Retrieval")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.RetrievalResult{}, nil
	}

	opts = opts.Normalized()
	logger.Debug("Limits: vector=%d keyword=%d final=%d k=%d category=%q",
		opts.VectorLimit, opts.KeywordLimit, opts.FinalLimit, opts.RRFK, opts.Category)

	if e.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	// The query embedding is essential; an embedding failure fails the search.
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %v", domain.ErrUpstream, err)
	}
	logger.Debug("Query embedding: %d dimensions", len(embedding))

	// Run vector and keyword searches in parallel.
	var vectorHits, keywordHits []driven.SearchHit
	var vectorErr, keywordErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vectorHits, vectorErr = e.index.VectorSearch(ctx, embedding, opts.VectorLimit, opts.Category)
	}()

	go func() {
		defer wg.Done()
		keywordHits, keywordErr = e.index.KeywordSearch(ctx, query, opts.KeywordLimit, opts.Category)
	}()

	wg.Wait()

	// Degrade gracefully when one list fails; fail only when both do.
	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("hybrid search: vector=%w, keyword=%w", vectorErr, keywordErr)
	}
	if vectorErr != nil {
		logger.Warn("Vector search failed, using keyword results only: %v", vectorErr)
		vectorHits = nil
	}
	if keywordErr != nil {
		logger.Warn("Keyword search failed, using vector results only: %v", keywordErr)
		keywordHits = nil
	}

	logger.Debug("Candidates: %d vector, %d keyword", len(vectorHits), len(keywordHits))

	fused := reciprocalRankFusion(vectorHits, keywordHits, opts.RRFK)

	// Hydrate before sorting: recency tie-breaking needs last_updated.
	hydrated := make([]fusedChunk, 0, len(fused))
	for _, fc := range fused {
		chunk, err := e.index.GetChunk(ctx, fc.chunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // Chunk replaced mid-query, skip it
			}
			return nil, fmt.Errorf("get chunk %s: %w", fc.chunkID, err)
		}
		fc.chunk = chunk
		hydrated = append(hydrated, fc)
	}

	sortFused(hydrated)

	if len(hydrated) > opts.FinalLimit {
		hydrated = hydrated[:opts.FinalLimit]
	}

	results := e.rerank(ctx, query, hydrated)
	logger.Info("Final results: %d", len(results))
	return results, nil
}

// reciprocalRankFusion merges the two ranked candidate lists.
// score(chunk) = sum over lists of 1/(k + rank), 1-based ranks, summing only
// over lists containing the chunk. A chunk in both lists therefore outranks
// one in a single list at the same individual rank.
func reciprocalRankFusion(vectorHits, keywordHits []driven.SearchHit, k int) []fusedChunk {
	byID := make(map[string]*fusedChunk)

	for rank, hit := range vectorHits {
		byID[hit.ChunkID] = &fusedChunk{
			chunkID:     hit.ChunkID,
			score:       1.0 / float64(k+rank+1),
			vectorRank:  rank,
			keywordRank: -1,
		}
	}

	for rank, hit := range keywordHits {
		if fc, ok := byID[hit.ChunkID]; ok {
			fc.score += 1.0 / float64(k+rank+1)
			fc.keywordRank = rank
			continue
		}
		byID[hit.ChunkID] = &fusedChunk{
			chunkID:     hit.ChunkID,
			score:       1.0 / float64(k+rank+1),
			vectorRank:  -1,
			keywordRank: rank,
		}
	}

	fused := make([]fusedChunk, 0, len(byID))
	for _, fc := range byID {
		fused = append(fused, *fc)
	}
	return fused
}

// sortFused orders by descending RRF score. Ties break by the
// higher-priority list rank (vector), then by more recent last_updated,
// then by chunk id for determinism.
func sortFused(fused []fusedChunk) {
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ar, br := rankOrMax(a.vectorRank), rankOrMax(b.vectorRank)
		if ar != br {
			return ar < br
		}
		if a.chunk.LastUpdated != b.chunk.LastUpdated {
			return a.chunk.LastUpdated > b.chunk.LastUpdated
		}
		return a.chunkID < b.chunkID
	})
}

func rankOrMax(rank int) int {
	if rank < 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// rerank hands the truncated list to the rerank collaborator. On any error
// or timeout it returns the RRF order unchanged: fail-open, never block the
// answer on a non-essential enhancement.
func (e *RetrievalEngine) rerank(ctx context.Context, query string, fused []fusedChunk) []domain.RetrievalResult {
	rrfOrder := make([]domain.RetrievalResult, len(fused))
	for i, fc := range fused {
		rrfOrder[i] = domain.RetrievalResult{Chunk: *fc.chunk, Score: fc.score}
	}

	if e.reranker == nil || len(fused) == 0 {
		return rrfOrder
	}

	rctx, cancel := context.WithTimeout(ctx, e.rerankTimeout)
	defer cancel()

	docs := make([]string, len(fused))
	for i, fc := range fused {
		docs[i] = fc.chunk.RetrievalText
	}

	hits, err := e.reranker.Rerank(rctx, query, docs)
	if err != nil {
		logger.Warn("Rerank failed, falling back to RRF order: %v", err)
		return rrfOrder
	}

	reranked := make([]domain.RetrievalResult, 0, len(fused))
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= len(fused) {
			logger.Warn("Rerank returned out-of-range index %d, falling back to RRF order", hit.Index)
			return rrfOrder
		}
		reranked = append(reranked, domain.RetrievalResult{
			Chunk: *fused[hit.Index].chunk,
			Score: hit.Score,
		})
	}

	// A partial response would silently drop candidates; keep RRF instead.
	if len(reranked) != len(fused) {
		logger.Warn("Rerank returned %d of %d candidates, falling back to RRF order", len(reranked), len(fused))
		return rrfOrder
	}

	logger.Debug("Rerank reordered %d results", len(reranked))
	return reranked
}
