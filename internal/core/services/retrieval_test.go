package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// --- Test helpers ---

func testChunks() map[string]*domain.Chunk {
	return map[string]*domain.Chunk{
		"chunk-a": {ID: "chunk-a", DocumentName: "handbook/expenses.md", SectionHeader: "Travel", RetrievalText: "travel expense rules", GenerationText: "travel expense rules", LastUpdated: "2025-03-01"},
		"chunk-b": {ID: "chunk-b", DocumentName: "policies/security.md", SectionHeader: "Passwords", RetrievalText: "password policy", GenerationText: "password policy", LastUpdated: "2025-01-15"},
		"chunk-c": {ID: "chunk-c", DocumentName: "faq/payroll.md", SectionHeader: "Payday", RetrievalText: "payroll schedule", GenerationText: "payroll schedule", LastUpdated: "2024-11-30"},
	}
}

func newTestEngine(index *mockIndexStore, reranker driven.RerankService) *RetrievalEngine {
	if index.chunks == nil {
		index.chunks = testChunks()
	}
	return NewRetrievalEngine(index, &mockEmbeddingService{}, reranker)
}

// --- Tests ---

func TestRetrievalEngine_Search_EmptyQuery(t *testing.T) {
	engine := newTestEngine(&mockIndexStore{}, nil)

	results, err := engine.Search(context.Background(), "   \t\n ", domain.RetrievalOptions{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalEngine_Search_NoEmbedder(t *testing.T) {
	engine := NewRetrievalEngine(&mockIndexStore{chunks: testChunks()}, nil, nil)

	_, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetrievalEngine_Search_EmbedFailure(t *testing.T) {
	index := &mockIndexStore{chunks: testChunks()}
	engine := NewRetrievalEngine(index, &mockEmbeddingService{embedErr: errors.New("quota")}, nil)

	_, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestRetrievalEngine_Search_BothListsBeatOneList(t *testing.T) {
	// chunk-b appears in both lists; chunk-a leads the vector list but is
	// absent from the keyword list. RRF must rank chunk-b first.
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.95},
			{ChunkID: "chunk-b", Score: 0.90},
		},
		keywordHits: []driven.SearchHit{
			{ChunkID: "chunk-b", Score: 5.0},
			{ChunkID: "chunk-c", Score: 4.0},
		},
	}
	engine := newTestEngine(index, nil)

	results, err := engine.Search(context.Background(), "password policy", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "chunk-b", results[0].Chunk.ID)
	// Vector rank 0 beats keyword rank 1 at equal single-list scores.
	assert.Equal(t, "chunk-a", results[1].Chunk.ID)
	assert.Equal(t, "chunk-c", results[2].Chunk.ID)
}

func TestRetrievalEngine_Search_KeywordFailureDegrades(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
		},
		keywordErr: errors.New("fts5: syntax error"),
	}
	engine := newTestEngine(index, nil)

	results, err := engine.Search(context.Background(), `"unbalanced`, domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-a", results[0].Chunk.ID)
}

func TestRetrievalEngine_Search_BothListsFail(t *testing.T) {
	index := &mockIndexStore{
		vectorErr:  errors.New("vector down"),
		keywordErr: errors.New("keyword down"),
	}
	engine := newTestEngine(index, nil)

	_, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.Error(t, err)
}

func TestRetrievalEngine_Search_FinalLimit(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
			{ChunkID: "chunk-c", Score: 0.7},
		},
	}
	engine := newTestEngine(index, nil)

	results, err := engine.Search(context.Background(), "everything", domain.RetrievalOptions{FinalLimit: 2})

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrievalEngine_Search_SkipsVanishedChunks(t *testing.T) {
	// chunk-gone has no stored chunk: replaced mid-query. It is skipped,
	// not an error.
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-gone", Score: 0.9},
			{ChunkID: "chunk-a", Score: 0.8},
		},
	}
	engine := newTestEngine(index, nil)

	results, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-a", results[0].Chunk.ID)
}

func TestRetrievalEngine_Search_RerankReorders(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
		},
	}
	reranker := &mockRerankService{
		hits: []driven.RerankHit{
			{Index: 1, Score: 0.99},
			{Index: 0, Score: 0.42},
		},
	}
	engine := newTestEngine(index, reranker)

	results, err := engine.Search(context.Background(), "password policy", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-b", results[0].Chunk.ID)
	assert.InDelta(t, 0.99, results[0].Score, 1e-9)
	assert.Equal(t, "chunk-a", results[1].Chunk.ID)
}

func TestRetrievalEngine_Search_RerankFailureFallsBack(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
		},
	}
	engine := newTestEngine(index, &mockRerankService{rerankErr: errors.New("503")})

	results, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	// RRF order survives the rerank failure.
	assert.Equal(t, "chunk-a", results[0].Chunk.ID)
	assert.Equal(t, "chunk-b", results[1].Chunk.ID)
}

func TestRetrievalEngine_Search_RerankTimeoutFallsBack(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
		},
	}
	reranker := &mockRerankService{waitForCtx: true}
	engine := newTestEngine(index, reranker)
	engine.SetRerankTimeout(10 * time.Millisecond)

	results, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, reranker.calls)
	assert.Equal(t, "chunk-a", results[0].Chunk.ID)
	assert.Equal(t, "chunk-b", results[1].Chunk.ID)
}

func TestRetrievalEngine_Search_RerankPartialResponseFallsBack(t *testing.T) {
	index := &mockIndexStore{
		vectorHits: []driven.SearchHit{
			{ChunkID: "chunk-a", Score: 0.9},
			{ChunkID: "chunk-b", Score: 0.8},
		},
	}
	reranker := &mockRerankService{
		hits: []driven.RerankHit{{Index: 1, Score: 0.99}},
	}
	engine := newTestEngine(index, reranker)

	results, err := engine.Search(context.Background(), "expenses", domain.RetrievalOptions{})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-a", results[0].Chunk.ID)
}

func TestReciprocalRankFusion_Scores(t *testing.T) {
	vector := []driven.SearchHit{{ChunkID: "a"}, {ChunkID: "b"}}
	keyword := []driven.SearchHit{{ChunkID: "b"}, {ChunkID: "c"}}

	fused := reciprocalRankFusion(vector, keyword, 60)

	byID := make(map[string]fusedChunk, len(fused))
	for _, fc := range fused {
		byID[fc.chunkID] = fc
	}

	require.Len(t, byID, 3)
	assert.InDelta(t, 1.0/61, byID["a"].score, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].score, 1e-12)
	assert.InDelta(t, 1.0/62, byID["c"].score, 1e-12)
	assert.Equal(t, 0, byID["a"].vectorRank)
	assert.Equal(t, -1, byID["a"].keywordRank)
	assert.Equal(t, 1, byID["b"].vectorRank)
	assert.Equal(t, 0, byID["b"].keywordRank)
}

func TestSortFused_RecencyTieBreak(t *testing.T) {
	older := &domain.Chunk{ID: "old", LastUpdated: "2024-01-01"}
	newer := &domain.Chunk{ID: "new", LastUpdated: "2025-06-01"}

	fused := []fusedChunk{
		{chunkID: "old", score: 0.5, vectorRank: -1, keywordRank: 0, chunk: older},
		{chunkID: "new", score: 0.5, vectorRank: -1, keywordRank: 0, chunk: newer},
	}

	sortFused(fused)

	assert.Equal(t, "new", fused[0].chunkID)
	assert.Equal(t, "old", fused[1].chunkID)
}

func TestSortFused_VectorRankBeforeRecency(t *testing.T) {
	a := &domain.Chunk{ID: "a", LastUpdated: "2024-01-01"}
	b := &domain.Chunk{ID: "b", LastUpdated: "2025-06-01"}

	// Equal scores; a sits in the vector list, b only in the keyword list.
	// The higher-priority list rank wins despite b being newer.
	fused := []fusedChunk{
		{chunkID: "b", score: 0.5, vectorRank: -1, keywordRank: 0, chunk: b},
		{chunkID: "a", score: 0.5, vectorRank: 0, keywordRank: -1, chunk: a},
	}

	sortFused(fused)

	assert.Equal(t, "a", fused[0].chunkID)
}
