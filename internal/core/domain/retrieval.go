package domain

// Default retrieval tuning values.
const (
	DefaultVectorLimit  = 10
	DefaultKeywordLimit = 10
	DefaultFinalLimit   = 5
	DefaultRRFK         = 60
)

// RetrievalOptions tunes a hybrid search request.
type RetrievalOptions struct {
	// Category restricts results to one corpus category.
	// Empty means all categories.
	Category string

	// VectorLimit is the number of vector candidates to fetch.
	VectorLimit int

	// KeywordLimit is the number of keyword candidates to fetch.
	KeywordLimit int

	// FinalLimit is the number of fused results to return.
	FinalLimit int

	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int
}

// withDefaults fills zero-valued options.
func (o RetrievalOptions) withDefaults() RetrievalOptions {
	if o.VectorLimit <= 0 {
		o.VectorLimit = DefaultVectorLimit
	}
	if o.KeywordLimit <= 0 {
		o.KeywordLimit = DefaultKeywordLimit
	}
	if o.FinalLimit <= 0 {
		o.FinalLimit = DefaultFinalLimit
	}
	if o.RRFK <= 0 {
		o.RRFK = DefaultRRFK
	}
	return o
}

// Normalized returns the options with defaults applied.
func (o RetrievalOptions) Normalized() RetrievalOptions {
	return o.withDefaults()
}

// RetrievalResult is one fused search hit with its final score.
type RetrievalResult struct {
	// Chunk is the full hydrated chunk.
	Chunk Chunk

	// Score is the fusion (or rerank) score. Scores are only comparable
	// within a single result list.
	Score float64
}
