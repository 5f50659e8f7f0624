package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Corpus categories. Documents live in one category folder each.
const (
	CategoryHandbook   = "handbook"
	CategoryPolicies   = "policies"
	CategoryRunbooks   = "runbooks"
	CategoryFAQ        = "faq"
	CategoryOnboarding = "onboarding"
)

// Categories lists all valid corpus categories in ingestion order.
var Categories = []string{
	CategoryHandbook,
	CategoryPolicies,
	CategoryRunbooks,
	CategoryFAQ,
	CategoryOnboarding,
}

// ValidCategory reports whether name is a known corpus category.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Chunk is the atomic retrieval and grounding unit: a bounded slice of a
// document with structural metadata. Chunks are immutable once indexed and
// replaced wholesale when their document is re-ingested.
type Chunk struct {
	// ID is a stable content-addressed identifier derived from
	// (document name, section header, ordinal). See ChunkID.
	ID string

	// DocumentName is the natural key of the source document.
	// Re-ingestion replaces all chunks sharing this name.
	DocumentName string

	// Category is the corpus category folder the document came from.
	Category string

	// SectionHeader is the heading of the first section in the chunk.
	SectionHeader string

	// RetrievalText is the cleaned text used for embedding and keyword
	// indexing.
	RetrievalText string

	// GenerationText is RetrievalText plus the neighbouring chunks
	// (previous and next, clamped at document boundaries). It is always a
	// superset context of RetrievalText and is what the agent sees.
	GenerationText string

	// LastUpdated is the document's last-updated date in YYYY-MM-DD form.
	// Empty when the document carries no date.
	LastUpdated string

	// WordCount is the number of words in RetrievalText.
	WordCount int

	// Metadata contains free-form key-value pairs (section titles, source
	// path, etc).
	Metadata map[string]any

	// Embedding is the vector representation of RetrievalText.
	// Populated during ingestion, fixed dimensionality.
	Embedding []float32
}

// ChunkID derives the stable chunk identifier from the document natural key,
// the section header and the chunk's ordinal position. Heading edits shift
// ordinals, which is why re-ingestion replaces by document name rather than
// by chunk id.
func ChunkID(documentName, sectionHeader string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", documentName, sectionHeader, ordinal)))
	return hex.EncodeToString(sum[:])[:16]
}
