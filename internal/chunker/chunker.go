// Package chunker splits markdown documents into bounded retrieval units
// along their heading structure.
package chunker

import (
	"fmt"
	"strings"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/logger"
)

// Default token thresholds for chunk accumulation.
const (
	DefaultMinTokens = 300
	DefaultMaxTokens = 500
)

// Chunker splits documents at heading boundaries, accumulating consecutive
// sections until a minimum token threshold is reached and emitting before a
// maximum is exceeded.
type Chunker struct {
	minTokens int
	maxTokens int
	counter   TokenCounter
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMinTokens sets the minimum token threshold per chunk.
func WithMinTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.minTokens = n
		}
	}
}

// WithMaxTokens sets the maximum token threshold per chunk.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTokenCounter sets the token counter implementation.
func WithTokenCounter(tc TokenCounter) Option {
	return func(c *Chunker) {
		if tc != nil {
			c.counter = tc
		}
	}
}

// New creates a chunker with the given options. The default token counter
// is tiktoken cl100k_base with a word-count fallback.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minTokens: DefaultMinTokens,
		maxTokens: DefaultMaxTokens,
		counter:   NewTokenCounter(),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ensure thresholds stay ordered
	if c.minTokens > c.maxTokens {
		c.minTokens = c.maxTokens
	}

	return c
}

// ChunkDocument splits one markdown document into ordered chunks.
// An empty document yields zero chunks and a log line, not an error.
// A document with no heading structure is treated as one section.
func (c *Chunker) ChunkDocument(documentName, category, content string) ([]domain.Chunk, error) {
	doc := parseMarkdown(content)

	if len(doc.Sections) == 0 {
		logger.Warn("Chunker: document %q is empty, producing no chunks", documentName)
		return nil, nil
	}

	groups := c.groupSections(doc.Sections)

	chunks := make([]domain.Chunk, 0, len(groups))
	for i, g := range groups {
		retrieval := cleanRetrievalText(g.text())
		chunks = append(chunks, domain.Chunk{
			ID:            domain.ChunkID(documentName, g.header(), i),
			DocumentName:  documentName,
			Category:      category,
			SectionHeader: g.header(),
			RetrievalText: retrieval,
			LastUpdated:   doc.LastUpdated,
			WordCount:     len(strings.Fields(retrieval)),
			Metadata: map[string]any{
				"title":    doc.Title,
				"sections": g.titles(),
				"ordinal":  i,
			},
		})
	}

	// Generation text = previous + current + next retrieval text, clamped
	// at document boundaries. Always a superset of the retrieval text.
	for i := range chunks {
		parts := make([]string, 0, 3)
		if i > 0 {
			parts = append(parts, chunks[i-1].RetrievalText)
		}
		parts = append(parts, chunks[i].RetrievalText)
		if i < len(chunks)-1 {
			parts = append(parts, chunks[i+1].RetrievalText)
		}
		chunks[i].GenerationText = strings.Join(parts, "\n\n")
	}

	logger.Debug("Chunker: %q -> %d chunks (%d sections)", documentName, len(chunks), len(doc.Sections))
	return chunks, nil
}

// sectionGroup is a run of consecutive sections emitted as one chunk.
type sectionGroup []section

func (g sectionGroup) header() string {
	if len(g) == 0 {
		return ""
	}
	return g[0].Header
}

func (g sectionGroup) titles() []string {
	titles := make([]string, len(g))
	for i := range g {
		titles[i] = g[i].Header
	}
	return titles
}

func (g sectionGroup) text() string {
	parts := make([]string, 0, len(g))
	for _, s := range g {
		part := s.Body
		if s.Header != "" {
			part = fmt.Sprintf("%s\n%s", s.Header, s.Body)
		}
		parts = append(parts, strings.TrimSpace(part))
	}
	return strings.Join(parts, "\n\n")
}

// groupSections accumulates consecutive sections into chunk-sized groups.
// A single section exceeding the maximum is emitted as its own chunk rather
// than dropped.
func (c *Chunker) groupSections(sections []section) []sectionGroup {
	var groups []sectionGroup
	var current sectionGroup
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, s := range sections {
		tokens := c.counter.Count(s.Header + "\n" + s.Body)

		// Adding this section would overflow: emit what we have first.
		if currentTokens > 0 && currentTokens+tokens > c.maxTokens {
			flush()
		}

		current = append(current, s)
		currentTokens += tokens

		if currentTokens >= c.minTokens {
			flush()
		}
	}

	// Trailing group below the minimum is still emitted.
	flush()

	return groups
}
