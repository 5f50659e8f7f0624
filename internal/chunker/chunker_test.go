package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker(minTokens, maxTokens int) *Chunker {
	return New(
		WithTokenCounter(NewWordCounter()),
		WithMinTokens(minTokens),
		WithMaxTokens(maxTokens),
	)
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestChunkDocument_EmptyDocument(t *testing.T) {
	c := newTestChunker(5, 50)

	chunks, err := c.ChunkDocument("handbook/empty.md", "handbook", "  \n\n ")

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkDocument_NoHeadings(t *testing.T) {
	c := newTestChunker(5, 50)

	chunks, err := c.ChunkDocument("faq/plain.md", "faq", "Just a plain paragraph with no structure at all.")

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].SectionHeader)
	assert.Contains(t, chunks[0].RetrievalText, "plain paragraph")
}

func TestChunkDocument_GroupsSmallSections(t *testing.T) {
	content := "# Title\n\n## One\nshort body\n\n## Two\nanother short body\n\n## Three\nthird short body\n"
	c := newTestChunker(100, 200)

	chunks, err := c.ChunkDocument("handbook/doc.md", "handbook", content)

	require.NoError(t, err)
	// Everything is below the minimum, so one trailing chunk holds it all.
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].RetrievalText, "short body")
	assert.Contains(t, chunks[0].RetrievalText, "third short body")
}

func TestChunkDocument_SplitsAtMaximum(t *testing.T) {
	content := "## One\n" + words(30) + "\n\n## Two\n" + words(30) + "\n"
	c := newTestChunker(25, 40)

	chunks, err := c.ChunkDocument("handbook/doc.md", "handbook", content)

	require.NoError(t, err)
	// Each section alone satisfies the minimum; together they would exceed
	// the maximum, so each becomes its own chunk.
	require.Len(t, chunks, 2)
	assert.Equal(t, "One", chunks[0].SectionHeader)
	assert.Equal(t, "Two", chunks[1].SectionHeader)
}

func TestChunkDocument_OversizedSectionEmittedAlone(t *testing.T) {
	content := "## Huge\n" + words(120) + "\n\n## Small\n" + words(10) + "\n"
	c := newTestChunker(20, 50)

	chunks, err := c.ChunkDocument("runbooks/big.md", "runbooks", content)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Huge", chunks[0].SectionHeader)
	assert.Greater(t, chunks[0].WordCount, 50)
}

func TestChunkDocument_GenerationTextIsSuperset(t *testing.T) {
	content := "## A\n" + words(30) + "\n\n## B\n" + words(30) + "\n\n## C\n" + words(30) + "\n"
	c := newTestChunker(25, 40)

	chunks, err := c.ChunkDocument("handbook/doc.md", "handbook", content)

	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for _, chunk := range chunks {
		assert.Contains(t, chunk.GenerationText, chunk.RetrievalText)
	}

	// Middle chunk carries both neighbours.
	assert.Contains(t, chunks[1].GenerationText, "A")
	assert.Contains(t, chunks[1].GenerationText, "C")
	// Boundary chunks clamp at the document edge.
	assert.NotContains(t, chunks[0].GenerationText, "C\n")
}

func TestChunkDocument_DateExtraction(t *testing.T) {
	content := "# Policy\n*Last Updated: 2025-02-10*\n\nBody text here.\n"
	c := newTestChunker(5, 50)

	chunks, err := c.ChunkDocument("policies/doc.md", "policies", content)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.Equal(t, "2025-02-10", chunk.LastUpdated)
	}
}

func TestChunkDocument_NoDate(t *testing.T) {
	c := newTestChunker(5, 50)

	chunks, err := c.ChunkDocument("faq/doc.md", "faq", "# FAQ\nNo date line anywhere in this one.")

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "", chunks[0].LastUpdated)
}

func TestChunkDocument_StableIDs(t *testing.T) {
	content := "# Doc\n\n## Section\n" + words(20) + "\n"
	c := newTestChunker(10, 50)

	first, err := c.ChunkDocument("handbook/doc.md", "handbook", content)
	require.NoError(t, err)
	second, err := c.ChunkDocument("handbook/doc.md", "handbook", content)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// A different document yields different ids for the same content.
	other, err := c.ChunkDocument("handbook/other.md", "handbook", content)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestChunkDocument_Metadata(t *testing.T) {
	content := "# Expense Policy\n\n## Travel\n" + words(20) + "\n"
	c := newTestChunker(10, 50)

	chunks, err := c.ChunkDocument("handbook/expenses.md", "handbook", content)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Expense Policy", chunks[0].Metadata["title"])
	assert.Equal(t, "handbook", chunks[0].Category)
}

func TestParseMarkdown_HeadingInCodeFence(t *testing.T) {
	content := "## Real\nbefore\n```\n# not a heading\n```\nafter\n"

	doc := parseMarkdown(content)

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Real", doc.Sections[0].Header)
	assert.Contains(t, doc.Sections[0].Body, "# not a heading")
}

func TestParseMarkdown_PreambleBeforeFirstHeading(t *testing.T) {
	content := "intro text before any heading\n\n# First\nbody\n"

	doc := parseMarkdown(content)

	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "", doc.Sections[0].Header)
	assert.Contains(t, doc.Sections[0].Body, "intro text")
	assert.Equal(t, "First", doc.Sections[1].Header)
}

func TestCleanRetrievalText(t *testing.T) {
	in := "See [the policy](https://example.com/policy) and run `make deploy`. This is **important** text.\n\n\n\nNext."

	out := cleanRetrievalText(in)

	assert.Contains(t, out, "See the policy and run make deploy.")
	assert.Contains(t, out, "This is important text.")
	assert.NotContains(t, out, "https://example.com")
	assert.NotContains(t, out, "**")
	assert.NotContains(t, out, "\n\n\n")
}

func TestWordCounter(t *testing.T) {
	assert.Equal(t, 0, NewWordCounter().Count(""))
	assert.Equal(t, 4, NewWordCounter().Count("one two  three\nfour"))
}
