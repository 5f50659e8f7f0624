package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// mockRetrieval implements driving.RetrievalService.
type mockRetrieval struct {
	results []domain.RetrievalResult
	err     error

	lastQuery string
	lastOpts  domain.RetrievalOptions
}

func (m *mockRetrieval) Search(_ context.Context, query string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockQuerier implements StructuredQuerier.
type mockQuerier struct {
	result string
	last   string
}

func (m *mockQuerier) Execute(_ context.Context, query string) string {
	m.last = query
	return m.result
}

// mockStats implements StatsProvider.
type mockStats struct {
	stats *driven.IndexStats
	err   error
}

func (m *mockStats) Stats(_ context.Context) (*driven.IndexStats, error) {
	return m.stats, m.err
}

func TestRegisteredToolNames(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}, Query: &mockQuerier{}})
	require.NoError(t, err)

	ctx := context.Background()
	clientTransport, serverTransport := sdk.NewInMemoryTransports()

	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close() //nolint:errcheck

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer clientSession.Close() //nolint:errcheck

	listed, err := clientSession.ListTools(ctx, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	// The MCP surface exposes the same tools, under the same names, that the
	// agent declares to the completion model.
	assert.ElementsMatch(t,
		[]string{domain.ToolSearchKnowledgeBase, domain.ToolLookupStructuredData}, names)
}

func TestNewServer_RequiresRetrieval(t *testing.T) {
	_, err := NewServer(&Ports{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRetrievalService)
}

func TestNewServer_OptionalPorts(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}})

	require.NoError(t, err)
	assert.NotNil(t, server)
}

func TestHandleSearch(t *testing.T) {
	retrieval := &mockRetrieval{
		results: []domain.RetrievalResult{
			{
				Chunk: domain.Chunk{
					DocumentName:   "handbook/expenses.md",
					SectionHeader:  "Travel",
					Category:       "handbook",
					LastUpdated:    "2025-03-01",
					GenerationText: "Book travel through the portal.",
				},
				Score: 0.9,
			},
		},
	}
	server, err := NewServer(&Ports{Retrieval: retrieval})
	require.NoError(t, err)

	_, output, err := server.handleSearch(context.Background(), nil, SearchInput{
		Query:    "travel booking",
		Category: "handbook",
		Limit:    3,
	})

	require.NoError(t, err)
	assert.Equal(t, "travel booking", retrieval.lastQuery)
	assert.Equal(t, "handbook", retrieval.lastOpts.Category)
	assert.Equal(t, 3, retrieval.lastOpts.FinalLimit)

	require.Equal(t, 1, output.Count)
	got := output.Results[0]
	assert.Equal(t, "handbook/expenses.md", got.Document)
	assert.Equal(t, "Travel", got.Section)
	assert.Equal(t, "2025-03-01", got.LastUpdated)
	assert.Equal(t, "Book travel through the portal.", got.Content)
	assert.InDelta(t, 0.9, got.Score, 1e-9)
}

func TestHandleSearch_Error(t *testing.T) {
	retrieval := &mockRetrieval{err: assert.AnError}
	server, err := NewServer(&Ports{Retrieval: retrieval})
	require.NoError(t, err)

	_, _, err = server.handleSearch(context.Background(), nil, SearchInput{Query: "anything"})

	require.Error(t, err)
}

func TestHandleQuery_ResultAsText(t *testing.T) {
	querier := &mockQuerier{result: "Error: statement contains forbidden keyword. Only read-only SELECT queries against the documented tables are allowed."}
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}, Query: querier})
	require.NoError(t, err)

	// Guard failures come back as result text, never as a tool error.
	_, output, err := server.handleQuery(context.Background(), nil, QueryInput{SQL: "DROP TABLE kpi_catalog"})

	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE kpi_catalog", querier.last)
	assert.Contains(t, output.Result, "Only read-only SELECT queries")
}

func TestHandleStatsResource(t *testing.T) {
	stats := &mockStats{stats: &driven.IndexStats{
		TotalChunks:    12,
		TotalDocuments: 4,
		ByCategory:     map[string]int{"handbook": 8, "faq": 4},
	}}
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}, Stats: stats})
	require.NoError(t, err)

	req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uriScheme + "stats"}}
	result, err := server.handleStatsResource(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, uriScheme+"stats", result.Contents[0].URI)

	var decoded driven.IndexStats
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &decoded))
	assert.Equal(t, 12, decoded.TotalChunks)
	assert.Equal(t, 8, decoded.ByCategory["handbook"])
}

func TestHandleStatsResource_NoProvider(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}})
	require.NoError(t, err)

	req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uriScheme + "stats"}}
	result, err := server.handleStatsResource(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "{}", result.Contents[0].Text)
}

func TestHandleCategoriesResource(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}})
	require.NoError(t, err)

	req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uriScheme + "categories"}}
	result, err := server.handleCategoriesResource(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)

	var categories []string
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &categories))
	assert.Equal(t, domain.Categories, categories)
}

func TestHandleSchemaResource(t *testing.T) {
	server, err := NewServer(&Ports{Retrieval: &mockRetrieval{}})
	require.NoError(t, err)

	req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uriScheme + "schema"}}
	result, err := server.handleSchemaResource(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Contains(t, result.Contents[0].Text, "kpi_catalog")
	assert.Contains(t, result.Contents[0].Text, "directory")
}
