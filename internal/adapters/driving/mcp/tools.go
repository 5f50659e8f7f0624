package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// SearchInput is the input schema for the knowledge-base search tool.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the search query to find documents"`
	Category string `json:"category,omitempty" jsonschema:"restrict results to one category: handbook, policies, runbooks, faq or onboarding"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
}

// SearchOutput is the output schema for the knowledge-base search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	Document    string  `json:"document"`
	Section     string  `json:"section"`
	Category    string  `json:"category"`
	LastUpdated string  `json:"last_updated,omitempty"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
}

// QueryInput is the input schema for the structured-data query tool.
type QueryInput struct {
	SQL string `json:"sql" jsonschema:"a single read-only SELECT statement against the kpi_catalog or directory tables"`
}

// QueryOutput is the output schema for the structured-data query tool.
type QueryOutput struct {
	Result string `json:"result"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        domain.ToolSearchKnowledgeBase,
		Description: "Search the company knowledge base (handbook, policies, runbooks, FAQ, onboarding)",
	}, s.handleSearch)

	if s.ports.Query != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        domain.ToolLookupStructuredData,
			Description: "Run a read-only SQL SELECT against the KPI catalog and employee directory",
		}, s.handleQuery)
	}
}

// handleSearch handles the knowledge-base search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.RetrievalOptions{
		Category:   input.Category,
		FinalLimit: input.Limit,
	}

	results, err := s.ports.Retrieval.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}

	for i := range results {
		chunk := results[i].Chunk
		output.Results[i] = SearchResultOutput{
			Document:    chunk.DocumentName,
			Section:     chunk.SectionHeader,
			Category:    chunk.Category,
			LastUpdated: chunk.LastUpdated,
			Score:       results[i].Score,
			Content:     chunk.GenerationText,
		}
	}

	return nil, output, nil
}

// handleQuery handles the structured-data query tool invocation. Bad SQL
// comes back as result text, not as a tool error.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	result := s.ports.Query.Execute(ctx, input.SQL)
	return nil, QueryOutput{Result: result}, nil
}
