package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/services"
)

const (
	// uriScheme is the custom URI scheme for Atlas resources.
	uriScheme = "atlas://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for index statistics.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Knowledge base index statistics",
		MIMEType:    "application/json",
	}, s.handleStatsResource)

	// Static resource describing the queryable structured tables.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "schema",
		Name:        "schema",
		Description: "Schemas of the structured tables available to query_structured_data",
		MIMEType:    "text/plain",
	}, s.handleSchemaResource)

	// Static resource listing corpus categories.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "categories",
		Name:        "categories",
		Description: "Corpus categories accepted by the category search filter",
		MIMEType:    "application/json",
	}, s.handleCategoriesResource)
}

// handleStatsResource returns index statistics as JSON.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Stats == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "{}",
			}},
		}, nil
	}

	stats, err := s.ports.Stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleSchemaResource returns the structured table schemas.
func (s *Server) handleSchemaResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     services.StructuredSchemas,
		}},
	}, nil
}

// handleCategoriesResource returns the valid corpus categories.
func (s *Server) handleCategoriesResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(domain.Categories, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling categories: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
