package mcp

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/core/ports/driving"
)

// StructuredQuerier executes guarded read-only SQL against the structured
// store, returning results and failures alike as text.
type StructuredQuerier interface {
	Execute(ctx context.Context, query string) string
}

// StatsProvider reports index statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*driven.IndexStats, error)
}

// Ports aggregates all port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval provides hybrid knowledge-base search.
	Retrieval driving.RetrievalService

	// Query runs guarded structured-data queries.
	Query StructuredQuerier

	// Stats reports index statistics.
	Stats StatsProvider
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	// Query and Stats are optional
	return nil
}
