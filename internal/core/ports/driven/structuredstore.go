package driven

import (
	"context"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

// StructuredStore persists the metric catalog and the employee directory
// with upsert-by-natural-key semantics, and answers read-only queries.
type StructuredStore interface {
	// UpsertKPIs inserts or updates metric records keyed by kpi_name.
	UpsertKPIs(ctx context.Context, records []domain.KPIRecord) error

	// UpsertDirectory inserts or updates directory records keyed by email.
	UpsertDirectory(ctx context.Context, records []domain.DirectoryRecord) error

	// ReadOnlyQuery executes a pre-validated SELECT against a connection
	// opened read-only at the transport level (defense in depth beyond the
	// textual check) and returns at most maxRows rows.
	ReadOnlyQuery(ctx context.Context, query string, maxRows int) (columns []string, rows [][]string, err error)

	// Close releases resources.
	Close() error
}
