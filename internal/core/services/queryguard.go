package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
	"github.com/northwind-labs/atlas/internal/logger"
)

// DefaultMaxQueryRows caps structured query results.
const DefaultMaxQueryRows = 50

// StructuredSchemas describes the queryable tables. Shared with the agent's
// system prompt so the model writes valid SQL.
const StructuredSchemas = `Table kpi_catalog: kpi_name (TEXT, primary key), definition (TEXT), formula (TEXT), owner (TEXT), target (TEXT)
Table directory: email (TEXT, primary key), name (TEXT), role (TEXT), department (TEXT), location (TEXT), manager_email (TEXT)`

// mutatingKeywords rejects any statement that could write. Matching is
// substring-based over the lowered text to defeat obfuscation via casing or
// comments.
var mutatingKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "replace",
	"truncate", "attach", "detach", "pragma", "vacuum", "reindex",
	"grant", "revoke",
}

// QueryGuard validates and executes read-only queries against the
// structured store. Validation and execution failures are returned as
// result text, never as errors: the orchestration loop reacts to the text
// and can retry or give up gracefully.
type QueryGuard struct {
	store   driven.StructuredStore
	maxRows int
}

// NewQueryGuard creates a query guard over the structured store.
func NewQueryGuard(store driven.StructuredStore) *QueryGuard {
	return &QueryGuard{
		store:   store,
		maxRows: DefaultMaxQueryRows,
	}
}

// SetMaxRows overrides the result row cap.
func (g *QueryGuard) SetMaxRows(n int) {
	if n > 0 {
		g.maxRows = n
	}
}

// ValidateQuery checks that query is a single read-only SELECT statement.
// Returns domain.ErrQueryRejected (wrapped) on any violation.
func ValidateQuery(query string) error {
	stripped := stripLeadingComments(query)
	if stripped == "" {
		return fmt.Errorf("%w: empty query", domain.ErrQueryRejected)
	}

	if !strings.HasPrefix(strings.ToLower(stripped), "select") {
		return fmt.Errorf("%w: only SELECT statements are allowed", domain.ErrQueryRejected)
	}

	lowered := strings.ToLower(query)
	for _, kw := range mutatingKeywords {
		if strings.Contains(lowered, kw) {
			return fmt.Errorf("%w: statement contains forbidden keyword %q", domain.ErrQueryRejected, kw)
		}
	}

	return nil
}

// stripLeadingComments removes leading whitespace, line comments and block
// comments so the SELECT check cannot be dodged with a comment prefix.
func stripLeadingComments(query string) string {
	s := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.Index(s, "\n")
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+1:])
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+2:])
		default:
			return s
		}
	}
}

// Execute validates and runs the query, rendering the result as a text
// table. All failures come back as text so the agent loop never crashes on
// a bad model-written query.
func (g *QueryGuard) Execute(ctx context.Context, query string) string {
	logger.Debug("Query guard: %q", query)

	if err := ValidateQuery(query); err != nil {
		logger.Warn("Query guard rejected statement: %v", err)
		return fmt.Sprintf("Error: %v. Only read-only SELECT queries against the documented tables are allowed.", err)
	}

	columns, rows, err := g.store.ReadOnlyQuery(ctx, query, g.maxRows)
	if err != nil {
		logger.Warn("Query guard execution failed: %v", err)
		return fmt.Sprintf("Error executing query: %v. Check the table and column names against the schema.", err)
	}

	if len(rows) == 0 {
		return "No matching rows found."
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	if len(rows) == g.maxRows {
		fmt.Fprintf(&b, "(result truncated to %d rows)\n", g.maxRows)
	}

	return strings.TrimRight(b.String(), "\n")
}
