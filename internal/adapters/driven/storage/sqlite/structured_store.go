package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/northwind-labs/atlas/internal/core/domain"
	"github.com/northwind-labs/atlas/internal/core/ports/driven"
)

// Ensure StructuredStore implements the interface.
var _ driven.StructuredStore = (*StructuredStore)(nil)

// StructuredStore persists the metric catalog and the employee directory.
// Queries from the agent run on a second connection opened read-only at the
// SQLite level: even a statement that slipped past textual validation
// cannot write.
type StructuredStore struct {
	db   *sql.DB // read-write, used by ingestion upserts
	ro   *sql.DB // read-only, used by ReadOnlyQuery
	path string
}

// NewStructuredStore opens (creating if needed) the structured database
// under dataDir.
func NewStructuredStore(dataDir string) (*StructuredStore, error) {
	db, path, err := openDB(dataDir, "structured.db", "structured")
	if err != nil {
		return nil, err
	}

	// The read-only connection can only be opened once the file exists,
	// which openDB guarantees via migrations.
	ro, err := sql.Open("sqlite", path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening read-only connection: %w", err)
	}

	return &StructuredStore{db: db, ro: ro, path: path}, nil
}

// Close closes both database connections.
func (s *StructuredStore) Close() error {
	roErr := s.ro.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return roErr
}

// Path returns the database file path.
func (s *StructuredStore) Path() string {
	return s.path
}

// UpsertKPIs inserts or updates metric records keyed by kpi_name.
func (s *StructuredStore) UpsertKPIs(ctx context.Context, records []domain.KPIRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO kpi_catalog (kpi_name, definition, formula, owner, target, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(kpi_name) DO UPDATE SET
				definition = excluded.definition,
				formula = excluded.formula,
				owner = excluded.owner,
				target = excluded.target,
				updated_at = excluded.updated_at
		`, rec.KPIName, rec.Definition, rec.Formula, rec.Owner, rec.Target)
		if err != nil {
			return fmt.Errorf("upserting kpi %s: %w", rec.KPIName, err)
		}
	}

	return tx.Commit()
}

// UpsertDirectory inserts or updates directory records keyed by email.
func (s *StructuredStore) UpsertDirectory(ctx context.Context, records []domain.DirectoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO directory (email, name, role, department, location, manager_email, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(email) DO UPDATE SET
				name = excluded.name,
				role = excluded.role,
				department = excluded.department,
				location = excluded.location,
				manager_email = excluded.manager_email,
				updated_at = excluded.updated_at
		`, rec.Email, rec.Name, rec.Role, rec.Department, rec.Location, rec.ManagerEmail)
		if err != nil {
			return fmt.Errorf("upserting directory entry %s: %w", rec.Email, err)
		}
	}

	return tx.Commit()
}

// ReadOnlyQuery executes a pre-validated SELECT on the read-only connection
// and returns at most maxRows rows rendered as strings.
func (s *StructuredStore) ReadOnlyQuery(
	ctx context.Context, query string, maxRows int,
) ([]string, [][]string, error) {
	rows, err := s.ro.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns: %w", err)
	}

	var result [][]string
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}

		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "NULL"
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}

	return columns, result, nil
}
