package domain

import (
	"fmt"
	"strings"
)

// KPIRecord is one row of the metric catalog. Identity is the metric name;
// re-ingestion updates in place, never duplicates.
type KPIRecord struct {
	// KPIName is the natural unique key.
	KPIName string

	// Definition explains what the metric measures.
	Definition string

	// Formula is the calculation expression, free text.
	Formula string

	// Owner is the team or person accountable for the metric.
	Owner string

	// Target is the current target value, free text.
	Target string
}

// Validate checks the record has its natural key and a definition.
func (r KPIRecord) Validate() error {
	if strings.TrimSpace(r.KPIName) == "" {
		return fmt.Errorf("%w: kpi record missing kpi_name", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Definition) == "" {
		return fmt.Errorf("%w: kpi %q missing definition", ErrInvalidInput, r.KPIName)
	}
	return nil
}

// DirectoryRecord is one person in the employee directory. Identity is the
// email address; re-ingestion updates in place, never duplicates.
type DirectoryRecord struct {
	// Email is the natural unique key.
	Email string

	// Name is the person's display name.
	Name string

	// Role is the job title.
	Role string

	// Department is the organisational unit.
	Department string

	// Location is the office or region.
	Location string

	// ManagerEmail links to the person's manager, empty at the top.
	ManagerEmail string
}

// Validate checks the record has its natural key and a name.
func (r DirectoryRecord) Validate() error {
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return fmt.Errorf("%w: directory record missing email", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: directory record %q is not an email", ErrInvalidInput, email)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: directory record %q missing name", ErrInvalidInput, email)
	}
	return nil
}
