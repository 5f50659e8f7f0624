package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northwind-labs/atlas/internal/core/ports/driving"
)

func TestIngestSummary(t *testing.T) {
	report := &driving.IngestReport{
		Documents: 3,
		Chunks:    12,
		KPIs:      5,
		People:    7,
		Skipped:   []string{"kpi row: kpi_name is required", "directory entry: email is required"},
	}

	assert.Equal(t,
		"Ingested 3 documents (12 chunks), 5 KPIs, 7 people; 2 records skipped",
		ingestSummary(report))
}

func TestIngestSummary_NothingSkipped(t *testing.T) {
	report := &driving.IngestReport{Documents: 1, Chunks: 4}

	assert.Equal(t,
		"Ingested 1 documents (4 chunks), 0 KPIs, 0 people; 0 records skipped",
		ingestSummary(report))
}
