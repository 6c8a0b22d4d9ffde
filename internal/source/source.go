// Package source defines where record batches come from. The computation
// engines never issue queries themselves; a RecordSource hands them an
// in-memory batch already scoped to one data source and time window.
package source

import (
	"context"

	"github.com/okovacs/pulseboard/internal/dataset"
)

// MaxBatchSize caps the records handed to the engines in one batch
const MaxBatchSize = 1000

// RecordSource fetches a record batch for a data source within a window.
// window is a bounded scope string like "30d", or "all"/"" for unbounded.
type RecordSource interface {
	FetchRecords(ctx context.Context, src dataset.DataSource, window string) ([]dataset.Record, error)
}

// Cap truncates a batch to MaxBatchSize
func Cap(records []dataset.Record) []dataset.Record {
	if len(records) > MaxBatchSize {
		return records[:MaxBatchSize]
	}
	return records
}
