package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/source"
)

// RecordFixture is the fixture file format: record batches keyed by data source
type RecordFixture struct {
	Sources map[string][]dataset.Record `json:"sources"`
}

// Adapter is a synthetic record source that serves JSON fixtures, for tests
// and local runs without a remote store.
type Adapter struct {
	records map[dataset.DataSource][]dataset.Record
	now     func() time.Time
}

// NewAdapter creates an empty synthetic adapter
func NewAdapter() *Adapter {
	return &Adapter{
		records: make(map[dataset.DataSource][]dataset.Record),
		now:     time.Now,
	}
}

// LoadFixture loads record batches from a JSON fixture file
func (a *Adapter) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture RecordFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	for src, recs := range fixture.Sources {
		a.records[dataset.DataSource(src)] = recs
	}
	return nil
}

// SetRecords directly sets a batch (useful for testing)
func (a *Adapter) SetRecords(src dataset.DataSource, records []dataset.Record) {
	a.records[src] = records
}

// SetNow overrides the clock used for window filtering (useful for testing)
func (a *Adapter) SetNow(now func() time.Time) {
	a.now = now
}

// FetchRecords implements the RecordSource interface. Records carrying an
// occurred_at field are filtered to the window; records without one pass
// through.
func (a *Adapter) FetchRecords(ctx context.Context, src dataset.DataSource, window string) ([]dataset.Record, error) {
	records, exists := a.records[src]
	if !exists {
		return nil, fmt.Errorf("no fixture records for data source %q", src)
	}

	bound, err := dataset.ParseWindow(window)
	if err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}
	if bound == 0 {
		return source.Cap(records), nil
	}

	cutoff := a.now().Add(-bound)
	scoped := make([]dataset.Record, 0, len(records))
	for _, rec := range records {
		v, ok := rec["occurred_at"]
		if !ok || v == nil {
			scoped = append(scoped, rec)
			continue
		}
		t, err := dataset.ParseDate(v)
		if err != nil || !t.Before(cutoff) {
			scoped = append(scoped, rec)
		}
	}
	return source.Cap(scoped), nil
}
