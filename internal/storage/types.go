package storage

import (
	"context"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
)

// Storage defines the interface for persisting definitions, ingested records,
// and computed metric snapshots
type Storage interface {
	// StoreDataset persists a dataset definition
	StoreDataset(ds *dataset.Dataset) error

	// StoreRecords persists a batch of ingested records for a data source
	StoreRecords(src dataset.DataSource, records []dataset.Record) error

	// FetchRecords returns persisted records for a data source within a
	// window; it satisfies source.RecordSource
	FetchRecords(ctx context.Context, src dataset.DataSource, window string) ([]dataset.Record, error)

	// StoreSnapshot persists a computed metric value
	StoreSnapshot(snap Snapshot) error

	// GetLatestSnapshot retrieves the most recent snapshot for a metric
	GetLatestSnapshot(metricID string) (*Snapshot, error)

	// QuerySnapshots retrieves snapshots with optional filtering
	QuerySnapshots(filter SnapshotFilter) ([]Snapshot, error)

	// Close closes the storage connection
	Close() error
}

// Snapshot is one persisted metric computation
type Snapshot struct {
	ID             int64
	MetricID       string
	DatasetSlug    string
	FormattedValue string
	Numerator      float64
	Denominator    *float64
	Fingerprint    string
	Window         string
	Timestamp      time.Time
	CreatedAt      time.Time
}

// SnapshotFilter defines filtering options for snapshot queries
type SnapshotFilter struct {
	MetricID    string
	DatasetSlug string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}
