package api

import (
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/metric"
)

// ValueRequest asks for a metric value computation
type ValueRequest struct {
	ForceFresh bool `json:"forceFresh,omitempty"`
}

// ValueResponse carries a computed metric value with its breakdown
type ValueResponse struct {
	MetricID       string           `json:"metricID"`
	FormattedValue string           `json:"formattedValue"`
	Breakdown      metric.Breakdown `json:"breakdown"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	TTL            int              `json:"ttl"` // seconds
	Cached         bool             `json:"cached"`
}

// DatasetListResponse lists loaded dataset definitions
type DatasetListResponse struct {
	Datasets []DatasetSummary `json:"datasets"`
}

// DatasetSummary is the list view of a dataset
type DatasetSummary struct {
	Slug             string `json:"slug"`
	Name             string `json:"name"`
	DataSource       string `json:"dataSource"`
	Fields           int    `json:"fields"`
	CalculatedFields int    `json:"calculatedFields"`
	Metrics          int    `json:"metrics"`
}

// RecordsResponse is a record batch with derived columns appended
type RecordsResponse struct {
	DatasetSlug string           `json:"datasetSlug"`
	Records     []dataset.Record `json:"records"`
	Total       int              `json:"total"`
	CellErrors  []string         `json:"cellErrors,omitempty"`
}

// MetricListResponse lists metric definitions across datasets
type MetricListResponse struct {
	Metrics []MetricSummary `json:"metrics"`
}

// MetricSummary is the list view of a metric definition
type MetricSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DatasetSlug string `json:"datasetSlug"`
	FormulaType string `json:"formulaType"`
	DataSource  string `json:"dataSource"`
	Window      string `json:"window,omitempty"`
	IsActive    bool   `json:"isActive"`
}

// SnapshotResponse is one historical metric value
type SnapshotResponse struct {
	ID             int64     `json:"id"`
	MetricID       string    `json:"metricID"`
	DatasetSlug    string    `json:"datasetSlug"`
	FormattedValue string    `json:"formattedValue"`
	Numerator      float64   `json:"numerator"`
	Denominator    *float64  `json:"denominator,omitempty"`
	Window         string    `json:"window,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`
}

// SnapshotListResponse lists historical metric values
type SnapshotListResponse struct {
	Snapshots []SnapshotResponse `json:"snapshots"`
	Total     int                `json:"total"`
}

// WebhookRequest is an ingestion payload for one data source
type WebhookRequest struct {
	Records []dataset.Record `json:"records"`
}

// WebhookResponse acknowledges ingested records
type WebhookResponse struct {
	Accepted int `json:"accepted"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready          bool     `json:"ready"`
	DatasetsLoaded int      `json:"datasetsLoaded"`
	Reasons        []string `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
