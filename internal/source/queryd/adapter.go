// Package queryd is the client for the remote relational query service that
// backs the dashboards. It speaks the service's generic query API and maps
// result rows into flat records.
package queryd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/source"
	"golang.org/x/sync/semaphore"
)

// Config holds queryd adapter configuration
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxConcurrency int64
	RetryCount     int
	RetryDelay     time.Duration

	// Queries maps each data source to a query template; "{{window}}" is
	// substituted with the requested scope before dispatch.
	Queries map[dataset.DataSource]string
}

// DefaultConfig returns default configuration for a queryd endpoint
func DefaultConfig(querydURL string) Config {
	return Config{
		URL:            querydURL,
		Timeout:        10 * time.Second,
		MaxConcurrency: 10,
		RetryCount:     1,
		RetryDelay:     100 * time.Millisecond,
		Queries: map[dataset.DataSource]string{
			dataset.SourceEvents:    "SELECT * FROM events WHERE occurred_at >= now() - interval '{{window}}'",
			dataset.SourcePayments:  "SELECT * FROM payments WHERE occurred_at >= now() - interval '{{window}}'",
			dataset.SourcePCFFields: "SELECT * FROM pcf_field_values WHERE occurred_at >= now() - interval '{{window}}'",
		},
	}
}

// Adapter is a queryd-backed record source
type Adapter struct {
	config Config
	client *http.Client
	sem    *semaphore.Weighted
}

// NewAdapter creates a new queryd adapter
func NewAdapter(config Config) *Adapter {
	return &Adapter{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		sem: semaphore.NewWeighted(config.MaxConcurrency),
	}
}

// FetchRecords implements the RecordSource interface. It executes the data
// source's query template with the window substituted, bounded by the
// adapter's concurrency cap and retry policy.
func (a *Adapter) FetchRecords(ctx context.Context, src dataset.DataSource, window string) ([]dataset.Record, error) {
	template, ok := a.config.Queries[src]
	if !ok {
		return nil, fmt.Errorf("no query configured for data source %q", src)
	}
	query := substituteWindow(template, window)

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}
	defer a.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= a.config.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(a.config.RetryDelay)
		}

		result, err := a.executeQuery(ctx, query)
		if err == nil {
			return source.Cap(rowsToRecords(result)), nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", a.config.RetryCount+1, lastErr)
}

// executeQuery performs a single query request
func (a *Adapter) executeQuery(ctx context.Context, query string) (*QueryResponse, error) {
	queryURL := fmt.Sprintf("%s/api/v1/query", strings.TrimSuffix(a.config.URL, "/"))

	params := url.Values{}
	params.Add("q", query)
	params.Add("limit", fmt.Sprintf("%d", source.MaxBatchSize))

	fullURL := queryURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var result QueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("queryd error: %s", result.Error)
	}

	return &result, nil
}

// substituteWindow replaces {{window}} with the requested scope, defaulting
// unbounded scopes to a wide interval the store can satisfy
func substituteWindow(template string, window string) string {
	if window == "" || window == "all" {
		window = "10y"
	}
	return strings.ReplaceAll(template, "{{window}}", window)
}

// rowsToRecords maps result rows into records
func rowsToRecords(resp *QueryResponse) []dataset.Record {
	if resp == nil || len(resp.Data.Rows) == 0 {
		return nil
	}

	records := make([]dataset.Record, 0, len(resp.Data.Rows))
	for _, row := range resp.Data.Rows {
		records = append(records, dataset.Record(row))
	}
	return records
}
