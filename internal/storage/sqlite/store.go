package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/source"
	"github.com/okovacs/pulseboard/internal/storage"
)

// Store implements Storage using SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite storage with the given database path
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// StoreDataset persists a dataset definition
func (s *Store) StoreDataset(ds *dataset.Dataset) error {
	specJSON, err := json.Marshal(ds.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}

	query := `
		INSERT INTO datasets (slug, data_source, spec_json)
		VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			data_source = excluded.data_source,
			spec_json = excluded.spec_json,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.Exec(query,
		ds.Metadata.Slug,
		string(ds.Spec.DataSource),
		string(specJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store dataset: %w", err)
	}

	return nil
}

// StoreRecords persists a batch of ingested records
func (s *Store) StoreRecords(src dataset.DataSource, records []dataset.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO records (data_source, status, occurred_at, payload_json)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		payloadJSON, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		occurredAt := time.Now().UTC()
		if v, ok := rec["occurred_at"]; ok && v != nil {
			if t, err := dataset.ParseDate(v); err == nil {
				occurredAt = t
			}
		}

		status := dataset.CoerceString(rec["status"])

		if _, err := stmt.Exec(string(src), status, occurredAt, string(payloadJSON)); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}

	return nil
}

// FetchRecords returns persisted records for a data source within a window,
// newest first, capped at the engine batch size
func (s *Store) FetchRecords(ctx context.Context, src dataset.DataSource, window string) ([]dataset.Record, error) {
	bound, err := dataset.ParseWindow(window)
	if err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}

	query := `
		SELECT payload_json FROM records
		WHERE data_source = ?
	`
	args := []interface{}{string(src)}

	if bound > 0 {
		query += " AND occurred_at >= ?"
		args = append(args, time.Now().UTC().Add(-bound))
	}

	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, source.MaxBatchSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []dataset.Record
	for rows.Next() {
		var payloadJSON string
		if err := rows.Scan(&payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var rec dataset.Record
		if err := json.Unmarshal([]byte(payloadJSON), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// StoreSnapshot persists a computed metric value
func (s *Store) StoreSnapshot(snap storage.Snapshot) error {
	query := `
		INSERT INTO snapshots (
			metric_id, dataset_slug, formatted_value, numerator, denominator,
			fingerprint, scope_window, timestamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var denominator interface{}
	if snap.Denominator != nil {
		denominator = *snap.Denominator
	}

	_, err := s.db.Exec(query,
		snap.MetricID,
		snap.DatasetSlug,
		snap.FormattedValue,
		snap.Numerator,
		denominator,
		snap.Fingerprint,
		snap.Window,
		snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// GetLatestSnapshot retrieves the most recent snapshot for a metric
func (s *Store) GetLatestSnapshot(metricID string) (*storage.Snapshot, error) {
	query := `
		SELECT id, metric_id, dataset_slug, formatted_value, numerator, denominator,
		       fingerprint, scope_window, timestamp, created_at
		FROM snapshots
		WHERE metric_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.db.QueryRow(query, metricID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snap, nil
}

// QuerySnapshots retrieves snapshots with optional filtering
func (s *Store) QuerySnapshots(filter storage.SnapshotFilter) ([]storage.Snapshot, error) {
	query := `
		SELECT id, metric_id, dataset_slug, formatted_value, numerator, denominator,
		       fingerprint, scope_window, timestamp, created_at
		FROM snapshots
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.MetricID != "" {
		query += " AND metric_id = ?"
		args = append(args, filter.MetricID)
	}

	if filter.DatasetSlug != "" {
		query += " AND dataset_slug = ?"
		args = append(args, filter.DatasetSlug)
	}

	if filter.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartTime)
	}

	if filter.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100" // Default limit
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []storage.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return snapshots, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*storage.Snapshot, error) {
	var snap storage.Snapshot
	var denominator sql.NullFloat64

	err := row.Scan(
		&snap.ID,
		&snap.MetricID,
		&snap.DatasetSlug,
		&snap.FormattedValue,
		&snap.Numerator,
		&denominator,
		&snap.Fingerprint,
		&snap.Window,
		&snap.Timestamp,
		&snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if denominator.Valid {
		d := denominator.Float64
		snap.Denominator = &d
	}

	return &snap, nil
}
