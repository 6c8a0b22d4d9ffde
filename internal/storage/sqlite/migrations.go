package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Dataset definitions table
CREATE TABLE IF NOT EXISTS datasets (
	slug TEXT PRIMARY KEY,
	data_source TEXT NOT NULL,
	spec_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_datasets_data_source ON datasets(data_source);

-- Ingested records table (webhook payloads mapped to flat records)
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	data_source TEXT NOT NULL,
	status TEXT,
	occurred_at TIMESTAMP NOT NULL,
	payload_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_source_occurred ON records(data_source, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);

-- Metric value snapshots table
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	metric_id TEXT NOT NULL,
	dataset_slug TEXT NOT NULL,
	formatted_value TEXT NOT NULL,
	numerator REAL NOT NULL,
	denominator REAL,
	fingerprint TEXT NOT NULL,
	scope_window TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_metric_id ON snapshots(metric_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_dataset ON snapshots(dataset_slug);
CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp DESC);
`
