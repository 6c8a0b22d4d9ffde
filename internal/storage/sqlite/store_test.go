package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/storage"
)

func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	store, err := NewStore(tmpfile.Name())
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(tmpfile.Name())
	}

	return store, cleanup
}

func TestStore_StoreDataset(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ds := &dataset.Dataset{
		APIVersion: "pulseboard/v1",
		Kind:       "Dataset",
		Metadata:   dataset.Metadata{Slug: "conversations"},
		Spec: dataset.Spec{
			DataSource: dataset.SourceEvents,
			Fields: []dataset.Field{
				{Slug: "status", Type: dataset.FieldString},
			},
		},
	}

	if err := store.StoreDataset(ds); err != nil {
		t.Fatalf("failed to store dataset: %v", err)
	}

	// upsert: storing again must not fail
	ds.Spec.DataSource = dataset.SourcePayments
	if err := store.StoreDataset(ds); err != nil {
		t.Fatalf("failed to upsert dataset: %v", err)
	}
}

func TestStore_RecordsRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	records := []dataset.Record{
		{"status": "completed", "amount": 250.0, "occurred_at": "2026-08-30T12:00:00Z"},
		{"status": "no_show", "amount": nil, "occurred_at": "2026-08-29T12:00:00Z"},
	}

	if err := store.StoreRecords(dataset.SourceEvents, records); err != nil {
		t.Fatalf("failed to store records: %v", err)
	}

	got, err := store.FetchRecords(context.Background(), dataset.SourceEvents, "")
	if err != nil {
		t.Fatalf("failed to fetch records: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// newest first
	if got[0]["status"] != "completed" {
		t.Errorf("record 0 status = %v, want completed", got[0]["status"])
	}
	if got[0]["amount"] != 250.0 {
		t.Errorf("record 0 amount = %v, want 250", got[0]["amount"])
	}

	// records for other sources stay invisible
	other, err := store.FetchRecords(context.Background(), dataset.SourcePayments, "")
	if err != nil {
		t.Fatalf("failed to fetch payments: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected 0 payment records, got %d", len(other))
	}
}

func TestStore_FetchRecords_WindowCutoff(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	records := []dataset.Record{
		{"status": "recent", "occurred_at": recent},
		{"status": "ancient", "occurred_at": "2020-01-01T00:00:00Z"},
	}
	if err := store.StoreRecords(dataset.SourceEvents, records); err != nil {
		t.Fatalf("failed to store records: %v", err)
	}

	got, err := store.FetchRecords(context.Background(), dataset.SourceEvents, "7d")
	if err != nil {
		t.Fatalf("failed to fetch records: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record inside the window, got %d", len(got))
	}
	if got[0]["status"] != "recent" {
		t.Errorf("status = %v, want recent", got[0]["status"])
	}
}

func TestStore_SnapshotRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	denominator := 3.0
	snap := storage.Snapshot{
		MetricID:       "show-rate",
		DatasetSlug:    "conversations",
		FormattedValue: "67%",
		Numerator:      2,
		Denominator:    &denominator,
		Fingerprint:    "abc123",
		Window:         "30d",
		Timestamp:      time.Now().UTC(),
	}

	if err := store.StoreSnapshot(snap); err != nil {
		t.Fatalf("failed to store snapshot: %v", err)
	}

	got, err := store.GetLatestSnapshot("show-rate")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}
	if got == nil {
		t.Fatal("expected a snapshot, got nil")
	}

	if got.FormattedValue != "67%" {
		t.Errorf("FormattedValue = %q, want \"67%%\"", got.FormattedValue)
	}
	if got.Numerator != 2 {
		t.Errorf("Numerator = %v, want 2", got.Numerator)
	}
	if got.Denominator == nil || *got.Denominator != 3 {
		t.Errorf("Denominator = %v, want 3", got.Denominator)
	}
	if got.Window != "30d" {
		t.Errorf("Window = %q, want \"30d\"", got.Window)
	}
}

func TestStore_SnapshotNilDenominator(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	snap := storage.Snapshot{
		MetricID:       "calls-completed",
		DatasetSlug:    "conversations",
		FormattedValue: "2",
		Numerator:      2,
		Timestamp:      time.Now().UTC(),
	}

	if err := store.StoreSnapshot(snap); err != nil {
		t.Fatalf("failed to store snapshot: %v", err)
	}

	got, err := store.GetLatestSnapshot("calls-completed")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}
	if got.Denominator != nil {
		t.Errorf("Denominator = %v, want nil", *got.Denominator)
	}
}

func TestStore_GetLatestSnapshot_Missing(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := store.GetLatestSnapshot("nothing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing metric, got %+v", got)
	}
}

func TestStore_QuerySnapshots(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		snap := storage.Snapshot{
			MetricID:       "calls-completed",
			DatasetSlug:    "conversations",
			FormattedValue: "1",
			Numerator:      1,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.StoreSnapshot(snap); err != nil {
			t.Fatalf("failed to store snapshot %d: %v", i, err)
		}
	}
	other := storage.Snapshot{
		MetricID:       "show-rate",
		DatasetSlug:    "conversations",
		FormattedValue: "50%",
		Numerator:      1,
		Timestamp:      base,
	}
	if err := store.StoreSnapshot(other); err != nil {
		t.Fatalf("failed to store other snapshot: %v", err)
	}

	byMetric, err := store.QuerySnapshots(storage.SnapshotFilter{MetricID: "calls-completed"})
	if err != nil {
		t.Fatalf("query by metric failed: %v", err)
	}
	if len(byMetric) != 5 {
		t.Errorf("expected 5 snapshots for metric, got %d", len(byMetric))
	}

	limited, err := store.QuerySnapshots(storage.SnapshotFilter{MetricID: "calls-completed", Limit: 2})
	if err != nil {
		t.Fatalf("limited query failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 snapshots with limit, got %d", len(limited))
	}
	// newest first
	if len(limited) == 2 && limited[0].Timestamp.Before(limited[1].Timestamp) {
		t.Error("expected snapshots ordered newest first")
	}

	cutoff := base.Add(3 * time.Minute)
	recent, err := store.QuerySnapshots(storage.SnapshotFilter{StartTime: &cutoff})
	if err != nil {
		t.Fatalf("time-filtered query failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 snapshots after cutoff, got %d", len(recent))
	}
}
