package synthetic

import (
	"context"
	"testing"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
)

func TestFetchRecords_WindowFiltering(t *testing.T) {
	adapter := NewAdapter()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	adapter.SetNow(func() time.Time { return now })

	adapter.SetRecords(dataset.SourceEvents, []dataset.Record{
		{"status": "recent", "occurred_at": "2026-08-30T12:00:00Z"},
		{"status": "old", "occurred_at": "2026-07-01T12:00:00Z"},
		{"status": "undated"},
	})

	records, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, "7d")
	if err != nil {
		t.Fatalf("FetchRecords returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records inside the window, got %d", len(records))
	}
	for _, rec := range records {
		if rec["status"] == "old" {
			t.Error("record outside the window was not filtered")
		}
	}
}

func TestFetchRecords_UnboundedWindow(t *testing.T) {
	adapter := NewAdapter()
	adapter.SetRecords(dataset.SourcePayments, []dataset.Record{
		{"amount": 1.0, "occurred_at": "2020-01-01"},
		{"amount": 2.0, "occurred_at": "2026-01-01"},
	})

	for _, window := range []string{"", "all"} {
		records, err := adapter.FetchRecords(context.Background(), dataset.SourcePayments, window)
		if err != nil {
			t.Fatalf("FetchRecords(%q) returned error: %v", window, err)
		}
		if len(records) != 2 {
			t.Errorf("FetchRecords(%q) returned %d records, want 2", window, len(records))
		}
	}
}

func TestFetchRecords_UnknownSource(t *testing.T) {
	adapter := NewAdapter()

	if _, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, ""); err == nil {
		t.Error("expected error for a source with no fixture records")
	}
}

func TestLoadFixture(t *testing.T) {
	adapter := NewAdapter()

	if err := adapter.LoadFixture("../../../fixtures/records/demo.json"); err != nil {
		t.Fatalf("LoadFixture returned error: %v", err)
	}

	records, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, "")
	if err != nil {
		t.Fatalf("FetchRecords returned error: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected fixture records for events")
	}

	payments, err := adapter.FetchRecords(context.Background(), dataset.SourcePayments, "")
	if err != nil {
		t.Fatalf("FetchRecords returned error: %v", err)
	}
	if len(payments) != 3 {
		t.Errorf("expected 3 payment records, got %d", len(payments))
	}
}
