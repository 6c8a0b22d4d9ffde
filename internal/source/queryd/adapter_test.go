package queryd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
)

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.Timeout = 2 * time.Second
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestFetchRecords_Success(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`{"status":"success","data":{"rows":[{"status":"completed","amount":250},{"status":"no_show","amount":null}]}}`))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL))

	records, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, "30d")
	if err != nil {
		t.Fatalf("FetchRecords returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["status"] != "completed" {
		t.Errorf("record 0 status = %v, want completed", records[0]["status"])
	}
	if !strings.Contains(gotQuery, "interval '30d'") {
		t.Errorf("window not substituted into query: %q", gotQuery)
	}
}

func TestFetchRecords_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":"success","data":{"rows":[{"amount":1}]}}`))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL))

	records, err := adapter.FetchRecords(context.Background(), dataset.SourcePayments, "7d")
	if err != nil {
		t.Fatalf("FetchRecords returned error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestFetchRecords_FailsAfterRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL))

	_, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, "1d")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestFetchRecords_QuerydError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"relation does not exist"}`))
	}))
	defer server.Close()

	adapter := NewAdapter(testConfig(server.URL))

	_, err := adapter.FetchRecords(context.Background(), dataset.SourceEvents, "1d")
	if err == nil || !strings.Contains(err.Error(), "relation does not exist") {
		t.Errorf("expected queryd error to surface, got %v", err)
	}
}

func TestFetchRecords_UnknownSource(t *testing.T) {
	adapter := NewAdapter(testConfig("http://localhost:1"))

	_, err := adapter.FetchRecords(context.Background(), dataset.DataSource("mystery"), "1d")
	if err == nil {
		t.Error("expected error for source without a query template")
	}
}

func TestSubstituteWindow(t *testing.T) {
	tests := []struct {
		window string
		want   string
	}{
		{"30d", "interval '30d'"},
		{"", "interval '10y'"},
		{"all", "interval '10y'"},
	}

	for _, tt := range tests {
		got := substituteWindow("interval '{{window}}'", tt.window)
		if got != tt.want {
			t.Errorf("substituteWindow(%q) = %q, want %q", tt.window, got, tt.want)
		}
	}
}
