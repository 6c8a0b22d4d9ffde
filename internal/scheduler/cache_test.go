package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/metric"
)

func TestStateCache_Basics(t *testing.T) {
	cache := NewStateCache()

	// Initially empty
	if cache.Size() != 0 {
		t.Errorf("expected empty cache, got size %d", cache.Size())
	}

	// Set and get
	state := &MetricState{
		Value:     metric.Value{FormattedValue: "42"},
		UpdatedAt: time.Now(),
		TTL:       30 * time.Second,
	}

	cache.Set("calls-completed", state)

	if cache.Size() != 1 {
		t.Errorf("expected size 1, got %d", cache.Size())
	}

	retrieved, ok := cache.Get("calls-completed")
	if !ok {
		t.Fatal("expected to retrieve state")
	}

	if retrieved.Value.FormattedValue != "42" {
		t.Errorf("expected FormattedValue=42, got %s", retrieved.Value.FormattedValue)
	}

	// Delete
	cache.Delete("calls-completed")
	if cache.Size() != 0 {
		t.Errorf("expected size 0 after delete, got %d", cache.Size())
	}

	_, ok = cache.Get("calls-completed")
	if ok {
		t.Error("expected not to find deleted state")
	}
}

func TestStateCache_GetAll(t *testing.T) {
	cache := NewStateCache()

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("metric-%d", i), &MetricState{UpdatedAt: time.Now()})
	}

	all := cache.GetAll()
	if len(all) != 3 {
		t.Errorf("expected 3 states, got %d", len(all))
	}
}

func TestStateCache_Clear(t *testing.T) {
	cache := NewStateCache()

	cache.Set("m1", &MetricState{})
	cache.Set("m2", &MetricState{})

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("expected size 0 after clear, got %d", cache.Size())
	}
}

func TestMetricState_IsStale(t *testing.T) {
	now := time.Now()
	state := &MetricState{
		UpdatedAt: now.Add(-1 * time.Minute),
		TTL:       30 * time.Second,
	}

	if !state.IsStale(now) {
		t.Error("expected state to be stale")
	}

	state.UpdatedAt = now.Add(-10 * time.Second)
	if state.IsStale(now) {
		t.Error("expected state to not be stale")
	}
}

func TestStateCache_GetFresh(t *testing.T) {
	cache := NewStateCache()
	def := &dataset.MetricDefinition{
		ID:          "show-rate",
		FormulaType: dataset.MetricPercentage,
		Window:      "30d",
	}

	cache.Set(def.ID, &MetricState{
		Value:       metric.Value{FormattedValue: "67%"},
		Fingerprint: Fingerprint(def),
		UpdatedAt:   time.Now(),
		TTL:         time.Minute,
	})

	if _, ok := cache.GetFresh(def, time.Now()); !ok {
		t.Fatal("expected fresh state within TTL")
	}

	// past TTL
	if _, ok := cache.GetFresh(def, time.Now().Add(2*time.Minute)); ok {
		t.Error("expected stale state past TTL")
	}

	// definition edit changes the fingerprint
	edited := *def
	edited.Window = "7d"
	if _, ok := cache.GetFresh(&edited, time.Now()); ok {
		t.Error("expected fingerprint mismatch after a scope edit")
	}
}

func TestFingerprint(t *testing.T) {
	base := dataset.MetricDefinition{
		ID:          "show-rate",
		FormulaType: dataset.MetricPercentage,
		Window:      "30d",
		NumeratorConditions: []dataset.FilterCondition{
			{Field: "status", Operator: dataset.OpEquals, Value: "completed"},
		},
	}

	same := base
	if Fingerprint(&base) != Fingerprint(&same) {
		t.Error("identical definitions must fingerprint equally")
	}

	renamed := base
	renamed.Name = "Show Rate (renamed)"
	if Fingerprint(&base) != Fingerprint(&renamed) {
		t.Error("renaming a metric must not change its fingerprint")
	}

	rescoped := base
	rescoped.Window = "7d"
	if Fingerprint(&base) == Fingerprint(&rescoped) {
		t.Error("changing the window must change the fingerprint")
	}

	toggled := base
	toggled.IncludeNoShows = true
	if Fingerprint(&base) == Fingerprint(&toggled) {
		t.Error("changing a toggle must change the fingerprint")
	}

	refiltered := base
	refiltered.NumeratorConditions = []dataset.FilterCondition{
		{Field: "status", Operator: dataset.OpEquals, Value: "no_show"},
	}
	if Fingerprint(&base) == Fingerprint(&refiltered) {
		t.Error("changing conditions must change the fingerprint")
	}
}

func TestStateCache_Concurrency(t *testing.T) {
	cache := NewStateCache()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			cache.Set(fmt.Sprintf("metric-%d", id%10), &MetricState{UpdatedAt: time.Now()})
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			cache.Get(fmt.Sprintf("metric-%d", id%10))
			cache.Size()
		}(i)
	}

	wg.Wait()

	if cache.Size() != 10 {
		t.Errorf("expected 10 entries, got %d", cache.Size())
	}
}
