package scheduler

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/metric"
)

// MetricState is the cached result of one metric computation. Fingerprint
// captures the scope the value was computed under; a definition edit changes
// the fingerprint and invalidates the entry even before the TTL expires.
type MetricState struct {
	Value       metric.Value
	Fingerprint string
	UpdatedAt   time.Time
	TTL         time.Duration
}

// IsStale returns true if the cached state is older than its TTL
func (s *MetricState) IsStale(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > s.TTL
}

// Fingerprint hashes the scope of a metric definition: window, inclusion
// toggles, and filter conditions. Formatting preferences (name, currency) do
// not participate, so renaming a metric keeps its cached value.
func Fingerprint(def *dataset.MetricDefinition) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%t|%t|%t|%t|",
		def.FormulaType, def.DataSource, def.Window,
		def.IncludeNoShows, def.IncludeCancels, def.IncludeReschedules,
		def.ExcludeOverduePCF)
	num, _ := json.Marshal(def.NumeratorConditions)
	den, _ := json.Marshal(def.DenominatorConditions)
	h.Write(num)
	h.Write([]byte("|"))
	h.Write(den)
	fmt.Fprintf(h, "|%s", def.NumeratorField)
	return fmt.Sprintf("%016x", h.Sum64())
}

// StateCache is a thread-safe cache of computed metric states keyed by
// metric ID
type StateCache struct {
	mu     sync.RWMutex
	states map[string]*MetricState
}

// NewStateCache creates a new state cache
func NewStateCache() *StateCache {
	return &StateCache{
		states: make(map[string]*MetricState),
	}
}

// Get retrieves the cached state for a metric
func (c *StateCache) Get(metricID string) (*MetricState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, exists := c.states[metricID]
	return state, exists
}

// GetFresh retrieves the cached state only if it is not stale and its
// fingerprint still matches the definition
func (c *StateCache) GetFresh(def *dataset.MetricDefinition, now time.Time) (*MetricState, bool) {
	state, exists := c.Get(def.ID)
	if !exists || state.IsStale(now) || state.Fingerprint != Fingerprint(def) {
		return nil, false
	}
	return state, true
}

// Set stores computed state for a metric
func (c *StateCache) Set(metricID string, state *MetricState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[metricID] = state
}

// GetAll returns all cached states
func (c *StateCache) GetAll() map[string]*MetricState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]*MetricState, len(c.states))
	for k, v := range c.states {
		snapshot[k] = v
	}

	return snapshot
}

// Delete removes a cached state
func (c *StateCache) Delete(metricID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.states, metricID)
}

// Clear removes all cached states
func (c *StateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states = make(map[string]*MetricState)
}

// Size returns the number of cached states
func (c *StateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.states)
}
