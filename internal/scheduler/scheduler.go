package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/formula"
	"github.com/okovacs/pulseboard/internal/metric"
	"github.com/okovacs/pulseboard/internal/source"
	"github.com/okovacs/pulseboard/internal/storage"
)

// DefaultRefreshInterval applies to periodic metrics that do not declare one
const DefaultRefreshInterval = time.Minute

// Scheduler manages periodic metric computation across all loaded datasets
type Scheduler struct {
	src        source.RecordSource
	cache      *StateCache
	datasetDir string
	schemaPath string
	datasets   []dataset.DatasetWithFile
	store      storage.Storage
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// NewScheduler creates a new scheduler
func NewScheduler(src source.RecordSource, datasetDir, schemaPath string) *Scheduler {
	return &Scheduler{
		src:        src,
		cache:      NewStateCache(),
		datasetDir: datasetDir,
		schemaPath: schemaPath,
	}
}

// SetStorage sets the snapshot storage backend (optional)
func (s *Scheduler) SetStorage(store storage.Storage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// LoadDatasets loads and validates dataset definitions from the configured
// directory
func (s *Scheduler) LoadDatasets() error {
	withFiles, errors := dataset.LoadFromDirectory(s.datasetDir)
	if len(errors) > 0 {
		return fmt.Errorf("failed to load datasets: %d errors", len(errors))
	}

	if len(withFiles) == 0 {
		return fmt.Errorf("no datasets found in %s", s.datasetDir)
	}

	validator, err := dataset.NewValidator(s.schemaPath)
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	validationErrors := validator.ValidateDirectory(s.datasetDir)
	for _, wf := range withFiles {
		validationErrors = append(validationErrors, formula.ValidateDataset(wf.File, wf.Dataset)...)
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("dataset validation failed: %d errors", len(validationErrors))
	}

	s.mu.Lock()
	s.datasets = withFiles
	store := s.store
	s.mu.Unlock()

	if store != nil {
		for _, wf := range withFiles {
			if err := store.StoreDataset(wf.Dataset); err != nil {
				log.Printf("Warning: failed to store dataset %s: %v", wf.Dataset.Metadata.Slug, err)
			}
		}
	}

	log.Printf("Loaded %d datasets", len(withFiles))
	return nil
}

// Start begins the computation scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	if len(s.datasets) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no datasets loaded, call LoadDatasets() first")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	datasets := s.datasets
	s.mu.Unlock()

	count := 0
	for _, wf := range datasets {
		for i := range wf.Dataset.Spec.Metrics {
			def := &wf.Dataset.Spec.Metrics[i]
			if !def.IsActive {
				continue
			}
			s.wg.Add(1)
			count++
			go s.computeLoop(ctx, wf.Dataset, def)
		}
	}

	log.Printf("Started scheduler for %d metrics", count)
	return nil
}

// Stop stops the scheduler and waits for in-flight computations to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	log.Println("Stopping scheduler...")
	s.wg.Wait()
	log.Println("Scheduler stopped")
}

// computeLoop runs periodic computations for a single metric
func (s *Scheduler) computeLoop(ctx context.Context, ds *dataset.Dataset, def *dataset.MetricDefinition) {
	defer s.wg.Done()

	interval := DefaultRefreshInterval
	if def.RefreshInterval != "" {
		parsed, err := dataset.ParseWindow(def.RefreshInterval)
		if err != nil {
			log.Printf("Error parsing refresh interval for metric %s: %v", def.ID, err)
			return
		}
		interval = parsed
	}

	s.computeOnce(ctx, ds, def, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.computeOnce(ctx, ds, def, interval)
		}
	}
}

// computeOnce fetches a record batch, derives calculated fields, and computes
// a single metric value
func (s *Scheduler) computeOnce(ctx context.Context, ds *dataset.Dataset, def *dataset.MetricDefinition, interval time.Duration) {
	now := time.Now()

	records, err := s.src.FetchRecords(ctx, def.DataSource, def.Window)
	if err != nil {
		log.Printf("Error fetching records for metric %s: %v", def.ID, err)
		return
	}

	derived, cellErrors := formula.NewBatch(ds.Spec.CalculatedFields, records).EvaluateAll()
	if len(cellErrors) > 0 {
		log.Printf("Metric %s: %d cell errors: %s", def.ID, len(cellErrors), formula.FormatCellErrors(cellErrors))
	}

	value := metric.Compute(def, derived)
	fingerprint := Fingerprint(def)

	s.cache.Set(def.ID, &MetricState{
		Value:       value,
		Fingerprint: fingerprint,
		UpdatedAt:   now,
		TTL:         interval,
	})

	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()

	if store != nil {
		snap := storage.Snapshot{
			MetricID:       def.ID,
			DatasetSlug:    ds.Metadata.Slug,
			FormattedValue: value.FormattedValue,
			Numerator:      value.Breakdown.Numerator,
			Denominator:    value.Breakdown.Denominator,
			Fingerprint:    fingerprint,
			Window:         def.Window,
			Timestamp:      now,
		}
		if err := store.StoreSnapshot(snap); err != nil {
			log.Printf("Warning: failed to store snapshot for metric %s: %v", def.ID, err)
		}
	}

	log.Printf("Computed metric %s: value=%s, numerator=%.2f", def.ID, value.FormattedValue, value.Breakdown.Numerator)
}

// GetCache returns the state cache
func (s *Scheduler) GetCache() *StateCache {
	return s.cache
}

// GetStorage returns the snapshot storage backend
func (s *Scheduler) GetStorage() storage.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetDatasets returns the loaded datasets
func (s *Scheduler) GetDatasets() []dataset.DatasetWithFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]dataset.DatasetWithFile, len(s.datasets))
	copy(result, s.datasets)
	return result
}

// SetDatasetsForTest sets datasets directly (for testing only)
func (s *Scheduler) SetDatasetsForTest(datasets []dataset.DatasetWithFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = datasets
}

// FindMetric locates a metric definition and its owning dataset by ID
func (s *Scheduler) FindMetric(metricID string) (*dataset.Dataset, *dataset.MetricDefinition) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, wf := range s.datasets {
		for i := range wf.Dataset.Spec.Metrics {
			if wf.Dataset.Spec.Metrics[i].ID == metricID {
				return wf.Dataset, &wf.Dataset.Spec.Metrics[i]
			}
		}
	}
	return nil, nil
}

// ComputeNow forces immediate computation of a specific metric, bypassing the
// cache
func (s *Scheduler) ComputeNow(ctx context.Context, metricID string) (*MetricState, error) {
	ds, def := s.FindMetric(metricID)
	if def == nil {
		return nil, fmt.Errorf("metric not found: %s", metricID)
	}

	interval := DefaultRefreshInterval
	if def.RefreshInterval != "" {
		parsed, err := dataset.ParseWindow(def.RefreshInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh interval: %w", err)
		}
		interval = parsed
	}

	s.computeOnce(ctx, ds, def, interval)

	state, ok := s.cache.Get(metricID)
	if !ok {
		return nil, fmt.Errorf("computation failed for metric %s", metricID)
	}
	return state, nil
}
