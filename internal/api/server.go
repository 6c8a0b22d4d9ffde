package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okovacs/pulseboard/internal/dataset"
	"github.com/okovacs/pulseboard/internal/formula"
	"github.com/okovacs/pulseboard/internal/scheduler"
	"github.com/okovacs/pulseboard/internal/source"
	"github.com/okovacs/pulseboard/internal/storage"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body
const SignatureHeader = "X-Pulse-Signature"

// maxWebhookBody caps ingestion payloads at 1 MiB
const maxWebhookBody = 1 << 20

// Server is the HTTP API server
type Server struct {
	scheduler     *scheduler.Scheduler
	src           source.RecordSource
	webhookSecret string
	server        *http.Server
}

// NewServer creates a new API server
func NewServer(sched *scheduler.Scheduler, src source.RecordSource, addr, webhookSecret string) *Server {
	s := &Server{
		scheduler:     sched,
		src:           src,
		webhookSecret: webhookSecret,
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	// Dataset endpoints
	mux.HandleFunc("/v1/datasets", s.handleDatasetList)
	mux.HandleFunc("/v1/datasets/", s.handleDatasetSub)

	// Metric endpoints
	mux.HandleFunc("/v1/metrics", s.handleMetricList)
	mux.HandleFunc("/v1/metrics/", s.handleMetricSub)

	// Snapshot history endpoint
	mux.HandleFunc("/v1/snapshots", s.handleSnapshots)

	// Ingestion endpoint
	mux.HandleFunc("/v1/webhooks/", s.handleWebhook)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasets := s.scheduler.GetDatasets()
	cacheSize := s.scheduler.GetCache().Size()

	ready := len(datasets) > 0
	reasons := []string{}

	if len(datasets) == 0 {
		reasons = append(reasons, "no datasets loaded")
	}

	if cacheSize == 0 {
		reasons = append(reasons, "no metrics computed yet")
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:          ready,
		DatasetsLoaded: len(datasets),
		Reasons:        reasons,
	})
}

// handleDatasetList handles GET /v1/datasets
func (s *Server) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasets := s.scheduler.GetDatasets()

	summaries := make([]DatasetSummary, 0, len(datasets))
	for _, wf := range datasets {
		summaries = append(summaries, DatasetSummary{
			Slug:             wf.Dataset.Metadata.Slug,
			Name:             wf.Dataset.Metadata.Name,
			DataSource:       string(wf.Dataset.Spec.DataSource),
			Fields:           len(wf.Dataset.Spec.Fields),
			CalculatedFields: len(wf.Dataset.Spec.CalculatedFields),
			Metrics:          len(wf.Dataset.Spec.Metrics),
		})
	}

	respondJSON(w, http.StatusOK, DatasetListResponse{Datasets: summaries})
}

// handleDatasetSub routes GET /v1/datasets/{slug} and
// GET /v1/datasets/{slug}/records
func (s *Server) handleDatasetSub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "dataset slug required")
		return
	}

	if slug, ok := strings.CutSuffix(path, "/records"); ok {
		s.handleDatasetRecords(w, r, slug)
		return
	}

	ds := s.findDataset(path)
	if ds == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("dataset not found: %s", path))
		return
	}

	respondJSON(w, http.StatusOK, ds)
}

// handleDatasetRecords serves a record batch with calculated field columns
// appended
func (s *Server) handleDatasetRecords(w http.ResponseWriter, r *http.Request, slug string) {
	ds := s.findDataset(slug)
	if ds == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("dataset not found: %s", slug))
		return
	}

	window := r.URL.Query().Get("window")

	records, err := s.src.FetchRecords(r.Context(), ds.Spec.DataSource, window)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch records: %v", err))
		return
	}

	derived, cellErrors := formula.NewBatch(ds.Spec.CalculatedFields, records).EvaluateAll()

	resp := RecordsResponse{
		DatasetSlug: slug,
		Records:     derived,
		Total:       len(derived),
	}
	for _, ce := range cellErrors {
		resp.CellErrors = append(resp.CellErrors, fmt.Sprintf("record %d field %s: %v", ce.Record, ce.Field, ce.Err))
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleMetricList handles GET /v1/metrics
func (s *Server) handleMetricList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	datasets := s.scheduler.GetDatasets()

	summaries := []MetricSummary{}
	for _, wf := range datasets {
		for _, def := range wf.Dataset.Spec.Metrics {
			summaries = append(summaries, MetricSummary{
				ID:          def.ID,
				Name:        def.Name,
				DatasetSlug: wf.Dataset.Metadata.Slug,
				FormulaType: string(def.FormulaType),
				DataSource:  string(def.DataSource),
				Window:      def.Window,
				IsActive:    def.IsActive,
			})
		}
	}

	respondJSON(w, http.StatusOK, MetricListResponse{Metrics: summaries})
}

// handleMetricSub routes GET /v1/metrics/{id} and POST /v1/metrics/{id}/value
func (s *Server) handleMetricSub(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/metrics/")
	if path == "" {
		respondError(w, http.StatusBadRequest, "metric ID required")
		return
	}

	if id, ok := strings.CutSuffix(path, "/value"); ok {
		s.handleMetricValue(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, def := s.scheduler.FindMetric(path)
	if def == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("metric not found: %s", path))
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// handleMetricValue handles POST /v1/metrics/{id}/value
func (s *Server) handleMetricValue(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ValueRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
			return
		}
	}

	_, def := s.scheduler.FindMetric(id)
	if def == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("metric not found: %s", id))
		return
	}

	if !req.ForceFresh {
		if state, ok := s.scheduler.GetCache().GetFresh(def, time.Now()); ok {
			respondJSON(w, http.StatusOK, ValueResponse{
				MetricID:       id,
				FormattedValue: state.Value.FormattedValue,
				Breakdown:      state.Value.Breakdown,
				UpdatedAt:      state.UpdatedAt,
				TTL:            int(state.TTL.Seconds()),
				Cached:         true,
			})
			return
		}
	}

	state, err := s.scheduler.ComputeNow(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("computation failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, ValueResponse{
		MetricID:       id,
		FormattedValue: state.Value.FormattedValue,
		Breakdown:      state.Value.Breakdown,
		UpdatedAt:      state.UpdatedAt,
		TTL:            int(state.TTL.Seconds()),
		Cached:         false,
	})
}

// handleSnapshots handles GET /v1/snapshots
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store := s.scheduler.GetStorage()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot storage not configured")
		return
	}

	query := r.URL.Query()
	filter := storage.SnapshotFilter{
		MetricID:    query.Get("metricID"),
		DatasetSlug: query.Get("datasetSlug"),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	if startTimeStr := query.Get("startTime"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filter.StartTime = &startTime
		}
	}

	if endTimeStr := query.Get("endTime"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filter.EndTime = &endTime
		}
	}

	snapshots, err := store.QuerySnapshots(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query snapshots: %v", err))
		return
	}

	responses := make([]SnapshotResponse, len(snapshots))
	for i, snap := range snapshots {
		responses[i] = SnapshotResponse{
			ID:             snap.ID,
			MetricID:       snap.MetricID,
			DatasetSlug:    snap.DatasetSlug,
			FormattedValue: snap.FormattedValue,
			Numerator:      snap.Numerator,
			Denominator:    snap.Denominator,
			Window:         snap.Window,
			Timestamp:      snap.Timestamp,
			CreatedAt:      snap.CreatedAt,
		}
	}

	respondJSON(w, http.StatusOK, SnapshotListResponse{
		Snapshots: responses,
		Total:     len(responses),
	})
}

// handleWebhook handles POST /v1/webhooks/{source}
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	src := dataset.DataSource(strings.TrimPrefix(r.URL.Path, "/v1/webhooks/"))
	switch src {
	case dataset.SourceEvents, dataset.SourcePayments, dataset.SourcePCFFields:
	default:
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown source: %s", src))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !s.verifySignature(body, r.Header.Get(SignatureHeader)) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	if len(req.Records) == 0 {
		respondError(w, http.StatusBadRequest, "no records in payload")
		return
	}

	store := s.scheduler.GetStorage()
	if store == nil {
		respondError(w, http.StatusServiceUnavailable, "record storage not configured")
		return
	}

	if err := store.StoreRecords(src, req.Records); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store records: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, WebhookResponse{Accepted: len(req.Records)})
}

// verifySignature checks the hex HMAC-SHA256 of the body in constant time
func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (s *Server) findDataset(slug string) *dataset.Dataset {
	for _, wf := range s.scheduler.GetDatasets() {
		if wf.Dataset.Metadata.Slug == slug {
			return wf.Dataset
		}
	}
	return nil
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
