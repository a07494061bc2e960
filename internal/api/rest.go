// Package api serves the HTTP surface: REST endpoints for status,
// pipelines, runs, and backups, WebSocket/SSE event streams, and the
// Prometheus exposition.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fabrik/internal/backup"
	"fabrik/internal/event"
	"fabrik/internal/logging"
	"fabrik/internal/metrics"
	"fabrik/internal/pipeline"
	"fabrik/internal/runs"
	"fabrik/internal/version"
)

const maxRequestBodyBytes = 4 << 20

// RestHandler serves the REST endpoints. Optional collaborators may be
// nil; their endpoints answer with service_unavailable.
type RestHandler struct {
	Logger  *logging.Logger
	Engine  *runs.Engine
	Store   *runs.Store
	Backups *backup.Store
	Watcher *pipeline.Watcher
	Metrics *metrics.Registry
	Bus     *event.Bus[event.Event]

	FabricConfigured   bool
	TemporalConfigured bool
	Started            time.Time

	tracker runTracker
}

// runTracker remembers the cancel functions of in-flight runs.
type runTracker struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func (t *runTracker) add(id string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancels == nil {
		t.cancels = map[string]context.CancelFunc{}
	}
	t.cancels[id] = cancel
}

func (t *runTracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cancels, id)
}

// cancel fires the run's cancel function. It reports whether the run
// was still in flight.
func (t *runTracker) cancel(id string) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[id]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

type statusResponse struct {
	Name               string       `json:"name"`
	Version            version.Info `json:"version"`
	UptimeSeconds      int64        `json:"uptime_seconds"`
	EngineEnabled      bool         `json:"engine_enabled"`
	FabricConfigured   bool         `json:"fabric_configured"`
	TemporalConfigured bool         `json:"temporal_configured"`
	BackupsConfigured  bool         `json:"backups_configured"`
	WatchedPipelines   int          `json:"watched_pipelines"`
	ServerTime         time.Time    `json:"server_time"`
}

type validateResponse struct {
	Valid      bool             `json:"valid"`
	Pipeline   string           `json:"pipeline,omitempty"`
	Activities int              `json:"activities,omitempty"`
	Problem    *problemResponse `json:"problem,omitempty"`
}

type problemResponse struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

type startRunRequest struct {
	Definition json.RawMessage `json:"definition"`
	Parameters map[string]any  `json:"parameters,omitempty"`
}

type createBackupRequest struct {
	Workspace string `json:"workspace"`
	Model     string `json:"model"`
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	watched := 0
	if h.Watcher != nil {
		watched = len(h.Watcher.States())
	}
	uptime := int64(0)
	if !h.Started.IsZero() {
		uptime = int64(time.Since(h.Started).Seconds())
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Name:               "fabrik",
		Version:            version.Get(),
		UptimeSeconds:      uptime,
		EngineEnabled:      h.Engine != nil,
		FabricConfigured:   h.FabricConfigured,
		TemporalConfigured: h.TemporalConfigured,
		BackupsConfigured:  h.Backups != nil,
		WatchedPipelines:   watched,
		ServerTime:         time.Now().UTC(),
	})
	return nil
}

func (h *RestHandler) handleValidatePipeline(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}

	body, apiErr := readBody(r)
	if apiErr != nil {
		return apiErr
	}
	d, err := pipeline.DecodeBytes(body)
	if err == nil {
		err = pipeline.Validate(d)
	}
	if err != nil {
		h.Metrics.IncValidation(false)
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Problem: problemFor(err)})
		return nil
	}

	h.Metrics.IncValidation(true)
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:      true,
		Pipeline:   d.Name,
		Activities: len(d.Properties.Activities),
	})
	return nil
}

func problemFor(err error) *problemResponse {
	var validation *pipeline.ValidationError
	if errors.As(err, &validation) {
		return &problemResponse{
			Kind:    string(validation.Kind),
			Path:    validation.Path,
			Message: validation.Message,
		}
	}
	return &problemResponse{Kind: "invalid", Message: err.Error()}
}

func (h *RestHandler) handlePipelines(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Watcher == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "no pipeline directory is being watched"}
	}
	writeJSON(w, http.StatusOK, h.Watcher.States())
	return nil
}

func (h *RestHandler) handleRuns(w http.ResponseWriter, r *http.Request) *apiError {
	switch r.Method {
	case http.MethodGet:
		return h.listRuns(w, r)
	case http.MethodPost:
		return h.startRun(w, r)
	default:
		return methodNotAllowed(w, "GET, POST")
	}
}

func (h *RestHandler) listRuns(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Store == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "run store is not configured"}
	}

	query := r.URL.Query()
	filter := runs.ListFilter{
		Pipeline: query.Get("pipeline"),
		State:    runs.State(query.Get("state")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return &apiError{Status: http.StatusBadRequest, Message: "limit must be a positive integer"}
		}
		filter.Limit = limit
	}

	list, err := h.Store.ListRuns(filter)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func (h *RestHandler) startRun(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Engine == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "run engine is not enabled"}
	}

	body, apiErr := readBody(r)
	if apiErr != nil {
		return apiErr
	}
	var request startRunRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid JSON body: " + err.Error()}
	}
	if len(request.Definition) == 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "definition is required"}
	}
	d, err := pipeline.DecodeBytes(request.Definition)
	if err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	run, wait, err := h.Engine.Launch(ctx, d, request.Parameters)
	if err != nil {
		cancel()
		var validation *pipeline.ValidationError
		if errors.As(err, &validation) {
			return &apiError{Status: http.StatusBadRequest, Message: validation.Error()}
		}
		return &apiError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	h.tracker.add(run.ID, cancel)
	go func() {
		defer cancel()
		defer h.tracker.remove(run.ID)
		_, _ = wait()
	}()

	writeJSON(w, http.StatusAccepted, run)
	return nil
}

func (h *RestHandler) handleRun(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Store == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "run store is not configured"}
	}

	id, wantsCancel := parseRunPath(r.URL.Path)
	if id == "" {
		return &apiError{Status: http.StatusNotFound, Message: "run id is required"}
	}

	if wantsCancel {
		if r.Method != http.MethodPost {
			return methodNotAllowed(w, "POST")
		}
		return h.cancelRun(w, id)
	}

	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	run, err := h.Store.GetRun(id)
	if err != nil {
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, run)
	return nil
}

func (h *RestHandler) cancelRun(w http.ResponseWriter, id string) *apiError {
	if h.tracker.cancel(id) {
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelling": true})
		return nil
	}

	run, err := h.Store.GetRun(id)
	if err != nil {
		return &apiError{Status: http.StatusNotFound, Message: err.Error()}
	}
	if run.State.Terminal() {
		return &apiError{Status: http.StatusConflict, Message: "run " + id + " already finished"}
	}
	// Started by another process; nothing to signal from here.
	return &apiError{Status: http.StatusConflict, Message: "run " + id + " is not cancellable from this server"}
}

// parseRunPath splits /api/runs/{id} and /api/runs/{id}/cancel.
func parseRunPath(path string) (id string, wantsCancel bool) {
	rest := strings.TrimPrefix(path, "/api/runs/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", false
	}
	if cut, ok := strings.CutSuffix(rest, "/cancel"); ok {
		return cut, true
	}
	if strings.Contains(rest, "/") {
		return "", false
	}
	return rest, false
}

func (h *RestHandler) handleBackups(w http.ResponseWriter, r *http.Request) *apiError {
	if h.Backups == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "backup store is not configured"}
	}

	switch r.Method {
	case http.MethodGet:
		return h.listBackups(w, r)
	case http.MethodPost:
		return h.createBackup(w, r)
	default:
		return methodNotAllowed(w, "GET, POST")
	}
}

func (h *RestHandler) listBackups(w http.ResponseWriter, r *http.Request) *apiError {
	query := r.URL.Query()
	filter := backup.Filter{
		Workspace: query.Get("workspace"),
		Model:     query.Get("model"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return &apiError{Status: http.StatusBadRequest, Message: "limit must be a positive integer"}
		}
		filter.Limit = limit
	}

	list, err := h.Backups.List(filter)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

func (h *RestHandler) createBackup(w http.ResponseWriter, r *http.Request) *apiError {
	body, apiErr := readBody(r)
	if apiErr != nil {
		return apiErr
	}
	var request createBackupRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid JSON body: " + err.Error()}
	}
	if strings.TrimSpace(request.Workspace) == "" || strings.TrimSpace(request.Model) == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "workspace and model are required"}
	}

	entry, err := h.Backups.Snapshot(r.Context(), request.Workspace, request.Model)
	if err != nil {
		return &apiError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	h.Metrics.IncBackupCreated()
	writeJSON(w, http.StatusCreated, entry)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	setSecurityHeaders(w, cacheControlNoStore)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	registry := h.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	_ = registry.WritePrometheus(w)
}

func readBody(r *http.Request) ([]byte, *apiError) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "failed to read request body"}
	}
	if len(body) > maxRequestBodyBytes {
		return nil, &apiError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	if len(body) == 0 {
		return nil, &apiError{Status: http.StatusBadRequest, Message: "request body is required"}
	}
	return body, nil
}
