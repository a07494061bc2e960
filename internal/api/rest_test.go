package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fabrik/internal/logging"
	"fabrik/internal/metrics"
	"fabrik/internal/runs"
)

const testNotebookID = "4a6d9d3c-52f2-4a44-b4b3-b4556e0e54c8"
const testWorkspaceID = "83d6b5bc-dca9-4c49-b2ff-0f3a54c9c871"

func requireLocalListener(t *testing.T) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("local listener unavailable for httptest")
	}
	_ = listener.Close()
}

func testDefinitionJSON(name string) string {
	return `{
  "name": "` + name + `",
  "properties": {
    "activities": [
      {"name": "fetch", "type": "TridentNotebook",
       "typeProperties": {"notebookId": "` + testNotebookID + `",
                          "workspaceId": "` + testWorkspaceID + `"}}
    ]
  }
}`
}

// blockingInvoker parks every invocation until the run context dies.
type blockingInvoker struct{}

func (b *blockingInvoker) Invoke(ctx context.Context, inv runs.Invocation) (map[string]any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testBackend struct {
	store  *runs.Store
	mux    *http.ServeMux
	logger *logging.Logger
}

func newTestBackend(t *testing.T, invoker runs.Invoker, token string) *testBackend {
	t.Helper()

	store, err := runs.OpenStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if invoker == nil {
		invoker = &runs.DryRunInvoker{}
	}
	logger := logging.NewLogger(logging.NewBuffer(64), logging.LevelDebug)
	engine, err := runs.NewEngine(runs.Options{Invoker: invoker, Store: store, Logger: logger})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	rest := &RestHandler{
		Logger:  logger,
		Engine:  engine,
		Store:   store,
		Metrics: &metrics.Registry{},
		Started: time.Now(),
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{Logger: logger, AuthToken: token, Rest: rest})
	return &testBackend{store: store, mux: mux, logger: logger}
}

func (backend *testBackend) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	backend.mux.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestStatusReportsWiring(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	recorder := backend.request(t, http.MethodGet, "/api/status", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	var status statusResponse
	decodeResponse(t, recorder, &status)
	if status.Name != "fabrik" {
		t.Fatalf("name = %q", status.Name)
	}
	if !status.EngineEnabled {
		t.Fatal("engine should be reported enabled")
	}
	if status.BackupsConfigured {
		t.Fatal("backups should be reported unconfigured")
	}
}

func TestValidatePipelineEndpoint(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	recorder := backend.request(t, http.MethodPost, "/api/pipelines/validate", testDefinitionJSON("nightly"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	var result validateResponse
	decodeResponse(t, recorder, &result)
	if !result.Valid || result.Pipeline != "nightly" || result.Activities != 1 {
		t.Fatalf("unexpected validation result: %+v", result)
	}

	bad := `{"name": "broken", "properties": {"activities": [
		{"name": "a", "type": "TridentNotebook",
		 "dependsOn": [{"activity": "missing", "dependencyConditions": ["Succeeded"]}],
		 "typeProperties": {"notebookId": "` + testNotebookID + `", "workspaceId": "` + testWorkspaceID + `"}}
	]}}`
	recorder = backend.request(t, http.MethodPost, "/api/pipelines/validate", bad)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	decodeResponse(t, recorder, &result)
	if result.Valid || result.Problem == nil {
		t.Fatalf("expected a problem: %+v", result)
	}
	if result.Problem.Kind != "conflict" {
		t.Fatalf("problem kind = %q", result.Problem.Kind)
	}
	if !strings.Contains(result.Problem.Message, "missing") {
		t.Fatalf("problem message = %q", result.Problem.Message)
	}
}

func TestStartRunCompletes(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	body := `{"definition": ` + testDefinitionJSON("nightly") + `}`
	recorder := backend.request(t, http.MethodPost, "/api/runs", body)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", recorder.Code, recorder.Body.String())
	}
	var started runs.Run
	decodeResponse(t, recorder, &started)
	if started.ID == "" || started.Pipeline != "nightly" {
		t.Fatalf("unexpected run: %+v", started)
	}

	run := waitForState(t, backend, started.ID, runs.StateSucceeded)
	if run.Activities["fetch"].State != runs.StateSucceeded {
		t.Fatalf("fetch state = %q", run.Activities["fetch"].State)
	}
}

func TestCancelRun(t *testing.T) {
	backend := newTestBackend(t, &blockingInvoker{}, "")

	body := `{"definition": ` + testDefinitionJSON("longhaul") + `}`
	recorder := backend.request(t, http.MethodPost, "/api/runs", body)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", recorder.Code, recorder.Body.String())
	}
	var started runs.Run
	decodeResponse(t, recorder, &started)

	recorder = backend.request(t, http.MethodPost, "/api/runs/"+started.ID+"/cancel", "")
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d: %s", recorder.Code, recorder.Body.String())
	}

	waitForState(t, backend, started.ID, runs.StateCancelled)
}

func waitForState(t *testing.T, backend *testBackend, id string, want runs.State) *runs.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		recorder := backend.request(t, http.MethodGet, "/api/runs/"+id, "")
		if recorder.Code == http.StatusOK {
			var run runs.Run
			decodeResponse(t, recorder, &run)
			if run.State == want {
				return &run
			}
			if run.State.Terminal() {
				t.Fatalf("run reached %q, want %q", run.State, want)
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never reached %q", id, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunNotFoundEnvelope(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	recorder := backend.request(t, http.MethodGet, "/api/runs/nope", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
	var envelope errorResponse
	decodeResponse(t, recorder, &envelope)
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
	if !strings.Contains(envelope.Error.Message, "nope") {
		t.Fatalf("error message = %q", envelope.Error.Message)
	}
}

func TestListRunsFiltersByPipeline(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	for _, name := range []string{"alpha", "beta"} {
		body := `{"definition": ` + testDefinitionJSON(name) + `}`
		recorder := backend.request(t, http.MethodPost, "/api/runs", body)
		var started runs.Run
		decodeResponse(t, recorder, &started)
		waitForState(t, backend, started.ID, runs.StateSucceeded)
	}

	recorder := backend.request(t, http.MethodGet, "/api/runs?pipeline=alpha", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var list []runs.Run
	decodeResponse(t, recorder, &list)
	if len(list) != 1 || list[0].Pipeline != "alpha" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestAuthTokenGuardsEndpoints(t *testing.T) {
	backend := newTestBackend(t, nil, "sekrit")

	recorder := backend.request(t, http.MethodGet, "/api/status", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	var envelope errorResponse
	decodeResponse(t, recorder, &envelope)
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	request.Header.Set("Authorization", "Bearer sekrit")
	authorized := httptest.NewRecorder()
	backend.mux.ServeHTTP(authorized, request)
	if authorized.Code != http.StatusOK {
		t.Fatalf("authorized status = %d, want 200", authorized.Code)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	recorder := backend.request(t, http.MethodGet, "/api/status", "")
	if recorder.Header().Get(requestIDHeader) == "" {
		t.Fatal("response should carry a request ID")
	}

	request := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	request.Header.Set(requestIDHeader, "req-123")
	echoed := httptest.NewRecorder()
	backend.mux.ServeHTTP(echoed, request)
	if got := echoed.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request ID = %q, want req-123", got)
	}
}

func TestBackupsUnavailableWithoutStore(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	recorder := backend.request(t, http.MethodGet, "/api/backups", "")
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	var envelope errorResponse
	decodeResponse(t, recorder, &envelope)
	if envelope.Error.Code != "service_unavailable" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	backend := newTestBackend(t, nil, "")

	backend.request(t, http.MethodPost, "/api/pipelines/validate", testDefinitionJSON("nightly"))

	recorder := backend.request(t, http.MethodGet, "/metrics", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "fabrik_validations_passed_total") {
		t.Fatalf("missing validation counter: %s", body)
	}
	if !strings.Contains(body, "# HELP") {
		t.Fatalf("exposition missing HELP lines: %s", body)
	}
}

func TestParseRunPath(t *testing.T) {
	cases := []struct {
		path   string
		id     string
		cancel bool
	}{
		{"/api/runs/abc", "abc", false},
		{"/api/runs/abc/", "abc", false},
		{"/api/runs/abc/cancel", "abc", true},
		{"/api/runs/", "", false},
		{"/api/runs/abc/extra/bits", "", false},
	}
	for _, tc := range cases {
		id, cancel := parseRunPath(tc.path)
		if id != tc.id || cancel != tc.cancel {
			t.Fatalf("parseRunPath(%q) = (%q, %v), want (%q, %v)", tc.path, id, cancel, tc.id, tc.cancel)
		}
	}
}
