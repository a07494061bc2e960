package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fabrik/internal/event"
	"fabrik/internal/logging"

	"github.com/gorilla/websocket"
)

type streamBackend struct {
	bus    *event.Bus[event.Event]
	hub    *logging.Hub
	buffer *logging.Buffer
	server *httptest.Server
}

func newStreamBackend(t *testing.T, token string) *streamBackend {
	t.Helper()
	requireLocalListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := event.NewBus[event.Event](ctx, event.BusOptions{Name: "api-test"})
	hub := logging.NewHub()
	buffer := logging.NewBuffer(64)
	logger := logging.NewLogger(buffer, logging.LevelDebug)

	streams := &StreamHandler{
		Bus:       bus,
		LogHub:    hub,
		LogBuffer: buffer,
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{Logger: logger, AuthToken: token, Streams: streams})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &streamBackend{bus: bus, hub: hub, buffer: buffer, server: server}
}

func (backend *streamBackend) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(backend.server.URL, "http") + path
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var envelope map[string]json.RawMessage
	if err := conn.ReadJSON(&envelope); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return envelope
}

func envelopeType(t *testing.T, envelope map[string]json.RawMessage) string {
	t.Helper()
	var eventType string
	if err := json.Unmarshal(envelope["type"], &eventType); err != nil {
		t.Fatalf("decode type: %v", err)
	}
	return eventType
}

func TestEventsWebSocketStream(t *testing.T) {
	backend := newStreamBackend(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/events/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	backend.bus.Publish(event.NewRunEvent("r1", "nightly", "run_started", "Running"))

	envelope := readEnvelope(t, conn)
	if got := envelopeType(t, envelope); got != "run_started" {
		t.Fatalf("event type = %q", got)
	}
	if !strings.Contains(string(envelope["event"]), "nightly") {
		t.Fatalf("event payload missing pipeline: %s", envelope["event"])
	}
}

func TestEventsWebSocketTypeFilter(t *testing.T) {
	backend := newStreamBackend(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/events/ws?types=run_finished"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	backend.bus.Publish(event.NewRunEvent("r1", "nightly", "run_started", "Running"))
	backend.bus.Publish(event.NewRunEvent("r1", "nightly", "run_finished", "Succeeded"))

	envelope := readEnvelope(t, conn)
	if got := envelopeType(t, envelope); got != "run_finished" {
		t.Fatalf("filter leaked event type %q", got)
	}
}

func TestEventsWebSocketRequiresToken(t *testing.T) {
	backend := newStreamBackend(t, "sekrit")

	_, response, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/events/ws"), nil)
	if err == nil {
		t.Fatal("dial should fail without the token")
	}
	if response == nil || response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected handshake response: %+v", response)
	}

	conn, _, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/events/ws?token=sekrit"), nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestEventsSSEStream(t *testing.T) {
	backend := newStreamBackend(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.server.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET /api/events: %v", err)
	}
	defer response.Body.Close()

	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// The subscription races the publish, so keep publishing until the
	// stream yields the event.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				backend.bus.Publish(event.NewRunEvent("r1", "nightly", "run_started", "Running"))
			}
		}
	}()

	scanner := bufio.NewScanner(response.Body)
	sawEventLine := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: event" {
			sawEventLine = true
			continue
		}
		if sawEventLine && strings.HasPrefix(line, "data: ") {
			if !strings.Contains(line, "run_started") {
				t.Fatalf("unexpected data line: %s", line)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestLogsWebSocketLevelFloor(t *testing.T) {
	backend := newStreamBackend(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/logs/ws?level=warning"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	backend.hub.Broadcast(logging.Entry{Level: logging.LevelInfo, Message: "chatter"})
	backend.hub.Broadcast(logging.Entry{Level: logging.LevelWarning, Message: "trouble"})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var entry logging.Entry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if entry.Message != "trouble" || entry.Level != logging.LevelWarning {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLogsWebSocketRejectsUnknownLevel(t *testing.T) {
	backend := newStreamBackend(t, "")

	_, response, err := websocket.DefaultDialer.Dial(backend.wsURL("/api/logs/ws?level=loud"), nil)
	if err == nil {
		t.Fatal("dial should fail for an unknown level")
	}
	if response == nil || response.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected handshake response: %+v", response)
	}
}

func TestLogsTailEndpoint(t *testing.T) {
	backend := newStreamBackend(t, "")

	backend.buffer.Add(logging.Entry{Level: logging.LevelInfo, Message: "first"})
	backend.buffer.Add(logging.Entry{Level: logging.LevelError, Message: "second"})

	response, err := http.Get(backend.server.URL + "/api/logs?level=error")
	if err != nil {
		t.Fatalf("GET /api/logs: %v", err)
	}
	defer response.Body.Close()

	var entries []logging.Entry
	if err := json.NewDecoder(response.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "second" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
