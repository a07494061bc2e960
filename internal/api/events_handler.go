package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fabrik/internal/event"
	"fabrik/internal/logging"
)

// StreamHandler serves the WebSocket and SSE event streams plus the
// log stream.
type StreamHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
	Bus            *event.Bus[event.Event]
	LogHub         *logging.Hub
	LogBuffer      *logging.Buffer
}

const logStreamBufferSize = 256

type eventEnvelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Event     event.Event `json:"event"`
}

func buildEventEnvelope(ev event.Event) (any, bool) {
	if ev == nil {
		return nil, false
	}
	return eventEnvelope{
		Type:      ev.Type(),
		Timestamp: ev.Timestamp(),
		Event:     ev,
	}, true
}

// subscribeEvents honors an optional ?types=a,b filter.
func (h *StreamHandler) subscribeEvents(r *http.Request) (<-chan event.Event, func(), bool) {
	if h.Bus == nil {
		return nil, nil, false
	}
	raw := strings.TrimSpace(r.URL.Query().Get("types"))
	if raw == "" {
		output, cancel := h.Bus.Subscribe()
		return output, cancel, true
	}
	var types []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, part)
		}
	}
	output, cancel := h.Bus.SubscribeTypes(types...)
	return output, cancel, true
}

// HandleEventsWS serves GET /api/events/ws.
func (h *StreamHandler) HandleEventsWS(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	output, cancel, ok := h.subscribeEvents(r)
	if !ok {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "event stream unavailable",
		})
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	serveWSStream(r, wsStreamConfig[event.Event]{
		Conn:         conn,
		Output:       output,
		BuildPayload: buildEventEnvelope,
		Logger:       h.Logger,
	})
}

// HandleEventsSSE serves GET /api/events, the SSE fallback.
func (h *StreamHandler) HandleEventsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireSSEToken(w, r, h.AuthToken, h.Logger) {
		return
	}

	output, cancel, ok := h.subscribeEvents(r)
	if !ok {
		writeSSEHTTPError(w, r, h.Logger, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer cancel()

	serveSSEStream(w, r, sseStreamConfig[event.Event]{
		Logger:       h.Logger,
		Output:       output,
		BuildPayload: buildEventEnvelope,
		EventName:    "event",
	})
}

// HandleLogsWS serves GET /api/logs/ws. An optional ?level= floor
// drops entries below it.
func (h *StreamHandler) HandleLogsWS(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.LogHub == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	minLevel := logging.Level("")
	if raw := r.URL.Query().Get("level"); raw != "" {
		parsed, ok := logging.ParseLevel(raw)
		if !ok {
			writeWSError(w, r, nil, h.Logger, wsError{
				Status:  http.StatusBadRequest,
				Message: "unknown log level " + raw,
			})
			return
		}
		minLevel = parsed
	}

	output, cancel := h.LogHub.Subscribe(logStreamBufferSize)
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	serveWSStream(r, wsStreamConfig[logging.Entry]{
		Conn:   conn,
		Output: output,
		BuildPayload: func(entry logging.Entry) (any, bool) {
			if !logging.LevelAtLeast(entry.Level, minLevel) {
				return nil, false
			}
			return entry, true
		},
		Logger: h.Logger,
	})
}

// HandleLogs serves GET /api/logs, the buffered tail.
func (h *StreamHandler) HandleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.LogBuffer == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return &apiError{Status: http.StatusBadRequest, Message: "limit must be a positive integer"}
		}
		limit = parsed
	}

	entries := h.LogBuffer.Tail(limit)
	if raw := r.URL.Query().Get("level"); raw != "" {
		minLevel, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "unknown log level " + raw}
		}
		filtered := entries[:0]
		for _, entry := range entries {
			if logging.LevelAtLeast(entry.Level, minLevel) {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, http.StatusOK, entries)
	return nil
}
