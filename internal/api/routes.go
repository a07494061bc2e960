package api

import (
	"net/http"

	"fabrik/internal/logging"
)

// Options wires the REST and stream handlers onto a mux.
type Options struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
	Rest           *RestHandler
	Streams        *StreamHandler
}

// RegisterRoutes mounts every endpoint. Rest and Streams may each be
// nil when that surface is not wanted.
func RegisterRoutes(mux *http.ServeMux, opts Options) {
	logger := opts.Logger
	token := opts.AuthToken

	if rest := opts.Rest; rest != nil {
		mux.HandleFunc("/api/status", restHandler(logger, token, rest.handleStatus))
		mux.HandleFunc("/api/pipelines/validate", restHandler(logger, token, rest.handleValidatePipeline))
		mux.HandleFunc("/api/pipelines", restHandler(logger, token, rest.handlePipelines))
		mux.HandleFunc("/api/runs", restHandler(logger, token, rest.handleRuns))
		mux.HandleFunc("/api/runs/", restHandler(logger, token, rest.handleRun))
		mux.HandleFunc("/api/backups", restHandler(logger, token, rest.handleBackups))
		mux.HandleFunc("/metrics", rest.handleMetrics)
	}

	if streams := opts.Streams; streams != nil {
		if streams.AuthToken == "" {
			streams.AuthToken = token
		}
		if streams.Logger == nil {
			streams.Logger = logger
		}
		if len(streams.AllowedOrigins) == 0 {
			streams.AllowedOrigins = opts.AllowedOrigins
		}
		mux.HandleFunc("/api/events/ws", streams.HandleEventsWS)
		mux.HandleFunc("/api/events", streams.HandleEventsSSE)
		mux.HandleFunc("/api/logs/ws", streams.HandleLogsWS)
		mux.HandleFunc("/api/logs", restHandler(logger, token, streams.HandleLogs))
	}
}
