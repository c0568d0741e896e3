package handler

import (
	"net/http"

	"kvsstreamer/internal/service/stream"
)

// StatsProvider exposes the capture loop counters.
type StatsProvider interface {
	Stats() stream.Stats
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Stream    string       `json:"stream"`
	SessionID string       `json:"session_id,omitempty"`
	Loop      stream.Stats `json:"loop"`
}

// HealthHandler reports 200 while the loop runs and 503 otherwise.
func HealthHandler(streamName string, sessionID func() string, stats StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Stream: streamName, Loop: stats.Stats()}
		if sessionID != nil {
			resp.SessionID = sessionID()
		}
		w.Header().Set("Content-Type", "application/json")
		if resp.Loop.State != stream.Running.String() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, resp)
	}
}
