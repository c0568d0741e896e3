package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/repository"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// DetectionsHandler returns the most recent journal detections.
func DetectionsHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			records any
			err     error
		)
		if session := r.URL.Query().Get("session"); session != "" {
			records, err = repo.GetBySession(session)
		} else {
			records, err = repo.GetRecent(parseLimit(r))
		}
		if err != nil {
			logger.Error("Failed to query detections: %v", err)
			http.Error(w, "Unable to query detections", http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	}
}

// SessionsHandler returns the most recent streaming sessions.
func SessionsHandler(repo repository.SessionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := repo.GetRecent(parseLimit(r))
		if err != nil {
			logger.Error("Failed to query sessions: %v", err)
			http.Error(w, "Unable to query sessions", http.StatusInternalServerError)
			return
		}
		writeJSON(w, sessions)
	}
}

// parseLimit reads ?limit=, falling back to the default for bad input.
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
