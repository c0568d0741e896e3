package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/handler"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/metrics"
	"kvsstreamer/internal/repository/sqlite"
	"kvsstreamer/internal/service/stream"
)

type runningStats struct{}

func (runningStats) Stats() stream.Stats { return stream.Stats{State: stream.Running.String()} }

func setupRouter(t *testing.T, password string, withJournal bool) http.Handler {
	t.Helper()
	cfg := &config.Config{StreamName: "tachyon_test", Password: password, LogDirectory: t.TempDir()}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(log.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameWritten()

	deps := Deps{Stats: runningStats{}, Gatherer: reg}
	if withJournal {
		db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("Failed to create database: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		deps.Sessions = sqlite.NewSessionRepository(db)
		deps.Detections = sqlite.NewDetectionRepository(db)
	}
	return SetupRoutes(deps, cfg, log)
}

func get(t *testing.T, h http.Handler, path string, cookie bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie {
		req.AddCookie(&http.Cookie{Name: handler.AuthCookie, Value: "true"})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSetupRoutes_Auth(t *testing.T) {
	router := setupRouter(t, "secret", true)

	tests := []struct {
		path       string
		cookie     bool
		wantStatus int
	}{
		{"/healthz", false, http.StatusOK},
		{"/metrics", false, http.StatusOK},
		{"/logs/info", false, http.StatusUnauthorized},
		{"/logs/info", true, http.StatusOK},
		{"/api/sessions", false, http.StatusUnauthorized},
		{"/api/sessions", true, http.StatusOK},
		{"/api/detections", true, http.StatusOK},
	}

	for _, tt := range tests {
		if rec := get(t, router, tt.path, tt.cookie); rec.Code != tt.wantStatus {
			t.Errorf("GET %s (cookie=%v): expected %d, got %d", tt.path, tt.cookie, tt.wantStatus, rec.Code)
		}
	}
}

func TestSetupRoutes_NoPasswordIsOpen(t *testing.T) {
	router := setupRouter(t, "", true)

	if rec := get(t, router, "/api/sessions", false); rec.Code != http.StatusOK {
		t.Errorf("expected open access, got %d", rec.Code)
	}
}

func TestSetupRoutes_JournalDisabled(t *testing.T) {
	router := setupRouter(t, "", false)

	for _, path := range []string{"/api/sessions", "/api/detections", "/api/view"} {
		if rec := get(t, router, path, false); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestSetupRoutes_Metrics(t *testing.T) {
	router := setupRouter(t, "", false)

	rec := get(t, router, "/metrics", false)
	if !strings.Contains(rec.Body.String(), "kvsstreamer_frames_written_total 1") {
		t.Errorf("metrics output missing frames counter:\n%s", rec.Body.String())
	}
}
