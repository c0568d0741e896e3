package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/handler"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/middleware"
	"kvsstreamer/internal/repository"
	"kvsstreamer/internal/service/preview"
)

// Deps groups what the HTTP surface reads from. Nil repositories leave the
// journal endpoints unregistered.
type Deps struct {
	Hub        *preview.HubService
	Stats      handler.StatsProvider
	SessionID  func() string
	Sessions   repository.SessionRepository
	Detections repository.DetectionRepository
	Gatherer   prometheus.Gatherer
}

// SetupRoutes registers the API, log and metrics endpoints and wraps the mux
// with the authentication middleware.
func SetupRoutes(deps Deps, cfg *config.Config, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/healthz", handler.HealthHandler(cfg.StreamName, deps.SessionID, deps.Stats))
	if deps.Hub != nil {
		mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(deps.Hub, log))
	}
	if deps.Detections != nil {
		mux.HandleFunc("/api/detections", handler.DetectionsHandler(deps.Detections, log))
	}
	if deps.Sessions != nil {
		mux.HandleFunc("/api/sessions", handler.SessionsHandler(deps.Sessions, log))
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Log endpoints
	for name, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(log, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	return middleware.AuthMiddleware(cfg.Password, mux)
}
