package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/metrics"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/pipeline"
	"kvsstreamer/internal/repository/sqlite"
	"kvsstreamer/internal/routes"
	"kvsstreamer/internal/service/ai"
	"kvsstreamer/internal/service/annotate"
	"kvsstreamer/internal/service/camera"
	"kvsstreamer/internal/service/journal"
	"kvsstreamer/internal/service/preview"
	"kvsstreamer/internal/service/publish"
	"kvsstreamer/internal/service/stream"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	format   model.Format
	metrics  *metrics.Metrics
	detector *ai.DetectorService
	db       *sqlite.DB
	journal  *journal.Service
	hub      *preview.HubService
	streamer *stream.Streamer
	server   *http.Server
}

// NewApp opens the camera and the publish pipeline and wires the optional
// annotation, journal, preview and HTTP services around them. Any error is
// fatal for the process.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(prometheus.DefaultRegisterer),
	}
	if err := a.setup(); err != nil {
		log.Error("Setup failed: %v", err)
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) setup() error {
	cfg, log := a.config, a.logger

	cam, err := camera.Open(cfg, log)
	if err != nil {
		return err
	}
	a.format = cam.Format()

	sink, err := publish.Open(cfg, pipeline.New(cfg, a.format), log)
	if err != nil {
		cam.Close()
		return err
	}

	opts := []stream.Option{stream.WithObserver(a.metrics)}

	if cfg.DBPath != "" {
		if err := a.openJournal(); err != nil {
			sink.Close()
			cam.Close()
			return err
		}
	}

	if cfg.Annotate {
		annotator, err := a.newAnnotator()
		if err != nil {
			sink.Close()
			cam.Close()
			return err
		}
		opts = append(opts, stream.WithAnnotator(annotator))
	}

	if cfg.HTTPAddr != "" {
		a.hub = preview.NewHubService(log)
		a.hub.OnViewersChanged(func(viewers int) { a.metrics.PreviewViewers.Set(float64(viewers)) })
		pv := preview.NewService(a.hub, camera.EncodeJPEG, cfg, log)
		pv.OnDropped(a.metrics.PreviewDropped.Inc)
		opts = append(opts, stream.WithPreview(pv))
	}

	a.streamer = stream.NewStreamer(cam, sink, cfg, log, opts...)

	if cfg.HTTPAddr != "" {
		a.server = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: routes.SetupRoutes(a.routeDeps(), cfg, log),
		}
	}
	return nil
}

func (a *App) openJournal() error {
	db, err := sqlite.New(a.config.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	a.journal = journal.NewService(a.config, a.logger,
		sqlite.NewSessionRepository(db), sqlite.NewDetectionRepository(db))
	return nil
}

func (a *App) newAnnotator() (*annotate.Annotator, error) {
	detector, err := ai.NewDetectorService(a.config, a.logger)
	if err != nil {
		return nil, err
	}
	a.detector = detector

	opts := []annotate.Option{annotate.WithObserver(a.metrics)}
	if a.journal != nil {
		opts = append(opts, annotate.WithRecorder(a.journal))
	}
	return annotate.New(detector, ai.Painter{}, a.config.ConfidenceThreshold, a.config.InferEvery, opts...)
}

func (a *App) routeDeps() routes.Deps {
	deps := routes.Deps{
		Hub:   a.hub,
		Stats: a.streamer,
	}
	// Bez bazy endpointy dziennika nie są rejestrowane
	if a.db != nil {
		deps.SessionID = a.journal.SessionID
		deps.Sessions = sqlite.NewSessionRepository(a.db)
		deps.Detections = sqlite.NewDetectionRepository(a.db)
	}
	return deps
}

// Run streams until SIGINT/SIGTERM or, under the stop policy, a capture
// failure. It returns nil on interrupt and stream.ErrCaptureFailed otherwise.
func (a *App) Run() error {
	defer a.release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.journal != nil {
		if _, err := a.journal.StartSession(a.config.StreamName, a.format, a.config.Annotate); err != nil {
			a.logger.Error("Failed to start journal session: %v", err)
		}
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if a.journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.journal.Run(bgCtx)
		}()
	}
	if a.hub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.hub.Run(bgCtx)
		}()
	}
	if a.server != nil {
		go func() {
			a.logger.Info("HTTP server listening on %s", a.config.HTTPAddr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("HTTP server failed: %v", err)
			}
		}()
	}

	a.logger.Info("Streaming to Kinesis Video stream %q in %s (annotate=%v)",
		a.config.StreamName, a.config.AWSRegion, a.config.Annotate)

	runErr := a.streamer.Run(ctx)
	if runErr == nil {
		a.logger.Info("Interrupted by user.")
	}

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warning("HTTP server shutdown: %v", err)
		}
		cancel()
	}

	cancelBackground()
	wg.Wait()

	if a.journal != nil && a.journal.SessionID() != "" {
		stats := a.streamer.Stats()
		written := stats.Frames - stats.WriteFailures
		if err := a.journal.FinishSession(written, stats.ReadFailures, stats.WriteFailures); err != nil {
			a.logger.Error("Failed to finish journal session: %v", err)
		}
	}

	return runErr
}

// release closes what the streamer does not own. The streamer releases the
// camera and the sink itself.
func (a *App) release() {
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warning("Failed to close detector: %v", err)
		}
		a.detector = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Failed to close database: %v", err)
		}
		a.db = nil
	}
	a.logger.Close()
}
