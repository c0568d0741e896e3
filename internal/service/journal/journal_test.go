package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/repository/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.DetectionRepository, *sqlite.SessionRepository) {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	cfg.JournalFlushInterval = 10 * time.Millisecond

	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(log.Close)

	db, err := sqlite.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := sqlite.NewSessionRepository(db)
	detections := sqlite.NewDetectionRepository(db)
	return NewService(cfg, log, sessions, detections), detections, sessions
}

func TestService_RecordAndFinish(t *testing.T) {
	svc, detections, sessions := newTestService(t)

	id, err := svc.StartSession("tachyon_test", model.Format{Width: 640, Height: 480, FPS: 30}, true)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if id == "" || svc.SessionID() != id {
		t.Fatalf("expected session id to be set, got %q / %q", id, svc.SessionID())
	}

	svc.Record(0, []model.Detection{{Label: "person", Confidence: 0.9}, {Label: "cat", Confidence: 0.8}})
	svc.Record(60, nil)
	svc.Record(120, []model.Detection{{Label: "person", Confidence: 0.71}})

	if svc.Pending() != 3 {
		t.Fatalf("expected 3 pending records, got %d", svc.Pending())
	}

	if err := svc.FinishSession(180, 1, 0); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if svc.Pending() != 0 {
		t.Errorf("expected buffer to be flushed, got %d pending", svc.Pending())
	}

	recs, err := detections.GetBySession(id)
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[2].FrameIndex != 120 {
		t.Errorf("expected last record from frame 120, got %d", recs[2].FrameIndex)
	}

	session, err := sessions.GetByID(id)
	if err != nil || session == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if session.EndedAt == nil || session.FramesWritten != 180 || session.ReadFailures != 1 {
		t.Errorf("unexpected finished session: %+v", session)
	}
}

func TestService_FinishWithoutStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.FinishSession(0, 0, 0); err == nil {
		t.Error("expected error without a started session")
	}
}

func TestService_BufferLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.StartSession("s", model.Format{Width: 1, Height: 1, FPS: 1}, true); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	batch := make([]model.Detection, BufferLimit+5)
	svc.Record(0, batch)

	if svc.Pending() != BufferLimit {
		t.Errorf("expected %d pending, got %d", BufferLimit, svc.Pending())
	}
}

func TestService_RunFlushesOnTickerAndShutdown(t *testing.T) {
	svc, detections, _ := newTestService(t)
	id, err := svc.StartSession("s", model.Format{Width: 1, Height: 1, FPS: 1}, true)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	svc.Record(0, []model.Detection{{Label: "person", Confidence: 0.9}})

	deadline := time.Now().Add(2 * time.Second)
	for svc.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.Pending() != 0 {
		t.Fatal("ticker flush did not happen")
	}

	svc.Record(60, []model.Detection{{Label: "dog", Confidence: 0.8}})
	cancel()
	<-done

	recs, err := detections.GetBySession(id)
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records after shutdown flush, got %d", len(recs))
	}
}

type failingDetections struct{ *sqlite.DetectionRepository }

func (failingDetections) InsertBatch([]model.DetectionRecord) error {
	return errors.New("disk full")
}

func TestService_FlushErrorIsLogged(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.StartSession("s", model.Format{Width: 1, Height: 1, FPS: 1}, true); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	svc.detectionRepo = failingDetections{}

	svc.Record(0, []model.Detection{{Label: "person", Confidence: 0.9}})
	svc.Flush()

	if svc.Pending() != 0 {
		t.Errorf("failed batch should not be retried, got %d pending", svc.Pending())
	}
}

func TestService_RecordWithoutSessionIsSkipped(t *testing.T) {
	svc, _, _ := newTestService(t)

	svc.Record(0, []model.Detection{{Label: "person", Confidence: 0.9}})

	if svc.Pending() != 0 {
		t.Errorf("expected nothing buffered before StartSession, got %d", svc.Pending())
	}
}
