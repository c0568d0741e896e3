package sqlite

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kvsstreamer/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func startSession(t *testing.T, db *DB, id string, startedAt time.Time) {
	t.Helper()
	err := NewSessionRepository(db).Start(&model.Session{
		ID:         id,
		StreamName: "tachyon_test",
		Width:      1280,
		Height:     720,
		FPS:        30,
		Annotated:  true,
		StartedAt:  startedAt,
	})
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
}

func TestDatabase_Connection(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "streamer.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestSessionRepository_StartFinish(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	started := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	startSession(t, db, "s1", started)

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.EndedAt != nil {
		t.Errorf("expected open session, got ended at %v", got.EndedAt)
	}
	if got.Width != 1280 || got.Height != 720 || !got.Annotated {
		t.Errorf("unexpected session: %+v", got)
	}

	ended := started.Add(time.Hour)
	if err := repo.Finish("s1", ended, 108000, 2, 5); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err = repo.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("expected ended at %v, got %v", ended, got.EndedAt)
	}
	if got.FramesWritten != 108000 || got.ReadFailures != 2 || got.WriteFailures != 5 {
		t.Errorf("unexpected counters: %+v", got)
	}
}

func TestSessionRepository_FinishUnknown(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	if err := repo.Finish("missing", time.Now(), 0, 0, 0); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestSessionRepository_GetByIDMissing(t *testing.T) {
	got, err := NewSessionRepository(newTestDB(t)).GetByID("missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestSessionRepository_GetRecent(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		startSession(t, db, id, base.Add(time.Duration(i)*time.Minute))
	}

	sessions, err := NewSessionRepository(db).GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Errorf("expected [c b], got %+v", sessions)
	}
}

func TestDetectionRepository_InsertBatchAndQuery(t *testing.T) {
	db := newTestDB(t)
	startSession(t, db, "s1", time.Now())
	repo := NewDetectionRepository(db)

	now := time.Now()
	records := []model.DetectionRecord{
		{SessionID: "s1", FrameIndex: 0, DetectedAt: now, Detection: model.Detection{X1: 1, Y1: 2, X2: 30, Y2: 40, Label: "person", Confidence: 0.9}},
		{SessionID: "s1", FrameIndex: 0, DetectedAt: now, Detection: model.Detection{Label: "dog", Confidence: 0.75}},
		{SessionID: "s1", FrameIndex: 60, DetectedAt: now, Detection: model.Detection{Label: "person", Confidence: 0.7}},
	}
	if err := repo.InsertBatch(records); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := repo.GetBySession("s1")
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].X2 != 30 || got[0].Y2 != 40 || got[0].Label != "person" {
		t.Errorf("unexpected first record: %+v", got[0])
	}
	if got[2].FrameIndex != 60 {
		t.Errorf("expected frame 60 last, got %d", got[2].FrameIndex)
	}

	counts, err := repo.CountByLabel("s1")
	if err != nil {
		t.Fatalf("CountByLabel failed: %v", err)
	}
	if counts["person"] != 2 || counts["dog"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	recent, err := repo.GetRecent(1)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 1 || recent[0].FrameIndex != 60 {
		t.Errorf("expected newest record, got %+v", recent)
	}
}

func TestDetectionRepository_EmptyBatch(t *testing.T) {
	if err := NewDetectionRepository(newTestDB(t)).InsertBatch(nil); err != nil {
		t.Errorf("expected nil for empty batch, got %v", err)
	}
}

func TestDetectionRepository_DeleteBefore(t *testing.T) {
	db := newTestDB(t)
	startSession(t, db, "s1", time.Now())
	repo := NewDetectionRepository(db)

	old := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	fresh := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err := repo.InsertBatch([]model.DetectionRecord{
		{SessionID: "s1", FrameIndex: 0, DetectedAt: old, Detection: model.Detection{Label: "person", Confidence: 0.8}},
		{SessionID: "s1", FrameIndex: 60, DetectedAt: old, Detection: model.Detection{Label: "car", Confidence: 0.8}},
		{SessionID: "s1", FrameIndex: 120, DetectedAt: fresh, Detection: model.Detection{Label: "dog", Confidence: 0.8}},
	})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	n, err := repo.DeleteBefore(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	left, _ := repo.GetBySession("s1")
	if len(left) != 1 || left[0].Label != "dog" {
		t.Errorf("expected only the fresh detection, got %+v", left)
	}
}

func TestDatabase_ConcurrentAccess(t *testing.T) {
	db := newTestDB(t)
	startSession(t, db, "s1", time.Now())
	repo := NewDetectionRepository(db)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs <- repo.InsertBatch([]model.DetectionRecord{{
				SessionID:  "s1",
				FrameIndex: uint64(idx * 60),
				DetectedAt: time.Now(),
				Detection:  model.Detection{Label: "person", Confidence: 0.8},
			}})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent insert failed: %v", err)
		}
	}

	got, err := repo.GetBySession("s1")
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 records, got %d", len(got))
	}
}
