package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/repository"
)

// BufferLimit caps how many detection records wait in memory between
// flushes. Further records are dropped until the next flush.
const BufferLimit = 10000

// Service buffers detection records in memory and periodically flushes them
// to the repository so the capture loop never waits on the database.
type Service struct {
	sessionRepo   repository.SessionRepository
	detectionRepo repository.DetectionRepository
	logger        *logger.Logger
	flushInterval time.Duration

	sessionID string
	records   []model.DetectionRecord
	dropped   int
	mu        sync.Mutex
	now       func() time.Time
}

// NewService creates a journal on top of the given repositories.
func NewService(config *config.Config, logger *logger.Logger, sessionRepo repository.SessionRepository, detectionRepo repository.DetectionRepository) *Service {
	return &Service{
		sessionRepo:   sessionRepo,
		detectionRepo: detectionRepo,
		logger:        logger,
		flushInterval: config.JournalFlushInterval,
		records:       make([]model.DetectionRecord, 0),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// StartSession records the beginning of a streaming run and returns its id.
func (s *Service) StartSession(streamName string, format model.Format, annotated bool) (string, error) {
	session := &model.Session{
		ID:         uuid.NewString(),
		StreamName: streamName,
		Width:      format.Width,
		Height:     format.Height,
		FPS:        format.FPS,
		Annotated:  annotated,
		StartedAt:  s.now(),
	}
	if err := s.sessionRepo.Start(session); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sessionID = session.ID
	s.mu.Unlock()

	s.logger.Info("Started session %s for stream %s", session.ID, streamName)
	return session.ID, nil
}

// FinishSession flushes pending detections and stores the final counters.
func (s *Service) FinishSession(framesWritten, readFailures, writeFailures uint64) error {
	s.Flush()

	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()
	if id == "" {
		return fmt.Errorf("no session started")
	}

	if err := s.sessionRepo.Finish(id, s.now(), framesWritten, readFailures, writeFailures); err != nil {
		return err
	}
	s.logger.Info("Finished session %s: %d frames written, %d read failures, %d write failures",
		id, framesWritten, readFailures, writeFailures)
	return nil
}

// SessionID returns the id of the running session, empty before StartSession.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Record appends the boxes of one inference pass to the buffer.
func (s *Service) Record(frameIndex uint64, detections []model.Detection) {
	if len(detections) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Bez sesji wiersze i tak odrzuci klucz obcy
	if s.sessionID == "" {
		return
	}

	ts := s.now()
	for _, d := range detections {
		if len(s.records) >= BufferLimit {
			s.dropped++
			continue
		}
		s.records = append(s.records, model.DetectionRecord{
			SessionID:  s.sessionID,
			FrameIndex: frameIndex,
			DetectedAt: ts,
			Detection:  d,
		})
	}
}

// Run flushes on a ticker until ctx is done, then flushes one last time.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush writes buffered records to the repository.
func (s *Service) Flush() {
	s.mu.Lock()
	if len(s.records) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.records
	dropped := s.dropped
	s.records = make([]model.DetectionRecord, 0, len(batch))
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Warning("Journal buffer full, dropped %d detections", dropped)
	}

	if err := s.detectionRepo.InsertBatch(batch); err != nil {
		s.logger.Error("Error saving detections to database: %v", err)
		return
	}
	s.logger.Info("Flushed %d detections to journal", len(batch))
}

// Pending returns how many records wait for the next flush.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
