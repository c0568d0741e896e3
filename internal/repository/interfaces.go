package repository

import (
	"time"

	"kvsstreamer/internal/model"
)

// SessionRepository defines the interface for streaming session records.
type SessionRepository interface {
	// Create operations
	Start(session *model.Session) error

	// Update operations
	Finish(id string, endedAt time.Time, framesWritten, readFailures, writeFailures uint64) error

	// Read operations
	GetByID(id string) (*model.Session, error)
	GetRecent(limit int) ([]model.Session, error)
}

// DetectionRepository defines the interface for detection journal operations.
type DetectionRepository interface {
	// Create operations
	InsertBatch(records []model.DetectionRecord) error

	// Read operations
	GetRecent(limit int) ([]model.DetectionRecord, error)
	GetBySession(sessionID string) ([]model.DetectionRecord, error)
	CountByLabel(sessionID string) (map[string]int, error)

	// Delete operations
	DeleteBefore(t time.Time) (int64, error)
}
