package sqlite

import (
	"fmt"
	"time"

	"kvsstreamer/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// InsertBatch adds multiple detections in a single transaction.
func (r *DetectionRepository) InsertBatch(records []model.DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (session_id, frame_index, detected_at, label, confidence, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.SessionID, int64(rec.FrameIndex), rec.DetectedAt, rec.Label, rec.Confidence,
			rec.X1, rec.Y1, rec.X2, rec.Y2); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

const detectionColumns = `id, session_id, frame_index, detected_at, label, confidence, x1, y1, x2, y2`

// GetRecent returns the newest detections first.
func (r *DetectionRepository) GetRecent(limit int) ([]model.DetectionRecord, error) {
	return r.query(`SELECT `+detectionColumns+` FROM detections ORDER BY id DESC LIMIT ?`, limit)
}

// GetBySession retrieves all detections of a session in frame order.
func (r *DetectionRepository) GetBySession(sessionID string) ([]model.DetectionRecord, error) {
	return r.query(`SELECT `+detectionColumns+` FROM detections WHERE session_id = ? ORDER BY frame_index, id`, sessionID)
}

func (r *DetectionRepository) query(q string, args ...any) ([]model.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []model.DetectionRecord
	for rows.Next() {
		var rec model.DetectionRecord
		var frameIndex int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &frameIndex, &rec.DetectedAt, &rec.Label, &rec.Confidence,
			&rec.X1, &rec.Y1, &rec.X2, &rec.Y2); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		rec.FrameIndex = uint64(frameIndex)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByLabel returns how often each label was detected in a session.
func (r *DetectionRepository) CountByLabel(sessionID string) (map[string]int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT label, COUNT(*) FROM detections WHERE session_id = ? GROUP BY label
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes detections older than t and returns how many were deleted.
// Timestamps are compared as text, so rows must be stored in UTC.
func (r *DetectionRepository) DeleteBefore(t time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM detections WHERE detected_at < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete detections: %w", err)
	}
	return result.RowsAffected()
}
