package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"kvsstreamer/internal/model"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Start inserts a session row when the stream begins.
func (r *SessionRepository) Start(s *model.Session) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO sessions (id, stream_name, width, height, fps, annotated, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.StreamName, s.Width, s.Height, s.FPS, s.Annotated, s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Finish stores the end time and final counters of a session.
func (r *SessionRepository) Finish(id string, endedAt time.Time, framesWritten, readFailures, writeFailures uint64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		UPDATE sessions SET ended_at = ?, frames_written = ?, read_failures = ?, write_failures = ?
		WHERE id = ?
	`, endedAt, int64(framesWritten), int64(readFailures), int64(writeFailures), id)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`
		SELECT id, stream_name, width, height, fps, annotated, started_at, ended_at,
		       frames_written, read_failures, write_failures
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetRecent returns the newest sessions first.
func (r *SessionRepository) GetRecent(limit int) ([]model.Session, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, stream_name, width, height, fps, annotated, started_at, ended_at,
		       frames_written, read_failures, write_failures
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		s       model.Session
		endedAt sql.NullTime
		written int64
		readF   int64
		writeF  int64
	)
	if err := row.Scan(&s.ID, &s.StreamName, &s.Width, &s.Height, &s.FPS, &s.Annotated,
		&s.StartedAt, &endedAt, &written, &readF, &writeF); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	s.FramesWritten = uint64(written)
	s.ReadFailures = uint64(readF)
	s.WriteFailures = uint64(writeF)
	return &s, nil
}
