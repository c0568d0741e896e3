package model

import "time"

// Session represents one streaming run from camera open to cleanup.
type Session struct {
	ID            string     `json:"id"`
	StreamName    string     `json:"stream_name"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	FPS           float64    `json:"fps"`
	Annotated     bool       `json:"annotated"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	FramesWritten uint64     `json:"frames_written"`
	ReadFailures  uint64     `json:"read_failures"`
	WriteFailures uint64     `json:"write_failures"`
}
