package model

import (
	"fmt"
	"time"
)

// Detection is a bounding box with a label produced by one inference pass.
// Coordinates are in frame pixels.
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Caption is the text drawn above the box.
func (d Detection) Caption() string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

// DetectionRecord is a detection stored in the journal.
type DetectionRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	FrameIndex uint64    `json:"frame_index"`
	DetectedAt time.Time `json:"detected_at"`
	Detection
}
