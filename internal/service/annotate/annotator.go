// Package annotate decides when the detector runs and keeps the boxes that
// get drawn on every frame in between.
package annotate

import (
	"fmt"
	"time"

	"kvsstreamer/internal/model"
)

// Detector runs one inference pass over a frame.
type Detector interface {
	Detect(frame model.Frame) ([]model.Detection, error)
}

// Painter draws detection boxes onto a frame in place.
type Painter interface {
	Draw(frame model.Frame, detections []model.Detection) error
}

// Recorder receives the filtered result of every inference pass.
type Recorder interface {
	Record(frameIndex uint64, detections []model.Detection)
}

// Observer is notified about inference timing; metrics hook in here.
type Observer interface {
	ObserveInference(elapsed time.Duration, detections []model.Detection, err error)
}

// Filter keeps detections whose confidence is at least threshold. The
// network emits float32 scores, so both sides are compared at that precision.
func Filter(detections []model.Detection, threshold float64) []model.Detection {
	limit := float32(threshold)
	kept := make([]model.Detection, 0, len(detections))
	for _, d := range detections {
		if float32(d.Confidence) >= limit {
			kept = append(kept, d)
		}
	}
	return kept
}

// Annotator runs the detector every n-th frame and draws the most recent box
// set on every frame. Boxes can lag the scene by up to n-1 frames.
type Annotator struct {
	detector  Detector
	painter   Painter
	recorder  Recorder
	observer  Observer
	threshold float64
	every     uint64

	current []model.Detection
	passes  uint64
}

type Option func(*Annotator)

// WithRecorder reports each inference pass to r.
func WithRecorder(r Recorder) Option {
	return func(a *Annotator) { a.recorder = r }
}

// WithObserver reports inference timing to o.
func WithObserver(o Observer) Option {
	return func(a *Annotator) { a.observer = o }
}

func New(detector Detector, painter Painter, threshold float64, every int, opts ...Option) (*Annotator, error) {
	if detector == nil || painter == nil {
		return nil, fmt.Errorf("annotator needs a detector and a painter")
	}
	if every <= 0 {
		return nil, fmt.Errorf("inference cadence must be positive, got %d", every)
	}
	a := &Annotator{
		detector:  detector,
		painter:   painter,
		threshold: threshold,
		every:     uint64(every),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ShouldInfer reports whether frameIndex triggers an inference pass.
func (a *Annotator) ShouldInfer(frameIndex uint64) bool {
	return frameIndex%a.every == 0
}

// Annotate refreshes the cache when frameIndex is due, then draws the cached
// boxes onto frame. A failed inference keeps the previous boxes.
func (a *Annotator) Annotate(frameIndex uint64, frame model.Frame) error {
	var inferErr error
	if a.ShouldInfer(frameIndex) {
		inferErr = a.infer(frameIndex, frame)
	}

	if len(a.current) > 0 {
		if err := a.painter.Draw(frame, a.current); err != nil {
			return fmt.Errorf("failed to draw detections: %w", err)
		}
	}
	return inferErr
}

func (a *Annotator) infer(frameIndex uint64, frame model.Frame) error {
	start := time.Now()
	raw, err := a.detector.Detect(frame)
	elapsed := time.Since(start)

	if err != nil {
		if a.observer != nil {
			a.observer.ObserveInference(elapsed, nil, err)
		}
		return fmt.Errorf("inference on frame %d: %w", frameIndex, err)
	}

	a.current = Filter(raw, a.threshold)
	a.passes++

	if a.observer != nil {
		a.observer.ObserveInference(elapsed, a.current, nil)
	}
	if a.recorder != nil {
		a.recorder.Record(frameIndex, a.current)
	}
	return nil
}

// Current returns the box set drawn on the latest frame.
func (a *Annotator) Current() []model.Detection {
	return a.current
}

// Passes returns how many successful inference passes have run.
func (a *Annotator) Passes() uint64 {
	return a.passes
}
