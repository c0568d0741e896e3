// Package stream runs the capture → annotate → publish loop.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
)

// ErrReadFailed is returned by a Source when no frame could be grabbed.
var ErrReadFailed = errors.New("frame grab failed")

// ErrCaptureFailed ends Run under the stop policy.
var ErrCaptureFailed = errors.New("capture failed")

// Source produces frames from the camera.
type Source interface {
	Read() (model.Frame, error)
	Close() error
}

// Sink consumes frames, typically an encode-and-publish pipeline.
type Sink interface {
	Write(frame model.Frame) error
	Close() error
}

// Annotator draws detection boxes onto a frame.
type Annotator interface {
	Annotate(frameIndex uint64, frame model.Frame) error
}

// Previewer receives every written frame; it must not block.
type Previewer interface {
	Offer(frameIndex uint64, frame model.Frame)
}

// Observer gets loop events for metrics.
type Observer interface {
	FrameCaptured()
	FrameWritten()
	ReadFailed()
	WriteFailed()
	StateChanged(state State)
}

type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	State         string `json:"state"`
	Frames        uint64 `json:"frames"`
	ReadFailures  uint64 `json:"read_failures"`
	WriteFailures uint64 `json:"write_failures"`
}

// Streamer owns the capture source and the sink for the life of the process.
type Streamer struct {
	source    Source
	sink      Sink
	annotator Annotator
	preview   Previewer
	observer  Observer
	logger    *logger.Logger

	retryOnReadFailure bool
	retryDelay         time.Duration
	warmup             time.Duration
	sleep              func(ctx context.Context, d time.Duration) error

	state         atomic.Int32
	frames        atomic.Uint64
	readFailures  atomic.Uint64
	writeFailures atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Streamer)

// WithAnnotator enables drawing detections onto every frame.
func WithAnnotator(a Annotator) Option {
	return func(s *Streamer) { s.annotator = a }
}

// WithPreview forwards written frames to p.
func WithPreview(p Previewer) Option {
	return func(s *Streamer) { s.preview = p }
}

// WithObserver reports loop events to o.
func WithObserver(o Observer) Option {
	return func(s *Streamer) { s.observer = o }
}

// NewStreamer takes ownership of source and sink; both are released by Close.
func NewStreamer(source Source, sink Sink, cfg *config.Config, logger *logger.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		source:             source,
		sink:               sink,
		logger:             logger,
		retryOnReadFailure: cfg.ReadFailurePolicy == config.ReadFailureRetry,
		retryDelay:         cfg.ReadRetryDelay,
		warmup:             cfg.SinkWarmup,
		sleep:              sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until ctx is cancelled or, under the stop policy, the camera
// fails. Cleanup always runs before Run returns.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.Close()

	s.setState(Running)
	defer s.setState(Stopped)

	// Daj kvssink chwilę na inicjalizację
	if err := s.sleep(ctx, s.warmup); err != nil {
		return nil
	}

	var frameIndex uint64
	for {
		if ctx.Err() != nil {
			s.logger.Info("Stopping stream...")
			return nil
		}

		frame, err := s.source.Read()
		if err != nil {
			s.readFailures.Add(1)
			if s.observer != nil {
				s.observer.ReadFailed()
			}

			if !s.retryOnReadFailure {
				s.logger.Error("Frame grab failed; exiting: %v", err)
				return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
			}

			s.logger.Warning("Frame grab failed, retrying in %s: %v", s.retryDelay, err)
			if err := s.sleep(ctx, s.retryDelay); err != nil {
				return nil
			}
			continue
		}

		if s.observer != nil {
			s.observer.FrameCaptured()
		}

		if s.annotator != nil {
			if err := s.annotator.Annotate(frameIndex, frame); err != nil {
				s.logger.Warning("Annotation failed on frame %d: %v", frameIndex, err)
			}
		}

		s.write(frameIndex, frame)

		if s.preview != nil {
			s.preview.Offer(frameIndex, frame)
		}

		frameIndex++
		s.frames.Store(frameIndex)
	}
}

func (s *Streamer) write(frameIndex uint64, frame model.Frame) {
	if err := s.sink.Write(frame); err != nil {
		failures := s.writeFailures.Add(1)
		if s.observer != nil {
			s.observer.WriteFailed()
		}
		// Loguj pierwszy błąd i potem co setny
		if failures == 1 || failures%100 == 0 {
			s.logger.Warning("Failed to write frame %d (%d failures so far): %v", frameIndex, failures, err)
		}
		return
	}
	if s.observer != nil {
		s.observer.FrameWritten()
	}
}

// Close releases the writer and then the capture handle. It is safe to call
// any number of times from any goroutine; only the first call does work.
func (s *Streamer) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release writer: %w", err))
		}
		if err := s.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release capture: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("Cleaned up.")
	})
	return s.closeErr
}

// State returns the current loop state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the loop counters.
func (s *Streamer) Stats() Stats {
	return Stats{
		State:         s.State().String(),
		Frames:        s.frames.Load(),
		ReadFailures:  s.readFailures.Load(),
		WriteFailures: s.writeFailures.Load(),
	}
}

func (s *Streamer) setState(state State) {
	s.state.Store(int32(state))
	if s.observer != nil {
		s.observer.StateChanged(state)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
