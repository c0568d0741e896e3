package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
)

type fakeFrame struct{ id int }

func (fakeFrame) Width() int    { return 2 }
func (fakeFrame) Height() int   { return 2 }
func (fakeFrame) Bytes() []byte { return make([]byte, 12) }

// scriptedSource replays a script of read outcomes; true means a good frame.
// When the script runs out it calls onExhausted and keeps failing.
type scriptedSource struct {
	script      []bool
	reads       int
	closed      atomic.Int32
	onExhausted func()
}

func (s *scriptedSource) Read() (model.Frame, error) {
	i := s.reads
	s.reads++
	if i >= len(s.script) {
		if s.onExhausted != nil {
			s.onExhausted()
		}
		return nil, ErrReadFailed
	}
	if !s.script[i] {
		return nil, ErrReadFailed
	}
	return fakeFrame{id: i}, nil
}

func (s *scriptedSource) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeSink struct {
	mu      sync.Mutex
	written []model.Frame
	failAll bool
	closed  atomic.Int32
	order   *[]string
}

func (s *fakeSink) Write(f model.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("pipeline rejected buffer")
	}
	s.written = append(s.written, f)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed.Add(1)
	if s.order != nil {
		*s.order = append(*s.order, "writer")
	}
	return nil
}

type orderedSource struct {
	scriptedSource
	order *[]string
}

func (s *orderedSource) Close() error {
	*s.order = append(*s.order, "capture")
	return s.scriptedSource.Close()
}

type indexAnnotator struct{ seen []uint64 }

func (a *indexAnnotator) Annotate(i uint64, _ model.Frame) error {
	a.seen = append(a.seen, i)
	return nil
}

func newTestConfig(t *testing.T, policy string) (*config.Config, *logger.Logger) {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	cfg.ReadFailurePolicy = policy
	cfg.ReadRetryDelay = 0
	cfg.SinkWarmup = 0

	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(log.Close)
	return cfg, log
}

func TestRun_StopPolicyTerminatesOnReadFailure(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureStop)
	source := &scriptedSource{script: []bool{true, true, true, false, true}}
	sink := &fakeSink{}

	s := NewStreamer(source, sink, cfg, log)
	err := s.Run(context.Background())

	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if source.reads != 4 {
		t.Errorf("expected loop to stop at the first failure (4 reads), got %d", source.reads)
	}
	if len(sink.written) != 3 {
		t.Errorf("expected 3 frames written, got %d", len(sink.written))
	}
	if sink.closed.Load() != 1 || source.closed.Load() != 1 {
		t.Errorf("expected exactly one cleanup, got writer=%d capture=%d", sink.closed.Load(), source.closed.Load())
	}
	if s.State() != Stopped {
		t.Errorf("expected Stopped, got %v", s.State())
	}
}

func TestRun_RetryPolicyKeepsLooping(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureRetry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &scriptedSource{
		script:      []bool{true, false, false, true, false, true},
		onExhausted: cancel,
	}
	sink := &fakeSink{}

	s := NewStreamer(source, sink, cfg, log)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected clean stop on cancel, got %v", err)
	}

	if len(sink.written) != 3 {
		t.Errorf("expected 3 frames written across failures, got %d", len(sink.written))
	}
	stats := s.Stats()
	// three scripted failures plus the one that triggered the cancel
	if stats.ReadFailures != 4 {
		t.Errorf("expected 4 read failures, got %d", stats.ReadFailures)
	}
	if stats.Frames != 3 {
		t.Errorf("expected 3 frames, got %d", stats.Frames)
	}
	if sink.closed.Load() != 1 || source.closed.Load() != 1 {
		t.Errorf("expected exactly one cleanup, got writer=%d capture=%d", sink.closed.Load(), source.closed.Load())
	}
}

func TestRun_CleanupOrderWriterThenCapture(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureStop)
	var order []string
	source := &orderedSource{scriptedSource: scriptedSource{script: []bool{true}}, order: &order}
	sink := &fakeSink{order: &order}

	s := NewStreamer(source, sink, cfg, log)
	s.Run(context.Background())

	if len(order) != 2 || order[0] != "writer" || order[1] != "capture" {
		t.Errorf("expected [writer capture], got %v", order)
	}
}

func TestClose_ExactlyOnceUnderRepeatedInterrupts(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureRetry)
	ctx, cancel := context.WithCancel(context.Background())

	source := &scriptedSource{script: []bool{true, true}}
	source.onExhausted = func() {
		// a burst of interrupts arriving while the loop is still running
		for i := 0; i < 5; i++ {
			cancel()
		}
	}
	sink := &fakeSink{}
	s := NewStreamer(source, sink, cfg, log)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			s.Close()
		}()
	}

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	wg.Wait()
	s.Close()

	if sink.closed.Load() != 1 {
		t.Errorf("writer released %d times, expected 1", sink.closed.Load())
	}
	if source.closed.Load() != 1 {
		t.Errorf("capture released %d times, expected 1", source.closed.Load())
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureStop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &scriptedSource{script: []bool{true}}
	sink := &fakeSink{}
	s := NewStreamer(source, sink, cfg, log)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if source.reads != 0 {
		t.Errorf("expected no reads, got %d", source.reads)
	}
	if sink.closed.Load() != 1 {
		t.Errorf("expected cleanup, got %d", sink.closed.Load())
	}
}

func TestRun_WriteFailuresDoNotStopLoop(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureStop)
	source := &scriptedSource{script: []bool{true, true, true}}
	sink := &fakeSink{failAll: true}

	s := NewStreamer(source, sink, cfg, log)
	s.Run(context.Background())

	stats := s.Stats()
	if stats.WriteFailures != 3 {
		t.Errorf("expected 3 write failures, got %d", stats.WriteFailures)
	}
	if stats.Frames != 3 {
		t.Errorf("expected 3 frames processed, got %d", stats.Frames)
	}
}

func TestRun_AnnotatorSeesConsecutiveIndices(t *testing.T) {
	cfg, log := newTestConfig(t, config.ReadFailureRetry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// failed reads must not consume a frame index
	source := &scriptedSource{script: []bool{true, false, true, true}, onExhausted: cancel}
	ann := &indexAnnotator{}

	s := NewStreamer(source, &fakeSink{}, cfg, log, WithAnnotator(ann))
	s.Run(ctx)

	expected := []uint64{0, 1, 2}
	if len(ann.seen) != len(expected) {
		t.Fatalf("expected indices %v, got %v", expected, ann.seen)
	}
	for i := range expected {
		if ann.seen[i] != expected[i] {
			t.Errorf("expected indices %v, got %v", expected, ann.seen)
			break
		}
	}
}
