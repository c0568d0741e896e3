package publish

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/pipeline"
)

const eosTimeout = 5 * time.Second

// GstPublisher drives the pipeline natively and pushes raw BGR buffers into
// appsrc. Unlike the OpenCV writer it surfaces pipeline errors to Write.
type GstPublisher struct {
	pipeline *gst.Pipeline
	source   *app.Source
	format   model.Format
	frameDur time.Duration
	logger   *logger.Logger

	pushed  uint64
	lastErr atomic.Value // error
	eos     chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewGstPublisher parses the description, starts it and begins watching the bus.
func NewGstPublisher(desc pipeline.Description, logger *logger.Logger) (*GstPublisher, error) {
	if !desc.ExplicitCaps {
		return nil, fmt.Errorf("native publisher needs a description with explicit appsrc caps")
	}

	gst.Init(nil)

	p, err := gst.NewPipelineFromString(desc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	elem, err := p.GetElementByName(pipeline.AppSrcName)
	if err != nil {
		return nil, fmt.Errorf("pipeline has no %q appsrc: %w", pipeline.AppSrcName, err)
	}

	pub := &GstPublisher{
		pipeline: p,
		source:   app.SrcFromElement(elem),
		format:   desc.Format,
		frameDur: time.Duration(float64(time.Second) / desc.Format.FPS),
		logger:   logger,
		eos:      make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := p.SetState(gst.StatePlaying); err != nil {
		p.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	go pub.watchBus()

	logger.Info("Streaming to Kinesis Video Stream: %s (%s) via native pipeline", desc.StreamName, desc.AWSRegion)
	return pub, nil
}

// watchBus records pipeline errors and signals end of stream.
func (g *GstPublisher) watchBus() {
	bus := g.pipeline.GetPipelineBus()
	for {
		select {
		case <-g.done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			close(g.eos)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			g.lastErr.Store(fmt.Errorf("pipeline error: %s", gerr.Error()))
			g.logger.Error("Pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())
		case gst.MessageWarning:
			gwarn := msg.ParseWarning()
			g.logger.Warning("Pipeline warning: %s", gwarn.Error())
		}
	}
}

// Write copies the frame into a timestamped buffer and pushes it.
func (g *GstPublisher) Write(frame model.Frame) error {
	if err, ok := g.lastErr.Load().(error); ok && err != nil {
		return err
	}
	if frame.Width() != g.format.Width || frame.Height() != g.format.Height {
		return fmt.Errorf("frame %dx%d does not match pipeline caps %dx%d",
			frame.Width(), frame.Height(), g.format.Width, g.format.Height)
	}

	buf := gst.NewBufferFromBytes(frame.Bytes())
	buf.SetPresentationTimestamp(time.Duration(g.pushed) * g.frameDur)
	buf.SetDuration(g.frameDur)

	if ret := g.source.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("appsrc rejected buffer: %v", ret)
	}
	g.pushed++
	return nil
}

// Close sends end-of-stream, waits for kvssink to drain and tears the pipeline down.
func (g *GstPublisher) Close() error {
	var err error
	g.once.Do(func() {
		g.source.EndStream()

		select {
		case <-g.eos:
		case <-time.After(eosTimeout):
			g.logger.Warning("Pipeline did not reach EOS within %s", eosTimeout)
		}
		close(g.done)

		err = g.pipeline.SetState(gst.StateNull)
	})
	return err
}
