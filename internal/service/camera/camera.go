package camera

import (
	"fmt"

	"gocv.io/x/gocv"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/service/stream"
)

// Frame wraps the Mat the camera decodes into. The Mat is reused on every
// read so a Frame must not outlive the loop iteration.
type Frame struct {
	mat *gocv.Mat
}

func (f *Frame) Width() int  { return f.mat.Cols() }
func (f *Frame) Height() int { return f.mat.Rows() }

// Bytes returns a copy of the BGR pixel data.
func (f *Frame) Bytes() []byte { return f.mat.ToBytes() }

// Mat exposes the underlying image for in-place drawing.
func (f *Frame) Mat() *gocv.Mat { return f.mat }

// Camera is a local capture device opened through OpenCV.
type Camera struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	frame   Frame
	format  model.Format
	index   int
	logger  *logger.Logger
}

// Open opens the device by index, asks for the configured size and rate and
// reads back what the driver actually negotiated.
func Open(cfg *config.Config, logger *logger.Logger) (*Camera, error) {
	capture, err := gocv.OpenVideoCaptureWithAPI(cfg.CameraIndex, gocv.VideoCaptureAny)
	if err != nil {
		return nil, fmt.Errorf("could not open camera index %d: %w", cfg.CameraIndex, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("could not open camera index %d", cfg.CameraIndex)
	}

	requested := model.Format{Width: cfg.FrameWidth, Height: cfg.FrameHeight, FPS: cfg.FPS}

	// Best-effort, sterownik może zignorować
	capture.Set(gocv.VideoCaptureFrameWidth, float64(requested.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(requested.Height))
	capture.Set(gocv.VideoCaptureFPS, requested.FPS)

	c := &Camera{
		capture: capture,
		mat:     gocv.NewMat(),
		index:   cfg.CameraIndex,
		logger:  logger,
	}
	c.frame.mat = &c.mat
	c.format = requested.Resolve(reportedFormat(capture))

	if c.format != requested {
		logger.Warning("Camera %d negotiated %s instead of requested %s", c.index, c.format, requested)
	}
	logger.Info("Camera opened: %s", c.format)
	return c, nil
}

func reportedFormat(capture *gocv.VideoCapture) model.Format {
	return model.Format{
		Width:  int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    capture.Get(gocv.VideoCaptureFPS),
	}
}

// Format returns the negotiated capture format.
func (c *Camera) Format() model.Format {
	return c.format
}

// Read grabs the next frame into the shared Mat.
func (c *Camera) Read() (model.Frame, error) {
	if ok := c.capture.Read(&c.mat); !ok {
		return nil, stream.ErrReadFailed
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", stream.ErrReadFailed)
	}
	return &c.frame, nil
}

// Close releases the device and the frame buffer.
func (c *Camera) Close() error {
	err := c.capture.Close()
	c.mat.Close()
	return err
}
