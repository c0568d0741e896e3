// Package publish pushes frames into the GStreamer encode-and-publish chain.
package publish

import (
	"fmt"

	"gocv.io/x/gocv"

	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/pipeline"
	"kvsstreamer/internal/service/camera"
)

// The GStreamer backend ignores the fourcc for manual pipelines.
const ignoredCodec = "H264"

// OpenCVWriter hands frames to OpenCV's GStreamer VideoWriter backend.
type OpenCVWriter struct {
	writer *gocv.VideoWriter
	logger *logger.Logger
}

// NewOpenCVWriter opens a VideoWriter bound to the pipeline description. A
// chain that cannot be realised (missing plugin, bad credentials) fails here.
func NewOpenCVWriter(desc pipeline.Description, logger *logger.Logger) (*OpenCVWriter, error) {
	f := desc.Format
	writer, err := gocv.VideoWriterFileWithAPI(desc.String(), gocv.VideoCaptureGstreamer, ignoredCodec, f.FPS, f.Width, f.Height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open GStreamer/kvssink pipeline: %w", err)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("failed to open GStreamer/kvssink pipeline; ensure OpenCV has GStreamer and kvssink is installed")
	}

	logger.Info("Streaming to Kinesis Video Stream: %s (%s)", desc.StreamName, desc.AWSRegion)
	return &OpenCVWriter{writer: writer, logger: logger}, nil
}

// Write pushes one frame into appsrc.
func (w *OpenCVWriter) Write(frame model.Frame) error {
	mf, ok := frame.(camera.MatFrame)
	if !ok {
		return fmt.Errorf("frame %T is not backed by a Mat", frame)
	}
	return w.writer.Write(*mf.Mat())
}

// Close flushes and releases the writer.
func (w *OpenCVWriter) Close() error {
	return w.writer.Close()
}
