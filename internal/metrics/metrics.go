package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kvsstreamer/internal/model"
	"kvsstreamer/internal/service/stream"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Loop metrics
	FramesCaptured prometheus.Counter
	FramesWritten  prometheus.Counter
	ReadFailures   prometheus.Counter
	WriteFailures  prometheus.Counter
	LoopRunning    prometheus.Gauge

	// Inference metrics
	InferencePasses   prometheus.Counter
	InferenceFailures prometheus.Counter
	InferenceDuration prometheus.Histogram
	Detections        *prometheus.CounterVec

	// Preview metrics
	PreviewViewers prometheus.Gauge
	PreviewDropped prometheus.Counter
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_frames_captured_total",
			Help: "Total number of frames read from the camera",
		}),
		FramesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_frames_written_total",
			Help: "Total number of frames accepted by the publish pipeline",
		}),
		ReadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_read_failures_total",
			Help: "Total number of failed camera reads",
		}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_write_failures_total",
			Help: "Total number of frames the publish pipeline rejected",
		}),
		LoopRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kvsstreamer_loop_running",
			Help: "1 while the capture loop is running",
		}),

		InferencePasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_inference_passes_total",
			Help: "Total number of successful inference passes",
		}),
		InferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_inference_failures_total",
			Help: "Total number of failed inference passes",
		}),
		InferenceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvsstreamer_inference_duration_seconds",
			Help:    "Duration of one inference pass",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),
		Detections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kvsstreamer_detections_total",
				Help: "Detections above the confidence threshold by label",
			},
			[]string{"label"},
		),

		PreviewViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kvsstreamer_preview_viewers",
			Help: "Number of connected preview viewers",
		}),
		PreviewDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "kvsstreamer_preview_dropped_total",
			Help: "Preview frames dropped because the hub was busy",
		}),
	}
}

func (m *Metrics) FrameCaptured() { m.FramesCaptured.Inc() }
func (m *Metrics) FrameWritten()  { m.FramesWritten.Inc() }
func (m *Metrics) ReadFailed()    { m.ReadFailures.Inc() }
func (m *Metrics) WriteFailed()   { m.WriteFailures.Inc() }

func (m *Metrics) StateChanged(state stream.State) {
	if state == stream.Running {
		m.LoopRunning.Set(1)
		return
	}
	m.LoopRunning.Set(0)
}

// ObserveInference records one inference pass.
func (m *Metrics) ObserveInference(elapsed time.Duration, detections []model.Detection, err error) {
	m.InferenceDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.InferenceFailures.Inc()
		return
	}
	m.InferencePasses.Inc()
	for _, d := range detections {
		m.Detections.WithLabelValues(d.Label).Inc()
	}
}
