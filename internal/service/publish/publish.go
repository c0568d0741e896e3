package publish

import (
	"fmt"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/pipeline"
	"kvsstreamer/internal/service/stream"
)

// Open builds the publish sink selected by config for the negotiated format.
func Open(cfg *config.Config, desc pipeline.Description, logger *logger.Logger) (stream.Sink, error) {
	logger.Info("Publish pipeline: %s", redact(desc))

	switch cfg.SinkBackend {
	case config.SinkGStreamer:
		return NewGstPublisher(desc, logger)
	case config.SinkOpenCV:
		return NewOpenCVWriter(desc, logger)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.SinkBackend)
	}
}

// redact hides credential file locations from the log.
func redact(desc pipeline.Description) string {
	if desc.IoTEndpoint != "" {
		desc.DeviceCertificatePath = "<cert>"
		desc.PrivateKeyPath = "<key>"
		desc.RootCAPath = "<ca>"
	}
	return desc.String()
}
