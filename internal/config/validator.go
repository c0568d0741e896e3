package config

import (
	"fmt"
	"os"
)

// Validate checks that the configuration can drive a capture session.
func (c *Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be > 0")
	}
	if c.BitrateKbps <= 0 {
		return fmt.Errorf("bitrate_kbps must be > 0")
	}
	if c.KeyIntervalSecs <= 0 {
		return fmt.Errorf("key_interval_secs must be > 0")
	}
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.AWSRegion == "" {
		return fmt.Errorf("aws_region is required")
	}

	switch c.SinkBackend {
	case SinkOpenCV, SinkGStreamer:
	default:
		return fmt.Errorf("unknown sink backend %q", c.SinkBackend)
	}

	switch c.ReadFailurePolicy {
	case ReadFailureStop, ReadFailureRetry:
	default:
		return fmt.Errorf("unknown read failure policy %q", c.ReadFailurePolicy)
	}
	if c.ReadRetryDelay < 0 {
		return fmt.Errorf("read_retry_delay must not be negative")
	}

	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in (0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.InferEvery <= 0 {
		return fmt.Errorf("infer_every must be > 0")
	}
	if c.PreviewEvery <= 0 {
		return fmt.Errorf("preview_every must be > 0")
	}
	if c.JournalFlushInterval <= 0 {
		return fmt.Errorf("journal_flush_interval must be > 0")
	}

	if c.UsesIoTCredentials() {
		for _, path := range []string{c.DeviceCertificatePath, c.PrivateKeyPath, c.RootCAPath} {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("credential file %s: %w", path, err)
			}
		}
		if c.RoleAlias == "" || c.ThingName == "" {
			return fmt.Errorf("role_alias and thing_name are required with iot_endpoint")
		}
	}

	return nil
}
