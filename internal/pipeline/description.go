// Package pipeline renders the GStreamer launch description that takes raw
// BGR frames from appsrc, encodes them to H.264 and publishes them through
// kvssink to a Kinesis Video Stream.
package pipeline

import (
	"fmt"
	"math"
	"strings"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/model"
)

// AppSrcName is the element name the native GStreamer publisher looks up.
const AppSrcName = "src"

// Description holds everything needed to render the launch string.
type Description struct {
	Format model.Format

	BitrateKbps     int
	SpeedPreset     string
	KeyIntervalSecs int
	StorageSizeMB   int

	StreamName string
	AWSRegion  string

	IoTEndpoint           string
	DeviceCertificatePath string
	PrivateKeyPath        string
	RootCAPath            string
	RoleAlias             string
	ThingName             string

	// ExplicitCaps names the appsrc and pins its caps. OpenCV negotiates caps on
	// its own, the native publisher has to declare them.
	ExplicitCaps bool
}

// New builds a description sized from the negotiated camera format.
func New(cfg *config.Config, negotiated model.Format) Description {
	return Description{
		Format:                negotiated,
		BitrateKbps:           cfg.BitrateKbps,
		SpeedPreset:           cfg.SpeedPreset,
		KeyIntervalSecs:       cfg.KeyIntervalSecs,
		StorageSizeMB:         cfg.StorageSizeMB,
		StreamName:            cfg.StreamName,
		AWSRegion:             cfg.AWSRegion,
		IoTEndpoint:           cfg.IoTEndpoint,
		DeviceCertificatePath: cfg.DeviceCertificatePath,
		PrivateKeyPath:        cfg.PrivateKeyPath,
		RootCAPath:            cfg.RootCAPath,
		RoleAlias:             cfg.RoleAlias,
		ThingName:             cfg.ThingName,
		ExplicitCaps:          cfg.SinkBackend == config.SinkGStreamer,
	}
}

// KeyIntMax is the encoder GOP length in frames.
func (d Description) KeyIntMax() int {
	k := int(d.Format.FPS * float64(d.KeyIntervalSecs))
	if k < 1 {
		k = 1
	}
	return k
}

// SourceCaps are the raw video caps pushed into appsrc.
func (d Description) SourceCaps() string {
	num, den := framerateFraction(d.Format.FPS)
	return fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d,framerate=%d/%d",
		d.Format.Width, d.Format.Height, num, den)
}

// IoTCertificate renders the kvssink iot-certificate structure, empty when the
// default AWS credential chain should be used.
func (d Description) IoTCertificate() string {
	if d.IoTEndpoint == "" {
		return ""
	}
	return strings.Join([]string{
		"iot-certificate",
		"endpoint=" + d.IoTEndpoint,
		"cert-path=" + d.DeviceCertificatePath,
		"key-path=" + d.PrivateKeyPath,
		"ca-path=" + d.RootCAPath,
		"role-aliases=" + d.RoleAlias,
		"iot-thing-name=" + d.ThingName,
	}, ",")
}

// String renders the gst-launch style description.
func (d Description) String() string {
	var src string
	if d.ExplicitCaps {
		src = fmt.Sprintf("appsrc name=%s is-live=true format=time caps=%s", AppSrcName, d.SourceCaps())
	} else {
		src = "appsrc"
	}

	sink := fmt.Sprintf(`kvssink stream-name="%s" aws-region="%s" storage-size=%d`,
		d.StreamName, d.AWSRegion, d.StorageSizeMB)
	if cert := d.IoTCertificate(); cert != "" {
		sink += fmt.Sprintf(` iot-certificate="%s"`, cert)
	}

	stages := []string{
		src,
		"videoconvert",
		fmt.Sprintf("x264enc tune=zerolatency bitrate=%d speed-preset=%s key-int-max=%d",
			d.BitrateKbps, d.SpeedPreset, d.KeyIntMax()),
		"video/x-h264,profile=baseline,stream-format=avc,alignment=au",
		"h264parse",
		sink,
	}
	return strings.Join(stages, " ! ")
}

// framerateFraction turns fps into a GStreamer fraction, keeping NTSC style
// rates like 29.97 exact enough for caps negotiation.
func framerateFraction(fps float64) (int, int) {
	if fps <= 0 {
		return 0, 1
	}
	if fps == math.Trunc(fps) {
		return int(fps), 1
	}
	return int(math.Round(fps * 1000)), 1000
}
