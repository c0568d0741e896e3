package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Read failure policies for the capture loop.
const (
	ReadFailureStop  = "stop"
	ReadFailureRetry = "retry"
)

// Publish sink backends.
const (
	SinkOpenCV    = "opencv"
	SinkGStreamer = "gstreamer"
)

type Config struct {
	// Camera
	CameraIndex int     `yaml:"camera_index"`
	FrameWidth  int     `yaml:"frame_width"`
	FrameHeight int     `yaml:"frame_height"`
	FPS         float64 `yaml:"fps"`

	// Encoder
	BitrateKbps     int    `yaml:"bitrate_kbps"`
	SpeedPreset     string `yaml:"speed_preset"`
	KeyIntervalSecs int    `yaml:"key_interval_secs"` // GOP length in seconds of video
	StorageSizeMB   int    `yaml:"storage_size_mb"`   // kvssink content store size

	// Kinesis Video Streams
	StreamName string `yaml:"stream_name"`
	AWSRegion  string `yaml:"aws_region"`

	// IoT credential provider, leave IoTEndpoint empty to use the default AWS chain
	IoTEndpoint           string `yaml:"iot_endpoint"`
	DeviceCertificatePath string `yaml:"device_certificate_path"`
	PrivateKeyPath        string `yaml:"private_key_path"`
	RootCAPath            string `yaml:"root_ca_path"`
	RoleAlias             string `yaml:"role_alias"`
	ThingName             string `yaml:"thing_name"`

	SinkBackend string        `yaml:"sink_backend"`
	SinkWarmup  time.Duration `yaml:"sink_warmup"` // Czas na inicjalizację kvssink przed pierwszą klatką

	ReadFailurePolicy string        `yaml:"read_failure_policy"`
	ReadRetryDelay    time.Duration `yaml:"read_retry_delay"`

	// Annotation
	Annotate            bool    `yaml:"annotate"`
	ModelPath           string  `yaml:"model_path"`
	ModelConfigPath     string  `yaml:"model_config_path"`
	LabelsPath          string  `yaml:"labels_path"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	InferEvery          int     `yaml:"infer_every"` // Co którą klatkę uruchamiać detekcję

	// Ambient services
	HTTPAddr             string        `yaml:"http_addr"`
	Password             string        `yaml:"http_password"` // Puste = brak logowania
	PreviewEvery         int           `yaml:"preview_every"`
	DBPath               string        `yaml:"db_path"`
	JournalFlushInterval time.Duration `yaml:"journal_flush_interval"`
	LogDirectory         string        `yaml:"log_dir"`
}

// Default returns the configuration the device was originally provisioned with.
func Default() *Config {
	certDir := filepath.Join(".", "certificates")
	return &Config{
		CameraIndex: 2, // /dev/video2
		FrameWidth:  1280,
		FrameHeight: 720,
		FPS:         30,

		BitrateKbps:     2000,
		SpeedPreset:     "veryfast",
		KeyIntervalSecs: 2,
		StorageSizeMB:   128,

		StreamName: "tachyon_test",
		AWSRegion:  "us-east-1",

		IoTEndpoint:           "afevc2yjrmfjb-ats.iot.us-east-1.amazonaws.com",
		DeviceCertificatePath: filepath.Join(certDir, "device-certificate.pem.crt"),
		PrivateKeyPath:        filepath.Join(certDir, "private-key.pem.key"),
		RootCAPath:            filepath.Join(certDir, "root-ca.pem"),
		RoleAlias:             "TachyonIoTRoleAlias",
		ThingName:             "tachyon_test",

		SinkBackend: SinkOpenCV,
		SinkWarmup:  500 * time.Millisecond,

		ReadFailurePolicy: ReadFailureStop,
		ReadRetryDelay:    10 * time.Millisecond,

		Annotate:            false,
		ModelPath:           filepath.Join(".", "models", "frozen_inference_graph.pb"),
		ModelConfigPath:     filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
		ConfidenceThreshold: 0.7,
		InferEvery:          60,

		HTTPAddr:             ":8080",
		PreviewEvery:         5,
		DBPath:               filepath.Join(".", "data", "streamer.db"),
		JournalFlushInterval: 5 * time.Second,
		LogDirectory:         filepath.Join(".", "logs"),
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// STREAMER_CONFIG, an optional .env file and finally the process environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("STREAMER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Brak pliku .env nie jest błędem
	_ = godotenv.Load()

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.CameraIndex = getEnvAsInt("CAMERA_INDEX", c.CameraIndex)
	c.FrameWidth = getEnvAsInt("FRAME_WIDTH", c.FrameWidth)
	c.FrameHeight = getEnvAsInt("FRAME_HEIGHT", c.FrameHeight)
	c.FPS = getEnvAsFloat("FPS", c.FPS)

	c.BitrateKbps = getEnvAsInt("BITRATE_KBPS", c.BitrateKbps)
	c.SpeedPreset = getEnv("SPEED_PRESET", c.SpeedPreset)
	c.KeyIntervalSecs = getEnvAsInt("KEY_INTERVAL_SECS", c.KeyIntervalSecs)
	c.StorageSizeMB = getEnvAsInt("STORAGE_SIZE_MB", c.StorageSizeMB)

	c.StreamName = getEnv("STREAM_NAME", c.StreamName)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)

	c.IoTEndpoint = getEnvAllowEmpty("IOT_CRED_ENDPOINT", c.IoTEndpoint)
	c.DeviceCertificatePath = getEnv("DEVICE_CERTIFICATE_PATH", c.DeviceCertificatePath)
	c.PrivateKeyPath = getEnv("PRIVATE_KEY_PATH", c.PrivateKeyPath)
	c.RootCAPath = getEnv("ROOT_CA_PATH", c.RootCAPath)
	c.RoleAlias = getEnv("ROLE_ALIAS", c.RoleAlias)
	c.ThingName = getEnv("THING_NAME", c.ThingName)

	c.SinkBackend = getEnv("SINK_BACKEND", c.SinkBackend)
	c.SinkWarmup = getEnvAsDuration("SINK_WARMUP", c.SinkWarmup)

	c.ReadFailurePolicy = getEnv("READ_FAILURE_POLICY", c.ReadFailurePolicy)
	c.ReadRetryDelay = getEnvAsDuration("READ_RETRY_DELAY", c.ReadRetryDelay)

	c.Annotate = getEnvAsBool("ANNOTATE", c.Annotate)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ModelConfigPath = getEnv("MODEL_CONFIG_PATH", c.ModelConfigPath)
	c.LabelsPath = getEnv("LABELS_PATH", c.LabelsPath)
	c.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.InferEvery = getEnvAsInt("INFER_EVERY", c.InferEvery)

	c.HTTPAddr = getEnvAllowEmpty("HTTP_ADDR", c.HTTPAddr)
	c.Password = getEnv("HTTP_PASSWORD", c.Password)
	c.PreviewEvery = getEnvAsInt("PREVIEW_EVERY", c.PreviewEvery)
	c.DBPath = getEnvAllowEmpty("DB_PATH", c.DBPath)
	c.JournalFlushInterval = getEnvAsDuration("JOURNAL_FLUSH_INTERVAL", c.JournalFlushInterval)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
}

// UsesIoTCredentials reports whether kvssink should authenticate with the IoT certificate bundle.
func (c *Config) UsesIoTCredentials() bool {
	return c.IoTEndpoint != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty lets an explicitly empty variable switch a feature off.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
