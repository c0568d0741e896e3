package ai

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
	"kvsstreamer/internal/service/camera"
)

// SSD MobileNet COCO input geometry.
const (
	inputSize  = 300
	inputScale = 1.0 / 127.5
	inputMean  = 127.5
)

// DetectorService runs the pretrained SSD network over camera frames.
type DetectorService struct {
	net        gocv.Net
	labels     map[int]string
	modelPath  string
	configPath string
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewDetectorService loads the network weights; a missing or unreadable
// model is a startup error.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ModelConfigPath,
		labels:     cocoLabels,
		logger:     logger,
	}

	if config.LabelsPath != "" {
		labels, err := loadLabels(config.LabelsPath)
		if err != nil {
			return nil, err
		}
		service.labels = labels
	}

	if err := service.initializeNet(); err != nil {
		return nil, fmt.Errorf("could not initialize detection network: %w", err)
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); err != nil {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}
	if s.configPath != "" {
		if _, err := os.Stat(s.configPath); err != nil {
			return fmt.Errorf("config file not found: %s", s.configPath)
		}
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable target: %w", err)
	}

	s.net = net
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Detect runs one forward pass and returns every detection the network
// emits, unfiltered. Threshold filtering happens in the annotator.
func (s *DetectorService) Detect(frame model.Frame) ([]model.Detection, error) {
	mf, ok := frame.(camera.MatFrame)
	if !ok {
		return nil, fmt.Errorf("frame %T is not backed by a Mat", frame)
	}
	mat := *mf.Mat()
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob := gocv.BlobFromImage(mat, inputScale, image.Pt(inputSize, inputSize),
		gocv.NewScalar(inputMean, inputMean, inputMean, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	// Output rows: [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	raw := make([][7]float32, rows.Rows())
	for i := range raw {
		for j := 0; j < 7; j++ {
			raw[i][j] = rows.GetFloatAt(i, j)
		}
	}
	return decode(raw, mat.Cols(), mat.Rows(), s.label), nil
}

func (s *DetectorService) label(classID int) string {
	if label, ok := s.labels[classID]; ok {
		return label
	}
	return fmt.Sprintf("class%d", classID)
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}

// decode scales normalized SSD rows into pixel boxes clamped to the frame.
func decode(rows [][7]float32, width, height int, label func(int) string) []model.Detection {
	detections := make([]model.Detection, 0, len(rows))
	for _, row := range rows {
		confidence := row[2]
		if confidence <= 0 {
			continue
		}
		detections = append(detections, model.Detection{
			X1:         clamp(int(row[3]*float32(width)), 0, width-1),
			Y1:         clamp(int(row[4]*float32(height)), 0, height-1),
			X2:         clamp(int(row[5]*float32(width)), 0, width-1),
			Y2:         clamp(int(row[6]*float32(height)), 0, height-1),
			Label:      label(int(row[1])),
			Confidence: float64(confidence),
		})
	}
	return detections
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// loadLabels reads one label per line; line n is class id n.
func loadLabels(path string) (map[int]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer file.Close()

	labels := make(map[int]string)
	scanner := bufio.NewScanner(file)
	for id := 0; scanner.Scan(); id++ {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels[id] = label
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	return labels, nil
}

// cocoLabels maps SSD MobileNet COCO class ids to names.
var cocoLabels = map[int]string{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	5:  "airplane",
	6:  "bus",
	7:  "train",
	8:  "truck",
	9:  "boat",
	16: "bird",
	17: "cat",
	18: "dog",
	19: "horse",
	44: "bottle",
	47: "cup",
	62: "chair",
	63: "couch",
	64: "potted plant",
	67: "dining table",
	72: "tv",
	73: "laptop",
	77: "cell phone",
}
