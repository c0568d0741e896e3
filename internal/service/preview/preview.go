package preview

import (
	"encoding/base64"
	"encoding/json"

	"kvsstreamer/internal/config"
	"kvsstreamer/internal/logger"
	"kvsstreamer/internal/model"
)

// Encoder turns a frame into an image the browser can display.
type Encoder func(frame model.Frame) ([]byte, error)

// Message is the JSON payload sent to viewers.
type Message struct {
	Stream string `json:"stream"`
	Frame  uint64 `json:"frame"`
	Image  string `json:"image"`
}

// Service samples frames from the capture loop for the websocket preview.
type Service struct {
	hub     *HubService
	encode  Encoder
	stream  string
	every   uint64
	logger  *logger.Logger
	dropped func()
}

func NewService(hub *HubService, encode Encoder, config *config.Config, logger *logger.Logger) *Service {
	every := config.PreviewEvery
	if every <= 0 {
		every = 1
	}
	return &Service{
		hub:    hub,
		encode: encode,
		stream: config.StreamName,
		every:  uint64(every),
		logger: logger,
	}
}

// OnDropped installs a callback for frames the hub could not take.
func (s *Service) OnDropped(fn func()) {
	s.dropped = fn
}

// Offer encodes every n-th frame while somebody is watching.
func (s *Service) Offer(frameIndex uint64, frame model.Frame) {
	if frameIndex%s.every != 0 || s.hub.GetClientCount() == 0 {
		return
	}

	img, err := s.encode(frame)
	if err != nil {
		s.logger.Warning("Preview encode failed on frame %d: %v", frameIndex, err)
		return
	}

	msg, err := json.Marshal(Message{
		Stream: s.stream,
		Frame:  frameIndex,
		Image:  base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		s.logger.Error("Preview message marshal failed: %v", err)
		return
	}

	if !s.hub.Broadcast(msg) && s.dropped != nil {
		s.dropped()
	}
}
