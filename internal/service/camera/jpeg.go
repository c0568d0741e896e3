package camera

import (
	"fmt"

	"gocv.io/x/gocv"

	"kvsstreamer/internal/model"
)

// MatFrame is implemented by frames backed by an OpenCV Mat.
type MatFrame interface {
	Mat() *gocv.Mat
}

// EncodeJPEG encodes the frame for the live preview.
func EncodeJPEG(frame model.Frame) ([]byte, error) {
	mf, ok := frame.(MatFrame)
	if !ok {
		return nil, fmt.Errorf("frame %T is not backed by a Mat", frame)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *mf.Mat())
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}
