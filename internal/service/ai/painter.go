package ai

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"kvsstreamer/internal/model"
	"kvsstreamer/internal/service/camera"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Painter draws boxes and captions onto Mat backed frames.
type Painter struct{}

// Draw draws detections in place.
func (Painter) Draw(frame model.Frame, detections []model.Detection) error {
	mf, ok := frame.(camera.MatFrame)
	if !ok {
		return fmt.Errorf("frame %T is not backed by a Mat", frame)
	}
	mat := mf.Mat()

	for _, d := range detections {
		rect := image.Rect(d.X1, d.Y1, d.X2, d.Y2)
		if err := gocv.Rectangle(mat, rect, boxColor, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		ty := d.Y1 - 5
		if ty < 10 {
			ty = d.Y1 + 15
		}
		if err := gocv.PutText(mat, d.Caption(), image.Pt(d.X1, ty), gocv.FontHersheySimplex, 0.5, boxColor, 1); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}
