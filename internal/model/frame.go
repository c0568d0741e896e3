package model

import "fmt"

// Frame is one image buffer produced by the capture source. It is only valid
// until the next read from the same source.
type Frame interface {
	Width() int
	Height() int
	// Bytes returns the packed BGR24 pixel data.
	Bytes() []byte
}

// Format describes the size and rate of a video stream.
type Format struct {
	Width  int
	Height int
	FPS    float64
}

// Resolve returns the format the device actually delivers. Width and height
// always come from the reported values; a device that reports no frame rate
// keeps the requested one.
func (f Format) Resolve(reported Format) Format {
	negotiated := Format{
		Width:  reported.Width,
		Height: reported.Height,
		FPS:    reported.FPS,
	}
	if negotiated.FPS <= 0 {
		negotiated.FPS = f.FPS
	}
	return negotiated
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d @ %.2f fps", f.Width, f.Height, f.FPS)
}
