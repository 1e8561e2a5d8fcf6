// Package camera feeds frames into the frame source: a websocket endpoint
// for pushing clients such as a browser webcam, and a poller for cameras
// that expose a JPEG snapshot URL.
package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/askcam-lab/internal/vision"
)

// ErrFrameTooLarge is returned for frames above the configured byte limit.
var ErrFrameTooLarge = errors.New("camera: frame too large")

// Sink receives decoded frames.
type Sink interface {
	Set(frame vision.Frame)
}

// DecodeFrame validates an encoded still image and reads its dimensions.
// Only JPEG and PNG are accepted.
func DecodeFrame(data []byte, maxBytes int) (vision.Frame, error) {
	if maxBytes > 0 && len(data) > maxBytes {
		return vision.Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return vision.Frame{}, fmt.Errorf("camera: decode frame: %w", err)
	}
	if format != "jpeg" && format != "png" {
		return vision.Frame{}, fmt.Errorf("camera: unsupported format %q", format)
	}
	return vision.Frame{
		Data:       data,
		Format:     format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		CapturedAt: time.Now(),
	}, nil
}
