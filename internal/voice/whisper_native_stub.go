//go:build !whispercpp

package voice

import (
	"context"

	"github.com/askcam-lab/internal/audio"
)

// NativeWhisper requires the whispercpp build tag.
type NativeWhisper struct{}

func NewNativeWhisper(modelPath, language string) (*NativeWhisper, error) {
	return nil, audio.ErrUnsupported
}

func (n *NativeWhisper) Transcribe(ctx context.Context, clip audio.Frame) (string, error) {
	return "", audio.ErrUnsupported
}

func (n *NativeWhisper) Close() error { return nil }
