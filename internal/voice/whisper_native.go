//go:build whispercpp

package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

const whisperRate = 16000

// NativeWhisper runs whisper.cpp in process. The model is shared; each call
// gets its own context.
type NativeWhisper struct {
	mu       sync.Mutex
	model    whisperlib.Model
	language string
}

func NewNativeWhisper(modelPath, language string) (*NativeWhisper, error) {
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeWhisper{model: model, language: language}, nil
}

func (n *NativeWhisper) Transcribe(ctx context.Context, clip audio.Frame) (string, error) {
	if clip.Empty() {
		return "", nil
	}
	samples := audio.Resample(audio.Mono(clip.Samples, clip.Channels), clip.SampleRate, whisperRate)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if n.language != "" {
		if err := wctx.SetLanguage(n.language); err != nil {
			logging.Warnw("whisper: failed to set language, using default", "language", n.language, "err", err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (n *NativeWhisper) Close() error { return n.model.Close() }
