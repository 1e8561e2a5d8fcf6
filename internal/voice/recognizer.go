// Package voice turns microphone audio into hotword detections and question
// text, and turns answer text back into sound.
package voice

import (
	"context"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

// Recognizer converts a clip to text. Implementations may be slow and must
// be safe for sequential reuse; the core never calls one concurrently.
type Recognizer interface {
	Transcribe(ctx context.Context, clip audio.Frame) (string, error)
}

// Synthesizer speaks text and returns once playback has finished.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, clip audio.Frame) (string, error)

func (f RecognizerFunc) Transcribe(ctx context.Context, clip audio.Frame) (string, error) {
	return f(ctx, clip)
}

// transcribe runs r and normalizes its output. Errors are logged and
// reported alongside an empty string; they never escape as panics.
func transcribe(ctx context.Context, r Recognizer, clip audio.Frame) (string, time.Duration, error) {
	start := time.Now()
	text, err := r.Transcribe(ctx, clip)
	took := time.Since(start)
	if err != nil {
		logging.DebugwCtx(ctx, "recognizer failed", "err", err, "took_ms", took.Milliseconds())
		return "", took, err
	}
	return lowerTrim(text), took, nil
}
