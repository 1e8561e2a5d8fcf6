package voice

import (
	"context"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

// History is the hotword side of the capture bridge.
type History interface {
	ReadLast(n int) []float32
	SampleRate() int
}

// Detection is the outcome of one hotword poll.
type Detection struct {
	Text      string
	Phrase    string
	Samples   int
	Recognize time.Duration
	Err       error
}

// HotwordDetector recognizes the most recent window of audio and tests it
// against the trigger set. It holds no state between polls, so identical
// history always yields the same answer.
type HotwordDetector struct {
	history  History
	rec      Recognizer
	triggers *TriggerSet
	window   int
}

// NewHotwordDetector builds a detector over the last window of history.
func NewHotwordDetector(history History, rec Recognizer, triggers *TriggerSet, window time.Duration) *HotwordDetector {
	n := int(window.Seconds() * float64(history.SampleRate()))
	if n <= 0 {
		n = history.SampleRate()
	}
	return &HotwordDetector{history: history, rec: rec, triggers: triggers, window: n}
}

// WindowSamples returns the number of samples examined per poll.
func (d *HotwordDetector) WindowSamples() int { return d.window }

// PollOnce examines the latest window once. With less history than a full
// window it recognizes what is there; with none it skips recognition.
func (d *HotwordDetector) PollOnce(ctx context.Context) (Detection, bool) {
	samples := d.history.ReadLast(d.window)
	det := Detection{Samples: len(samples)}
	if len(samples) == 0 {
		return det, false
	}
	clip := audio.Frame{Samples: samples, SampleRate: d.history.SampleRate(), Channels: 1}
	text, took, err := transcribe(ctx, d.rec, clip)
	det.Text, det.Recognize, det.Err = text, took, err
	if err != nil {
		return det, false
	}
	phrase, ok := d.triggers.Match(text)
	if ok {
		det.Phrase = phrase
		logging.DebugwCtx(ctx, "hotword matched", "text", text, "phrase", phrase, "recognize_ms", took.Milliseconds())
	}
	return det, ok
}
