package audio

import (
	"context"
	"fmt"
	"os"
	"time"
)

// WAVFileSource replays a WAV file in real time, one chunk per period, so
// the assistant can be exercised without a microphone. The file is
// converted to SampleRate and Channels before playback, since the capture
// labels every chunk with its own configured layout. When Loop is false
// the source feeds silence after the file ends instead of returning, which
// lets a trailing question terminate on the silence rule.
type WAVFileSource struct {
	Path       string
	SampleRate int
	Channels   int
	ChunkSize  int
	Loop       bool
}

func (w *WAVFileSource) Name() string { return "wav:" + w.Path }

func (w *WAVFileSource) Run(ctx context.Context, sink Sink) error {
	data, err := os.ReadFile(w.Path)
	if err != nil {
		return fmt.Errorf("read wav source: %w", err)
	}
	f, err := DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("decode wav source %s: %w", w.Path, err)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("wav source %s: invalid sample rate %d", w.Path, f.SampleRate)
	}
	f = Conform(f, w.SampleRate, w.Channels)

	chunk := w.ChunkSize
	if chunk <= 0 {
		chunk = 1024
	}
	step := chunk * max(f.Channels, 1)
	period := samplesDuration(step, f.SampleRate, f.Channels)
	if period <= 0 {
		return fmt.Errorf("wav source %s: chunk of %d frames is shorter than one tick", w.Path, chunk)
	}
	silence := make([]float32, step)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	off := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if off >= len(f.Samples) {
			if w.Loop && len(f.Samples) > 0 {
				off = 0
			} else {
				sink.OnSamples(silence)
				continue
			}
		}
		end := min(off+step, len(f.Samples))
		sink.OnSamples(f.Samples[off:end])
		off = end
	}
}

// Conform converts f to the given rate and channel count. Multi-channel
// input is averaged to mono before resampling; a multi-channel target
// repeats the mono signal on every channel. Zero targets keep the frame's
// own value.
func Conform(f Frame, sampleRate, channels int) Frame {
	if sampleRate <= 0 {
		sampleRate = f.SampleRate
	}
	if channels <= 0 {
		channels = max(f.Channels, 1)
	}
	if f.SampleRate == sampleRate && max(f.Channels, 1) == channels {
		return f
	}
	mono := Resample(Mono(f.Samples, f.Channels), f.SampleRate, sampleRate)
	out := mono
	if channels > 1 {
		out = make([]float32, len(mono)*channels)
		for i, s := range mono {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = s
			}
		}
	}
	return Frame{Samples: out, SampleRate: sampleRate, Channels: channels}
}
