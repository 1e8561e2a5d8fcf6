package audio

import (
	"errors"
	"math"
	"time"
)

// ErrUnsupported is returned by sources and players that were not compiled
// into this binary (see the portaudio and opus build tags).
var ErrUnsupported = errors.New("audio: backend not available in this build")

// Frame is an immutable block of interleaved float32 samples in [-1, 1].
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate, f.Channels)
}

// Empty reports whether the frame carries no samples.
func (f Frame) Empty() bool { return len(f.Samples) == 0 }

// Chunk is one hardware period delivered while a question is being
// recorded, with its RMS energy computed by the capture callback.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
	RMS        float64
}

// Duration returns the length of the chunk.
func (c Chunk) Duration() time.Duration {
	return samplesDuration(len(c.Samples), c.SampleRate, c.Channels)
}

func samplesDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	if channels <= 0 {
		channels = 1
	}
	return time.Duration(n/channels) * time.Second / time.Duration(sampleRate)
}

// RMS returns the root-mean-square amplitude of samples (0 for empty input).
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// Concat joins chunk samples into one frame.
func Concat(chunks []Chunk, sampleRate, channels int) Frame {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return Frame{Samples: out, SampleRate: sampleRate, Channels: channels}
}

// Mono downmixes interleaved samples by averaging channels.
func Mono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ToPCM16 converts float samples to little-endian 16-bit PCM bytes,
// clipping values outside [-1, 1].
func ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(clip(s) * 32767)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// FromPCM16 converts little-endian 16-bit PCM bytes to float samples.
func FromPCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}

// Normalize scales samples so the peak reaches full scale. Silent input is
// returned unchanged.
func Normalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak == 0 || peak == 1 {
		return samples
	}
	gain := 1 / peak
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}

func clip(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
