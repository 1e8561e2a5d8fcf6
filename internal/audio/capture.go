package audio

import (
	"sync/atomic"
)

// Sink receives raw interleaved samples from an input device. OnSamples is
// called on the device's callback thread and must return promptly.
type Sink interface {
	OnSamples(samples []float32)
}

// recording is the per-question channel the callback feeds in recording
// mode. It is never closed: a callback that loaded it just before the mode
// switch may still send, and an unread buffered send is harmless.
type recording struct {
	ch chan Chunk
}

// Capture bridges an input device to either the hotword Ring (default mode)
// or a per-question chunk channel (recording mode). The two modes are
// mutually exclusive; the active one is swapped atomically so the callback
// never takes a lock other than the ring's own copy lock.
type Capture struct {
	ring       *Ring
	sampleRate int
	channels   int
	chunkCap   int

	rec     atomic.Pointer[recording]
	dropped atomic.Int64
	chunks  atomic.Int64
}

// NewCapture creates a capture bridge writing hotword audio into ring.
// chunkCap bounds how many recording-mode chunks may be buffered before
// the callback starts dropping them.
func NewCapture(ring *Ring, sampleRate, channels, chunkCap int) *Capture {
	if channels <= 0 {
		channels = 1
	}
	if chunkCap <= 0 {
		chunkCap = 256
	}
	return &Capture{ring: ring, sampleRate: sampleRate, channels: channels, chunkCap: chunkCap}
}

// OnSamples is the hardware callback entry point. It copies the samples
// (devices reuse their buffers) and returns without blocking.
func (c *Capture) OnSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}
	c.chunks.Add(1)
	if rec := c.rec.Load(); rec != nil {
		cp := make([]float32, len(samples))
		copy(cp, samples)
		chunk := Chunk{Samples: cp, SampleRate: c.sampleRate, Channels: c.channels, RMS: RMS(cp)}
		select {
		case rec.ch <- chunk:
		default:
			c.dropped.Add(1)
		}
		return
	}
	c.ring.Write(Mono(samples, c.channels))
}

// BeginRecording switches to recording mode and returns the channel that
// receives subsequent chunks. Callers must pair it with EndRecording.
func (c *Capture) BeginRecording() <-chan Chunk {
	rec := &recording{ch: make(chan Chunk, c.chunkCap)}
	c.rec.Store(rec)
	return rec.ch
}

// EndRecording restores hotword mode.
func (c *Capture) EndRecording() {
	c.rec.Store(nil)
}

// Recording reports whether recording mode is active.
func (c *Capture) Recording() bool { return c.rec.Load() != nil }

// ReadLast returns the most recent n mono samples of hotword history.
func (c *Capture) ReadLast(n int) []float32 { return c.ring.ReadLast(n) }

// ResetHistory drops hotword history, e.g. the assistant's own voice after
// a spoken answer.
func (c *Capture) ResetHistory() { c.ring.Reset() }

// SampleRate returns the configured input sample rate.
func (c *Capture) SampleRate() int { return c.sampleRate }

// Channels returns the configured input channel count.
func (c *Capture) Channels() int { return c.channels }

// Dropped returns how many recording chunks were discarded because the
// recorder fell behind.
func (c *Capture) Dropped() int64 { return c.dropped.Load() }

// Chunks returns how many callback invocations delivered samples.
func (c *Capture) Chunks() int64 { return c.chunks.Load() }
