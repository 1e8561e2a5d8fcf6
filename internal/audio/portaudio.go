//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paOnce sync.Once
	paErr  error
)

func initPortAudio() error {
	paOnce.Do(func() { paErr = portaudio.Initialize() })
	return paErr
}

// Microphone is the default system input device.
type Microphone struct {
	SampleRate int
	Channels   int
	ChunkSize  int
}

func (m *Microphone) Name() string { return "portaudio-default-input" }

// Run opens a callback stream; the callback hands each period straight to
// sink.OnSamples, which must not block.
func (m *Microphone) Run(ctx context.Context, sink Sink) error {
	if err := initPortAudio(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(m.Channels, 0, float64(m.SampleRate), m.ChunkSize, func(in []float32) {
		sink.OnSamples(in)
	})
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	<-ctx.Done()
	return stream.Stop()
}

// Speaker plays frames on the default output device.
type Speaker struct {
	ChunkSize int
}

// Play writes f to the default output device and returns after the last
// buffer has been handed to the hardware. A fresh stream is opened per call
// and closed before returning.
func (s *Speaker) Play(ctx context.Context, f Frame) error {
	if err := initPortAudio(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = 1024
	}
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	buf := make([]float32, chunk*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(f.SampleRate), chunk, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()
	for off := 0; off < len(f.Samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, f.Samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// Terminate releases PortAudio. Call once at process exit.
func Terminate() {
	if initPortAudio() == nil {
		_ = portaudio.Terminate()
	}
}
