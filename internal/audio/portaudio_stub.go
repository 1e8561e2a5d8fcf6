//go:build !portaudio

package audio

import "context"

// Microphone is unavailable without the portaudio build tag.
type Microphone struct {
	SampleRate int
	Channels   int
	ChunkSize  int
}

func (m *Microphone) Name() string { return "portaudio-default-input" }

func (m *Microphone) Run(ctx context.Context, sink Sink) error { return ErrUnsupported }

// Speaker is unavailable without the portaudio build tag.
type Speaker struct {
	ChunkSize int
}

func (s *Speaker) Play(ctx context.Context, f Frame) error { return ErrUnsupported }

func Terminate() {}
