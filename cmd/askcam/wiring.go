package main

import (
	"fmt"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/config"
	"github.com/askcam-lab/internal/voice"
)

// newRecognizer returns the configured speech recognizer and its release
// func.
func newRecognizer(c config.Recognizer) (voice.Recognizer, func(), error) {
	switch c.Backend {
	case "whispercpp":
		w, err := voice.NewNativeWhisper(c.ModelPath, c.Language)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper.cpp: %w", err)
		}
		return w, func() { _ = w.Close() }, nil
	default:
		w, err := voice.NewWhisperClient(c.WhisperURL, c.Language, c.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("whisper client: %w", err)
		}
		return w, func() {}, nil
	}
}

func newPlayer(c config.Audio) (audio.Player, error) {
	switch c.Output {
	case "portaudio":
		return &audio.Speaker{ChunkSize: c.ChunkSize}, nil
	case "command":
		return audio.NewCommandPlayer(c.PlayerCmd)
	default:
		return audio.DiscardPlayer{}, nil
	}
}

// newDevice returns the audio input, or nil when audio.source is none.
func newDevice(c config.Audio) (audio.Device, error) {
	switch c.Source {
	case "portaudio":
		return &audio.Microphone{SampleRate: c.SampleRate, Channels: c.Channels, ChunkSize: c.ChunkSize}, nil
	case "opus":
		return audio.NewOpusSource(c.SampleRate, c.Channels, c.ChunkQueue), nil
	case "wav":
		return &audio.WAVFileSource{
			Path:       c.WAVFile,
			SampleRate: c.SampleRate,
			Channels:   c.Channels,
			ChunkSize:  c.ChunkSize,
			Loop:       c.WAVLoop,
		}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", c.Source)
	}
}
