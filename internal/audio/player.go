package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Player plays a frame and blocks until playback has finished.
type Player interface {
	Play(ctx context.Context, f Frame) error
}

// CommandPlayer pipes a WAV rendition of each frame to an external program
// on stdin, e.g. "aplay -q -" or "paplay". Each call starts and reaps its
// own process.
type CommandPlayer struct {
	Command []string
}

// NewCommandPlayer splits a command line on whitespace.
func NewCommandPlayer(cmdline string) (*CommandPlayer, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("audio: empty player command")
	}
	return &CommandPlayer{Command: fields}, nil
}

func (c *CommandPlayer) Play(ctx context.Context, f Frame) error {
	if len(f.Samples) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdin = bytes.NewReader(EncodeWAV(f))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("player %s: %w: %s", c.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// DiscardPlayer drops audio. Used when no output device is configured.
type DiscardPlayer struct{}

func (DiscardPlayer) Play(ctx context.Context, f Frame) error { return nil }
