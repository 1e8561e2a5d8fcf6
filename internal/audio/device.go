package audio

import (
	"context"
	"errors"
	"time"

	"github.com/askcam-lab/internal/logging"
)

// Device is an input source that feeds samples into a Sink until ctx is
// cancelled or the device fails.
type Device interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// Backoff bounds the retry delays of RunDevice.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when RunDevice is given a zero Backoff.
var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}

// RunDevice keeps dev running, reopening it with exponential backoff after
// failures. It returns nil when ctx is cancelled and ErrUnsupported
// immediately if the backend is not compiled in.
func RunDevice(ctx context.Context, dev Device, sink Sink, b Backoff) error {
	if b.Initial <= 0 {
		b = DefaultBackoff
	}
	delay := b.Initial
	for attempt := 1; ; attempt++ {
		started := time.Now()
		err := dev.Run(ctx, sink)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnsupported) {
			return err
		}
		// a device that ran for a while before failing starts a fresh backoff
		if time.Since(started) > b.Max {
			delay = b.Initial
		}
		logging.Warnw("audio device stopped; retrying", "device", dev.Name(), "err", err, "attempt", attempt, "backoff_ms", delay.Milliseconds())
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		delay *= 2
		if delay > b.Max {
			delay = b.Max
		}
	}
}
