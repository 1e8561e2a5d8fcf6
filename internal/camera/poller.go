package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/askcam-lab/internal/logging"
)

// SnapshotPoller fetches a still image from URL every Interval. Failures
// back off exponentially up to MaxBackoff and reset on the next success.
type SnapshotPoller struct {
	URL        string
	Interval   time.Duration
	MaxBackoff time.Duration
	MaxBytes   int
	Client     *http.Client
	Sink       Sink
}

func NewSnapshotPoller(url string, interval time.Duration, maxBytes int, sink Sink) *SnapshotPoller {
	return &SnapshotPoller{
		URL:        url,
		Interval:   interval,
		MaxBackoff: 30 * time.Second,
		MaxBytes:   maxBytes,
		Client:     &http.Client{Timeout: 10 * time.Second},
		Sink:       sink,
	}
}

// Run polls until ctx is cancelled.
func (p *SnapshotPoller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	wait := time.Duration(0)
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if err := p.FetchOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			wait = backoff(interval, p.MaxBackoff, failures)
			if failures == 1 || failures%10 == 0 {
				logging.Warnw("camera snapshot failed", "url", p.URL, "err", err, "failures", failures, "retry_in", wait.String())
			}
			continue
		}
		if failures > 0 {
			logging.Infow("camera snapshot recovered", "url", p.URL, "failures", failures)
		}
		failures = 0
		wait = interval
	}
}

// FetchOnce downloads and stores one frame.
func (p *SnapshotPoller) FetchOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot status %d", resp.StatusCode)
	}
	body := io.Reader(resp.Body)
	if p.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, int64(p.MaxBytes)+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	frame, err := DecodeFrame(data, p.MaxBytes)
	if err != nil {
		return err
	}
	p.Sink.Set(frame)
	return nil
}

func backoff(base, limit time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures && d < limit; i++ {
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d
}
