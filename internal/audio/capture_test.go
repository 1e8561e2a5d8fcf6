package audio

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestCaptureModesAreExclusive(t *testing.T) {
	ring := NewRing(64)
	c := NewCapture(ring, 16000, 1, 4)

	c.OnSamples(seq(0, 8))
	if ring.Available() != 8 {
		t.Fatalf("hotword mode should fill ring, available=%d", ring.Available())
	}

	ch := c.BeginRecording()
	loud := []float32{0.5, -0.5, 0.5, -0.5}
	c.OnSamples(loud)
	if ring.Available() != 8 {
		t.Fatalf("recording mode must not touch the ring")
	}
	select {
	case chunk := <-ch:
		if math.Abs(chunk.RMS-0.5) > 1e-6 {
			t.Fatalf("rms = %v, want 0.5", chunk.RMS)
		}
		if chunk.Duration() != 250*time.Microsecond {
			t.Fatalf("duration = %v", chunk.Duration())
		}
	default:
		t.Fatal("no chunk delivered")
	}

	c.EndRecording()
	c.OnSamples(seq(0, 4))
	if ring.Available() != 12 {
		t.Fatalf("hotword mode not restored, available=%d", ring.Available())
	}
}

func TestCaptureCopiesCallbackBuffer(t *testing.T) {
	c := NewCapture(NewRing(8), 16000, 1, 4)
	ch := c.BeginRecording()
	buf := []float32{0.1, 0.2}
	c.OnSamples(buf)
	buf[0] = 9
	if got := <-ch; got.Samples[0] != 0.1 {
		t.Fatalf("chunk aliases device buffer: %v", got.Samples)
	}
}

func TestCaptureDropsWhenRecorderLags(t *testing.T) {
	c := NewCapture(NewRing(8), 16000, 1, 2)
	c.BeginRecording()
	for i := 0; i < 5; i++ {
		c.OnSamples([]float32{0.1})
	}
	if c.Dropped() != 3 {
		t.Fatalf("dropped = %d, want 3", c.Dropped())
	}
}

func TestCaptureDownmixesStereoIntoRing(t *testing.T) {
	ring := NewRing(8)
	c := NewCapture(ring, 16000, 2, 4)
	c.OnSamples([]float32{0.2, 0.4, -1, 1})
	got := ring.ReadLast(2)
	if len(got) != 2 || math.Abs(float64(got[0])-0.3) > 1e-6 || got[1] != 0 {
		t.Fatalf("mono ring = %v", got)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	in := Frame{Samples: []float32{0, 0.5, -0.5, 0.25}, SampleRate: 16000, Channels: 1}
	out, err := DecodeWAV(EncodeWAV(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SampleRate != 16000 || out.Channels != 1 || len(out.Samples) != 4 {
		t.Fatalf("unexpected frame %+v", out)
	}
	for i := range in.Samples {
		if math.Abs(float64(in.Samples[i]-out.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d: %v vs %v", i, in.Samples[i], out.Samples[i])
		}
	}
	if _, err := DecodeWAV([]byte("not a wav")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{0.25, -0.5})
	if got[0] != 0.5 || got[1] != -1 {
		t.Fatalf("normalize = %v", got)
	}
	silent := []float32{0, 0}
	if out := Normalize(silent); &out[0] != &silent[0] {
		t.Fatal("silent input should be returned as-is")
	}
}

type flakyDevice struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (d *flakyDevice) Name() string { return "flaky" }

func (d *flakyDevice) Run(ctx context.Context, sink Sink) error {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	if n <= d.fail {
		return errors.New("device busy")
	}
	<-ctx.Done()
	return nil
}

func TestRunDeviceRetriesUntilCancelled(t *testing.T) {
	dev := &flakyDevice{fail: 2}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunDevice(ctx, dev, NewCapture(NewRing(4), 16000, 1, 1), Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond})
	}()
	deadline := time.After(2 * time.Second)
	for {
		dev.mu.Lock()
		calls := dev.calls
		dev.mu.Unlock()
		if calls >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("device reopened %d times", calls)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunDevice returned %v after cancel", err)
	}
}

type unsupportedDevice struct{}

func (unsupportedDevice) Name() string                              { return "none" }
func (unsupportedDevice) Run(ctx context.Context, sink Sink) error { return ErrUnsupported }

func TestRunDeviceGivesUpOnUnsupported(t *testing.T) {
	err := RunDevice(context.Background(), unsupportedDevice{}, nil, Backoff{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

type byteDecoder struct{}

// each packet byte becomes one sample of value b/100
func (byteDecoder) DecodeFloat32(packet []byte, pcm []float32) (int, error) {
	if bytes.Equal(packet, []byte("bad")) {
		return 0, errors.New("corrupt")
	}
	for i, b := range packet {
		pcm[i] = float32(b) / 100
	}
	return len(packet), nil
}

type sliceSink struct {
	mu  sync.Mutex
	got []float32
}

func (s *sliceSink) OnSamples(samples []float32) {
	s.mu.Lock()
	s.got = append(s.got, samples...)
	s.mu.Unlock()
}

func (s *sliceSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestOpusSourceDecodesWebsocketPackets(t *testing.T) {
	src := NewOpusSource(16000, 1, 8)
	src.openDecoder = func(int, int) (packetDecoder, error) { return byteDecoder{}, nil }
	srv := httptest.NewServer(src)
	defer srv.Close()

	sink := &sliceSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx, sink)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for _, p := range [][]byte{{10, 20}, []byte("bad"), {30}} {
		if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for sink.len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 3 || sink.got[2] != 0.3 {
		t.Fatalf("decoded samples = %v", sink.got)
	}
	if _, decodeErrs := src.Stats(); decodeErrs != 1 {
		t.Fatalf("decode errors = %d", decodeErrs)
	}
}
