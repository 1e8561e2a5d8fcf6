package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

func TestWhisperClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") != "en" {
			t.Errorf("language query missing: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("content type = %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Correlation-ID") != "turn-1" {
			t.Errorf("correlation header = %q", r.Header.Get("X-Correlation-ID"))
		}
		body, _ := io.ReadAll(r.Body)
		if _, err := audio.DecodeWAV(body); err != nil {
			t.Errorf("body is not wav: %v", err)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", 503)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " What is this? "})
	}))
	defer ts.Close()

	wc, err := NewWhisperClient(ts.URL+"/asr", "en", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	wc.Retry.Backoff = time.Millisecond
	ctx := logging.WithFields(context.Background(), logging.TurnFields("turn-1", "")...)
	text, err := wc.Transcribe(ctx, audio.Frame{Samples: make([]float32, 160), SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "What is this?" || calls.Load() != 2 {
		t.Fatalf("text=%q calls=%d", text, calls.Load())
	}
}

func TestWhisperClientGivesUpOnClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", 400)
	}))
	defer ts.Close()
	wc, _ := NewWhisperClient(ts.URL, "", time.Second)
	wc.Retry.Backoff = time.Millisecond
	if _, err := wc.Transcribe(context.Background(), audio.Frame{Samples: []float32{0}, SampleRate: 16000, Channels: 1}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx retried %d times", calls.Load())
	}
}

type capturePlayer struct {
	frames []audio.Frame
}

func (p *capturePlayer) Play(ctx context.Context, f audio.Frame) error {
	p.frames = append(p.frames, f)
	return nil
}

type replyRecorder struct{ n int }

func (r *replyRecorder) SaveReply(ctx context.Context, wav []byte) error {
	r.n++
	return nil
}

func TestTTSClientSpeaksNormalizedAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "a red mug" {
			t.Errorf("text = %q", body["text"])
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(audio.Frame{Samples: []float32{0.25, -0.25, 0.125}, SampleRate: 22050, Channels: 1}))
	}))
	defer ts.Close()

	player := &capturePlayer{}
	saver := &replyRecorder{}
	c := NewTTSClient(ts.URL, "tok", time.Second, player)
	c.Saver = saver
	if err := c.Speak(context.Background(), "a red mug"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if len(player.frames) != 1 || saver.n != 1 {
		t.Fatalf("frames=%d saved=%d", len(player.frames), saver.n)
	}
	f := player.frames[0]
	if f.SampleRate != 22050 || f.Samples[0] < 0.99 || f.Samples[1] > -0.99 {
		t.Fatalf("frame not normalized: %+v", f)
	}
	if err := c.Speak(context.Background(), "   "); err != nil || len(player.frames) != 1 {
		t.Fatal("blank text should be a no-op")
	}
}

func TestTTSClientErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", 422)
	}))
	defer ts.Close()
	c := NewTTSClient(ts.URL, "", time.Second, &capturePlayer{})
	if err := c.Speak(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
}
