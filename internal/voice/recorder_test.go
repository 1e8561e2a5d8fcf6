package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

const testRate = 16000

func chunkOf(level float32) audio.Chunk {
	s := make([]float32, 1024) // 64 ms at 16 kHz
	for i := range s {
		s[i] = level
	}
	return audio.Chunk{Samples: s, SampleRate: testRate, Channels: 1, RMS: audio.RMS(s)}
}

// scriptedSource hands the recorder a pre-filled chunk channel.
type scriptedSource struct {
	mu        sync.Mutex
	chunks    []audio.Chunk
	recording bool
	begins    int
	ends      int
}

func (s *scriptedSource) BeginRecording() <-chan audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.recording = true
	ch := make(chan audio.Chunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	return ch
}

func (s *scriptedSource) EndRecording() {
	s.mu.Lock()
	s.ends++
	s.recording = false
	s.mu.Unlock()
}

func (s *scriptedSource) isRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *scriptedSource) SampleRate() int { return testRate }
func (s *scriptedSource) Channels() int   { return 1 }

func repeat(c audio.Chunk, n int) []audio.Chunk {
	out := make([]audio.Chunk, n)
	for i := range out {
		out[i] = c
	}
	return out
}

var defaultRule = RecorderConfig{
	SilenceThreshold: 0.01,
	SilenceDuration:  1500 * time.Millisecond,
	MaxDuration:      5 * time.Second,
}

func TestRecorderStopsAfterSilenceDuration(t *testing.T) {
	src := &scriptedSource{}
	src.chunks = append(repeat(chunkOf(0.2), 5), repeat(chunkOf(0.001), 25)...)
	var sawRecording bool
	rec := RecognizerFunc(func(ctx context.Context, clip audio.Frame) (string, error) {
		sawRecording = src.isRecording()
		return "  What Is This ", nil
	})

	got := NewQuestionRecorder(src, rec, defaultRule).RecordQuestion(context.Background())

	if got.Stop != StopSilence {
		t.Fatalf("stop = %s, want silence", got.Stop)
	}
	// the 24th silent chunk brings the silent tail to 1.536 s
	if got.Chunks != 5+24 {
		t.Fatalf("chunks = %d, want 29", got.Chunks)
	}
	if got.Text != "what is this" {
		t.Fatalf("text = %q", got.Text)
	}
	if sawRecording {
		t.Fatal("capture must be back in hotword mode before recognition")
	}
	if src.begins != 1 || src.ends != 1 {
		t.Fatalf("begin/end = %d/%d", src.begins, src.ends)
	}
	if got.Duration != 29*64*time.Millisecond {
		t.Fatalf("duration = %v", got.Duration)
	}
}

func TestRecorderSilenceCounterResetsOnSpeech(t *testing.T) {
	src := &scriptedSource{}
	src.chunks = append(repeat(chunkOf(0.001), 20), chunkOf(0.3))
	src.chunks = append(src.chunks, repeat(chunkOf(0.001), 30)...)
	got := NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "", nil
	}), defaultRule).RecordQuestion(context.Background())
	if got.Stop != StopSilence || got.Chunks != 20+1+24 {
		t.Fatalf("stop=%s chunks=%d", got.Stop, got.Chunks)
	}
}

func TestRecorderBoundedByMaxDuration(t *testing.T) {
	src := &scriptedSource{chunks: repeat(chunkOf(0.5), 100)}
	rule := defaultRule
	rule.MaxDuration = 640 * time.Millisecond
	got := NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "x", nil
	}), rule).RecordQuestion(context.Background())
	if got.Stop != StopMaxLength || got.Chunks != 10 {
		t.Fatalf("stop=%s chunks=%d", got.Stop, got.Chunks)
	}
}

func TestRecorderRecognitionFailureIsEmptyQuestion(t *testing.T) {
	src := &scriptedSource{chunks: repeat(chunkOf(0.001), 30)}
	boom := errors.New("model crashed")
	got := NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "ignored", boom
	}), defaultRule).RecordQuestion(context.Background())
	if got.Text != "" || !errors.Is(got.Err, boom) {
		t.Fatalf("text=%q err=%v", got.Text, got.Err)
	}
	if src.isRecording() || src.ends != 1 {
		t.Fatal("capture not restored after recognition failure")
	}
}

func TestRecorderStalledSourceEndsByWallClock(t *testing.T) {
	src := &scriptedSource{}
	rule := RecorderConfig{SilenceThreshold: 0.01, SilenceDuration: time.Second, MaxDuration: 20 * time.Millisecond, StallGrace: 10 * time.Millisecond}
	called := false
	got := NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		called = true
		return "", nil
	}), rule).RecordQuestion(context.Background())
	if got.Stop != StopStalled || got.Chunks != 0 {
		t.Fatalf("stop=%s chunks=%d", got.Stop, got.Chunks)
	}
	if called {
		t.Fatal("empty clip must not reach the recognizer")
	}
	if src.isRecording() {
		t.Fatal("capture not restored")
	}
}

func TestRecorderCancelledContext(t *testing.T) {
	src := &scriptedSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "", nil
	}), defaultRule).RecordQuestion(ctx)
	if got.Stop != StopCancelled || src.isRecording() {
		t.Fatalf("stop=%s recording=%v", got.Stop, src.isRecording())
	}
}

func TestRecorderLogsClipLength(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logging.SetLogger(zap.New(core).Sugar())
	defer logging.SetLogger(nil)

	src := &scriptedSource{chunks: repeat(chunkOf(0.5), 100)}
	rule := defaultRule
	rule.MaxDuration = 640 * time.Millisecond
	NewQuestionRecorder(src, RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "x", nil
	}), rule).RecordQuestion(context.Background())

	entries := logs.FilterMessage("question recorded").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["samples"] != int64(10*1024) || fields["duration_ms"] != int64(640) {
		t.Fatalf("fields = %v", fields)
	}
}
