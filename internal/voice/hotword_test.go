package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/askcam-lab/internal/audio"
)

type fixedText string

func (f fixedText) Transcribe(ctx context.Context, clip audio.Frame) (string, error) {
	return string(f), nil
}

func TestPollOnceSubstringSemantics(t *testing.T) {
	ring := audio.NewRing(testRate * 2)
	ring.Write(make([]float32, testRate))
	capture := audio.NewCapture(ring, testRate, 1, 4)
	triggers := NewTriggerSet([]string{"hey"})

	cases := []struct {
		text string
		want bool
	}{
		{"hey there", true},
		{"heyyou", true},
		{"he y", false},
		{"  HEY  ", true},
		{"hello", false},
		{"", false},
	}
	for _, tc := range cases {
		d := NewHotwordDetector(capture, fixedText(tc.text), triggers, time.Second)
		det, got := d.PollOnce(context.Background())
		if got != tc.want {
			t.Errorf("PollOnce(%q) = %v, want %v", tc.text, got, tc.want)
		}
		if got && det.Phrase != "hey" {
			t.Errorf("phrase = %q", det.Phrase)
		}
	}
}

func TestPollOnceUsesAvailableHistoryOnUnderrun(t *testing.T) {
	ring := audio.NewRing(testRate * 2)
	var gotLen int
	rec := RecognizerFunc(func(ctx context.Context, clip audio.Frame) (string, error) {
		gotLen = len(clip.Samples)
		return "hi", nil
	})
	d := NewHotwordDetector(audio.NewCapture(ring, testRate, 1, 4), rec, NewTriggerSet([]string{"hi"}), 1500*time.Millisecond)

	if _, ok := d.PollOnce(context.Background()); ok || gotLen != 0 {
		t.Fatal("empty history should skip recognition")
	}
	ring.Write(make([]float32, 4000))
	if _, ok := d.PollOnce(context.Background()); !ok || gotLen != 4000 {
		t.Fatalf("underrun poll ok=%v len=%d", ok, gotLen)
	}
	ring.Write(make([]float32, 30000))
	d.PollOnce(context.Background())
	if gotLen != 24000 {
		t.Fatalf("full window len = %d, want 24000", gotLen)
	}
}

func TestPollOnceRecognizerErrorIsNoTrigger(t *testing.T) {
	ring := audio.NewRing(testRate)
	ring.Write(make([]float32, 100))
	rec := RecognizerFunc(func(context.Context, audio.Frame) (string, error) {
		return "hey", errors.New("offline")
	})
	d := NewHotwordDetector(audio.NewCapture(ring, testRate, 1, 4), rec, NewTriggerSet([]string{"hey"}), time.Second)
	det, ok := d.PollOnce(context.Background())
	if ok || det.Err == nil {
		t.Fatalf("ok=%v err=%v", ok, det.Err)
	}
}

func TestTriggerSetNormalizesPhrases(t *testing.T) {
	ts := NewTriggerSet([]string{" Hey Camera ", "", "OK"})
	if got := ts.Phrases(); len(got) != 2 || got[0] != "hey camera" || got[1] != "ok" {
		t.Fatalf("phrases = %q", got)
	}
	if p, ok := ts.Match("  well HEY Camera, what's that "); !ok || p != "hey camera" {
		t.Fatalf("match = %q %v", p, ok)
	}
}

func TestTriggerSetKeepsInternalWhitespace(t *testing.T) {
	ts := NewTriggerSet([]string{"hey camera"})
	for _, text := range []string{"hey   camera", "hey\tcamera"} {
		if p, ok := ts.Match(text); ok {
			t.Errorf("Match(%q) = %q, want no match", text, p)
		}
	}
	if NormalizeText("What  IS\tthis ") != "what is this" {
		t.Fatal("question text should still collapse whitespace")
	}
}
