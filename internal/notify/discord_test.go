package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/askcam-lab/internal/assistant"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	ch   string
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = channelID
	f.sent = append(f.sent, content)
	return &discordgo.Message{Content: content}, nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestDiscordPostsCompletedTurns(t *testing.T) {
	fs := &fakeSender{}
	d := NewWithSender(fs, "chan-1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.TurnCompleted(ctx, assistant.Turn{Question: "what is this", Answer: "a red mug", Outcome: assistant.OutcomeAnswered})
	d.TurnCompleted(ctx, assistant.Turn{Outcome: assistant.OutcomePanicked})

	deadline := time.Now().Add(5 * time.Second)
	for len(fs.messages()) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("nothing posted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	msgs := fs.messages()
	if len(msgs) != 1 || msgs[0] != "**Q:** what is this\n**A:** a red mug" || fs.ch != "chan-1" {
		t.Fatalf("posted %q to %q", msgs, fs.ch)
	}
}

func TestFormatTurn(t *testing.T) {
	got := FormatTurn(assistant.Turn{Answer: "Sorry, I didn't catch the question.", Outcome: assistant.OutcomeNoQuestion})
	if !strings.Contains(got, "(not understood)") || !strings.HasSuffix(got, "_no_question_") {
		t.Fatalf("got %q", got)
	}
	long := FormatTurn(assistant.Turn{Question: "q", Answer: strings.Repeat("x", 3000)})
	if len(long) != maxMessageLen || !strings.HasSuffix(long, "...") {
		t.Fatalf("len = %d", len(long))
	}
}

func TestFormatTurnTruncatesOnRuneBoundary(t *testing.T) {
	got := FormatTurn(assistant.Turn{Question: "q", Answer: strings.Repeat("é", 1500)})
	if !utf8.ValidString(got) {
		t.Fatal("truncated message is not valid UTF-8")
	}
	if len(got) > maxMessageLen || !strings.HasSuffix(got, "é...") {
		t.Fatalf("len = %d, tail %q", len(got), got[len(got)-6:])
	}
	if truncate("aé", 2) != "a" || truncate("abc", 5) != "abc" {
		t.Fatal("truncate split a rune")
	}
}

func TestQueueFullDrops(t *testing.T) {
	d := NewWithSender(&fakeSender{}, "c")
	for i := 0; i < cap(d.queue)+3; i++ {
		d.TurnCompleted(context.Background(), assistant.Turn{Question: "q", Answer: "a"})
	}
	if _, dropped := d.Stats(); dropped != 3 {
		t.Fatalf("dropped = %d", dropped)
	}
}
