// Package notify posts finished turns to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/logging"
)

// Discord rejects longer messages.
const maxMessageLen = 2000

// Sender is the REST call the notifier needs; *discordgo.Session has it.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord queues a "Q: / A:" message for every completed turn and posts
// them from Run, so the turn goroutine never waits on the network.
type Discord struct {
	assistant.NopObserver
	sender  Sender
	channel string
	queue   chan string
	dropped atomic.Int64
	sent    atomic.Int64
}

// NewDiscord creates a REST-only bot session; no gateway connection is
// opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordgo.New: %w", err)
	}
	return NewWithSender(s, channelID), nil
}

func NewWithSender(sender Sender, channelID string) *Discord {
	return &Discord{sender: sender, channel: channelID, queue: make(chan string, 32)}
}

func (d *Discord) TurnCompleted(ctx context.Context, turn assistant.Turn) {
	msg := FormatTurn(turn)
	if msg == "" {
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.dropped.Add(1)
		logging.WarnwCtx(ctx, "discord notify queue full; dropping message")
	}
}

// Run posts queued messages until ctx is cancelled.
func (d *Discord) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.queue:
			if _, err := d.sender.ChannelMessageSend(d.channel, msg); err != nil {
				logging.Warnw("discord notify failed", "channel", d.channel, "err", err)
				continue
			}
			d.sent.Add(1)
		}
	}
}

// Stats reports posted and dropped messages.
func (d *Discord) Stats() (sent, dropped int64) { return d.sent.Load(), d.dropped.Load() }

// FormatTurn renders a turn for chat. Turns without a question or answer
// render as "".
func FormatTurn(turn assistant.Turn) string {
	if turn.Question == "" && turn.Answer == "" {
		return ""
	}
	q := turn.Question
	if q == "" {
		q = "(not understood)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Q:** %s\n**A:** %s", q, turn.Answer)
	if turn.Outcome != assistant.OutcomeAnswered && turn.Outcome != "" {
		fmt.Fprintf(&b, "\n_%s_", turn.Outcome)
	}
	out := b.String()
	if len(out) > maxMessageLen {
		out = truncate(out, maxMessageLen-3) + "..."
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
