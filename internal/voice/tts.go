package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

// ReplySaver stores synthesized audio for the turn carried by ctx.
type ReplySaver interface {
	SaveReply(ctx context.Context, wav []byte) error
}

// TTSClient synthesizes text with an external HTTP service that returns a
// WAV body, normalizes its gain and plays it.
type TTSClient struct {
	URL       string
	AuthToken string
	Client    *http.Client
	Retry     RetryPolicy
	Player    audio.Player
	Saver     ReplySaver
}

func NewTTSClient(url, token string, timeout time.Duration, player audio.Player) *TTSClient {
	return &TTSClient{
		URL:       url,
		AuthToken: token,
		Client:    &http.Client{},
		Retry:     RetryPolicy{Attempts: 2, Backoff: 200 * time.Millisecond, Timeout: timeout},
		Player:    player,
	}
}

// Synthesize returns the service's WAV rendition of text.
func (t *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if t == nil || t.URL == "" {
		return nil, fmt.Errorf("tts client not configured")
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	var header http.Header
	if t.AuthToken != "" {
		header = http.Header{"Authorization": {"Bearer " + t.AuthToken}}
	}
	reply, err := PostWithRetries(ctx, t.Client, t.URL, "application/json", body, header, t.Retry)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	if reply.Status >= 300 {
		logging.WarnwCtx(ctx, "tts: returned non-2xx", "status", reply.Status)
		return nil, fmt.Errorf("tts returned status %d", reply.Status)
	}
	return reply.Body, nil
}

// Speak synthesizes and plays text, returning after playback ends. Blank
// text is a no-op.
func (t *TTSClient) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	wav, err := t.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if t.Saver != nil {
		if err := t.Saver.SaveReply(ctx, wav); err != nil {
			logging.DebugwCtx(ctx, "tts: failed to save reply audio", "err", err)
		}
	}
	frame, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	frame.Samples = audio.Normalize(frame.Samples)
	if t.Player == nil {
		return nil
	}
	start := time.Now()
	if err := t.Player.Play(ctx, frame); err != nil {
		return fmt.Errorf("tts playback: %w", err)
	}
	logging.DebugwCtx(ctx, "tts: playback finished", "audio_ms", frame.Duration().Milliseconds(), "took_ms", time.Since(start).Milliseconds())
	return nil
}
