package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

// WhisperClient posts clips as 16-bit WAV to a whisper-style HTTP endpoint
// that answers with JSON {"text": "..."}.
type WhisperClient struct {
	URL      string
	Language string
	Client   *http.Client
	Retry    RetryPolicy
}

// NewWhisperClient applies the language as a query parameter and the
// default retry policy (3 attempts, 1 s initial backoff).
func NewWhisperClient(rawURL, language string, timeout time.Duration) (*WhisperClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid whisper url %q", rawURL)
	}
	if language != "" {
		q := u.Query()
		q.Set("language", language)
		u.RawQuery = q.Encode()
	}
	return &WhisperClient{
		URL:      u.String(),
		Language: language,
		Client:   &http.Client{},
		Retry:    RetryPolicy{Attempts: 3, Backoff: time.Second, Timeout: timeout},
	}, nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *WhisperClient) Transcribe(ctx context.Context, clip audio.Frame) (string, error) {
	if clip.Empty() {
		return "", nil
	}
	wav := audio.EncodeWAV(clip)
	sent := time.Now()
	reply, err := PostWithRetries(ctx, w.Client, w.URL, "audio/wav", wav, nil, w.Retry)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	if reply.Status >= 300 {
		return "", fmt.Errorf("whisper returned status %d", reply.Status)
	}
	var out whisperResponse
	if err := json.Unmarshal(reply.Body, &out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	logging.DebugwCtx(ctx, "STT response received",
		"stt_latency_ms", time.Since(sent).Milliseconds(),
		"stt_server_ms", reply.Header.Get("X-Processing-Time-ms"),
		"bytes", len(wav))
	return strings.TrimSpace(out.Text), nil
}
