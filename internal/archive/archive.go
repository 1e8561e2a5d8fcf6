// Package archive keeps a record of each turn on disk: the question clip,
// the spoken reply and a JSON sidecar with the text and timings.
package archive

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
	"github.com/askcam-lab/internal/voice"
)

// Archive is an assistant.Observer and a voice.ReplySaver. Writes happen
// on the calling goroutine; failures are logged and never reach the turn.
type Archive struct {
	assistant.NopObserver
	sidecars *Sidecars
}

func New(dir string, locking bool) (*Archive, error) {
	sc := NewSidecars(dir, locking)
	if sc == nil {
		return nil, errors.New("archive: dir is required")
	}
	return &Archive{sidecars: sc}, nil
}

// Sidecars exposes the sidecar store.
func (a *Archive) Sidecars() *Sidecars { return a.sidecars }

func (a *Archive) QuestionCaptured(ctx context.Context, turn assistant.Turn, rec voice.Recording) {
	fields := map[string]any{
		"trigger":      string(turn.Trigger),
		"hotword_text": turn.HotwordText,
		"question":     rec.Text,
		"stop_reason":  string(rec.Stop),
		"chunks":       rec.Chunks,
		"duration_ms":  rec.Duration.Milliseconds(),
		"record_ms":    rec.Record.Milliseconds(),
		"recognize_ms": rec.Recognize.Milliseconds(),
	}
	if rec.Err != nil {
		fields["recognize_error"] = rec.Err.Error()
	}
	path, err := a.sidecars.Upsert(turn.ID, fields)
	if err != nil {
		logging.WarnwCtx(ctx, "archive: failed to write sidecar", "err", err)
		return
	}
	if rec.Clip.Empty() {
		return
	}
	wavPath := strings.TrimSuffix(path, ".json") + "_question.wav"
	if err := SaveFileAtomic(wavPath, audio.EncodeWAV(rec.Clip), 0o644); err != nil {
		logging.WarnwCtx(ctx, "archive: failed to save question audio", "path", wavPath, "err", err)
		return
	}
	if err := a.sidecars.Merge(turn.ID, map[string]any{"wav_path": wavPath, "sample_rate": rec.Clip.SampleRate}); err != nil {
		logging.WarnwCtx(ctx, "archive: failed to update sidecar", "err", err)
	}
}

func (a *Archive) TurnCompleted(ctx context.Context, turn assistant.Turn) {
	fields := map[string]any{
		"trigger":      string(turn.Trigger),
		"question":     turn.Question,
		"answer":       turn.Answer,
		"outcome":      string(turn.Outcome),
		"has_frame":    turn.HasFrame,
		"answer_ms":    turn.Answering.Milliseconds(),
		"speak_ms":     turn.Speaking.Milliseconds(),
		"started_at":   turn.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": turn.EndedAt.UTC().Format(time.RFC3339Nano),
	}
	if turn.Err != "" {
		fields["error"] = turn.Err
	}
	if _, err := a.sidecars.Upsert(turn.ID, fields); err != nil {
		logging.WarnwCtx(ctx, "archive: failed to update sidecar", "err", err)
	}
}

// SaveReply stores synthesized speech for the turn whose correlation id is
// on ctx. Without one the reply is dropped.
func (a *Archive) SaveReply(ctx context.Context, wav []byte) error {
	cid := logging.CorrelationID(ctx)
	if cid == "" {
		return nil
	}
	path, err := a.sidecars.Upsert(cid, nil)
	if err != nil {
		return err
	}
	wavPath := strings.TrimSuffix(path, ".json") + "_reply.wav"
	if err := SaveFileAtomic(wavPath, wav, 0o644); err != nil {
		return err
	}
	return a.sidecars.Merge(cid, map[string]any{"reply_wav_path": wavPath})
}
