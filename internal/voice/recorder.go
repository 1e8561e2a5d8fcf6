package voice

import (
	"context"
	"sync"
	"time"

	"github.com/askcam-lab/internal/audio"
	"github.com/askcam-lab/internal/logging"
)

// ChunkSource is the recording side of the capture bridge.
type ChunkSource interface {
	BeginRecording() <-chan audio.Chunk
	EndRecording()
	SampleRate() int
	Channels() int
}

// RecorderConfig holds the silence rule.
type RecorderConfig struct {
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MaxDuration      time.Duration
	// StallGrace is how long past MaxDuration the recorder waits for a
	// source that stopped delivering chunks. Zero means one second.
	StallGrace time.Duration
}

// StopReason says why a recording ended.
type StopReason string

const (
	StopSilence   StopReason = "silence"
	StopMaxLength StopReason = "max_duration"
	StopStalled   StopReason = "stalled"
	StopCancelled StopReason = "cancelled"
)

// Recording is a finished question capture.
type Recording struct {
	Text      string
	Clip      audio.Frame
	Chunks    int
	Duration  time.Duration
	Stop      StopReason
	Record    time.Duration
	Recognize time.Duration
	Err       error
}

// QuestionRecorder captures one spoken question. It does not guard against
// concurrent use; the coordinator guarantees one recording per turn.
type QuestionRecorder struct {
	src ChunkSource
	rec Recognizer
	cfg RecorderConfig
}

func NewQuestionRecorder(src ChunkSource, rec Recognizer, cfg RecorderConfig) *QuestionRecorder {
	if cfg.StallGrace <= 0 {
		cfg.StallGrace = time.Second
	}
	return &QuestionRecorder{src: src, rec: rec, cfg: cfg}
}

// RecordQuestion switches capture to recording mode, collects chunks until
// the silent tail reaches SilenceDuration or the clip reaches MaxDuration,
// restores hotword mode and recognizes the clip. A recognition error yields
// an empty question with Err set.
func (q *QuestionRecorder) RecordQuestion(ctx context.Context) Recording {
	start := time.Now()
	chunks, stop := q.collect(ctx)
	out := Recording{Chunks: len(chunks), Stop: stop, Record: time.Since(start)}
	out.Clip = audio.Concat(chunks, q.src.SampleRate(), q.src.Channels())
	out.Duration = out.Clip.Duration()

	fields := []interface{}{"stop", stop, "chunks", out.Chunks}
	fields = append(fields, logging.ChunkFields(len(out.Clip.Samples)/max(out.Clip.Channels, 1), out.Clip.SampleRate)...)
	logging.InfowCtx(ctx, "question recorded", fields...)
	if out.Clip.Empty() {
		return out
	}
	if out.Clip.Channels > 1 {
		out.Clip = audio.Frame{Samples: audio.Mono(out.Clip.Samples, out.Clip.Channels), SampleRate: out.Clip.SampleRate, Channels: 1}
	}
	out.Text, out.Recognize, out.Err = transcribe(ctx, q.rec, out.Clip)
	if out.Err != nil {
		logging.WarnwCtx(ctx, "question recognition failed; treating as empty", "err", out.Err)
	}
	return out
}

func (q *QuestionRecorder) collect(ctx context.Context) ([]audio.Chunk, StopReason) {
	ch := q.src.BeginRecording()
	var once sync.Once
	restore := func() { once.Do(q.src.EndRecording) }
	defer restore()

	guard := time.NewTimer(q.cfg.MaxDuration + q.cfg.StallGrace)
	defer guard.Stop()

	var (
		chunks  []audio.Chunk
		elapsed time.Duration
		silent  time.Duration
	)
	for {
		select {
		case <-ctx.Done():
			return chunks, StopCancelled
		case <-guard.C:
			logging.WarnwCtx(ctx, "audio source stalled during question", "chunks", len(chunks))
			return chunks, StopStalled
		case c := <-ch:
			chunks = append(chunks, c)
			d := c.Duration()
			elapsed += d
			if c.RMS < q.cfg.SilenceThreshold {
				silent += d
			} else {
				silent = 0
			}
			if silent >= q.cfg.SilenceDuration {
				restore()
				return chunks, StopSilence
			}
			if elapsed >= q.cfg.MaxDuration {
				restore()
				return chunks, StopMaxLength
			}
		}
	}
}
