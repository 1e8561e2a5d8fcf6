package observe

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/askcam-lab/internal/assistant"
	"github.com/askcam-lab/internal/voice"
)

// Observer records coordinator events into Metrics.
type Observer struct {
	M *Metrics
}

var _ assistant.Observer = Observer{}

func (o Observer) PhaseChanged(ch assistant.PhaseChange) {
	o.M.PhaseChanges.Add(context.Background(), 1, metric.WithAttributes(Attr("phase", ch.To.String())))
}

func (o Observer) HotwordPolled(det voice.Detection, matched bool) {
	ctx := context.Background()
	o.M.HotwordPolls.Add(ctx, 1)
	if det.Recognize > 0 {
		o.M.RecognizeDuration.Record(ctx, seconds(det.Recognize), metric.WithAttributes(Attr("stage", "hotword")))
	}
	if matched {
		o.M.HotwordTriggers.Add(ctx, 1)
	}
}

func (o Observer) QuestionCaptured(ctx context.Context, _ assistant.Turn, rec voice.Recording) {
	o.M.RecordDuration.Record(ctx, seconds(rec.Record), metric.WithAttributes(Attr("stop", string(rec.Stop))))
	if rec.Recognize > 0 {
		o.M.RecognizeDuration.Record(ctx, seconds(rec.Recognize), metric.WithAttributes(Attr("stage", "question")))
	}
}

func (o Observer) TurnCompleted(ctx context.Context, turn assistant.Turn) {
	attrs := metric.WithAttributes(Attr("trigger", string(turn.Trigger)), Attr("outcome", string(turn.Outcome)))
	o.M.Turns.Add(ctx, 1, attrs)
	if turn.Answering > 0 {
		o.M.AnswerDuration.Record(ctx, seconds(turn.Answering))
	}
	if turn.Speaking > 0 {
		o.M.SpeakDuration.Record(ctx, seconds(turn.Speaking))
	}
	if !turn.StartedAt.IsZero() && turn.EndedAt.After(turn.StartedAt) {
		o.M.TurnDuration.Record(ctx, seconds(turn.EndedAt.Sub(turn.StartedAt)), attrs)
	}
}
