package assistant

import (
	"context"
	"time"

	"github.com/askcam-lab/internal/voice"
)

// Trigger names what started a turn.
type Trigger string

const (
	TriggerHotword Trigger = "hotword"
	TriggerAsk     Trigger = "ask"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeNoQuestion   Outcome = "no_question"
	OutcomeNoFrame      Outcome = "no_frame"
	OutcomeAnswerFailed Outcome = "answer_failed"
	OutcomeSpeechFailed Outcome = "speech_failed"
	OutcomePanicked     Outcome = "panicked"
)

// Turn is the record of one hotword-to-speech cycle.
type Turn struct {
	ID          string
	Trigger     Trigger
	HotwordText string
	Question    string
	Answer      string
	Outcome     Outcome
	Err         string
	HasFrame    bool
	StopReason  voice.StopReason

	StartedAt time.Time
	EndedAt   time.Time
	Record    time.Duration
	Recognize time.Duration
	Answering time.Duration
	Speaking  time.Duration
}

// Observer receives coordinator events. Calls are made without any
// coordinator lock held, from the goroutine that produced the event, so
// implementations must be quick or hand off work.
type Observer interface {
	PhaseChanged(change PhaseChange)
	HotwordPolled(det voice.Detection, matched bool)
	QuestionCaptured(ctx context.Context, turn Turn, rec voice.Recording)
	TurnCompleted(ctx context.Context, turn Turn)
}

// NopObserver implements Observer with no-ops; embed it to pick events.
type NopObserver struct{}

func (NopObserver) PhaseChanged(PhaseChange)                                 {}
func (NopObserver) HotwordPolled(voice.Detection, bool)                      {}
func (NopObserver) QuestionCaptured(context.Context, Turn, voice.Recording) {}
func (NopObserver) TurnCompleted(context.Context, Turn)                      {}
