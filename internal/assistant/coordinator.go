// Package assistant runs the hotword, question, answer and speech cycle.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/askcam-lab/internal/logging"
	"github.com/askcam-lab/internal/vision"
	"github.com/askcam-lab/internal/voice"
)

var (
	// ErrBusy is returned by Ask while another turn owns the coordinator.
	ErrBusy = errors.New("assistant: a turn is already in progress")
	// ErrNotRunning is returned by Ask before Run has started or after it
	// returned.
	ErrNotRunning = errors.New("assistant: coordinator is not running")
)

const (
	noQuestionAnswer = "Sorry, I didn't catch the question."
	noFrameAnswer    = "No image from camera!"
)

type Detector interface {
	PollOnce(ctx context.Context) (voice.Detection, bool)
}

type Recorder interface {
	RecordQuestion(ctx context.Context) voice.Recording
}

type Frames interface {
	Get() (vision.Frame, bool)
}

// HistoryResetter drops buffered hotword audio so speech from the finished
// turn cannot retrigger the detector.
type HistoryResetter interface {
	ResetHistory()
}

type Options struct {
	PollInterval time.Duration
	Detector     Detector
	Recorder     Recorder
	Frames       Frames
	Answerer     vision.Answerer
	Synth        voice.Synthesizer
	History      HistoryResetter // optional
	Observers    []Observer
	NewID        func() string
}

// Coordinator owns the interaction state. All phase changes go through
// transitionLocked under mu; blocking collaborator calls happen outside it.
type Coordinator struct {
	opts Options

	mu     sync.Mutex
	st     interaction
	runCtx context.Context

	turns sync.WaitGroup
	polls atomic.Uint64
}

func New(opts Options) (*Coordinator, error) {
	var errs []error
	if opts.Detector == nil {
		errs = append(errs, errors.New("detector is required"))
	}
	if opts.Recorder == nil {
		errs = append(errs, errors.New("recorder is required"))
	}
	if opts.Frames == nil {
		errs = append(errs, errors.New("frame source is required"))
	}
	if opts.Answerer == nil {
		errs = append(errs, errors.New("answerer is required"))
	}
	if opts.Synth == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	c := &Coordinator{opts: opts}
	c.st.updatedAt = time.Now()
	return c, nil
}

// Snapshot returns a copy of the interaction state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.phase
}

// Polls reports how many hotword polls have run.
func (c *Coordinator) Polls() uint64 { return c.polls.Load() }

// Run polls for the hotword every PollInterval until ctx is cancelled, then
// waits for the in-flight turn to finish. Turns inherit ctx.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.runCtx != nil {
		c.mu.Unlock()
		return errors.New("assistant: already running")
	}
	c.runCtx = ctx
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.runCtx = nil
		c.mu.Unlock()
		c.turns.Wait()
	}()

	logging.Infow("assistant running", "poll_interval", c.opts.PollInterval.String())
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Infow("assistant stopping", "phase", c.Phase().String())
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	if !c.beginPoll() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("hotword poll panicked", "panic", fmt.Sprint(r))
		}
	}()
	det, matched := c.opts.Detector.PollOnce(ctx)
	c.polls.Add(1)
	c.notify(func(o Observer) { o.HotwordPolled(det, matched) })
	if !matched || ctx.Err() != nil {
		return
	}
	turn, turnCtx, err := c.claimTurn(TriggerHotword, det.Text)
	if err != nil {
		// An Ask claimed the turn between the poll and now.
		logging.Debugw("hotword ignored", "text", det.Text, "error", err)
		return
	}
	logging.InfowCtx(turnCtx, "hotword detected", "text", det.Text, "phrase", det.Phrase)
	c.listen(turnCtx, turn)
}

// beginPoll decides, in one critical section, whether a poll may run. It
// moves Idle to ListeningHotword and refuses while a turn is in flight.
func (c *Coordinator) beginPoll() bool {
	c.mu.Lock()
	var changes []PhaseChange
	switch c.st.phase {
	case PhaseListeningHotword:
	case PhaseIdle:
		ch, err := c.transitionLocked(PhaseListeningHotword, "poll")
		if err != nil {
			c.mu.Unlock()
			return false
		}
		changes = append(changes, ch)
	default:
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.publish(changes)
	return true
}

// claimTurn moves the coordinator into ListeningQuestion for a new turn and
// registers the turn with Run. Idle is first advanced to ListeningHotword so
// every trigger follows the same path through the table.
func (c *Coordinator) claimTurn(trigger Trigger, hotwordText string) (Turn, context.Context, error) {
	c.mu.Lock()
	if c.runCtx == nil {
		c.mu.Unlock()
		return Turn{}, nil, ErrNotRunning
	}
	if c.st.phase.Busy() {
		c.mu.Unlock()
		return Turn{}, nil, ErrBusy
	}
	var changes []PhaseChange
	id := c.opts.NewID()
	c.st.turnID = id
	if c.st.phase == PhaseIdle {
		ch, _ := c.transitionLocked(PhaseListeningHotword, string(trigger))
		changes = append(changes, ch)
	}
	ch, err := c.transitionLocked(PhaseListeningQuestion, string(trigger))
	if err != nil {
		c.mu.Unlock()
		return Turn{}, nil, err
	}
	changes = append(changes, ch)
	c.turns.Add(1)
	runCtx := c.runCtx
	c.mu.Unlock()

	c.publish(changes)
	turn := Turn{ID: id, Trigger: trigger, HotwordText: hotwordText, StartedAt: time.Now()}
	return turn, logging.WithFields(runCtx, logging.TurnFields(id, string(trigger))...), nil
}

// listen records the question in the hotword goroutine; no poll runs while
// it does because the phase is ListeningQuestion.
func (c *Coordinator) listen(ctx context.Context, turn Turn) {
	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		if r := recover(); r != nil {
			logging.Errorw("question capture panicked", "correlation_id", turn.ID, "panic", fmt.Sprint(r))
			c.abort(ctx, turn, fmt.Sprint(r), nil)
		}
	}()
	rec := c.opts.Recorder.RecordQuestion(ctx)
	turn.Question = rec.Text
	turn.StopReason = rec.Stop
	turn.Record = rec.Record
	turn.Recognize = rec.Recognize
	if rec.Err != nil {
		turn.Err = rec.Err.Error()
	}
	logging.InfowCtx(ctx, "question captured",
		"question", rec.Text, "stop", string(rec.Stop), "clip_ms", rec.Duration.Milliseconds())
	c.notify(func(o Observer) { o.QuestionCaptured(ctx, turn, rec) })
	handedOff = true
	c.process(ctx, turn, nil)
}

// process snapshots the latest frame, stores the question and starts the
// turn worker. It owns the turn registration taken by claimTurn: either the
// worker releases it or process does on failure.
func (c *Coordinator) process(ctx context.Context, turn Turn, result chan<- Turn) {
	started := false
	defer func() {
		if started {
			return
		}
		if r := recover(); r != nil {
			logging.Errorw("question processing panicked", "correlation_id", turn.ID, "panic", fmt.Sprint(r))
			c.abort(ctx, turn, fmt.Sprint(r), result)
		}
	}()
	frame, hasFrame := c.opts.Frames.Get()
	turn.HasFrame = hasFrame

	c.mu.Lock()
	ch, err := c.transitionLocked(PhaseProcessingQuestion, "question")
	if err != nil {
		c.mu.Unlock()
		logging.Errorw("cannot process question", "correlation_id", turn.ID, "error", err)
		c.abort(ctx, turn, err.Error(), result)
		return
	}
	q := turn.Question
	c.st.pendingQuestion = &q
	c.st.pendingAnswer = nil
	c.st.frameTaken = hasFrame
	c.st.lastQuestion = q
	c.st.lastAnswer = ""
	c.mu.Unlock()
	c.publish([]PhaseChange{ch})

	started = true
	go c.runTurn(ctx, turn, frame, result)
}

// abort ends a turn that never reached its worker.
func (c *Coordinator) abort(ctx context.Context, turn Turn, reason string, result chan<- Turn) {
	turn.Outcome = OutcomePanicked
	turn.Err = reason
	c.forceIdle("aborted")
	c.turns.Done()
	c.completed(ctx, turn, result)
}

func (c *Coordinator) runTurn(ctx context.Context, turn Turn, frame vision.Frame, result chan<- Turn) {
	defer c.turns.Done()
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("turn panicked", "correlation_id", turn.ID, "panic", fmt.Sprint(r))
			turn.Outcome = OutcomePanicked
			turn.Err = fmt.Sprint(r)
			c.forceIdle("panic")
			c.completed(ctx, turn, result)
		}
	}()

	question := c.takeQuestion()
	start := time.Now()
	answer, outcome, err := c.answer(ctx, question, frame, turn.HasFrame)
	turn.Answering = time.Since(start)
	turn.Answer = answer
	turn.Outcome = outcome
	if err != nil {
		turn.Err = err.Error()
		logging.WarnwCtx(ctx, "answer failed", "error", err)
	}

	c.mu.Lock()
	ch, terr := c.transitionLocked(PhaseSpeaking, string(outcome))
	if terr == nil {
		c.st.pendingAnswer = &answer
		c.st.lastAnswer = answer
	}
	c.mu.Unlock()
	if terr != nil {
		panic(terr)
	}
	c.publish([]PhaseChange{ch})

	start = time.Now()
	if err := c.opts.Synth.Speak(ctx, answer); err != nil {
		turn.Speaking = time.Since(start)
		logging.WarnwCtx(ctx, "speech failed", "error", err)
		turn.Answer = fmt.Sprintf("%s [speech error: %v]", answer, err)
		if turn.Outcome == OutcomeAnswered {
			turn.Outcome = OutcomeSpeechFailed
			turn.Err = err.Error()
		}
	} else {
		turn.Speaking = time.Since(start)
	}
	if c.opts.History != nil {
		c.opts.History.ResetHistory()
	}

	c.mu.Lock()
	ch, terr = c.transitionLocked(PhaseIdle, "spoken")
	if terr == nil {
		c.st.lastAnswer = turn.Answer
		c.clearPendingLocked()
	}
	c.mu.Unlock()
	if terr != nil {
		panic(terr)
	}
	c.publish([]PhaseChange{ch})

	logging.InfowCtx(ctx, "turn complete",
		"outcome", string(turn.Outcome),
		"answer_ms", turn.Answering.Milliseconds(),
		"speak_ms", turn.Speaking.Milliseconds())
	c.completed(ctx, turn, result)
}

func (c *Coordinator) answer(ctx context.Context, question string, frame vision.Frame, hasFrame bool) (string, Outcome, error) {
	switch {
	case question == "":
		return noQuestionAnswer, OutcomeNoQuestion, nil
	case !hasFrame:
		return noFrameAnswer, OutcomeNoFrame, nil
	}
	answer, err := c.opts.Answerer.Answer(ctx, frame, question)
	if err != nil {
		return fmt.Sprintf("Sorry, I could not answer that: %v", err), OutcomeAnswerFailed, err
	}
	return answer, OutcomeAnswered, nil
}

// takeQuestion consumes the pending question.
func (c *Coordinator) takeQuestion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.pendingQuestion == nil {
		return ""
	}
	q := *c.st.pendingQuestion
	c.st.pendingQuestion = nil
	return q
}

func (c *Coordinator) completed(ctx context.Context, turn Turn, result chan<- Turn) {
	turn.EndedAt = time.Now()
	if turn.Outcome == OutcomePanicked && c.opts.History != nil {
		c.opts.History.ResetHistory()
	}
	c.notify(func(o Observer) { o.TurnCompleted(ctx, turn) })
	if result != nil {
		result <- turn
	}
}

// Ask runs a turn for a typed question. It claims the turn the same way a
// hotword does, skips recording and waits for the answer to be spoken.
// Cancelling ctx stops the wait but not the turn.
func (c *Coordinator) Ask(ctx context.Context, question string) (Turn, error) {
	question = voice.NormalizeText(question)
	turn, turnCtx, err := c.claimTurn(TriggerAsk, "")
	if err != nil {
		return Turn{}, err
	}
	turn.Question = question
	logging.InfowCtx(turnCtx, "question asked", "question", question)

	result := make(chan Turn, 1)
	c.process(turnCtx, turn, result)
	select {
	case t := <-result:
		return t, nil
	case <-ctx.Done():
		return turn, ctx.Err()
	}
}

func (c *Coordinator) transitionLocked(to Phase, reason string) (PhaseChange, error) {
	from := c.st.phase
	if !transitionValid(from, to) {
		return PhaseChange{}, &InvalidTransitionError{From: from, To: to}
	}
	now := time.Now()
	c.st.phase = to
	c.st.updatedAt = now
	if to == PhaseIdle {
		c.st.turns++
	}
	return PhaseChange{From: from, To: to, TurnID: c.st.turnID, Reason: reason, At: now}, nil
}

func (c *Coordinator) clearPendingLocked() {
	c.st.pendingQuestion = nil
	c.st.pendingAnswer = nil
	c.st.turnID = ""
}

// forceIdle walks the remaining transitions of the cycle back to Idle.
func (c *Coordinator) forceIdle(reason string) {
	c.mu.Lock()
	var changes []PhaseChange
	for c.st.phase != PhaseIdle {
		next := validTransitions[c.st.phase][0]
		ch, err := c.transitionLocked(next, reason)
		if err != nil {
			break
		}
		changes = append(changes, ch)
	}
	c.clearPendingLocked()
	c.mu.Unlock()
	c.publish(changes)
}

func (c *Coordinator) publish(changes []PhaseChange) {
	for _, ch := range changes {
		logging.Debugw("phase changed", "from", ch.From.String(), "to", ch.To.String(), "reason", ch.Reason)
		c.notify(func(o Observer) { o.PhaseChanged(ch) })
	}
}

// notify calls fn for each observer; an observer panic is logged and
// swallowed.
func (c *Coordinator) notify(fn func(Observer)) {
	for _, o := range c.opts.Observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Errorw("observer panicked", "observer", fmt.Sprintf("%T", o), "panic", fmt.Sprint(r))
				}
			}()
			fn(o)
		}()
	}
}
