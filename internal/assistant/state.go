package assistant

import (
	"fmt"
	"time"
)

// Phase is the coordinator's position in the turn cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListeningHotword
	PhaseListeningQuestion
	PhaseProcessingQuestion
	PhaseSpeaking
)

var phaseNames = [...]string{
	PhaseIdle:               "idle",
	PhaseListeningHotword:   "listening_hotword",
	PhaseListeningQuestion:  "listening_question",
	PhaseProcessingQuestion: "processing_question",
	PhaseSpeaking:           "speaking",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Busy reports whether a turn owns the phase. No hotword poll starts while
// the coordinator is busy.
func (p Phase) Busy() bool {
	return p != PhaseIdle && p != PhaseListeningHotword
}

// validTransitions is the complete turn cycle; every phase has exactly one
// successor.
var validTransitions = map[Phase][]Phase{
	PhaseIdle:               {PhaseListeningHotword},
	PhaseListeningHotword:   {PhaseListeningQuestion},
	PhaseListeningQuestion:  {PhaseProcessingQuestion},
	PhaseProcessingQuestion: {PhaseSpeaking},
	PhaseSpeaking:           {PhaseIdle},
}

func transitionValid(from, to Phase) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned for a transition outside the cycle.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return "invalid phase transition from " + e.From.String() + " to " + e.To.String()
}

// PhaseChange describes one transition.
type PhaseChange struct {
	From   Phase
	To     Phase
	TurnID string
	Reason string
	At     time.Time
}

// interaction is the single shared record behind Coordinator.mu.
type interaction struct {
	phase           Phase
	turnID          string
	pendingQuestion *string
	pendingAnswer   *string
	// frameTaken records whether the turn found a frame. The worker owns
	// the frame copy itself.
	frameTaken      bool

	lastQuestion string
	lastAnswer   string
	turns        uint64
	updatedAt    time.Time
}

// Snapshot is a copy of the interaction state for status readers.
type Snapshot struct {
	Phase        Phase     `json:"phase"`
	InfoText     string    `json:"info_text"`
	QuestionText string    `json:"question_text"`
	AnswerText   string    `json:"answer_text"`
	SpeakingText string    `json:"speaking_text,omitempty"`
	TurnID       string    `json:"turn_id,omitempty"`
	HasFrame     bool      `json:"has_frame"`
	Turns        uint64    `json:"turns"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *interaction) snapshot() Snapshot {
	var speaking string
	if s.phase == PhaseSpeaking && s.pendingAnswer != nil {
		speaking = *s.pendingAnswer
	}
	return Snapshot{
		Phase:        s.phase,
		InfoText:     s.infoText(),
		QuestionText: s.lastQuestion,
		AnswerText:   s.lastAnswer,
		SpeakingText: speaking,
		TurnID:       s.turnID,
		HasFrame:     s.frameTaken,
		Turns:        s.turns,
		UpdatedAt:    s.updatedAt,
	}
}

func (s *interaction) infoText() string {
	switch s.phase {
	case PhaseListeningHotword:
		return "Listening for hotword..."
	case PhaseListeningQuestion:
		return "Hotword detected, listening for your question..."
	case PhaseProcessingQuestion:
		if s.lastQuestion != "" {
			return fmt.Sprintf("Detected question: %q, thinking...", s.lastQuestion)
		}
		return "Thinking..."
	case PhaseSpeaking:
		return "Speaking the answer..."
	default:
		return "Idle"
	}
}
