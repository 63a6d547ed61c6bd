package flow

import (
	"errors"
	"fmt"
	"time"
)

const NotApplicable = "N/A"

var (
	ErrAlreadyCompleted = errors.New("flow already completed")
	ErrAlreadyActive    = errors.New("flow already active")
	ErrNoActiveFlow     = errors.New("no active flow")
	ErrDisabled         = errors.New("flow disabled")

	ErrInvalidStepInput = errors.New("invalid step input")
	ErrChoiceRequired   = fmt.Errorf("%w: use the provided options", ErrInvalidStepInput)
	ErrUnknownChoice    = fmt.Errorf("%w: unknown option", ErrInvalidStepInput)
	ErrAnswerRequired   = fmt.Errorf("%w: this question is required", ErrInvalidStepInput)
	ErrPatternMismatch  = fmt.Errorf("%w: answer does not match the expected format", ErrInvalidStepInput)
	ErrStaleInput       = fmt.Errorf("%w: answer is for another question", ErrInvalidStepInput)
)

// State is the durable per-identity record. Disabled freezes StepIndex.
type State struct {
	Identity   string            `json:"identity"`
	RunID      string            `json:"run_id,omitempty"`
	StepIndex  int               `json:"step"`
	Answers    map[string]string `json:"answers"`
	Data       map[string]string `json:"data,omitempty"`
	StartedAt  time.Time         `json:"start_time"`
	MessageRef string            `json:"message_id,omitempty"`
	Disabled   bool              `json:"disabled,omitempty"`
}

func (s State) normalized() State {
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	if s.Data == nil {
		s.Data = make(map[string]string)
	}
	return s
}

// Started reports whether the record belongs to a flow that actually began, as
// opposed to a placeholder created when staff disabled an idle ticket.
func (s State) Started() bool {
	return !s.StartedAt.IsZero()
}

type Input struct {
	Text     string
	Choice   string
	StepID   string
	IsChoice bool
}

func TextInput(text string) Input {
	return Input{Text: text}
}

func ChoiceInput(stepID, value string) Input {
	return Input{Choice: value, StepID: stepID, IsChoice: true}
}

type Prompt struct {
	Flow        string
	StepID      string
	Index       int
	Total       int
	Text        string
	Placeholder string
	Kind        Kind
	Choices     []Choice
	Required    bool
}

type Answer struct {
	StepID string
	Prompt string
	Value  string
}

type Completion struct {
	Flow        string
	Identity    string
	RunID       string
	Answers     []Answer
	Data        map[string]string
	StartedAt   time.Time
	CompletedAt time.Time
}

func (c Completion) AnswerMap() map[string]string {
	out := make(map[string]string, len(c.Answers))
	for _, a := range c.Answers {
		out[a.StepID] = a.Value
	}
	return out
}

type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomePrompt
	OutcomeCompleted
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePrompt:
		return "prompt"
	case OutcomeCompleted:
		return "completed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// Outcome is the tagged result of an engine operation. Reason is set for
// Rejected and Ignored outcomes; Prompt is the re-prompt on rejection.
type Outcome struct {
	Kind       OutcomeKind
	Prompt     *Prompt
	Completion *Completion
	Recorded   *Answer
	Reason     error
	State      State
}
