package flow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

type Engine struct {
	def       *Definition
	guard     *Guard
	skipWord  string
	observers []Observer
	logger    *zap.Logger
}

type Option func(*Engine)

func WithClock(clock Clock) Option {
	return func(e *Engine) { e.guard.clock = clock }
}

func WithRunIDs(newID func() string) Option {
	return func(e *Engine) { e.guard.newID = newID }
}

func WithSkipWord(word string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(word) != "" {
			e.skipWord = strings.TrimSpace(word)
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observers = append(e.observers, observer)
		}
	}
}

func NewEngine(def *Definition, repo Repository, completed CompletedSet, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		def:      def,
		guard:    NewGuard(def.Name, repo, completed, logger),
		skipWord: "skip",
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Definition() *Definition { return e.def }

func (e *Engine) Guard() *Guard { return e.guard }

// Begin starts a flow and returns the first prompt. An empty definition
// completes on the spot.
func (e *Engine) Begin(ctx context.Context, identity string) Outcome {
	st, err := e.guard.BeginFlow(ctx, identity)
	if err != nil {
		return Outcome{Kind: OutcomeRejected, Reason: err, State: st}
	}
	e.emit(ctx, st, EventStarted, "")
	if e.def.Len() == 0 {
		return e.complete(ctx, st)
	}
	return Outcome{Kind: OutcomePrompt, Prompt: e.prompt(st, 0), State: st}
}

// Advance applies one input to the identity's current step. Exactly one load and
// one save happen per call; concurrent calls for the same identity race on the
// store and the last write wins.
func (e *Engine) Advance(ctx context.Context, identity string, in Input) Outcome {
	st, ok := e.guard.load(ctx, identity)
	if !ok {
		return Outcome{Kind: OutcomeIgnored, Reason: ErrNoActiveFlow}
	}
	if !allowed(phaseOf(st, ok), eventAdvance) {
		return Outcome{Kind: OutcomeIgnored, Reason: ErrDisabled, State: st}
	}
	if st.StepIndex >= e.def.Len() {
		e.logger.Warn("state beyond definition, completing", zap.String("flow", e.def.Name), zap.String("identity", identity), zap.Int("step", st.StepIndex))
		return e.complete(ctx, st)
	}

	current := st.StepIndex
	step := e.def.Steps[current]
	value, data, err := e.evaluate(step, in)
	if err != nil {
		e.emit(ctx, st, EventRejected, step.ID+": "+err.Error())
		return Outcome{Kind: OutcomeRejected, Reason: err, Prompt: e.prompt(st, current), State: st}
	}

	st.Answers[step.ID] = value
	for k, v := range data {
		st.Data[k] = v
	}
	recorded := &Answer{StepID: step.ID, Prompt: step.Prompt, Value: value}

	st.StepIndex = e.next(st, current)
	if st.StepIndex >= e.def.Len() {
		out := e.complete(ctx, st)
		out.Recorded = recorded
		return out
	}

	e.guard.save(ctx, st)
	e.emit(ctx, st, EventAdvanced, step.ID)
	return Outcome{Kind: OutcomePrompt, Prompt: e.prompt(st, st.StepIndex), Recorded: recorded, State: st}
}

// Current returns the live state and the prompt it is waiting on.
func (e *Engine) Current(ctx context.Context, identity string) (State, *Prompt, bool) {
	st, ok := e.guard.load(ctx, identity)
	if !ok {
		return State{}, nil, false
	}
	if st.StepIndex >= e.def.Len() {
		return st, nil, true
	}
	return st, e.prompt(st, st.StepIndex), true
}

func (e *Engine) AttachMessage(ctx context.Context, identity, ref string) {
	st, ok := e.guard.load(ctx, identity)
	if !ok {
		return
	}
	st.MessageRef = ref
	e.guard.save(ctx, st)
}

// Cancel drops the live state whatever step it is on.
func (e *Engine) Cancel(ctx context.Context, identity string) bool {
	st, ok := e.guard.load(ctx, identity)
	e.guard.delete(ctx, identity)
	if ok {
		e.emit(ctx, st, EventCancelled, "")
	}
	return ok
}

// Rollback is the compensating delete after a failed first send.
func (e *Engine) Rollback(ctx context.Context, identity string) {
	st, ok := e.guard.load(ctx, identity)
	e.guard.Rollback(ctx, identity)
	if ok {
		e.emit(ctx, st, EventRolledBack, "")
	}
}

// Disable freezes the identity. A frozen placeholder is stored when no flow is
// live so the gate also holds for flows started later. Reports whether anything changed.
func (e *Engine) Disable(ctx context.Context, identity string) bool {
	st, ok := e.guard.load(ctx, identity)
	if !allowed(phaseOf(st, ok), eventDisable) {
		return false
	}
	if !ok {
		st = State{Identity: identity}.normalized()
	}
	st.Disabled = true
	e.guard.save(ctx, st)
	e.emit(ctx, st, EventDisabled, "")
	return true
}

// Enable lifts a Disable. Placeholders are dropped, real flows resume at their frozen step.
func (e *Engine) Enable(ctx context.Context, identity string) bool {
	st, ok := e.guard.load(ctx, identity)
	if !allowed(phaseOf(st, ok), eventEnable) {
		return false
	}
	st.Disabled = false
	if st.Started() {
		e.guard.save(ctx, st)
	} else {
		e.guard.delete(ctx, identity)
	}
	e.emit(ctx, st, EventEnabled, "")
	return true
}

func (e *Engine) Reset(ctx context.Context, identity string) {
	e.guard.Reset(ctx, identity)
	e.emit(ctx, State{Identity: identity}, EventReset, "")
}

func (e *Engine) PromptFor(st State) *Prompt {
	if st.StepIndex < 0 || st.StepIndex >= e.def.Len() {
		return nil
	}
	return e.prompt(st, st.StepIndex)
}

// IsSkip reports whether text is the skip command.
func (e *Engine) IsSkip(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), e.skipWord)
}

func (e *Engine) SkipWord() string { return e.skipWord }

func (e *Engine) evaluate(step Step, in Input) (string, map[string]string, error) {
	if in.IsChoice {
		if step.Kind != KindChoice || (in.StepID != "" && in.StepID != step.ID) {
			return "", nil, ErrStaleInput
		}
		choice, ok := step.choice(in.Choice)
		if !ok {
			return "", nil, ErrUnknownChoice
		}
		return choice.Value, e.extract(step, choice.Value), nil
	}

	skip := e.IsSkip(in.Text)
	if step.Kind == KindChoice && !skip {
		return "", nil, ErrChoiceRequired
	}

	text := strings.TrimSpace(in.Text)
	if skip || text == "" {
		if step.Required {
			return "", nil, ErrAnswerRequired
		}
		return NotApplicable, nil, nil
	}
	if step.pattern != nil && !step.pattern.MatchString(text) {
		return "", nil, ErrPatternMismatch
	}
	return text, e.extract(step, text), nil
}

func (e *Engine) extract(step Step, value string) map[string]string {
	if step.extract == nil {
		return nil
	}
	return step.extract(value, step.Field)
}

// next picks the following step index. Steps jumped over by a branch record the
// collected value for their field, or N/A, so completion still has one answer per step.
func (e *Engine) next(st State, current int) int {
	step := e.def.Steps[current]
	target := current + 1
	for j, branch := range step.Branches {
		value := st.Data[branch.When]
		if value == "" {
			continue
		}
		if branch.Equals != "" && !strings.EqualFold(value, branch.Equals) {
			continue
		}
		target = step.gotos[j]
		break
	}
	for i := current + 1; i < target; i++ {
		skipped := e.def.Steps[i]
		value := NotApplicable
		if skipped.Field != "" && st.Data[skipped.Field] != "" {
			value = st.Data[skipped.Field]
		}
		st.Answers[skipped.ID] = value
	}
	return target
}

func (e *Engine) complete(ctx context.Context, st State) Outcome {
	answers := make([]Answer, 0, e.def.Len())
	for _, step := range e.def.Steps {
		value, ok := st.Answers[step.ID]
		if !ok {
			value = NotApplicable
		}
		answers = append(answers, Answer{StepID: step.ID, Prompt: step.Prompt, Value: value})
	}

	e.guard.MarkCompleted(ctx, st.Identity)
	e.guard.delete(ctx, st.Identity)
	e.emit(ctx, st, EventCompleted, "")

	data := make(map[string]string, len(st.Data))
	for k, v := range st.Data {
		data[k] = v
	}
	return Outcome{
		Kind: OutcomeCompleted,
		Completion: &Completion{
			Flow:        e.def.Name,
			Identity:    st.Identity,
			RunID:       st.RunID,
			Answers:     answers,
			Data:        data,
			StartedAt:   st.StartedAt,
			CompletedAt: e.guard.clock.Now(),
		},
		State: st,
	}
}

func (e *Engine) prompt(st State, index int) *Prompt {
	step := e.def.Steps[index]
	choices := make([]Choice, len(step.Choices))
	copy(choices, step.Choices)
	return &Prompt{
		Flow:        e.def.Name,
		StepID:      step.ID,
		Index:       index,
		Total:       e.def.Len(),
		Text:        step.Prompt,
		Placeholder: step.Placeholder,
		Kind:        step.Kind,
		Choices:     choices,
		Required:    step.Required,
	}
}

func (e *Engine) emit(ctx context.Context, st State, name, detail string) {
	fields := []zap.Field{zap.String("flow", e.def.Name), zap.String("identity", st.Identity), zap.String("event", name)}
	if st.RunID != "" {
		fields = append(fields, zap.String("run_id", st.RunID))
	}
	switch name {
	case EventAdvanced, EventRejected:
		e.logger.Debug("flow event", append(fields, zap.String("detail", detail))...)
	default:
		e.logger.Info("flow event", fields...)
	}

	ev := Event{Flow: e.def.Name, Identity: st.Identity, RunID: st.RunID, Name: name, Detail: detail}
	for _, observer := range e.observers {
		observer.FlowEvent(ctx, ev)
	}
}

// IsRejection reports whether err is one of the user-facing rejection reasons.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidStepInput) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrDisabled)
}
