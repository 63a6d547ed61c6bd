package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioThreeStepFlow(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	out := h.engine.Begin(ctx, "user1")
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "age", out.Prompt.StepID)
	assert.Equal(t, KindChoice, out.Prompt.Kind)
	assert.Len(t, out.Prompt.Choices, 2)

	out = h.engine.Advance(ctx, "user1", TextInput("I am 20"))
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Reason, ErrChoiceRequired)
	assert.ErrorIs(t, out.Reason, ErrInvalidStepInput)
	assert.Equal(t, "age", out.Prompt.StepID)
	st, _, ok := h.engine.Current(ctx, "user1")
	require.True(t, ok)
	assert.Equal(t, 0, st.StepIndex)
	assert.Empty(t, st.Answers)

	out = h.engine.Advance(ctx, "user1", ChoiceInput("age", "18+"))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "name", out.Prompt.StepID)
	assert.Equal(t, map[string]string{"age": "18+"}, out.State.Answers)

	out = h.engine.Advance(ctx, "user1", TextInput("skip"))
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Reason, ErrAnswerRequired)
	st, _, _ = h.engine.Current(ctx, "user1")
	assert.Equal(t, 1, st.StepIndex)
	assert.NotContains(t, st.Answers, "name")

	out = h.engine.Advance(ctx, "user1", TextInput("  hello  "))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "notes", out.Prompt.StepID)
	require.NotNil(t, out.Recorded)
	assert.Equal(t, "hello", out.Recorded.Value)

	out = h.engine.Advance(ctx, "user1", TextInput("SKIP"))
	require.Equal(t, OutcomeCompleted, out.Kind)
	require.NotNil(t, out.Completion)
	assert.Equal(t, []Answer{
		{StepID: "age", Prompt: "Age?", Value: "18+"},
		{StepID: "name", Prompt: "Name?", Value: "hello"},
		{StepID: "notes", Prompt: "Notes?", Value: NotApplicable},
	}, out.Completion.Answers)
	assert.Equal(t, "run-1", out.Completion.RunID)

	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "user1"))
	assert.True(t, h.engine.Guard().HasCompleted(ctx, "user1"))
	assert.Equal(t, []string{EventStarted, EventRejected, EventAdvanced, EventRejected, EventAdvanced, EventCompleted}, h.events.names())
}

func TestScenarioSecondBeginIsAlreadyActive(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	first := h.engine.Begin(ctx, "user2")
	require.Equal(t, OutcomePrompt, first.Kind)

	second := h.engine.Begin(ctx, "user2")
	require.Equal(t, OutcomeRejected, second.Kind)
	assert.ErrorIs(t, second.Reason, ErrAlreadyActive)
	assert.Len(t, h.repo.All(ctx), 1)
}

func TestScenarioCompletedCannotRestart(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	h.engine.Guard().MarkCompleted(ctx, "user3")
	h.engine.Guard().MarkCompleted(ctx, "user3")

	out := h.engine.Begin(ctx, "user3")
	require.Equal(t, OutcomeRejected, out.Kind)
	assert.ErrorIs(t, out.Reason, ErrAlreadyCompleted)
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "user3"))

	ids, err := h.completed.Has(ctx, "user3")
	require.NoError(t, err)
	assert.True(t, ids)
}

func TestScenarioRollbackAllowsRetry(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	out := h.engine.Begin(ctx, "user4")
	require.Equal(t, OutcomePrompt, out.Kind)
	require.True(t, h.engine.Guard().HasActiveFlow(ctx, "user4"))

	// the first send failed
	h.engine.Rollback(ctx, "user4")
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "user4"))

	again := h.engine.Begin(ctx, "user4")
	assert.Equal(t, OutcomePrompt, again.Kind)
}

func TestAdvanceWithoutFlowIsIgnored(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	out := h.engine.Advance(context.Background(), "nobody", TextInput("hi"))
	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.ErrorIs(t, out.Reason, ErrNoActiveFlow)
	assert.Empty(t, h.events.names())
}

func TestChoiceGuards(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()
	h.engine.Begin(ctx, "u")

	out := h.engine.Advance(ctx, "u", ChoiceInput("age", "nope"))
	assert.ErrorIs(t, out.Reason, ErrUnknownChoice)

	out = h.engine.Advance(ctx, "u", ChoiceInput("name", "18+"))
	assert.ErrorIs(t, out.Reason, ErrStaleInput)

	out = h.engine.Advance(ctx, "u", TextInput("skip"))
	assert.ErrorIs(t, out.Reason, ErrAnswerRequired, "skip on a required choice step")

	st, _, _ := h.engine.Current(ctx, "u")
	assert.Equal(t, 0, st.StepIndex)
	assert.Empty(t, st.Answers)

	h.engine.Advance(ctx, "u", ChoiceInput("age", "u16"))
	out = h.engine.Advance(ctx, "u", ChoiceInput("age", "18+"))
	assert.ErrorIs(t, out.Reason, ErrStaleInput, "a choice for a text step is stale")
}

func TestOptionalChoiceSkipRecordsNA(t *testing.T) {
	steps := []Step{{ID: "pick", Prompt: "Pick", Kind: KindChoice, Required: false, Choices: []Choice{{Label: "A", Value: "a"}}}}
	h := newHarness(t, steps)
	ctx := context.Background()
	h.engine.Begin(ctx, "u")

	out := h.engine.Advance(ctx, "u", TextInput("skip"))
	require.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, map[string]string{"pick": NotApplicable}, out.Completion.AnswerMap())
}

func TestEmptyRequiredTextRejected(t *testing.T) {
	h := newHarness(t, scenarioSteps()[1:])
	ctx := context.Background()
	h.engine.Begin(ctx, "u")

	out := h.engine.Advance(ctx, "u", TextInput("   "))
	assert.ErrorIs(t, out.Reason, ErrAnswerRequired)
}

func TestEmptyDefinitionCompletesOnBegin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	out := h.engine.Begin(ctx, "u")
	require.Equal(t, OutcomeCompleted, out.Kind)
	assert.Empty(t, out.Completion.Answers)
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "u"))
	assert.True(t, h.engine.Guard().HasCompleted(ctx, "u"))
}

func TestStateBeyondDefinitionCompletes(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	require.NoError(t, h.repo.Save(ctx, State{
		Identity:  "old",
		StepIndex: 7,
		Answers:   map[string]string{"age": "18+", "name": "x", "retired": "y"},
		StartedAt: time.Now(),
	}))

	out := h.engine.Advance(ctx, "old", TextInput("anything"))
	require.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, map[string]string{"age": "18+", "name": "x", "notes": NotApplicable}, out.Completion.AnswerMap())
}

func TestCancelAlwaysWins(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	assert.False(t, h.engine.Cancel(ctx, "u"), "cancel without a flow is a no-op")

	h.engine.Begin(ctx, "u")
	h.engine.Advance(ctx, "u", ChoiceInput("age", "18+"))
	assert.True(t, h.engine.Cancel(ctx, "u"))
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "u"))
	assert.False(t, h.engine.Guard().HasCompleted(ctx, "u"))

	out := h.engine.Begin(ctx, "u")
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Empty(t, out.State.Answers)
}

func TestDisableIsStickyUntilEnabled(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	h.engine.Begin(ctx, "ticket-1")
	h.engine.Advance(ctx, "ticket-1", ChoiceInput("age", "18+"))

	assert.True(t, h.engine.Disable(ctx, "ticket-1"))
	assert.False(t, h.engine.Disable(ctx, "ticket-1"), "second disable changes nothing")

	for _, text := range []string{"bob", "skip", "hello"} {
		out := h.engine.Advance(ctx, "ticket-1", TextInput(text))
		assert.Equal(t, OutcomeIgnored, out.Kind)
		assert.ErrorIs(t, out.Reason, ErrDisabled)
	}
	st, _, _ := h.engine.Current(ctx, "ticket-1")
	assert.Equal(t, 1, st.StepIndex, "disabled flow keeps its frozen step")

	assert.True(t, h.engine.Enable(ctx, "ticket-1"))
	out := h.engine.Advance(ctx, "ticket-1", TextInput("bob"))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "notes", out.Prompt.StepID)
}

func TestDisableWithoutFlowBlocksBegin(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	assert.True(t, h.engine.Disable(ctx, "ticket-2"))
	out := h.engine.Begin(ctx, "ticket-2")
	assert.ErrorIs(t, out.Reason, ErrDisabled)

	assert.True(t, h.engine.Enable(ctx, "ticket-2"))
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "ticket-2"), "placeholder is dropped on enable")
	assert.Equal(t, OutcomePrompt, h.engine.Begin(ctx, "ticket-2").Kind)
}

func TestResetClearsCompletedAndActive(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()

	h.engine.Guard().MarkCompleted(ctx, "u")
	h.engine.Reset(ctx, "u")
	assert.Equal(t, OutcomePrompt, h.engine.Begin(ctx, "u").Kind)

	h.engine.Reset(ctx, "u")
	assert.False(t, h.engine.Guard().HasActiveFlow(ctx, "u"))
}

func TestStepIndexIsMonotonic(t *testing.T) {
	h := newHarness(t, scenarioSteps())
	ctx := context.Background()
	h.engine.Begin(ctx, "u")

	inputs := []Input{
		TextInput("x"), ChoiceInput("age", "u16"), TextInput("skip"), TextInput(""),
		ChoiceInput("age", "18+"), TextInput("name"),
	}
	last := 0
	for _, in := range inputs {
		out := h.engine.Advance(ctx, "u", in)
		if out.Kind == OutcomeCompleted {
			break
		}
		assert.GreaterOrEqual(t, out.State.StepIndex, last)
		last = out.State.StepIndex
	}
}

func TestBranchSkipsAlreadyExtractedStep(t *testing.T) {
	steps := []Step{
		{ID: "items", Prompt: "What are you giving?", Kind: KindText, Required: true, Extractor: ExtractTradeItems},
		{ID: "user_qty", Prompt: "How many {user_item}?", Kind: KindText, Required: true, Field: "user_qty", Extractor: ExtractQuantity, Pattern: `\d`,
			Branches: []Branch{{When: "partner_item", Goto: "partner_qty"}}},
		{ID: "partner_item", Prompt: "Partner item?", Kind: KindText, Required: true, Field: "partner_item", Extractor: ExtractItem},
		{ID: "partner_qty", Prompt: "How many {partner_item}?", Kind: KindText, Required: true, Field: "partner_qty", Extractor: ExtractQuantity, Pattern: `\d`},
	}
	h := newHarness(t, steps)
	ctx := context.Background()
	h.engine.Begin(ctx, "t1")

	out := h.engine.Advance(ctx, "t1", TextInput("I'm giving dragon for 2 garbagzilla"))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "user_qty", out.Prompt.StepID)
	assert.Equal(t, "dragon", out.State.Data["user_item"])
	assert.Equal(t, "2 garbagzilla", out.State.Data["partner_item"])

	out = h.engine.Advance(ctx, "t1", TextInput("a few"))
	assert.ErrorIs(t, out.Reason, ErrPatternMismatch)

	out = h.engine.Advance(ctx, "t1", TextInput("3 of them"))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "partner_qty", out.Prompt.StepID)

	out = h.engine.Advance(ctx, "t1", TextInput("2"))
	require.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, []string{"items", "user_qty", "partner_item", "partner_qty"}, answerIDs(out.Completion))
	assert.Equal(t, "2 garbagzilla", out.Completion.AnswerMap()["partner_item"])
	assert.Equal(t, "3", out.Completion.Data["user_qty"])
}

func TestBranchNotTakenAsksStep(t *testing.T) {
	steps := []Step{
		{ID: "items", Prompt: "Giving?", Kind: KindText, Required: true, Extractor: ExtractTradeItems,
			Branches: []Branch{{When: "partner_item", Goto: "done"}}},
		{ID: "partner_item", Prompt: "Partner?", Kind: KindText, Required: true, Field: "partner_item"},
		{ID: "done", Prompt: "Done?", Kind: KindText, Required: false},
	}
	h := newHarness(t, steps)
	ctx := context.Background()
	h.engine.Begin(ctx, "t")

	out := h.engine.Advance(ctx, "t", TextInput("just my sword"))
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.Equal(t, "partner_item", out.Prompt.StepID)
}

func answerIDs(c *Completion) []string {
	ids := make([]string, 0, len(c.Answers))
	for _, a := range c.Answers {
		ids = append(ids, a.StepID)
	}
	return ids
}

// gatedDoc, once armed, holds the first two loads until both arrived, forcing two
// handlers to read the same snapshot before either writes.
type gatedDoc struct {
	memDoc
	mu      sync.Mutex
	armed   bool
	loads   int
	release chan struct{}
}

func (d *gatedDoc) arm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = true
	d.release = make(chan struct{})
}

func (d *gatedDoc) Load(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	gated := d.armed && d.loads < 2
	if gated {
		d.loads++
		if d.loads == 2 {
			close(d.release)
		}
	}
	release := d.release
	d.mu.Unlock()
	if gated {
		<-release
	}
	return d.memDoc.Load(ctx)
}

func TestConcurrentAdvanceLosesUpdate(t *testing.T) {
	def, err := NewDefinition("race", []Step{
		{ID: "a", Prompt: "A?", Kind: KindText, Required: true},
		{ID: "b", Prompt: "B?", Kind: KindText, Required: true},
		{ID: "c", Prompt: "C?", Kind: KindText, Required: true},
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	gate := &gatedDoc{}
	h := newHarnessWithDocs(t, def, gate, &memDoc{})
	require.Equal(t, OutcomePrompt, h.engine.Begin(ctx, "u").Kind)
	gate.arm()

	var wg sync.WaitGroup
	for _, answer := range []string{"first", "second"} {
		wg.Add(1)
		go func(answer string) {
			defer wg.Done()
			h.engine.Advance(ctx, "u", TextInput(answer))
		}(answer)
	}
	wg.Wait()

	st, _, ok := h.engine.Current(ctx, "u")
	require.True(t, ok)
	assert.Equal(t, 1, st.StepIndex, "two advances from the same snapshot collapse into one")
	assert.Contains(t, []string{"first", "second"}, st.Answers["a"])
	assert.NotContains(t, st.Answers, "b")
}

func TestNullDocumentsStartFresh(t *testing.T) {
	def, err := NewDefinition("null", scenarioSteps(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	h := newHarnessWithDocs(t, def, &memDoc{data: []byte("null")}, &memDoc{data: []byte("null")})

	out := h.engine.Begin(ctx, "user1")
	require.Equal(t, OutcomePrompt, out.Kind)
	assert.True(t, h.engine.Guard().HasActiveFlow(ctx, "user1"))
	assert.False(t, h.engine.Guard().HasCompleted(ctx, "user1"))
}
