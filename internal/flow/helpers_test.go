package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"supreme-bot/internal/kv"
)

type memDoc struct {
	mu   sync.Mutex
	data []byte
}

func (d *memDoc) Load(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.data == nil {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), d.data...), nil
}

func (d *memDoc) Save(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = append([]byte(nil), data...)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) FlowEvent(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

type harness struct {
	engine    *Engine
	repo      *SnapshotRepository
	completed *SnapshotCompletedSet
	events    *recorder
}

func newHarness(t *testing.T, steps []Step) *harness {
	t.Helper()
	def, err := NewDefinition("test", steps, nil)
	require.NoError(t, err)
	return newHarnessWithDocs(t, def, &memDoc{}, &memDoc{})
}

func newHarnessWithDocs(t *testing.T, def *Definition, active, done kv.Document) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		repo:      NewSnapshotRepository(active, "active", logger),
		completed: NewSnapshotCompletedSet(done, "completed", logger),
		events:    &recorder{},
	}
	ids := 0
	h.engine = NewEngine(def, h.repo, h.completed, logger,
		WithClock(fixedClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}),
		WithRunIDs(func() string { ids++; return "run-" + string(rune('0'+ids)) }),
		WithObserver(h.events),
	)
	return h
}

func scenarioSteps() []Step {
	return []Step{
		{ID: "age", Prompt: "Age?", Kind: KindChoice, Required: true, Choices: []Choice{{Label: "Under 16", Value: "u16"}, {Label: "18+", Value: "18+"}}},
		{ID: "name", Prompt: "Name?", Kind: KindText, Required: true},
		{ID: "notes", Prompt: "Notes?", Kind: KindText, Required: false},
	}
}
