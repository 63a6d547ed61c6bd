package ticket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/flow"
	"supreme-bot/internal/storage"
)

// disabledStep marks a ticket whose automatic replies were switched off.
const disabledStep = -1

// Repository keeps ticket flow state in the tickets table. It serves both as
// the flow repository and as the completed set (tickets.ai_resolved).
type Repository struct {
	store  *storage.Store
	logger *zap.Logger
}

var (
	_ flow.Repository   = (*Repository)(nil)
	_ flow.CompletedSet = (*Repository)(nil)
)

func NewRepository(store *storage.Store, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, logger: logger}
}

func (r *Repository) Load(ctx context.Context, id string) (flow.State, bool, error) {
	t, ok, err := r.store.GetTicket(ctx, id)
	if err != nil || !ok {
		return flow.State{}, false, err
	}
	c, err := DecodeCollected(t.CollectedData)
	if err != nil {
		if t.CurrentStepID != disabledStep {
			return flow.State{}, false, err
		}
		// keep the ticket silenced; enabling rewrites the record
		r.logger.Warn("disabled ticket has unreadable collected data", zap.String("ticket_id", id), zap.Error(err))
		return flow.State{Identity: id, Disabled: true, Answers: make(map[string]string)}, true, nil
	}
	if t.CurrentStepID != disabledStep && c.StartedAt == 0 {
		return flow.State{}, false, nil
	}

	st := flow.State{
		Identity:   id,
		RunID:      c.RunID,
		StepIndex:  t.CurrentStepID,
		Answers:    c.Answers,
		Data:       c.Data(),
		MessageRef: c.MessageRef,
	}
	if st.Answers == nil {
		st.Answers = make(map[string]string)
	}
	if c.StartedAt != 0 {
		st.StartedAt = time.UnixMilli(c.StartedAt).UTC()
	}
	if t.CurrentStepID == disabledStep {
		st.Disabled = true
		st.StepIndex = c.ResumeStep
	}
	return st, true, nil
}

func (r *Repository) Save(ctx context.Context, st flow.State) error {
	return r.update(ctx, st.Identity, func(c *Collected, step *int) {
		if st.Started() {
			c.SetData(st.Data)
		} else {
			c.MergeData(st.Data)
		}
		c.Answers = st.Answers
		c.RunID = st.RunID
		c.MessageRef = st.MessageRef
		c.StartedAt = 0
		if !st.StartedAt.IsZero() {
			c.StartedAt = st.StartedAt.UnixMilli()
		}
		c.ResumeStep = 0
		*step = st.StepIndex
		if st.Disabled {
			c.ResumeStep = st.StepIndex
			*step = disabledStep
		}
	})
}

// Delete ends the live flow. Collected trade fields and a pending trained
// chain survive so later replies can still reference them.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, ok, err := r.store.GetTicket(ctx, id)
	if err != nil || !ok {
		return err
	}
	return r.update(ctx, id, func(c *Collected, step *int) {
		c.resetRun()
		*step = 0
	})
}

// Collected returns the decoded record, or an empty one for unknown tickets.
func (r *Repository) Collected(ctx context.Context, id string) (Collected, error) {
	t, ok, err := r.store.GetTicket(ctx, id)
	if err != nil {
		return Collected{}, err
	}
	if !ok {
		return Collected{Version: CollectedVersion}, nil
	}
	return DecodeCollected(t.CollectedData)
}

// SetChain records the trained entry waiting for the user's answer; zero clears it.
func (r *Repository) SetChain(ctx context.Context, id string, trainingID int64) error {
	return r.update(ctx, id, func(c *Collected, _ *int) {
		c.ChainStepID = trainingID
	})
}

func (r *Repository) MergeData(ctx context.Context, id string, data map[string]string) error {
	return r.update(ctx, id, func(c *Collected, _ *int) {
		c.MergeData(data)
	})
}

func (r *Repository) Has(ctx context.Context, id string) (bool, error) {
	t, ok, err := r.store.GetTicket(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return t.AIResolved, nil
}

func (r *Repository) Add(ctx context.Context, id string) error {
	return r.store.SetTicketResolved(ctx, id, true)
}

func (r *Repository) Remove(ctx context.Context, id string) error {
	return r.store.SetTicketResolved(ctx, id, false)
}

// update is a load-modify-save of one ticket row. A corrupt record is
// logged and replaced rather than blocking the ticket forever.
func (r *Repository) update(ctx context.Context, id string, fn func(c *Collected, step *int)) error {
	t, ok, err := r.store.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	c := Collected{Version: CollectedVersion}
	step := 0
	if ok {
		step = t.CurrentStepID
		decoded, err := DecodeCollected(t.CollectedData)
		if err != nil {
			r.logger.Warn("discarding unreadable collected data", zap.String("ticket_id", id), zap.Error(err))
		} else {
			c = decoded
		}
	}
	fn(&c, &step)
	encoded, err := c.Encode()
	if err != nil {
		return err
	}
	return r.store.SaveTicketState(ctx, id, step, encoded)
}
