package flow

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository is the durable home of live flow states, one per identity.
type Repository interface {
	Load(ctx context.Context, identity string) (State, bool, error)
	Save(ctx context.Context, st State) error
	Delete(ctx context.Context, identity string) error
}

type CompletedSet interface {
	Has(ctx context.Context, identity string) (bool, error)
	Add(ctx context.Context, identity string) error
	Remove(ctx context.Context, identity string) error
}

// Guard enforces "no restart after completion" and single-flight at flow start.
// Store failures are logged and degraded so a broken store never blocks users.
type Guard struct {
	flow      string
	repo      Repository
	completed CompletedSet
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

func NewGuard(flow string, repo Repository, completed CompletedSet, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		flow:      flow,
		repo:      repo,
		completed: completed,
		clock:     realClock{},
		newID:     uuid.NewString,
		logger:    logger,
	}
}

func (g *Guard) HasCompleted(ctx context.Context, identity string) bool {
	done, err := g.completed.Has(ctx, identity)
	if err != nil {
		g.logger.Warn("completed lookup failed", zap.String("flow", g.flow), zap.String("identity", identity), zap.Error(err))
		return false
	}
	return done
}

func (g *Guard) MarkCompleted(ctx context.Context, identity string) {
	if g.HasCompleted(ctx, identity) {
		return
	}
	if err := g.completed.Add(ctx, identity); err != nil {
		g.logger.Warn("mark completed failed", zap.String("flow", g.flow), zap.String("identity", identity), zap.Error(err))
	}
}

func (g *Guard) HasActiveFlow(ctx context.Context, identity string) bool {
	_, ok := g.load(ctx, identity)
	return ok
}

// BeginFlow persists a fresh state before the caller sends anything, so a second
// start racing the first prompt sees ErrAlreadyActive.
func (g *Guard) BeginFlow(ctx context.Context, identity string) (State, error) {
	if g.HasCompleted(ctx, identity) {
		return State{}, ErrAlreadyCompleted
	}
	if existing, ok := g.load(ctx, identity); ok {
		if existing.Disabled {
			return existing, ErrDisabled
		}
		return existing, ErrAlreadyActive
	}

	st := State{
		Identity:  identity,
		RunID:     g.newID(),
		StartedAt: g.clock.Now(),
	}.normalized()
	g.save(ctx, st)
	return st, nil
}

// Rollback undoes BeginFlow after the first send failed.
func (g *Guard) Rollback(ctx context.Context, identity string) {
	g.delete(ctx, identity)
}

// Reset is the administrative escape hatch: forget completion and any live state.
func (g *Guard) Reset(ctx context.Context, identity string) {
	if err := g.completed.Remove(ctx, identity); err != nil {
		g.logger.Warn("reset completed failed", zap.String("flow", g.flow), zap.String("identity", identity), zap.Error(err))
	}
	g.delete(ctx, identity)
}

func (g *Guard) load(ctx context.Context, identity string) (State, bool) {
	st, ok, err := g.repo.Load(ctx, identity)
	if err != nil {
		g.logger.Warn("state load failed", zap.String("flow", g.flow), zap.String("identity", identity), zap.Error(err))
		return State{}, false
	}
	if !ok {
		return State{}, false
	}
	return st.normalized(), true
}

func (g *Guard) save(ctx context.Context, st State) {
	if err := g.repo.Save(ctx, st); err != nil {
		g.logger.Warn("state save failed", zap.String("flow", g.flow), zap.String("identity", st.Identity), zap.Error(err))
	}
}

func (g *Guard) delete(ctx context.Context, identity string) {
	if err := g.repo.Delete(ctx, identity); err != nil {
		g.logger.Warn("state delete failed", zap.String("flow", g.flow), zap.String("identity", identity), zap.Error(err))
	}
}
