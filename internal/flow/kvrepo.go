package flow

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"supreme-bot/internal/kv"
)

// SnapshotRepository keeps every identity's state in one JSON document
// (identity -> state). Each Save is its own load-modify-save cycle.
type SnapshotRepository struct {
	snap *kv.Snapshot[map[string]State]
}

func NewSnapshotRepository(doc kv.Document, name string, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		snap: kv.NewSnapshot(doc, name, func() map[string]State { return map[string]State{} }, logger),
	}
}

func (r *SnapshotRepository) Load(ctx context.Context, identity string) (State, bool, error) {
	st, ok := r.snap.Load(ctx)[identity]
	if !ok {
		return State{}, false, nil
	}
	if st.Identity == "" {
		st.Identity = identity
	}
	return st, true, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, st State) error {
	all := r.snap.Load(ctx)
	if all == nil {
		all = make(map[string]State)
	}
	all[st.Identity] = st
	return r.snap.Save(ctx, all)
}

func (r *SnapshotRepository) Delete(ctx context.Context, identity string) error {
	all := r.snap.Load(ctx)
	if _, ok := all[identity]; !ok {
		return nil
	}
	delete(all, identity)
	return r.snap.Save(ctx, all)
}

func (r *SnapshotRepository) All(ctx context.Context) map[string]State {
	return r.snap.Load(ctx)
}

// SnapshotCompletedSet stores completed identities as a JSON array.
type SnapshotCompletedSet struct {
	snap *kv.Snapshot[[]string]
}

func NewSnapshotCompletedSet(doc kv.Document, name string, logger *zap.Logger) *SnapshotCompletedSet {
	return &SnapshotCompletedSet{
		snap: kv.NewSnapshot(doc, name, func() []string { return []string{} }, logger),
	}
}

func (s *SnapshotCompletedSet) Has(ctx context.Context, identity string) (bool, error) {
	return slices.Contains(s.snap.Load(ctx), identity), nil
}

func (s *SnapshotCompletedSet) Add(ctx context.Context, identity string) error {
	ids := s.snap.Load(ctx)
	if slices.Contains(ids, identity) {
		return nil
	}
	return s.snap.Save(ctx, append(ids, identity))
}

func (s *SnapshotCompletedSet) Remove(ctx context.Context, identity string) error {
	ids := s.snap.Load(ctx)
	trimmed := slices.DeleteFunc(ids, func(id string) bool { return id == identity })
	if len(trimmed) == len(ids) {
		return nil
	}
	return s.snap.Save(ctx, trimmed)
}
