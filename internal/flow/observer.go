package flow

import "context"

const (
	EventStarted    = "started"
	EventAdvanced   = "advanced"
	EventRejected   = "rejected"
	EventCompleted  = "completed"
	EventCancelled  = "cancelled"
	EventRolledBack = "rolled_back"
	EventDisabled   = "disabled"
	EventEnabled    = "enabled"
	EventReset      = "reset"
)

type Event struct {
	Flow     string
	Identity string
	RunID    string
	Name     string
	Detail   string
}

// Observer receives lifecycle events after they are persisted.
type Observer interface {
	FlowEvent(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) FlowEvent(ctx context.Context, ev Event) { f(ctx, ev) }
