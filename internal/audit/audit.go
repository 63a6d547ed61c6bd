package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/flow"
	"supreme-bot/internal/storage"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time
	notify func(context.Context, storage.FlowEvent)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.FlowEvent)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, flowName, identity, runID, event, details string) {
	entry := storage.FlowEvent{
		Flow:      flowName,
		Identity:  identity,
		RunID:     runID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if err := l.store.AddFlowEvent(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("flow", flowName), zap.String("identity", identity), zap.String("event", event), zap.String("details", details))
}

// FlowEvent records engine lifecycle events. Rejections are too chatty to keep.
func (l *Logger) FlowEvent(ctx context.Context, ev flow.Event) {
	switch ev.Name {
	case flow.EventRejected, flow.EventAdvanced:
		return
	case flow.EventDisabled, flow.EventRolledBack:
		l.Log(ctx, LevelWarn, ev.Flow, ev.Identity, ev.RunID, ev.Name, ev.Detail)
	default:
		l.Log(ctx, LevelInfo, ev.Flow, ev.Identity, ev.RunID, ev.Name, ev.Detail)
	}
}
