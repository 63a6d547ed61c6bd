package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/flow"
	"supreme-bot/internal/storage"
)

func TestFlowEventsArePersisted(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := NewLogger(store, zap.NewNop())
	var notified []string
	logger.SetNotifier(func(ctx context.Context, ev storage.FlowEvent) {
		notified = append(notified, ev.Level+":"+ev.Event)
	})

	ctx := context.Background()
	logger.FlowEvent(ctx, flow.Event{Flow: "application", Identity: "u1", RunID: "r1", Name: flow.EventStarted})
	logger.FlowEvent(ctx, flow.Event{Flow: "application", Identity: "u1", RunID: "r1", Name: flow.EventRejected})
	logger.FlowEvent(ctx, flow.Event{Flow: "ticket", Identity: "ticket-1", Name: flow.EventDisabled})

	events, err := store.ListFlowEvents(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(events))
	}
	if len(notified) != 2 || notified[0] != "INFO:started" || notified[1] != "WARN:disabled" {
		t.Fatalf("unexpected notifications %v", notified)
	}
}
