package analytics

import (
	"context"
	"testing"
	"time"

	"supreme-bot/internal/storage"
)

func TestReportCountsEvents(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	now := time.Now()
	for _, ev := range []storage.FlowEvent{
		{Flow: "application", Identity: "u1", Level: "INFO", Event: "started", CreatedAt: now},
		{Flow: "application", Identity: "u2", Level: "INFO", Event: "started", CreatedAt: now},
		{Flow: "application", Identity: "u1", Level: "INFO", Event: "completed", CreatedAt: now},
		{Flow: "ticket", Identity: "t1", Level: "WARN", Event: "disabled", CreatedAt: now},
	} {
		if err := store.AddFlowEvent(ctx, ev); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}
	_, _ = store.AddTraining(ctx, storage.Training{Query: "q", Response: "r"})

	report, err := New(store).Report(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Events != 4 || report.ByLevel["WARN"] != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Started("application") != 2 || report.Completed("application") != 1 {
		t.Fatalf("unexpected application counts %+v", report.ByFlow)
	}
	if report.Totals.Trainings != 1 {
		t.Fatalf("expected training totals, got %+v", report.Totals)
	}
}
