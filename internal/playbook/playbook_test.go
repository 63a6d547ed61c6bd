package playbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/audit"
	"supreme-bot/internal/chat"
	"supreme-bot/internal/chat/chattest"
	"supreme-bot/internal/storage"
)

type fakeTimer struct {
	stop bool
	fn   func()
}

func (t *fakeTimer) Stop() bool {
	t.stop = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	delays []time.Duration
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	f.delays = append(f.delays, d)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.delays = nil
	f.mu.Unlock()
	for _, timer := range pending {
		if !timer.stop {
			timer.fn()
		}
	}
}

func newEngine(t *testing.T) (*Engine, *storage.Store, *chattest.Fake, *fakeClock) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.EnsureTicket(context.Background(), storage.Ticket{ID: "ticket-1", UserID: "u1", ChannelID: "c1"}); err != nil {
		t.Fatalf("ensure ticket: %v", err)
	}

	fake := &chattest.Fake{}
	engine := New(Config{CloseDelaySeconds: 5}, store, fake, audit.NewLogger(store, zap.NewNop()), zap.NewNop())
	clock := &fakeClock{now: time.Unix(0, 0)}
	engine.WithClock(clock)
	return engine, store, fake, clock
}

func ticketStatus(t *testing.T, store *storage.Store) string {
	t.Helper()
	ticket, ok, err := store.GetTicket(context.Background(), "ticket-1")
	if err != nil || !ok {
		t.Fatalf("get ticket: %v %v", ok, err)
	}
	return ticket.Status
}

func TestScheduleClose(t *testing.T) {
	engine, store, fake, clock := newEngine(t)
	ctx := context.Background()

	var closed []string
	engine.OnClosed(func(id string) { closed = append(closed, id) })

	if !engine.ScheduleClose(ctx, "ticket-1", "c1", "staff") {
		t.Fatalf("expected close scheduled")
	}
	if engine.ScheduleClose(ctx, "ticket-1", "c1", "staff") {
		t.Fatalf("second close must be refused while pending")
	}
	if got := ticketStatus(t, store); got != storage.TicketClosing {
		t.Fatalf("expected closing, got %s", got)
	}
	if len(clock.delays) != 1 || clock.delays[0] != 5*time.Second {
		t.Fatalf("unexpected delays %v", clock.delays)
	}
	if notice := fake.LastCall(chattest.OpSend); notice == nil || notice.Target != "c1" {
		t.Fatalf("expected close notice, got %+v", notice)
	}

	clock.Advance(5 * time.Second)
	if call := fake.LastCall(chattest.OpDeleteChannel); call == nil || call.Target != "c1" {
		t.Fatalf("expected channel delete")
	}
	if got := ticketStatus(t, store); got != storage.TicketClosed {
		t.Fatalf("expected closed, got %s", got)
	}
	if engine.IsClosing("ticket-1") {
		t.Fatalf("close should no longer be pending")
	}
	if len(closed) != 1 || closed[0] != "ticket-1" {
		t.Fatalf("expected closed hook, got %v", closed)
	}
}

func TestCloseToleratesMissingChannel(t *testing.T) {
	engine, store, fake, clock := newEngine(t)
	ctx := context.Background()

	engine.ScheduleClose(ctx, "ticket-1", "c1", "staff")
	fake.Fail(chattest.OpDeleteChannel, &chat.SendError{Op: chattest.OpDeleteChannel, Code: chat.CodeUnknownChannel})
	clock.Advance(5 * time.Second)

	if got := ticketStatus(t, store); got != storage.TicketClosed {
		t.Fatalf("expected closed despite missing channel, got %s", got)
	}
}

func TestCancelClose(t *testing.T) {
	engine, store, fake, clock := newEngine(t)
	ctx := context.Background()

	engine.ScheduleClose(ctx, "ticket-1", "c1", "staff")
	if !engine.CancelClose(ctx, "ticket-1") {
		t.Fatalf("expected cancel")
	}
	clock.Advance(10 * time.Second)

	if fake.LastCall(chattest.OpDeleteChannel) != nil {
		t.Fatalf("cancelled close must not delete the channel")
	}
	if got := ticketStatus(t, store); got != storage.TicketOpen {
		t.Fatalf("expected reopened, got %s", got)
	}
	if engine.CancelClose(ctx, "ticket-1") {
		t.Fatalf("nothing left to cancel")
	}
}
