// Package playbook runs delayed ticket closes.
package playbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/audit"
	"supreme-bot/internal/chat"
	"supreme-bot/internal/storage"
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type Config struct {
	CloseDelaySeconds int
}

type Engine struct {
	mu        sync.Mutex
	cfg       Config
	clock     Clock
	store     *storage.Store
	messenger chat.Messenger
	audit     *audit.Logger
	logger    *zap.Logger
	closing   map[string]Timer
	onClosed  func(ticketID string)
}

func New(cfg Config, store *storage.Store, messenger chat.Messenger, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		clock:     realClock{},
		store:     store,
		messenger: messenger,
		audit:     auditLogger,
		logger:    logger,
		closing:   make(map[string]Timer),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// OnClosed registers a hook that runs after a ticket channel is gone.
func (e *Engine) OnClosed(fn func(ticketID string)) {
	e.onClosed = fn
}

func (e *Engine) delay() time.Duration {
	if e.cfg.CloseDelaySeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.cfg.CloseDelaySeconds) * time.Second
}

// ScheduleClose announces the close and deletes the channel after the delay.
// It returns false when a close for the ticket is already pending.
func (e *Engine) ScheduleClose(ctx context.Context, ticketID, channelID, closedBy string) bool {
	e.mu.Lock()
	if _, pending := e.closing[ticketID]; pending {
		e.mu.Unlock()
		return false
	}
	e.closing[ticketID] = nil
	e.mu.Unlock()

	if _, err := e.store.SetTicketStatus(ctx, ticketID, storage.TicketClosing); err != nil {
		e.logger.Warn("failed to mark ticket closing", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	delay := e.delay()
	if _, err := e.messenger.Send(ctx, channelID, chat.Message{
		Text:  fmt.Sprintf("This ticket will be closed in %d seconds.", int(delay.Seconds())),
		Color: chat.ColorWarning,
	}); err != nil {
		e.logger.Warn("close notice failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	e.log(ctx, audit.LevelInfo, ticketID, "close_scheduled", "by "+closedBy)

	detached := context.WithoutCancel(ctx)
	timer := e.clock.AfterFunc(delay, func() {
		e.close(detached, ticketID, channelID)
	})

	e.mu.Lock()
	if _, still := e.closing[ticketID]; still {
		e.closing[ticketID] = timer
	}
	e.mu.Unlock()
	return true
}

// CancelClose stops a pending close and reopens the ticket.
func (e *Engine) CancelClose(ctx context.Context, ticketID string) bool {
	e.mu.Lock()
	timer, pending := e.closing[ticketID]
	if !pending {
		e.mu.Unlock()
		return false
	}
	delete(e.closing, ticketID)
	e.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if _, err := e.store.SetTicketStatus(ctx, ticketID, storage.TicketOpen); err != nil {
		e.logger.Warn("failed to reopen ticket", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	e.log(ctx, audit.LevelInfo, ticketID, "close_cancelled", "")
	return true
}

func (e *Engine) IsClosing(ticketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, pending := e.closing[ticketID]
	return pending
}

// close tolerates the channel having been deleted by someone else.
func (e *Engine) close(ctx context.Context, ticketID, channelID string) {
	e.mu.Lock()
	if _, pending := e.closing[ticketID]; !pending {
		e.mu.Unlock()
		return
	}
	delete(e.closing, ticketID)
	e.mu.Unlock()

	if err := e.messenger.DeleteChannel(ctx, channelID); err != nil && !chat.IsCode(err, chat.CodeUnknownChannel) {
		e.logger.Error("failed to delete ticket channel", zap.String("ticket_id", ticketID), zap.String("channel_id", channelID), zap.Error(err))
		e.log(ctx, audit.LevelWarn, ticketID, "close_failed", err.Error())
		return
	}
	if _, err := e.store.SetTicketStatus(ctx, ticketID, storage.TicketClosed); err != nil {
		e.logger.Warn("failed to mark ticket closed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	e.log(ctx, audit.LevelInfo, ticketID, "closed", "")
	if e.onClosed != nil {
		e.onClosed(ticketID)
	}
}

func (e *Engine) log(ctx context.Context, level, ticketID, event, details string) {
	if e.audit != nil {
		e.audit.Log(ctx, level, "ticket", ticketID, "", event, details)
	}
}
