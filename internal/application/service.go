// Package application runs the MM trainee application over direct messages.
package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"supreme-bot/internal/chat"
	"supreme-bot/internal/config"
	"supreme-bot/internal/flow"
)

var (
	ErrDirectMessagesClosed = errors.New("application: direct messages are closed")
	ErrSendFailed           = errors.New("application: could not deliver the application")
)

// Auditor records staff decisions.
type Auditor interface {
	Log(ctx context.Context, level, flowName, identity, runID, event, details string)
}

type Service struct {
	engine    *flow.Engine
	messenger chat.Messenger
	cfg       config.ApplicationConfig
	auditor   Auditor
	logger    *zap.Logger
}

func NewService(engine *flow.Engine, messenger chat.Messenger, cfg config.ApplicationConfig, auditor Auditor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, messenger: messenger, cfg: cfg, auditor: auditor, logger: logger}
}

func (s *Service) Engine() *flow.Engine { return s.engine }

// Start claims the application slot for user and sends the intro DM. The
// claim is rolled back when the DM cannot be delivered, so the user can retry.
func (s *Service) Start(ctx context.Context, userID string) error {
	out := s.engine.Begin(ctx, userID)
	switch out.Kind {
	case flow.OutcomeRejected:
		return out.Reason
	case flow.OutcomeCompleted:
		s.finish(ctx, out.Completion)
		return nil
	}

	sent, err := s.messenger.SendDirect(ctx, userID, s.introMessage())
	if err != nil {
		s.engine.Rollback(ctx, userID)
		if chat.IsCode(err, chat.CodeCannotDMUser) {
			return ErrDirectMessagesClosed
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.engine.AttachMessage(ctx, userID, sent.MessageID)
	return nil
}

// Confirm answers the Start button on the intro DM by sending the current question.
func (s *Service) Confirm(ctx context.Context, userID string) error {
	st, prompt, ok := s.engine.Current(ctx, userID)
	if !ok {
		return flow.ErrNoActiveFlow
	}
	if prompt == nil {
		return nil
	}
	if st.MessageRef != "" {
		started := chat.Message{
			Title: "Application Started! ✅",
			Text:  "The application has begun. I will ask you the questions below one by one.",
			Color: chat.ColorSuccess,
		}
		if _, err := s.messenger.EditDirect(ctx, userID, st.MessageRef, started); err != nil {
			s.logger.Debug("intro edit failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.engine.AttachMessage(ctx, userID, "")
	}
	return s.sendDirect(ctx, userID, promptMessage(prompt, s.engine.SkipWord()))
}

// Answer handles a free-text DM. Users without a live application are ignored,
// and text sent while the intro still waits for Start only gets a hint.
func (s *Service) Answer(ctx context.Context, userID, text string) error {
	if st, _, ok := s.engine.Current(ctx, userID); ok && st.MessageRef != "" {
		return s.sendDirect(ctx, userID, chat.Message{
			Text:  "Press **Start** on the message above to begin your application.",
			Color: chat.ColorWarning,
		})
	}
	out := s.engine.Advance(ctx, userID, flow.TextInput(text))
	return s.respond(ctx, userID, out, "✅ Answer recorded!")
}

// Select handles a choice from the menu attached to question index.
func (s *Service) Select(ctx context.Context, userID string, index int, value string) error {
	def := s.engine.Definition()
	stepID, label := fmt.Sprintf("#%d", index), value
	if index >= 0 && index < def.Len() {
		step := def.Steps[index]
		stepID = step.ID
		for _, c := range step.Choices {
			if c.Value == value {
				label = c.Label
				break
			}
		}
	}
	out := s.engine.Advance(ctx, userID, flow.ChoiceInput(stepID, value))
	return s.respond(ctx, userID, out, fmt.Sprintf("✅ Selected: **%s**", label))
}

// Stop cancels the user's application and clears their progress.
func (s *Service) Stop(ctx context.Context, userID string) (bool, error) {
	if !s.engine.Cancel(ctx, userID) {
		return false, nil
	}
	err := s.sendDirect(ctx, userID, chat.Message{
		Title: "Application Closed 🛑",
		Text:  "Your application has been closed and all progress has been cleared.",
		Color: chat.ColorDanger,
	})
	return true, err
}

// Reset lets staff clear both the completed mark and any live application.
func (s *Service) Reset(ctx context.Context, userID string) {
	s.engine.Reset(ctx, userID)
}

type Decision struct {
	Applicant string
	Reviewer  string
	Accepted  bool
	Reason    string
}

// Review notifies the applicant of a staff decision and returns the fields to
// append to the review card.
func (s *Service) Review(ctx context.Context, d Decision) chat.Message {
	verdict, color := "Denied", chat.ColorDanger
	text := "We regret to inform you that your MM application has been **Denied**."
	if d.Accepted {
		verdict, color = "Accepted", chat.ColorSuccess
		text = "Congratulations! Your MM application has been **Accepted**."
	}
	if d.Reason != "" {
		text += "\n\n**Reason:** " + d.Reason
	}

	if _, err := s.messenger.SendDirect(ctx, d.Applicant, chat.Message{
		Title: "MM Application " + verdict,
		Text:  text,
		Color: color,
	}); err != nil {
		s.logger.Warn("could not notify applicant", zap.String("user_id", d.Applicant), zap.Error(err))
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, "INFO", s.engine.Definition().Name, d.Applicant, "", "reviewed",
			fmt.Sprintf("%s by %s: %s", verdict, d.Reviewer, d.Reason))
	}

	fields := []chat.Field{{Name: "Decision by", Value: d.Reviewer, Inline: true}}
	if d.Reason != "" {
		fields = append(fields, chat.Field{Name: "Reason", Value: d.Reason})
	}
	return chat.Message{Title: "MM Application - " + verdict, Color: color, Fields: fields}
}

func (s *Service) respond(ctx context.Context, userID string, out flow.Outcome, ack string) error {
	switch out.Kind {
	case flow.OutcomeIgnored:
		return nil
	case flow.OutcomeRejected:
		if err := s.sendDirect(ctx, userID, warningMessage(out.Reason)); err != nil {
			return err
		}
		if out.Prompt != nil && !errors.Is(out.Reason, flow.ErrChoiceRequired) {
			return s.sendDirect(ctx, userID, promptMessage(out.Prompt, s.engine.SkipWord()))
		}
		return nil
	case flow.OutcomePrompt:
		if err := s.sendDirect(ctx, userID, chat.Message{Text: ack, Color: chat.ColorSuccess}); err != nil {
			return err
		}
		return s.sendDirect(ctx, userID, promptMessage(out.Prompt, s.engine.SkipWord()))
	case flow.OutcomeCompleted:
		if err := s.sendDirect(ctx, userID, chat.Message{Text: ack, Color: chat.ColorSuccess}); err != nil {
			s.logger.Debug("ack failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.finish(ctx, out.Completion)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, c *flow.Completion) {
	if err := s.sendDirect(ctx, c.Identity, chat.Message{
		Title: "Application Submitted",
		Text:  "✅ Your application has been submitted and logged. Our team will review it shortly.\n\nThank you for applying!",
		Color: chat.ColorSuccess,
	}); err != nil {
		s.logger.Warn("completion DM failed", zap.String("user_id", c.Identity), zap.Error(err))
	}

	if s.cfg.LogChannelID == "" {
		s.logger.Warn("application log channel not configured", zap.String("user_id", c.Identity))
		return
	}
	if _, err := s.messenger.Send(ctx, s.cfg.LogChannelID, reviewMessage(c)); err != nil {
		s.logger.Error("failed to post application for review", zap.String("user_id", c.Identity), zap.String("run_id", c.RunID), zap.Error(err))
	}
}

func (s *Service) sendDirect(ctx context.Context, userID string, msg chat.Message) error {
	_, err := s.messenger.SendDirect(ctx, userID, msg)
	if err != nil {
		s.logger.Warn("direct message failed", zap.String("user_id", userID), zap.Error(err))
	}
	return err
}
