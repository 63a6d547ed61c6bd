// Package ticket drives automatic replies inside ticket channels: the
// scripted trade setup, trained reply chains and the responder fallback.
package ticket

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"supreme-bot/internal/chat"
	"supreme-bot/internal/config"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/genai"
	"supreme-bot/internal/responder"
	"supreme-bot/internal/storage"
)

type Action string

const (
	ActionIgnored       Action = "ignored"
	ActionLogged        Action = "logged"
	ActionStaffDisabled Action = "staff_disabled"
	ActionGreeting      Action = "greeting"
	ActionFlow          Action = "flow"
	ActionCompleted     Action = "completed"
	ActionChain         Action = "chain"
	ActionResponder     Action = "responder"
)

type Message struct {
	Channel     Channel
	MessageID   string
	GuildID     string
	GuildName   string
	AuthorID    string
	AuthorName  string
	AuthorBot   bool
	AuthorStaff bool
	Content     string
}

type Result struct {
	TicketID string
	Action   Action
	Source   responder.Source
	Text     string
}

type Service struct {
	cfg       config.TicketConfig
	store     *storage.Store
	repo      *Repository
	engine    *flow.Engine
	selector  *responder.Selector
	messenger chat.Messenger
	triggers  []*regexp.Regexp
	logger    *zap.Logger
}

func NewService(cfg config.TicketConfig, store *storage.Store, repo *Repository, engine *flow.Engine, selector *responder.Selector, messenger chat.Messenger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	triggers := make([]*regexp.Regexp, 0, len(cfg.Triggers))
	for _, t := range cfg.Triggers {
		if t = strings.TrimSpace(t); t != "" {
			triggers = append(triggers, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t)+`\b`))
		}
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		repo:      repo,
		engine:    engine,
		selector:  selector,
		messenger: messenger,
		triggers:  triggers,
		logger:    logger,
	}
}

func (s *Service) Engine() *flow.Engine { return s.engine }

func (s *Service) Detector() Detector {
	return Detector{CategoryID: s.cfg.CategoryID, NamePrefix: s.cfg.NamePrefix}
}

// IsTicketChannel applies the detector with the stored external category.
func (s *Service) IsTicketChannel(ctx context.Context, ch Channel) bool {
	external, err := s.store.GetSetting(ctx, storage.SettingExternalCategoryID, "")
	if err != nil {
		s.logger.Warn("failed to read external category", zap.Error(err))
	}
	return s.Detector().IsTicket(ch, external)
}

// HandleMessage processes one message posted in a ticket channel.
func (s *Service) HandleMessage(ctx context.Context, msg Message) (Result, error) {
	id := IdentityFor(msg.Channel)
	res := Result{TicketID: id, Action: ActionIgnored}

	if msg.AuthorBot {
		externalID, _ := s.store.GetSetting(ctx, storage.SettingExternalBotID, "")
		if externalID == "" || externalID != msg.AuthorID {
			return res, nil
		}
		s.logConversation(ctx, id, msg.AuthorID, msg.Content, false)
		res.Action = ActionLogged
		return res, nil
	}

	owner := ""
	if !msg.AuthorStaff {
		owner = msg.AuthorID
	}
	if err := s.store.EnsureTicket(ctx, storage.Ticket{ID: id, UserID: owner, ChannelID: msg.Channel.ID}); err != nil {
		s.logger.Warn("failed to register ticket", zap.String("ticket_id", id), zap.Error(err))
	}
	s.logConversation(ctx, id, msg.AuthorID, msg.Content, false)

	if msg.AuthorStaff {
		if !s.engine.Disable(ctx, id) {
			return res, nil
		}
		res.Action = ActionStaffDisabled
		res.Text = "⚠️ " + s.cfg.StaffNotice
		_, err := s.messenger.Send(ctx, msg.Channel.ID, chat.Message{Content: res.Text})
		return res, err
	}

	enabled, err := s.store.GetSetting(ctx, storage.SettingAIEnabled, "true")
	if err != nil {
		s.logger.Warn("failed to read ai setting", zap.Error(err))
	}
	if enabled == "false" {
		return res, nil
	}

	st, prompt, active := s.engine.Current(ctx, id)
	if active && st.Disabled {
		return res, nil
	}
	collected, err := s.repo.Collected(ctx, id)
	if err != nil {
		s.logger.Warn("unreadable ticket data", zap.String("ticket_id", id), zap.Error(err))
		collected = Collected{Version: CollectedVersion}
	}
	vars := s.vars(ctx, id, msg, collected.Data())

	if s.isGreeting(msg.Content) {
		if text, ok := s.greeting(ctx, id, st, prompt, active, vars); ok {
			return s.reply(ctx, msg, res, ActionGreeting, "", text)
		}
	}

	if !active && collected.ChainStepID != 0 {
		if text, ok := s.continueChain(ctx, id, collected.ChainStepID, msg, vars); ok {
			return s.reply(ctx, msg, res, ActionChain, responder.SourceTrained, text)
		}
	}

	if active {
		if out, handled := s.advance(ctx, id, msg.Content); handled {
			return s.flowReply(ctx, id, msg, res, out)
		}
	} else if s.triggered(msg.Content) && !s.engine.Guard().HasCompleted(ctx, id) {
		if out, handled := s.begin(ctx, id, msg.Content); handled {
			return s.flowReply(ctx, id, msg, res, out)
		}
	}

	reply := s.selector.Select(ctx, responder.Request{
		TicketID: id,
		Input:    msg.Content,
		Vars:     vars,
		History:  s.history(ctx, id, msg),
	})
	if reply.Training != nil && reply.Training.Chains() && !active {
		if err := s.repo.SetChain(ctx, id, reply.Training.ID); err != nil {
			s.logger.Warn("failed to store trained chain", zap.String("ticket_id", id), zap.Error(err))
		}
	}
	return s.reply(ctx, msg, res, ActionResponder, reply.Source, reply.Text)
}

// EnableAI lifts the staff gate. A frozen trade setup resumes where it stopped.
func (s *Service) EnableAI(ctx context.Context, id string) bool {
	return s.engine.Enable(ctx, id)
}

// DisableAI is the manual form of the staff gate.
func (s *Service) DisableAI(ctx context.Context, id string) bool {
	return s.engine.Disable(ctx, id)
}

func (s *Service) begin(ctx context.Context, id, content string) (flow.Outcome, bool) {
	out := s.engine.Begin(ctx, id)
	if out.Kind != flow.OutcomePrompt {
		return out, out.Kind == flow.OutcomeCompleted
	}
	// "trade my gems for their sword" already answers the first step.
	if rest := s.afterTrigger(content); rest != "" && tradeGrammar.MatchString(rest) {
		if next := s.engine.Advance(ctx, id, flow.TextInput(rest)); next.Kind != flow.OutcomeRejected {
			return next, true
		}
	}
	return out, true
}

// advance feeds content to the live flow. Input the current step cannot
// parse falls through to the responder so questions still get answers.
func (s *Service) advance(ctx context.Context, id, content string) (flow.Outcome, bool) {
	out := s.engine.Advance(ctx, id, flow.TextInput(content))
	switch out.Kind {
	case flow.OutcomeIgnored:
		return out, false
	case flow.OutcomeRejected:
		return out, !errors.Is(out.Reason, flow.ErrPatternMismatch)
	default:
		return out, true
	}
}

func (s *Service) flowReply(ctx context.Context, id string, msg Message, res Result, out flow.Outcome) (Result, error) {
	switch out.Kind {
	case flow.OutcomeCompleted:
		if err := s.repo.MergeData(ctx, id, out.Completion.Data); err != nil {
			s.logger.Warn("failed to keep trade data", zap.String("ticket_id", id), zap.Error(err))
		}
		vars := s.vars(ctx, id, msg, out.Completion.Data)
		return s.reply(ctx, msg, res, ActionCompleted, "", responder.Format(s.cfg.Summary, vars))
	case flow.OutcomePrompt, flow.OutcomeRejected:
		if out.Prompt == nil {
			return res, nil
		}
		vars := s.vars(ctx, id, msg, out.State.Data)
		text := responder.Format(out.Prompt.Text, vars)
		if out.Kind == flow.OutcomeRejected {
			text = "That detail is required to continue. " + text
		}
		return s.reply(ctx, msg, res, ActionFlow, "", text)
	}
	return res, nil
}

func (s *Service) greeting(ctx context.Context, id string, st flow.State, prompt *flow.Prompt, active bool, vars responder.Vars) (string, bool) {
	if active && st.Started() && prompt != nil {
		return s.cfg.WelcomeBack + " " + responder.Format(prompt.Text, vars), true
	}
	if !active && s.engine.Guard().HasCompleted(ctx, id) {
		return s.cfg.CompletedGreeting, true
	}
	return "", false
}

// continueChain stores the answer to a trained question and sends the next
// entry of the chain.
func (s *Service) continueChain(ctx context.Context, id string, pendingID int64, msg Message, vars responder.Vars) (string, bool) {
	pending, ok, err := s.store.GetTraining(ctx, pendingID)
	if err != nil || !ok {
		s.clearChain(ctx, id)
		return "", false
	}
	if pending.DataPointName != "" {
		value := strings.TrimSpace(msg.Content)
		if err := s.repo.MergeData(ctx, id, map[string]string{pending.DataPointName: value}); err != nil {
			s.logger.Warn("failed to store chained answer", zap.String("ticket_id", id), zap.Error(err))
		}
		if vars.Data == nil {
			vars.Data = map[string]string{}
		}
		vars.Data[pending.DataPointName] = value
	}
	if pending.NextStepID == 0 {
		s.clearChain(ctx, id)
		return "", false
	}
	next, ok, err := s.store.GetTraining(ctx, pending.NextStepID)
	if err != nil || !ok {
		s.logger.Warn("trained chain points at a missing entry", zap.Int64("training_id", pending.NextStepID))
		s.clearChain(ctx, id)
		return "", false
	}

	chain := int64(0)
	if next.Chains() {
		chain = next.ID
	}
	if err := s.repo.SetChain(ctx, id, chain); err != nil {
		s.logger.Warn("failed to advance trained chain", zap.String("ticket_id", id), zap.Error(err))
	}
	reply := s.selector.Render(ctx, next, responder.Request{TicketID: id, Input: msg.Content, Vars: vars})
	return reply.Text, true
}

func (s *Service) clearChain(ctx context.Context, id string) {
	if err := s.repo.SetChain(ctx, id, 0); err != nil {
		s.logger.Warn("failed to clear trained chain", zap.String("ticket_id", id), zap.Error(err))
	}
}

func (s *Service) reply(ctx context.Context, msg Message, res Result, action Action, source responder.Source, text string) (Result, error) {
	res.Action = action
	res.Source = source
	res.Text = text
	if strings.TrimSpace(text) == "" {
		return res, nil
	}
	_, err := s.messenger.Reply(ctx, msg.Channel.ID, msg.MessageID, chat.Message{Content: text, Silent: true})
	if err != nil {
		s.logger.Warn("ticket reply failed", zap.String("ticket_id", res.TicketID), zap.Error(err))
		return res, err
	}
	s.logConversation(ctx, res.TicketID, "", text, true)
	return res, nil
}

func (s *Service) vars(ctx context.Context, id string, msg Message, data map[string]string) responder.Vars {
	owner := ""
	if t, ok, err := s.store.GetTicket(ctx, id); err == nil && ok {
		owner = t.UserID
	}
	return responder.Vars{
		AuthorID:     msg.AuthorID,
		AuthorName:   msg.AuthorName,
		TicketUserID: owner,
		TicketName:   msg.Channel.Name,
		ChannelID:    msg.Channel.ID,
		ServerName:   msg.GuildName,
		ServerID:     msg.GuildID,
		Input:        msg.Content,
		Data:         data,
	}
}

// history returns recent conversation turns, minus the message being answered.
func (s *Service) history(ctx context.Context, id string, msg Message) []genai.Turn {
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		return nil
	}
	rows, err := s.store.History(ctx, id, limit+1)
	if err != nil {
		s.logger.Warn("failed to load conversation history", zap.String("ticket_id", id), zap.Error(err))
		return nil
	}
	if n := len(rows); n > 0 && !rows[n-1].IsAI && rows[n-1].UserID == msg.AuthorID && rows[n-1].Message == msg.Content {
		rows = rows[:n-1]
	}
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	turns := make([]genai.Turn, 0, len(rows))
	for _, row := range rows {
		role := genai.RoleUser
		if row.IsAI {
			role = genai.RoleAssistant
		}
		turns = append(turns, genai.Turn{Role: role, Content: row.Message})
	}
	return turns
}

func (s *Service) logConversation(ctx context.Context, id, userID, text string, isAI bool) {
	if userID == "" {
		userID = "bot"
	}
	if err := s.store.AddConversation(ctx, storage.Conversation{TicketID: id, UserID: userID, Message: text, IsAI: isAI}); err != nil {
		s.logger.Warn("failed to log conversation", zap.String("ticket_id", id), zap.Error(err))
	}
}

func (s *Service) isGreeting(content string) bool {
	content = strings.TrimSpace(content)
	return slices.ContainsFunc(s.cfg.Greetings, func(g string) bool {
		return strings.EqualFold(g, content)
	})
}

func (s *Service) triggered(content string) bool {
	for _, t := range s.triggers {
		if t.MatchString(content) {
			return true
		}
	}
	return false
}

var tradeGrammar = regexp.MustCompile(`(?i)\S\s+(for|and)\s+\S`)

// afterTrigger returns the text following the last trigger phrase.
func (s *Service) afterTrigger(content string) string {
	rest := ""
	for _, t := range s.triggers {
		if loc := t.FindAllStringIndex(content, -1); len(loc) > 0 {
			rest = content[loc[len(loc)-1][1]:]
		}
	}
	rest = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(rest), ":-,"))
	return rest
}
