package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"supreme-bot/internal/application"
	"supreme-bot/internal/audit"
	"supreme-bot/internal/chat"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/storage"
	"supreme-bot/internal/ticket"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	ButtonCloseTicket = "close_ticket"
	reviewModalPrefix = "mm_app_review_modal_"
	reviewReasonInput = "reason"
	trainingListLimit = 20
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, session, interaction)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, session, interaction)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, session, interaction)
	}
}

func (b *Bot) handleComponent(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	user := interactionUser(interaction)
	if user == nil {
		return
	}
	data := interaction.MessageComponentData()
	id := data.CustomID

	switch {
	case id == application.ButtonOpen:
		title, text, color := startReply(b.app.Start(ctx, user.ID))
		b.respondEmbed(session, interaction, commandEmbed(title, text, color, nil), true)
	case id == application.ButtonConfirm:
		if err := b.app.Confirm(ctx, user.ID); err != nil {
			if errors.Is(err, flow.ErrNoActiveFlow) {
				b.respond(session, interaction, "You have no application in progress.", true)
				return
			}
			b.logger.Warn("application confirm failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		b.acknowledge(session, interaction)
	case id == application.ButtonStop:
		stopped, err := b.app.Stop(ctx, user.ID)
		if err != nil {
			b.logger.Warn("application stop notice failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		if !stopped {
			b.respond(session, interaction, "You have no application in progress.", true)
			return
		}
		b.acknowledge(session, interaction)
	case strings.HasPrefix(id, application.SelectPrefix):
		index, ok := application.ParseSelectID(id)
		if !ok || len(data.Values) == 0 {
			b.acknowledge(session, interaction)
			return
		}
		if err := b.app.Select(ctx, user.ID, index, data.Values[0]); err != nil {
			b.logger.Warn("application select failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		b.acknowledge(session, interaction)
	case strings.HasPrefix(id, application.AcceptPrefix), strings.HasPrefix(id, application.DenyPrefix):
		if !interactionStaff(interaction) {
			b.respond(session, interaction, "Only staff can review applications.", true)
			return
		}
		b.openReviewModal(session, interaction, id)
	case id == ButtonCloseTicket:
		b.closeTicket(ctx, session, interaction, user.ID)
	}
}

func (b *Bot) openReviewModal(session *discordgo.Session, interaction *discordgo.InteractionCreate, buttonID string) {
	_, accepted, ok := application.ParseReviewID(buttonID)
	if !ok {
		return
	}
	title := "Deny Application"
	if accepted {
		title = "Accept Application"
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: reviewModalPrefix + buttonID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    reviewReasonInput,
						Label:       "Reason",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "Shown to the applicant",
						Required:    !accepted,
						MaxLength:   1000,
					},
				}},
			},
		},
	}); err != nil {
		b.logger.Warn("review modal failed", zap.Error(err))
	}
}

var (
	errNotReview = errors.New("not a review submission")
	errNotStaff  = errors.New("reviewer is not staff")
)

func (b *Bot) handleModal(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	decision, err := reviewDecision(interaction)
	if errors.Is(err, errNotStaff) {
		b.respond(session, interaction, "Only staff can review applications.", true)
		return
	}
	if err != nil {
		return
	}

	card := b.app.Review(ctx, decision)

	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{reviewedEmbed(interaction.Message, card)},
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		b.logger.Warn("review update failed", zap.String("applicant", decision.Applicant), zap.Error(err))
	}
}

// reviewDecision reads a submitted review modal; the submitter must still be staff.
func reviewDecision(interaction *discordgo.InteractionCreate) (application.Decision, error) {
	data := interaction.ModalSubmitData()
	buttonID, ok := strings.CutPrefix(data.CustomID, reviewModalPrefix)
	if !ok {
		return application.Decision{}, errNotReview
	}
	applicant, accepted, ok := application.ParseReviewID(buttonID)
	user := interactionUser(interaction)
	if !ok || user == nil {
		return application.Decision{}, errNotReview
	}
	if !interactionStaff(interaction) {
		return application.Decision{}, errNotStaff
	}
	return application.Decision{
		Applicant: applicant,
		Reviewer:  "<@" + user.ID + ">",
		Accepted:  accepted,
		Reason:    modalValue(data, reviewReasonInput),
	}, nil
}

func (b *Bot) closeTicket(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID string) {
	channel, ok := b.ticketChannel(ctx, interaction.ChannelID)
	if !ok {
		b.respond(session, interaction, "This channel is not a ticket.", true)
		return
	}
	if !b.closer.ScheduleClose(ctx, ticket.IdentityFor(channel), channel.ID, userID) {
		b.respond(session, interaction, "This ticket is already closing.", true)
		return
	}
	b.respond(session, interaction, "Closing ticket...", true)
}

func (b *Bot) handleCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.ApplicationCommandData()
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, commandEmbed("Supreme BOT", "This command only works in a server.", chat.ColorDanger, nil), true)
		return
	}
	user := interactionUser(interaction)
	if user == nil {
		return
	}

	switch data.Name {
	case "mm-panel":
		b.handlePanel(ctx, session, interaction, optionMap(data.Options))
	case "mm-reset":
		opts := optionMap(data.Options)
		target, ok := opts["user"]
		if !ok {
			b.respond(session, interaction, "Pick a user to reset.", true)
			return
		}
		applicant := target.UserValue(nil).ID
		b.app.Reset(ctx, applicant)
		b.logger.Info("application reset", zap.String("user_id", applicant), zap.String("by", user.ID))
		b.respondEmbed(session, interaction, commandEmbed("Application Reset", fmt.Sprintf("<@%s> can apply again.", applicant), chat.ColorSuccess, nil), true)
	case "ticket":
		sub, opts := subcommand(data.Options)
		b.handleTicketCommand(ctx, session, interaction, user.ID, sub, opts)
	case "training":
		sub, opts := subcommand(data.Options)
		b.handleTrainingCommand(ctx, session, interaction, user.ID, sub, opts)
	default:
		b.respondEmbed(session, interaction, commandEmbed("Supreme BOT", "Unknown command.", chat.ColorDanger, nil), true)
	}
}

func (b *Bot) handlePanel(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	channelID := interaction.ChannelID
	if opt, ok := opts["channel"]; ok {
		channelID = opt.ChannelValue(nil).ID
	}
	title := b.cfg.Application.Title
	if title == "" {
		title = "MM Trainee Application"
	}
	if _, err := b.messenger.Send(ctx, channelID, application.PanelMessage(title)); err != nil {
		b.logger.Warn("panel post failed", zap.String("channel_id", channelID), zap.Error(err))
		b.respondEmbed(session, interaction, commandEmbed("Application Panel", "Could not post the panel in that channel.", chat.ColorDanger, nil), true)
		return
	}
	b.respondEmbed(session, interaction, commandEmbed("Application Panel", fmt.Sprintf("Panel posted in <#%s>.", channelID), chat.ColorSuccess, nil), true)
}

func (b *Bot) handleTicketCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if sub == "close" {
		b.closeTicket(ctx, session, interaction, userID)
		return
	}
	channel, ok := b.ticketChannel(ctx, interaction.ChannelID)
	if !ok {
		b.respond(session, interaction, "This channel is not a ticket.", true)
		return
	}
	id := ticket.IdentityFor(channel)

	switch sub {
	case "ai-enable":
		text := "AI replies were already on for this ticket."
		if b.tickets.EnableAI(ctx, id) {
			text = "AI replies are back on. The trade setup resumes where it stopped."
		}
		b.respondEmbed(session, interaction, commandEmbed("Ticket AI", text, chat.ColorSuccess, nil), true)
	case "ai-disable":
		text := "AI replies were already off for this ticket."
		if b.tickets.DisableAI(ctx, id) {
			text = "AI replies are off for this ticket."
		}
		b.respondEmbed(session, interaction, commandEmbed("Ticket AI", text, chat.ColorWarning, nil), true)
	default:
		b.respondEmbed(session, interaction, commandEmbed("Ticket", "Unknown subcommand.", chat.ColorDanger, nil), true)
	}
}

func (b *Bot) handleTrainingCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, userID, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	switch sub {
	case "add":
		entry := storage.Training{
			Query:    stringOption(opts, "query"),
			Response: stringOption(opts, "response"),
			Category: stringOption(opts, "category"),
		}
		entry.DataPointName = stringOption(opts, "data_point")
		if opt, ok := opts["next_step"]; ok {
			entry.NextStepID = opt.IntValue()
		}
		if strings.TrimSpace(entry.Query) == "" || strings.TrimSpace(entry.Response) == "" {
			b.respondEmbed(session, interaction, commandEmbed("Training", "Query and response are required.", chat.ColorDanger, nil), true)
			return
		}
		id, err := b.store.AddTraining(ctx, entry)
		if err != nil {
			b.logger.Warn("training add failed", zap.Error(err))
			b.respondEmbed(session, interaction, commandEmbed("Training", "Could not save the entry.", chat.ColorDanger, nil), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, "training", strconv.FormatInt(id, 10), "", "added", "by "+userID+": "+entry.Query)
		b.respondEmbed(session, interaction, commandEmbed("Training", fmt.Sprintf("Saved entry #%d.", id), chat.ColorSuccess, nil), true)
	case "list":
		var (
			entries []storage.Training
			err     error
		)
		if category := stringOption(opts, "category"); category != "" {
			entries, err = b.store.ListTrainingByCategory(ctx, category)
		} else {
			entries, err = b.store.ListTraining(ctx)
		}
		if err != nil {
			b.logger.Warn("training list failed", zap.Error(err))
			b.respondEmbed(session, interaction, commandEmbed("Training", "Could not load entries.", chat.ColorDanger, nil), true)
			return
		}
		b.respondEmbed(session, interaction, commandEmbed("Training", trainingSummary(entries, trainingListLimit), chat.ColorInfo, nil), true)
	case "delete":
		opt, ok := opts["id"]
		if !ok {
			b.respond(session, interaction, "Pick an entry id.", true)
			return
		}
		id := opt.IntValue()
		deleted, err := b.store.DeleteTraining(ctx, id)
		if err != nil || !deleted {
			b.respondEmbed(session, interaction, commandEmbed("Training", fmt.Sprintf("Entry #%d was not found.", id), chat.ColorWarning, nil), true)
			return
		}
		b.audit.Log(ctx, audit.LevelInfo, "training", strconv.FormatInt(id, 10), "", "deleted", "by "+userID)
		b.respondEmbed(session, interaction, commandEmbed("Training", fmt.Sprintf("Deleted entry #%d.", id), chat.ColorSuccess, nil), true)
	case "stats":
		report, err := b.analytics.Report(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			b.logger.Warn("report failed", zap.Error(err))
			b.respondEmbed(session, interaction, commandEmbed("Training", "Could not build the report.", chat.ColorDanger, nil), true)
			return
		}
		fields := []*discordgo.MessageEmbedField{
			{Name: "Entries", Value: strconv.Itoa(report.Totals.Trainings), Inline: true},
			{Name: "Trained replies", Value: strconv.Itoa(report.Totals.TotalUsage), Inline: true},
			{Name: "Open tickets", Value: strconv.Itoa(report.Totals.OpenTickets), Inline: true},
			{Name: "AI resolved", Value: strconv.Itoa(report.Totals.AIResolved), Inline: true},
			{Name: "Messages", Value: strconv.Itoa(report.Totals.Conversations), Inline: true},
		}
		flows := []string{b.app.Engine().Definition().Name, b.tickets.Engine().Definition().Name}
		b.respondEmbed(session, interaction, commandEmbed("Last 24 hours", formatReport(report, flows...), chat.ColorInfo, fields), true)
	default:
		b.respondEmbed(session, interaction, commandEmbed("Training", "Unknown subcommand.", chat.ColorDanger, nil), true)
	}
}

func startReply(err error) (title, text string, color int) {
	switch {
	case err == nil:
		return "Check your DMs", "The application has been sent to your direct messages.", chat.ColorSuccess
	case errors.Is(err, flow.ErrAlreadyCompleted):
		return "Already Submitted", "You have already submitted an application.", chat.ColorWarning
	case errors.Is(err, flow.ErrAlreadyActive):
		return "In Progress", "You already have an application in progress. Check your DMs.", chat.ColorWarning
	case errors.Is(err, application.ErrDirectMessagesClosed):
		return "Cannot Send DM", "Please enable direct messages from server members and try again.", chat.ColorDanger
	default:
		return "Something Went Wrong", "The application could not be started. Please try again later.", chat.ColorDanger
	}
}

// reviewedEmbed folds the decision into the staff review card.
func reviewedEmbed(message *discordgo.Message, card chat.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{}
	if message != nil && len(message.Embeds) > 0 && message.Embeds[0] != nil {
		copied := *message.Embeds[0]
		copied.Fields = append([]*discordgo.MessageEmbedField(nil), message.Embeds[0].Fields...)
		embed = &copied
	}
	embed.Title = card.Title
	embed.Color = card.Color
	for _, f := range card.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return embed
}

func trainingSummary(entries []storage.Training, limit int) string {
	if len(entries) == 0 {
		return "No training entries yet."
	}
	var b strings.Builder
	for i, e := range entries {
		if i == limit {
			fmt.Fprintf(&b, "... and %d more", len(entries)-limit)
			break
		}
		fmt.Fprintf(&b, "`#%d` [%s] %s (used %d)", e.ID, e.Category, e.Query, e.UsageCount)
		if e.Chains() {
			b.WriteString(" ↪")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func chatNotice(level, text string) chat.Message {
	color := chat.ColorWarning
	if level == audit.LevelCrit {
		color = chat.ColorDanger
	}
	return chat.Message{Text: text, Color: color, Footer: "Supreme BOT"}
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func interactionStaff(interaction *discordgo.InteractionCreate) bool {
	return interaction.Member != nil && hasStaffPermissions(interaction.Member.Permissions)
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func subcommand(options []*discordgo.ApplicationCommandInteractionDataOption) (string, map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if len(options) == 0 || options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", nil
	}
	return options[0].Name, optionMap(options[0].Options)
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := opts[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(opt.StringValue())
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actions, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actions.Components {
			if input, ok := component.(*discordgo.TextInput); ok && input.CustomID == customID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}
