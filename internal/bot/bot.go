package bot

import (
	"context"
	"fmt"
	"time"

	"supreme-bot/internal/analytics"
	"supreme-bot/internal/application"
	"supreme-bot/internal/audit"
	"supreme-bot/internal/config"
	"supreme-bot/internal/playbook"
	"supreme-bot/internal/storage"
	"supreme-bot/internal/ticket"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// staffPermissions are the channel permissions that mark a member as staff.
const staffPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageMessages

const handlerTimeout = 45 * time.Second

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	session   *discordgo.Session
	messenger *Messenger
	app       *application.Service
	tickets   *ticket.Service
	closer    *playbook.Engine
	audit     *audit.Logger
	analytics *analytics.Service
}

// Services are the flow services the gateway handlers route to.
type Services struct {
	Application *application.Service
	Tickets     *ticket.Service
	Closer      *playbook.Engine
	Audit       *audit.Logger
	Analytics   *analytics.Service
}

// NewSession builds the authenticated session without connecting it.
func NewSession(cfg config.Config) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, session *discordgo.Session, messenger *Messenger, svc Services) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		session:   session,
		messenger: messenger,
		app:       svc.Application,
		tickets:   svc.Tickets,
		closer:    svc.Closer,
		audit:     svc.Audit,
		analytics: svc.Analytics,
	}
	if b.audit != nil {
		b.audit.SetNotifier(func(ctx context.Context, entry storage.FlowEvent) {
			if entry.Level == audit.LevelInfo {
				return
			}
			b.notifyAudit(ctx, entry)
		})
	}
	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil {
		return
	}
	if session.State.User != nil && msg.Author.ID == session.State.User.ID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if msg.GuildID == "" {
		if msg.Author.Bot {
			return
		}
		if err := b.app.Answer(ctx, msg.Author.ID, msg.Content); err != nil {
			b.logger.Warn("application answer failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		}
		return
	}

	channel, ok := b.ticketChannel(ctx, msg.ChannelID)
	if !ok {
		return
	}
	in := ticket.Message{
		Channel:     channel,
		MessageID:   msg.ID,
		GuildID:     msg.GuildID,
		GuildName:   b.guildName(msg.GuildID),
		AuthorID:    msg.Author.ID,
		AuthorName:  msg.Author.Username,
		AuthorBot:   msg.Author.Bot,
		AuthorStaff: !msg.Author.Bot && b.isStaff(msg.Author.ID, msg.ChannelID),
		Content:     msg.Content,
	}
	res, err := b.tickets.HandleMessage(ctx, in)
	if err != nil {
		b.logger.Warn("ticket message failed", zap.String("ticket_id", res.TicketID), zap.Error(err))
		return
	}
	b.logger.Debug("ticket message handled",
		zap.String("ticket_id", res.TicketID),
		zap.String("action", string(res.Action)),
		zap.String("source", string(res.Source)))
}

// ticketChannel resolves the channel and its category and applies the detector.
func (b *Bot) ticketChannel(ctx context.Context, channelID string) (ticket.Channel, bool) {
	ch := b.channel(channelID)
	if ch == nil || ch.Type != discordgo.ChannelTypeGuildText {
		return ticket.Channel{}, false
	}
	out := ticket.Channel{ID: ch.ID, Name: ch.Name, ParentID: ch.ParentID}
	if ch.ParentID != "" {
		if parent := b.channel(ch.ParentID); parent != nil {
			out.ParentName = parent.Name
		}
	}
	return out, b.tickets.IsTicketChannel(ctx, out)
}

func (b *Bot) channel(channelID string) *discordgo.Channel {
	ch, err := b.session.State.Channel(channelID)
	if err == nil && ch != nil {
		return ch
	}
	ch, err = b.session.Channel(channelID)
	if err != nil {
		b.logger.Debug("channel lookup failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}
	return ch
}

func (b *Bot) guildName(guildID string) string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.Name
}

func (b *Bot) isStaff(userID, channelID string) bool {
	perms, err := b.session.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		perms, err = b.session.UserChannelPermissions(userID, channelID)
		if err != nil {
			return false
		}
	}
	return hasStaffPermissions(perms)
}

func hasStaffPermissions(perms int64) bool {
	return perms&staffPermissions != 0
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.FlowEvent) {
	channelID := b.cfg.Application.LogChannelID
	if channelID == "" {
		return
	}
	text := fmt.Sprintf("**%s** %s/%s `%s`", entry.Level, entry.Flow, entry.Event, entry.Identity)
	if entry.Details != "" {
		text += "\n" + entry.Details
	}
	if _, err := b.messenger.Send(ctx, channelID, chatNotice(entry.Level, text)); err != nil {
		b.logger.Debug("audit notify failed", zap.Error(err))
	}
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Debug("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Debug("interaction respond failed", zap.Error(err))
	}
}

// acknowledge defers a component interaction whose reply goes out as a new message.
func (b *Bot) acknowledge(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		b.logger.Debug("interaction ack failed", zap.Error(err))
	}
}

func formatReport(report analytics.Report, flows ...string) string {
	text := fmt.Sprintf("Events: %d | INFO: %d | WARN: %d | CRIT: %d",
		report.Events, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
	for _, name := range flows {
		text += fmt.Sprintf("\n%s: %d started, %d completed", name, report.Started(name), report.Completed(name))
	}
	return text
}
