package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"supreme-bot/internal/chat"
)

// Messenger delivers chat messages through a discordgo session.
type Messenger struct {
	session *discordgo.Session
}

func NewMessenger(session *discordgo.Session) *Messenger {
	return &Messenger{session: session}
}

func (m *Messenger) SendDirect(ctx context.Context, userID string, msg chat.Message) (chat.Sent, error) {
	channelID, err := m.directChannel(ctx, userID)
	if err != nil {
		return chat.Sent{}, wrapError("send_direct", err)
	}
	return m.send(ctx, "send_direct", channelID, sendFor(msg))
}

func (m *Messenger) Send(ctx context.Context, channelID string, msg chat.Message) (chat.Sent, error) {
	return m.send(ctx, "send", channelID, sendFor(msg))
}

func (m *Messenger) Reply(ctx context.Context, channelID, messageID string, msg chat.Message) (chat.Sent, error) {
	data := sendFor(msg)
	data.Reference = &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	return m.send(ctx, "reply", channelID, data)
}

func (m *Messenger) Edit(ctx context.Context, channelID, messageID string, msg chat.Message) (chat.Sent, error) {
	if err := ctx.Err(); err != nil {
		return chat.Sent{}, wrapError("edit", err)
	}
	edited, err := m.session.ChannelMessageEditComplex(editFor(channelID, messageID, msg))
	if err != nil {
		return chat.Sent{}, wrapError("edit", err)
	}
	return chat.Sent{ChannelID: edited.ChannelID, MessageID: edited.ID}, nil
}

func (m *Messenger) EditDirect(ctx context.Context, userID, messageID string, msg chat.Message) (chat.Sent, error) {
	channelID, err := m.directChannel(ctx, userID)
	if err != nil {
		return chat.Sent{}, wrapError("edit", err)
	}
	return m.Edit(ctx, channelID, messageID, msg)
}

func (m *Messenger) DeleteChannel(ctx context.Context, channelID string) error {
	if err := ctx.Err(); err != nil {
		return wrapError("delete_channel", err)
	}
	if _, err := m.session.ChannelDelete(channelID); err != nil {
		return wrapError("delete_channel", err)
	}
	return nil
}

func (m *Messenger) send(ctx context.Context, op, channelID string, data *discordgo.MessageSend) (chat.Sent, error) {
	if err := ctx.Err(); err != nil {
		return chat.Sent{}, wrapError(op, err)
	}
	sent, err := m.session.ChannelMessageSendComplex(channelID, data)
	if err != nil {
		return chat.Sent{}, wrapError(op, err)
	}
	return chat.Sent{ChannelID: sent.ChannelID, MessageID: sent.ID}, nil
}

func (m *Messenger) directChannel(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	channel, err := m.session.UserChannelCreate(userID)
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

// wrapError keeps the REST error code so the flows can branch on it.
func wrapError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		code := 0
		if restErr.Message != nil {
			code = restErr.Message.Code
		}
		if code == 0 && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			code = chat.CodeUnknownChannel
		}
		return &chat.SendError{Op: op, Code: code, Wrapped: err}
	}
	return &chat.SendError{Op: op, Wrapped: err}
}

func sendFor(msg chat.Message) *discordgo.MessageSend {
	data := &discordgo.MessageSend{
		Content:    msg.Content,
		Components: componentsFor(msg),
	}
	if embed := embedFor(msg); embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if msg.Silent {
		data.AllowedMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	}
	return data
}

func editFor(channelID, messageID string, msg chat.Message) *discordgo.MessageEdit {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	if msg.Content != "" {
		edit.SetContent(msg.Content)
	}
	if embed := embedFor(msg); embed != nil {
		edit.SetEmbed(embed)
	}
	// An edit without controls strips the old buttons.
	components := componentsFor(msg)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = components
	return edit
}

func embedFor(msg chat.Message) *discordgo.MessageEmbed {
	if !msg.HasCard() {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Text,
		Color:       msg.Color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	return embed
}

func componentsFor(msg chat.Message) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	if msg.Select != nil {
		minValues := 1
		options := make([]discordgo.SelectMenuOption, 0, len(msg.Select.Options))
		for _, o := range msg.Select.Options {
			options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Description: o.Description})
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    msg.Select.ID,
				Placeholder: msg.Select.Placeholder,
				MinValues:   &minValues,
				MaxValues:   1,
				Options:     options,
			},
		}})
	}
	if len(msg.Buttons) > 0 {
		buttons := make([]discordgo.MessageComponent, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			buttons = append(buttons, discordgo.Button{CustomID: b.ID, Label: b.Label, Style: buttonStyle(b.Style)})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func buttonStyle(style chat.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case chat.StyleSuccess:
		return discordgo.SuccessButton
	case chat.StyleDanger:
		return discordgo.DangerButton
	case chat.StyleSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}
