package bot

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supreme-bot/internal/application"
	"supreme-bot/internal/chat"
	"supreme-bot/internal/flow"
	"supreme-bot/internal/storage"
)

func restError(status, code int) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: fmt.Sprintf("%d", status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "rejected"},
	}
}

func TestWrapErrorKeepsRESTCode(t *testing.T) {
	err := wrapError("send_direct", fmt.Errorf("create dm: %w", restError(http.StatusForbidden, chat.CodeCannotDMUser)))
	assert.True(t, chat.IsCode(err, chat.CodeCannotDMUser))

	var se *chat.SendError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "send_direct", se.Op)
}

func TestWrapErrorNotFoundWithoutCode(t *testing.T) {
	err := wrapError("delete_channel", restError(http.StatusNotFound, 0))
	assert.True(t, chat.IsCode(err, chat.CodeUnknownChannel))
}

func TestWrapErrorPlainError(t *testing.T) {
	err := wrapError("send", errors.New("gateway closed"))
	var se *chat.SendError
	require.True(t, errors.As(err, &se))
	assert.Zero(t, se.Code)
}

func TestSendForCardAndControls(t *testing.T) {
	data := sendFor(chat.Message{
		Content: "hi",
		Title:   "Question 1 of 3",
		Text:    "Pick one",
		Color:   chat.ColorInfo,
		Footer:  "Progress: 1/3",
		Fields:  []chat.Field{{Name: "a", Value: "b", Inline: true}},
		Select: &chat.Select{ID: "mm_app_select_0", Placeholder: "Choose", Options: []chat.Option{
			{Label: "Yes", Value: "yes"},
			{Label: "No", Value: "no"},
		}},
		Buttons: []chat.Button{{ID: application.ButtonStop, Label: "Close", Style: chat.StyleDanger}},
	})

	assert.Equal(t, "hi", data.Content)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, "Question 1 of 3", data.Embeds[0].Title)
	assert.Equal(t, "Progress: 1/3", data.Embeds[0].Footer.Text)
	require.Len(t, data.Embeds[0].Fields, 1)
	assert.Nil(t, data.AllowedMentions)

	require.Len(t, data.Components, 2)
	menuRow := data.Components[0].(discordgo.ActionsRow)
	menu := menuRow.Components[0].(discordgo.SelectMenu)
	assert.Equal(t, "mm_app_select_0", menu.CustomID)
	assert.Len(t, menu.Options, 2)
	assert.Equal(t, 1, *menu.MinValues)

	buttonRow := data.Components[1].(discordgo.ActionsRow)
	button := buttonRow.Components[0].(discordgo.Button)
	assert.Equal(t, application.ButtonStop, button.CustomID)
	assert.Equal(t, discordgo.DangerButton, button.Style)
}

func TestSendForPlainSilentReply(t *testing.T) {
	data := sendFor(chat.Message{Content: "Got it!", Silent: true})
	assert.Empty(t, data.Embeds)
	assert.Empty(t, data.Components)
	require.NotNil(t, data.AllowedMentions)
	assert.Empty(t, data.AllowedMentions.Parse)
}

func TestEditForClearsControls(t *testing.T) {
	edit := editFor("c1", "m1", chat.Message{Title: "Application Started! ✅", Color: chat.ColorSuccess})
	assert.Equal(t, "c1", edit.Channel)
	assert.Equal(t, "m1", edit.ID)
	require.Len(t, edit.Embeds, 1)
	assert.NotNil(t, edit.Components)
	assert.Empty(t, edit.Components)
	assert.Nil(t, edit.Content)
}

func TestStartReply(t *testing.T) {
	cases := []struct {
		err   error
		title string
	}{
		{nil, "Check your DMs"},
		{flow.ErrAlreadyCompleted, "Already Submitted"},
		{flow.ErrAlreadyActive, "In Progress"},
		{application.ErrDirectMessagesClosed, "Cannot Send DM"},
		{application.ErrSendFailed, "Something Went Wrong"},
	}
	for _, tc := range cases {
		title, _, _ := startReply(tc.err)
		assert.Equal(t, tc.title, title, "error %v", tc.err)
	}
}

func TestReviewedEmbedAppendsDecision(t *testing.T) {
	original := &discordgo.Message{Embeds: []*discordgo.MessageEmbed{{
		Title:  "New MM Application",
		Fields: []*discordgo.MessageEmbedField{{Name: "Age", Value: "```18```"}},
	}}}
	card := chat.Message{
		Title:  "MM Application - Accepted",
		Color:  chat.ColorSuccess,
		Fields: []chat.Field{{Name: "Decision by", Value: "<@9>", Inline: true}},
	}

	embed := reviewedEmbed(original, card)
	assert.Equal(t, "MM Application - Accepted", embed.Title)
	assert.Equal(t, chat.ColorSuccess, embed.Color)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Decision by", embed.Fields[1].Name)
	assert.Len(t, original.Embeds[0].Fields, 1)
}

func TestReviewedEmbedWithoutMessage(t *testing.T) {
	embed := reviewedEmbed(nil, chat.Message{Title: "MM Application - Denied"})
	assert.Equal(t, "MM Application - Denied", embed.Title)
}

func TestTrainingSummary(t *testing.T) {
	assert.Equal(t, "No training entries yet.", trainingSummary(nil, 5))

	entries := []storage.Training{
		{ID: 1, Category: "pricing", Query: "fee", UsageCount: 3},
		{ID: 2, Category: "trade", Query: "start", DataPointName: "user_item"},
		{ID: 3, Category: "general", Query: "hello"},
	}
	summary := trainingSummary(entries, 2)
	assert.Contains(t, summary, "`#1` [pricing] fee (used 3)")
	assert.Contains(t, summary, "`#2` [trade] start (used 0) ↪")
	assert.NotContains(t, summary, "hello")
	assert.Contains(t, summary, "and 1 more")
}

func TestHasStaffPermissions(t *testing.T) {
	assert.True(t, hasStaffPermissions(discordgo.PermissionAdministrator))
	assert.True(t, hasStaffPermissions(discordgo.PermissionManageMessages|discordgo.PermissionSendMessages))
	assert.False(t, hasStaffPermissions(discordgo.PermissionSendMessages))
}

func TestCommandDefinitions(t *testing.T) {
	names := map[string][]string{}
	for _, cmd := range commandDefinitions() {
		var subs []string
		for _, opt := range cmd.Options {
			if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
				subs = append(subs, opt.Name)
			}
		}
		names[cmd.Name] = subs
	}
	assert.Contains(t, names, "mm-panel")
	assert.Contains(t, names, "mm-reset")
	assert.Equal(t, []string{"ai-enable", "ai-disable", "close"}, names["ticket"])
	assert.Equal(t, []string{"add", "list", "delete", "stats"}, names["training"])
}

func TestSubcommandAndModalValue(t *testing.T) {
	name, opts := subcommand([]*discordgo.ApplicationCommandInteractionDataOption{{
		Type: discordgo.ApplicationCommandOptionSubCommand,
		Name: "delete",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Value: float64(4)},
		},
	}})
	assert.Equal(t, "delete", name)
	assert.Equal(t, int64(4), opts["id"].IntValue())

	name, opts = subcommand(nil)
	assert.Empty(t, name)
	assert.Nil(t, opts)

	data := discordgo.ModalSubmitInteractionData{
		CustomID: reviewModalPrefix + application.AcceptPrefix + "42",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				&discordgo.TextInput{CustomID: reviewReasonInput, Value: "  great answers "},
			}},
		},
	}
	assert.Equal(t, "great answers", modalValue(data, reviewReasonInput))
	assert.Empty(t, modalValue(data, "other"))
}

func reviewSubmission(perms int64, customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:   discordgo.InteractionModalSubmit,
		Member: &discordgo.Member{User: &discordgo.User{ID: "9"}, Permissions: perms},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: customID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: reviewReasonInput, Value: "no vouches"},
				}},
			},
		},
	}}
}

func TestReviewDecisionRequiresStaff(t *testing.T) {
	_, err := reviewDecision(reviewSubmission(discordgo.PermissionSendMessages, reviewModalPrefix+application.DenyPrefix+"42"))
	assert.ErrorIs(t, err, errNotStaff)

	d, err := reviewDecision(reviewSubmission(discordgo.PermissionManageMessages, reviewModalPrefix+application.DenyPrefix+"42"))
	require.NoError(t, err)
	assert.Equal(t, application.Decision{Applicant: "42", Reviewer: "<@9>", Accepted: false, Reason: "no vouches"}, d)

	_, err = reviewDecision(reviewSubmission(discordgo.PermissionManageMessages, "other_modal"))
	assert.ErrorIs(t, err, errNotReview)
}
