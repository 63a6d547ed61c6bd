package bot

import "github.com/bwmarrin/discordgo"

var staffOnly = int64(discordgo.PermissionManageMessages)

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "mm-panel",
			Description:              "Post the MM application panel",
			DefaultMemberPermissions: &staffOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to post in (defaults to this one)",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:                     "mm-reset",
			Description:              "Let a member submit the MM application again",
			DefaultMemberPermissions: &staffOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to reset",
					Required:    true,
				},
			},
		},
		{
			Name:                     "ticket",
			Description:              "Manage the current ticket",
			DefaultMemberPermissions: &staffOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "ai-enable", Description: "Resume automatic replies in this ticket"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "ai-disable", Description: "Stop automatic replies in this ticket"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "close", Description: "Close this ticket after a short delay"},
			},
		},
		{
			Name:                     "training",
			Description:              "Manage trained replies",
			DefaultMemberPermissions: &staffOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a trained reply",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "query", Description: "Text that triggers the reply", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "response", Description: "Reply template, placeholders like {user_item} allowed", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Category (default general)"},
						{Type: discordgo.ApplicationCommandOptionString, Name: "data_point", Description: "Store the user's next message under this name"},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "next_step", Description: "Entry id to send after the user answers"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List trained replies",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "category", Description: "Only this category"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a trained reply",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Description: "Entry id", Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "stats", Description: "Usage and flow statistics"},
			},
		},
	}
}

// registerCommands syncs the command set, scoped to the configured guild when one is set.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	guildID := b.cfg.GuildID
	existing, err := b.session.ApplicationCommands(appID, guildID)
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, guildID, current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
	}
	return nil
}
