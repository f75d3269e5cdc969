package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) platformChoices() []*discordgo.ApplicationCommandOptionChoice {
	names := b.registry.Names()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(names))
	for i, name := range names {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name}
	}
	return choices
}

func (b *Bot) commandDefinitions() []*discordgo.ApplicationCommand {
	// Mutating commands are admin-gated: tracking needs channel management,
	// rerouting every notification needs server management. /list stays open.
	manageChannels := int64(discordgo.PermissionManageChannels)
	manageServer := int64(discordgo.PermissionManageServer)
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "track",
			Description:              "Track a streamer for live and upload notifications",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "platform",
					Description: "The streaming platform",
					Required:    true,
					Choices:     b.platformChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "username",
					Description: "Twitch login or YouTube handle (e.g., @channel)",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel for notifications (defaults to the server default)",
					Required:     false,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:                     "untrack",
			Description:              "Stop tracking a streamer in this server",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "platform",
					Description: "The streaming platform",
					Required:    true,
					Choices:     b.platformChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "username",
					Description: "Twitch login or YouTube handle",
					Required:    true,
				},
			},
		},
		{
			Name:        "list",
			Description: "List the streamers tracked in this server",
		},
		{
			Name:                     "setchannel",
			Description:              "Set the default channel for notifications",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "The channel to send notifications to",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
	}
}

// handleTrack validates the platform and username upstream before anything is
// persisted, so a typo never becomes a permanently-silent tracked entry.
func (b *Bot) handleTrack(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	platformName := options[0].StringValue()
	username := strings.TrimSpace(options[1].StringValue())

	// The upstream lookup can be slow; defer the reply to avoid the 3s timeout.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Error("defer response failed", slog.Any("err", err))
		return
	}

	poller, err := b.registry.Get(platformName)
	if err != nil {
		b.editResponse(s, i, fmt.Sprintf("Unknown platform `%s`.", platformName))
		return
	}
	if username == "" {
		b.editResponse(s, i, "Username must not be empty.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := poller.ResolveUser(ctx, username); err != nil {
		slog.Warn("track validation failed",
			slog.String("platform", platformName), slog.String("username", username), slog.Any("err", err))
		b.editResponse(s, i, fmt.Sprintf("Could not find `%s` on %s. Check the name and try again.", username, platformName))
		return
	}

	channelID := ""
	for _, opt := range options {
		if opt.Name == "channel" {
			channelID = opt.ChannelValue(s).ID
		}
	}
	if channelID == "" {
		channelID, _ = b.store.GetGuildChannel(ctx, i.GuildID)
	}
	if channelID == "" {
		// No explicit choice and no server default: notify where the command ran.
		channelID = i.ChannelID
	}

	if err := b.store.UpsertStreamer(ctx, platformName, username, i.GuildID, channelID); err != nil {
		slog.Error("track failed", slog.Any("err", err))
		b.editResponse(s, i, "Failed to save the streamer. Please try again.")
		return
	}
	b.editResponse(s, i, fmt.Sprintf("Now tracking `%s` on %s. Notifications go to <#%s>.", username, platformName, channelID))
}

func (b *Bot) handleUntrack(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	platformName := options[0].StringValue()
	username := strings.TrimSpace(options[1].StringValue())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamer, err := b.store.GetStreamer(ctx, platformName, username)
	if err != nil {
		slog.Error("untrack lookup failed", slog.Any("err", err))
		respondWithMessage(s, i, "Failed to look up the streamer. Please try again.")
		return
	}
	if streamer == nil || streamer.Guilds[i.GuildID] == "" {
		respondWithMessage(s, i, fmt.Sprintf("`%s` is not tracked in this server.", username))
		return
	}

	if err := b.store.RemoveStreamer(ctx, platformName, username, i.GuildID); err != nil {
		slog.Error("untrack failed", slog.Any("err", err))
		respondWithMessage(s, i, "Failed to untrack the streamer. Please try again.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Stopped tracking `%s` on %s.", username, platformName))
}

func (b *Bot) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	streamers, err := b.store.ListStreamersForGuild(ctx, i.GuildID)
	if err != nil {
		slog.Error("list failed", slog.Any("err", err))
		respondWithMessage(s, i, "Failed to retrieve the tracked list.")
		return
	}
	if len(streamers) == 0 {
		respondWithMessage(s, i, "No streamers are tracked in this server. Use `/track` to add one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Tracked streamers:**\n")
	for _, st := range streamers {
		sb.WriteString(fmt.Sprintf("- `%s` on %s → <#%s>\n", st.Username, st.Platform, st.Guilds[i.GuildID]))
	}
	respondWithMessage(s, i, sb.String())
}

func (b *Bot) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.store.SetGuildChannel(ctx, i.GuildID, channel.ID); err != nil {
		slog.Error("setchannel failed", slog.Any("err", err))
		respondWithMessage(s, i, "Failed to set the notification channel. Please try again.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Notifications will be sent to <#%s> by default.", channel.ID))
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}); err != nil {
		slog.Error("interaction respond failed", slog.Any("err", err))
	}
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		slog.Error("interaction edit failed", slog.Any("err", err))
	}
}
