// Package discord hosts the bot session, the slash commands that manage tracked
// streamers, and the notifier that delivers monitor intents as channel embeds.
package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/platform"
	"github.com/onnwee/streamwatch/store"
)

// Bot wraps the Discord session and the command handlers.
type Bot struct {
	session  *discordgo.Session
	store    *store.Store
	registry *platform.Registry
	commands []*discordgo.ApplicationCommand
}

func New(token string, st *store.Store, reg *platform.Registry) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{session: session, store: st, registry: reg}
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord ready", slog.Int("guilds", len(r.Guilds)))
	})
	return b, nil
}

// Session exposes the underlying session for the notifier.
func (b *Bot) Session() *discordgo.Session { return b.session }

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	slog.Info("connected to discord", slog.String("user", b.session.State.User.Username))
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) registerCommands() error {
	defs := b.commandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, cmd := range defs {
		rc, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd)
		if err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
		registered = append(registered, rc)
	}
	b.commands = registered
	slog.Info("slash commands registered", slog.Int("count", len(registered)))
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	slog.Debug("slash command", slog.String("command", data.Name), slog.String("guild", i.GuildID))

	switch data.Name {
	case "track":
		b.handleTrack(s, i)
	case "untrack":
		b.handleUntrack(s, i)
	case "list":
		b.handleList(s, i)
	case "setchannel":
		b.handleSetChannel(s, i)
	default:
		slog.Warn("unknown command", slog.String("command", data.Name))
	}
}
