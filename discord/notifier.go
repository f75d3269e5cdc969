package discord

import (
	"context"
	"log/slog"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/monitor"
	"github.com/onnwee/streamwatch/store"
	"github.com/onnwee/streamwatch/telemetry"
)

// ChannelSender is the slice of the Discord session the notifier needs.
// *discordgo.Session satisfies it; tests substitute a recorder.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// NotifierStore resolves destinations at dispatch time, so guilds that
// untracked a streamer between detection and delivery are skipped.
type NotifierStore interface {
	GetStreamer(ctx context.Context, platform, username string) (*store.Streamer, error)
}

// Notifier turns monitor intents into channel embeds. One send per destination
// channel; a failed send is logged and counted but never blocks the others and
// never rolls the transition back.
type Notifier struct {
	Sender ChannelSender
	Store  NotifierStore
}

func NewNotifier(sender ChannelSender, st NotifierStore) *Notifier {
	return &Notifier{Sender: sender, Store: st}
}

func (n *Notifier) Dispatch(ctx context.Context, intent monitor.Intent) {
	embed := embedFor(intent)
	if embed == nil {
		slog.Error("intent with no payload", slog.String("kind", string(intent.Kind)))
		return
	}

	streamer, err := n.Store.GetStreamer(ctx, intent.Platform, intent.Username)
	if err != nil {
		slog.Error("destination lookup failed",
			slog.String("platform", intent.Platform), slog.String("username", intent.Username), slog.Any("err", err))
		return
	}
	if streamer == nil {
		slog.Info("streamer untracked before delivery",
			slog.String("platform", intent.Platform), slog.String("username", intent.Username))
		return
	}

	channels := make(map[string]bool, len(streamer.Guilds))
	for _, channelID := range streamer.Guilds {
		channels[channelID] = true
	}
	ids := make([]string, 0, len(channels))
	for id := range channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, channelID := range ids {
		if _, err := n.Sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
			if telemetry.NotificationsFailed != nil {
				telemetry.NotificationsFailed.Inc()
			}
			slog.Error("notification send failed",
				slog.String("channel", channelID), slog.String("kind", string(intent.Kind)), slog.Any("err", err))
			continue
		}
		if telemetry.NotificationsSent != nil {
			telemetry.NotificationsSent.Inc()
		}
	}
}

func embedFor(intent monitor.Intent) *discordgo.MessageEmbed {
	switch intent.Kind {
	case monitor.KindWentLive:
		if intent.Stream == nil {
			return nil
		}
		return LiveEmbed(intent.Stream)
	case monitor.KindWentOffline:
		if intent.Stream == nil {
			return nil
		}
		return OfflineEmbed(intent.Stream)
	case monitor.KindNewUpload:
		if intent.Upload == nil {
			return nil
		}
		return UploadEmbed(intent.Upload)
	default:
		return nil
	}
}
