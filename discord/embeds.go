package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/streamwatch/platform"
	"github.com/onnwee/streamwatch/store"
)

const (
	colorTwitch  = 0x9146FF
	colorYouTube = 0xFF0000
	colorOffline = 0x747F8D

	descriptionExcerptLimit = 200
)

func platformColor(name string) int {
	if name == "twitch" {
		return colorTwitch
	}
	return colorYouTube
}

func platformLabel(name string) string {
	switch name {
	case "twitch":
		return "Twitch"
	case "youtube":
		return "YouTube"
	default:
		return name
	}
}

func displayName(name, username string) string {
	if name != "" {
		return name
	}
	return username
}

// LiveEmbed is the go-live announcement.
func LiveEmbed(snap *store.Snapshot) *discordgo.MessageEmbed {
	name := displayName(snap.DisplayName, snap.Username)
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s is live on %s!", name, platformLabel(snap.Platform)),
		URL:   snap.URL,
		Color: platformColor(snap.Platform),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Title", Value: orDash(snap.Title), Inline: false},
		},
	}
	if snap.Category != "" {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Category", Value: snap.Category, Inline: true})
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Viewers", Value: fmt.Sprintf("%d", snap.Viewers), Inline: true})
	if snap.Thumbnail != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: snap.Thumbnail}
	}
	if !snap.StartedAt.IsZero() {
		embed.Timestamp = snap.StartedAt.UTC().Format(time.RFC3339)
	}
	return embed
}

// OfflineEmbed is the end-of-stream notice.
func OfflineEmbed(snap *store.Snapshot) *discordgo.MessageEmbed {
	name := displayName(snap.DisplayName, snap.Username)
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s is now offline.", name),
		Color: colorOffline,
	}
}

// UploadEmbed announces a newly published video.
func UploadEmbed(up *platform.Upload) *discordgo.MessageEmbed {
	name := displayName(up.DisplayName, up.Username)
	embed := &discordgo.MessageEmbed{
		Title:       up.Title,
		URL:         up.URL,
		Color:       platformColor(up.Platform),
		Author:      &discordgo.MessageEmbedAuthor{Name: fmt.Sprintf("%s uploaded a new video", name)},
		Description: excerpt(up.Description, descriptionExcerptLimit),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Views", Value: fmt.Sprintf("%d", up.Views), Inline: true},
		},
	}
	if up.Thumbnail != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: up.Thumbnail}
	}
	if !up.PublishedAt.IsZero() {
		embed.Timestamp = up.PublishedAt.UTC().Format(time.RFC3339)
	}
	return embed
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// excerpt truncates on a rune boundary so multi-byte titles never split.
func excerpt(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
