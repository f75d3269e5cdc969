package twitchapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/streamwatch/platform"
)

// Poller adapts HelixClient to the platform.Poller contract. Twitch reports
// live state for a whole batch of logins in one call; a login absent from the
// response is offline.
type Poller struct {
	Client *HelixClient

	gameMu    sync.Mutex
	gameNames map[string]string
}

func NewPoller(clientID, clientSecret string) *Poller {
	return &Poller{
		Client: &HelixClient{
			AppTokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret},
			ClientID:       clientID,
		},
		gameNames: make(map[string]string),
	}
}

func (p *Poller) Name() string          { return "twitch" }
func (p *Poller) SupportsUploads() bool { return false }

// PollLive polls Helix for the batch and returns one result per login.
func (p *Poller) PollLive(ctx context.Context, usernames []string) ([]platform.LiveResult, error) {
	streams, err := p.Client.GetStreams(ctx, usernames...)
	if err != nil {
		return nil, fmt.Errorf("twitch streams poll: %w", err)
	}
	byLogin := make(map[string]*Stream, len(streams))
	for i := range streams {
		byLogin[strings.ToLower(streams[i].UserLogin)] = &streams[i]
	}
	results := make([]platform.LiveResult, 0, len(usernames))
	for _, username := range usernames {
		s, ok := byLogin[strings.ToLower(username)]
		if !ok {
			results = append(results, platform.LiveResult{Username: username})
			continue
		}
		results = append(results, platform.LiveResult{Username: username, Stream: p.toLiveStream(ctx, username, s)})
	}
	return results, nil
}

func (p *Poller) toLiveStream(ctx context.Context, username string, s *Stream) *platform.LiveStream {
	return &platform.LiveStream{
		Platform:    "twitch",
		Username:    username,
		DisplayName: s.UserName,
		Title:       s.Title,
		Category:    p.gameName(ctx, s.GameID),
		Viewers:     s.ViewerCount,
		StartedAt:   s.StartedAt.UTC(),
		Thumbnail:   RenderThumbnail(s.ThumbnailURL, 320, 180),
		URL:         WatchURL(s.UserLogin),
	}
}

// gameName resolves a category id through a small process-lifetime cache;
// category names are effectively immutable.
func (p *Poller) gameName(ctx context.Context, gameID string) string {
	if gameID == "" || gameID == "0" {
		return ""
	}
	p.gameMu.Lock()
	name, ok := p.gameNames[gameID]
	p.gameMu.Unlock()
	if ok {
		return name
	}
	name, err := p.Client.GetGameName(ctx, gameID)
	if err != nil {
		slog.Warn("twitch game lookup failed", slog.String("game_id", gameID), slog.Any("err", err))
		return ""
	}
	p.gameMu.Lock()
	p.gameNames[gameID] = name
	p.gameMu.Unlock()
	return name
}

// PollUploads is not supported for Twitch.
func (p *Poller) PollUploads(ctx context.Context, usernames []string, since time.Time) ([]platform.UploadResult, error) {
	return nil, fmt.Errorf("twitch: uploads not supported")
}

// ResolveUser verifies the login exists via /helix/users.
func (p *Poller) ResolveUser(ctx context.Context, username string) error {
	users, err := p.Client.GetUsers(ctx, username)
	if err != nil {
		return fmt.Errorf("twitch user lookup: %w", err)
	}
	for _, u := range users {
		if strings.EqualFold(u.Login, username) {
			return nil
		}
	}
	return fmt.Errorf("twitch user %q not found", username)
}
