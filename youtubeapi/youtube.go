// Package youtubeapi wraps the YouTube Data API v3 for channel resolution,
// live-stream lookup, and recent-upload listing. Auth is either a plain API key
// or a stored user OAuth token persisted via the TokenStore interface and
// refreshed by the oauth package.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streamwatch/config"
)

const provider = "youtube"

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

type Service struct {
	cfg   *config.Config
	db    TokenStore
	oauth *oauth2.Config

	// extra client options, used by tests to point at a mock endpoint
	opts []option.ClientOption
}

func New(cfg *config.Config, ts TokenStore, opts ...option.ClientOption) *Service {
	oc := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.readonly"},
	}
	return &Service{cfg: cfg, db: ts, oauth: oc, opts: opts}
}

// AuthCodeURL starts the optional OAuth flow for deployments without an API key.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange completes the OAuth flow and persists the token.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	_ = s.db.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "))
	return tok, nil
}

func (s *Service) storedToken(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, _, err := s.db.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, errors.New("no youtube token stored")
	}
	return &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}, nil
}

// Client returns a YouTube Data API service. An API key takes precedence; the
// stored OAuth token (auto-refreshed by the oauth2 token source) is the fallback.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	if s.cfg.YTAPIKey != "" {
		opts := append([]option.ClientOption{option.WithAPIKey(s.cfg.YTAPIKey)}, s.opts...)
		return yt.NewService(ctx, opts...)
	}
	tok, err := s.storedToken(ctx)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(s.oauth.TokenSource(ctx, tok))}, s.opts...)
	return yt.NewService(ctx, opts...)
}

// ResolveChannelID resolves a channel handle ("@name") or legacy username to a
// channel id.
func ResolveChannelID(ctx context.Context, svc *yt.Service, identifier string) (string, error) {
	call := svc.Channels.List([]string{"id"}).Context(ctx)
	if strings.HasPrefix(identifier, "@") {
		call = call.ForHandle(identifier)
	} else {
		call = call.ForUsername(identifier)
	}
	res, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube channel lookup: %w", err)
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("youtube channel %q not found", identifier)
	}
	return res.Items[0].Id, nil
}

// LiveVideoID searches for an active live broadcast on the channel; "" means
// the channel is not live.
func LiveVideoID(ctx context.Context, svc *yt.Service, channelID string) (string, error) {
	res, err := svc.Search.List([]string{"id"}).
		Context(ctx).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube live search: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Id == nil {
		return "", nil
	}
	return res.Items[0].Id.VideoId, nil
}

// VideoDetails fetches snippet, live details, and statistics for the given ids.
func VideoDetails(ctx context.Context, svc *yt.Service, ids ...string) ([]*yt.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := svc.Videos.List([]string{"snippet", "liveStreamingDetails", "statistics"}).
		Context(ctx).
		Id(ids...).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube video details: %w", err)
	}
	return res.Items, nil
}

// RecentUploadIDs lists video ids published on the channel after since, newest
// first.
func RecentUploadIDs(ctx context.Context, svc *yt.Service, channelID string, since time.Time) ([]string, error) {
	res, err := svc.Search.List([]string{"id"}).
		Context(ctx).
		ChannelId(channelID).
		Type("video").
		Order("date").
		PublishedAfter(since.UTC().Format(time.RFC3339)).
		MaxResults(10).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube uploads search: %w", err)
	}
	ids := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return ids, nil
}

// CategoryName resolves a video category id to its title; "" when unknown.
func CategoryName(ctx context.Context, svc *yt.Service, categoryID string) (string, error) {
	if categoryID == "" {
		return "", nil
	}
	res, err := svc.VideoCategories.List([]string{"snippet"}).Context(ctx).Id(categoryID).Do()
	if err != nil {
		return "", fmt.Errorf("youtube category lookup: %w", err)
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return "", nil
	}
	return res.Items[0].Snippet.Title, nil
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string { return "https://www.youtube.com/watch?v=" + videoID }
