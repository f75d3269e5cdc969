// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user resolution, live stream lookup, and category names, using an app
// access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const helixBase = "https://api.twitch.tv/helix"

// HelixClient provides the methods needed for live-state polling.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// User is a Helix user record.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream is a Helix live stream record.
type Stream struct {
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

func (hc *HelixClient) get(ctx context.Context, path string, params map[string][]string, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixBase+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUsers resolves login names to user records. Unknown logins are simply
// absent from the result; callers decide whether that is an error.
func (hc *HelixClient) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	if len(logins) == 0 {
		return nil, fmt.Errorf("logins empty")
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, "/users", map[string][]string{"login": logins}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Helix accepts at most 100 user_login parameters per /streams request.
const maxStreamsPerRequest = 100

// GetStreams returns the currently-live streams among the given logins. Offline
// logins are absent from the result; that is how Helix reports offline. Logins
// beyond the per-request cap are fetched in additional requests.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, fmt.Errorf("logins empty")
	}
	var streams []Stream
	for start := 0; start < len(logins); start += maxStreamsPerRequest {
		end := start + maxStreamsPerRequest
		if end > len(logins) {
			end = len(logins)
		}
		var body struct {
			Data []Stream `json:"data"`
		}
		if err := hc.get(ctx, "/streams", map[string][]string{"user_login": logins[start:end]}, &body); err != nil {
			return nil, err
		}
		streams = append(streams, body.Data...)
	}
	return streams, nil
}

// GetGameName resolves a game/category id to its display name. Returns "" for
// the zero id (Helix uses "0" for no category).
func (hc *HelixClient) GetGameName(ctx context.Context, gameID string) (string, error) {
	if gameID == "" || gameID == "0" {
		return "", nil
	}
	var body struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/games", map[string][]string{"id": {gameID}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", nil
	}
	return body.Data[0].Name, nil
}

// WatchURL returns the canonical watch URL for a login.
func WatchURL(login string) string { return "https://twitch.tv/" + login }

// RenderThumbnail substitutes the {width}x{height} template in a Helix
// thumbnail URL.
func RenderThumbnail(tmpl string, width, height int) string {
	s := strings.ReplaceAll(tmpl, "{width}", fmt.Sprintf("%d", width))
	return strings.ReplaceAll(s, "{height}", fmt.Sprintf("%d", height))
}
