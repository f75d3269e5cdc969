package youtubeapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/streamwatch/platform"
)

// Poller adapts the YouTube Data API to the platform.Poller contract. Unlike
// Helix there is no batch live endpoint, so channels are polled one at a time
// and per-channel failures are reported per item rather than failing the batch.
type Poller struct {
	Svc *Service

	channelMu  sync.Mutex
	channelIDs map[string]string

	categoryMu    sync.Mutex
	categoryNames map[string]string
}

func NewPoller(svc *Service) *Poller {
	return &Poller{
		Svc:           svc,
		channelIDs:    make(map[string]string),
		categoryNames: make(map[string]string),
	}
}

func (p *Poller) Name() string          { return "youtube" }
func (p *Poller) SupportsUploads() bool { return true }

// channelID resolves an identifier through a process-lifetime cache; channel
// ids never change for a given handle.
func (p *Poller) channelID(ctx context.Context, svc *yt.Service, identifier string) (string, error) {
	p.channelMu.Lock()
	id, ok := p.channelIDs[identifier]
	p.channelMu.Unlock()
	if ok {
		return id, nil
	}
	id, err := ResolveChannelID(ctx, svc, identifier)
	if err != nil {
		return "", err
	}
	p.channelMu.Lock()
	p.channelIDs[identifier] = id
	p.channelMu.Unlock()
	return id, nil
}

func (p *Poller) categoryName(ctx context.Context, svc *yt.Service, id string) string {
	if id == "" {
		return ""
	}
	p.categoryMu.Lock()
	name, ok := p.categoryNames[id]
	p.categoryMu.Unlock()
	if ok {
		return name
	}
	name, err := CategoryName(ctx, svc, id)
	if err != nil {
		return ""
	}
	p.categoryMu.Lock()
	p.categoryNames[id] = name
	p.categoryMu.Unlock()
	return name
}

// PollLive checks each channel for an active broadcast. A failed lookup sets
// Err on that item only; the rest of the batch still reports.
func (p *Poller) PollLive(ctx context.Context, usernames []string) ([]platform.LiveResult, error) {
	svc, err := p.Svc.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	results := make([]platform.LiveResult, 0, len(usernames))
	for _, username := range usernames {
		stream, err := p.pollOne(ctx, svc, username)
		results = append(results, platform.LiveResult{Username: username, Stream: stream, Err: err})
	}
	return results, nil
}

func (p *Poller) pollOne(ctx context.Context, svc *yt.Service, username string) (*platform.LiveStream, error) {
	channelID, err := p.channelID(ctx, svc, username)
	if err != nil {
		return nil, err
	}
	videoID, err := LiveVideoID(ctx, svc, channelID)
	if err != nil {
		return nil, err
	}
	if videoID == "" {
		return nil, nil
	}
	videos, err := VideoDetails(ctx, svc, videoID)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 || videos[0].Snippet == nil {
		return nil, fmt.Errorf("youtube video %s: no details", videoID)
	}
	v := videos[0]
	ls := &platform.LiveStream{
		Platform:    "youtube",
		Username:    username,
		DisplayName: v.Snippet.ChannelTitle,
		Title:       v.Snippet.Title,
		Category:    p.categoryName(ctx, svc, v.Snippet.CategoryId),
		URL:         WatchURL(videoID),
	}
	if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.Medium != nil {
		ls.Thumbnail = v.Snippet.Thumbnails.Medium.Url
	}
	if v.LiveStreamingDetails != nil {
		ls.Viewers = int(v.LiveStreamingDetails.ConcurrentViewers)
		if t, err := time.Parse(time.RFC3339, v.LiveStreamingDetails.ActualStartTime); err == nil {
			ls.StartedAt = t.UTC()
		}
	}
	return ls, nil
}

// PollUploads lists videos published after since for each channel, excluding
// live or upcoming broadcasts.
func (p *Poller) PollUploads(ctx context.Context, usernames []string, since time.Time) ([]platform.UploadResult, error) {
	svc, err := p.Svc.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}
	results := make([]platform.UploadResult, 0, len(usernames))
	for _, username := range usernames {
		uploads, err := p.uploadsOne(ctx, svc, username, since)
		results = append(results, platform.UploadResult{Username: username, Uploads: uploads, Err: err})
	}
	return results, nil
}

func (p *Poller) uploadsOne(ctx context.Context, svc *yt.Service, username string, since time.Time) ([]platform.Upload, error) {
	channelID, err := p.channelID(ctx, svc, username)
	if err != nil {
		return nil, err
	}
	ids, err := RecentUploadIDs(ctx, svc, channelID, since)
	if err != nil {
		return nil, err
	}
	videos, err := VideoDetails(ctx, svc, ids...)
	if err != nil {
		return nil, err
	}
	uploads := make([]platform.Upload, 0, len(videos))
	for _, v := range videos {
		if v.Snippet == nil {
			continue
		}
		// Live and scheduled broadcasts show up in date-ordered search;
		// they belong to the live phase, not the upload feed.
		if v.Snippet.LiveBroadcastContent != "" && v.Snippet.LiveBroadcastContent != "none" {
			continue
		}
		up := platform.Upload{
			Platform:    "youtube",
			Username:    username,
			DisplayName: v.Snippet.ChannelTitle,
			Title:       v.Snippet.Title,
			Description: v.Snippet.Description,
			URL:         WatchURL(v.Id),
		}
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			up.PublishedAt = t.UTC()
		}
		if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.Medium != nil {
			up.Thumbnail = v.Snippet.Thumbnails.Medium.Url
		}
		if v.Statistics != nil {
			up.Views = int64(v.Statistics.ViewCount)
		}
		uploads = append(uploads, up)
	}
	return uploads, nil
}

// ResolveUser verifies the handle or username maps to a channel.
func (p *Poller) ResolveUser(ctx context.Context, username string) error {
	svc, err := p.Svc.Client(ctx)
	if err != nil {
		return fmt.Errorf("youtube client: %w", err)
	}
	_, err = p.channelID(ctx, svc, username)
	return err
}
