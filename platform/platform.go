// Package platform defines the contract a streaming platform adapter must satisfy
// so the monitor can poll it, plus the registry the bot and monitor select
// adapters from by platform tag.
package platform

import (
	"context"
	"time"
)

// LiveStream is the observed live state of a single creator.
type LiveStream struct {
	Platform    string
	Username    string
	DisplayName string
	Title       string
	Category    string
	Viewers     int
	StartedAt   time.Time
	Thumbnail   string
	URL         string
}

// Upload is a recently published video.
type Upload struct {
	Platform    string
	Username    string
	DisplayName string
	Title       string
	Description string
	PublishedAt time.Time
	Views       int64
	Thumbnail   string
	URL         string
}

// LiveResult carries the outcome of a live poll for one requested username.
// Stream nil with Err nil means the creator was observed offline. A non-nil Err
// means the platform could not answer for this username this cycle; the caller
// must treat the state as unknown, not offline.
type LiveResult struct {
	Username string
	Stream   *LiveStream
	Err      error
}

// UploadResult carries recent uploads for one requested username.
type UploadResult struct {
	Username string
	Uploads  []Upload
	Err      error
}

// Poller is implemented by each platform adapter. A failure for one username must
// not prevent results for the others in the same batch; per-item failures are
// reported in the result slice, and only batch-level transport failures are
// returned as the error (in which case the whole batch yielded no data).
type Poller interface {
	// Name returns the platform tag ("twitch", "youtube").
	Name() string

	// PollLive returns exactly one LiveResult per requested username.
	PollLive(ctx context.Context, usernames []string) ([]LiveResult, error)

	// SupportsUploads reports whether PollUploads is meaningful for this platform.
	SupportsUploads() bool

	// PollUploads returns uploads published after since, one UploadResult per
	// requested username. Only called when SupportsUploads is true.
	PollUploads(ctx context.Context, usernames []string, since time.Time) ([]UploadResult, error)

	// ResolveUser verifies that username exists on the platform. Used by the
	// track command so an unresolvable name is rejected before anything is stored.
	ResolveUser(ctx context.Context, username string) error
}
