package platform

import (
	"context"
	"testing"
	"time"
)

type stubPoller struct{ name string }

func (s *stubPoller) Name() string          { return s.name }
func (s *stubPoller) SupportsUploads() bool { return false }
func (s *stubPoller) PollLive(ctx context.Context, usernames []string) ([]LiveResult, error) {
	return nil, nil
}
func (s *stubPoller) PollUploads(ctx context.Context, usernames []string, since time.Time) ([]UploadResult, error) {
	return nil, nil
}
func (s *stubPoller) ResolveUser(ctx context.Context, username string) error { return nil }

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubPoller{name: "twitch"})

	if _, err := r.Get("twitch"); err != nil {
		t.Fatalf("Get(twitch) error = %v", err)
	}
	if _, err := r.Get("vimeo"); err == nil {
		t.Fatal("Get(vimeo) expected error for unregistered platform")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubPoller{name: "youtube"})
	r.Register(&stubPoller{name: "twitch"})

	names := r.Names()
	if len(names) != 2 || names[0] != "twitch" || names[1] != "youtube" {
		t.Fatalf("Names() = %v, want [twitch youtube]", names)
	}
}
