package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/streamwatch/testutil"
)

func testPoller(server *httptest.Server) *Poller {
	p := NewPoller("test-client-id", "test-secret")
	p.Client = testClient(server)
	return p
}

func TestPollLiveMapsResults(t *testing.T) {
	gameRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/helix/streams":
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{
						"user_login": "alice", "user_name": "Alice", "game_id": "99",
						"title": "T1", "viewer_count": 10,
						"started_at":    "2024-10-15T14:30:00Z",
						"thumbnail_url": "https://cdn/{width}x{height}.jpg",
					},
					{
						"user_login": "carol", "user_name": "Carol", "game_id": "99",
						"title": "T2", "viewer_count": 20,
						"started_at":    "2024-10-15T15:00:00Z",
						"thumbnail_url": "https://cdn/c-{width}x{height}.jpg",
					},
				},
			})
		case "/helix/games":
			gameRequests++
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"name": "Chess"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	results, err := testPoller(server).PollLive(context.Background(), []string{"alice", "bob", "carol"})
	if err != nil {
		t.Fatalf("PollLive() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per requested username", len(results))
	}
	if results[0].Username != "alice" || results[0].Stream == nil {
		t.Fatalf("alice result = %+v, want live", results[0])
	}
	if results[0].Stream.Category != "Chess" {
		t.Errorf("alice category = %q, want Chess", results[0].Stream.Category)
	}
	if results[0].Stream.Thumbnail != "https://cdn/320x180.jpg" {
		t.Errorf("alice thumbnail = %q", results[0].Stream.Thumbnail)
	}
	if results[0].Stream.URL != "https://twitch.tv/alice" {
		t.Errorf("alice url = %q", results[0].Stream.URL)
	}
	if results[1].Username != "bob" || results[1].Stream != nil || results[1].Err != nil {
		t.Fatalf("bob result = %+v, want offline", results[1])
	}
	if results[2].Stream == nil || results[2].Stream.Viewers != 20 {
		t.Fatalf("carol result = %+v, want live with 20 viewers", results[2])
	}
	// Both live streams share a game id; the cache collapses it to one lookup.
	if gameRequests != 1 {
		t.Errorf("game lookups = %d, want 1 (cached)", gameRequests)
	}
}

func TestPollLiveBatchFailure(t *testing.T) {
	server := testutil.NewMockTwitchServer(t)
	server.MockError("/helix/streams", http.StatusBadGateway)

	if _, err := testPoller(server.Server).PollLive(context.Background(), []string{"alice"}); err == nil {
		t.Fatal("expected batch error on 5xx")
	}
}

func TestResolveUser(t *testing.T) {
	server := testutil.NewMockTwitchServer(t)
	server.MockUsersResponse(map[string]string{"id": "1", "login": "alice", "display_name": "Alice"})

	p := testPoller(server.Server)
	if err := p.ResolveUser(context.Background(), "Alice"); err != nil {
		t.Errorf("ResolveUser(Alice) error = %v (login match is case-insensitive)", err)
	}
	if err := p.ResolveUser(context.Background(), "ghost"); err == nil {
		t.Error("ResolveUser(ghost) expected not-found error")
	}
}

func TestPollUploadsUnsupported(t *testing.T) {
	p := NewPoller("id", "secret")
	if p.SupportsUploads() {
		t.Fatal("twitch poller should not support uploads")
	}
	if _, err := p.PollUploads(context.Background(), []string{"alice"}, time.Now()); err == nil {
		t.Fatal("PollUploads should fail for twitch")
	}
}
