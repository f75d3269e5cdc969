package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/testutil"
)

type fakeStatus struct {
	tracked, live int
	err           error
}

func (f *fakeStatus) CountStreamers(ctx context.Context) (int, error) { return f.tracked, f.err }
func (f *fakeStatus) CountSnapshots(ctx context.Context) (int, error) { return f.live, f.err }

func TestStatusEndpoint(t *testing.T) {
	telemetry.Init()
	ts := httptest.NewServer(NewMux(nil, &fakeStatus{tracked: 5, live: 2}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID response header")
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["tracked"] != 5 || body["live"] != 2 {
		t.Fatalf("body = %v, want tracked=5 live=2", body)
	}
}

func TestStatusEndpointError(t *testing.T) {
	telemetry.Init()
	ts := httptest.NewServer(NewMux(nil, &fakeStatus{err: errors.New("db down")}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	telemetry.Init()
	ts := httptest.NewServer(NewMux(nil, &fakeStatus{}))
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/status", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("correlation id = %q, want corr-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	telemetry.Init()
	ts := httptest.NewServer(NewMux(nil, &fakeStatus{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestYouTubeOAuthEndpoints(t *testing.T) {
	telemetry.Init()
	t.Setenv("YT_CLIENT_ID", "")
	t.Setenv("YT_REDIRECT_URI", "")
	ts := httptest.NewServer(NewMux(nil, &fakeStatus{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/auth/youtube/start")
	if err != nil {
		t.Fatalf("GET /auth/youtube/start: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("start without config = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/auth/youtube/callback?code=x&state=unknown")
	if err != nil {
		t.Fatalf("GET /auth/youtube/callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("callback with unknown state = %d, want 400", resp.StatusCode)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	telemetry.Init()
	database := testutil.SetupTestDB(t)
	ts := httptest.NewServer(NewMux(database, &fakeStatus{}))
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
