package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_TIMEOUT", "")
	t.Setenv("UPLOAD_LOOKBACK", "")
	t.Setenv("DB_DSN", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != 2*time.Minute {
		t.Errorf("PollInterval = %v, want 2m", cfg.PollInterval)
	}
	if cfg.PollTimeout != 15*time.Second {
		t.Errorf("PollTimeout = %v, want 15s", cfg.PollTimeout)
	}
	if cfg.UploadLookback != 24*time.Hour {
		t.Errorf("UploadLookback = %v, want 24h", cfg.UploadLookback)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default DB DSN, got empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "45s")
	t.Setenv("UPLOAD_LOOKBACK", "6h")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != 45*time.Second {
		t.Errorf("PollInterval = %v, want 45s", cfg.PollInterval)
	}
	if cfg.UploadLookback != 6*time.Hour {
		t.Errorf("UploadLookback = %v, want 6h", cfg.UploadLookback)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	for _, env := range []string{"POLL_INTERVAL", "POLL_TIMEOUT", "UPLOAD_LOOKBACK"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "not-a-duration")
			if _, err := Load(); err == nil {
				t.Errorf("expected error for invalid %s", env)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "tok")
	cfg, _ := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
	t.Setenv("DISCORD_BOT_TOKEN", "")
	cfg, _ = Load()
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error when DISCORD_BOT_TOKEN missing")
	}
}

func TestPlatformToggles(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "sec")
	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("YT_CLIENT_ID", "")
	cfg, _ := Load()
	if !cfg.TwitchEnabled() {
		t.Errorf("TwitchEnabled() = false, want true")
	}
	if cfg.YouTubeEnabled() {
		t.Errorf("YouTubeEnabled() = true, want false")
	}
	t.Setenv("YOUTUBE_API_KEY", "key")
	cfg, _ = Load()
	if !cfg.YouTubeEnabled() {
		t.Errorf("YouTubeEnabled() = false, want true with API key")
	}
}
