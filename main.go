// Command streamwatch is the Discord notification bot for Twitch and YouTube.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Registers a poller per configured platform and starts the monitor cycle
//     that detects live/offline transitions and new uploads.
//   - Hosts the Discord session with the /track, /untrack, /list, and
//     /setchannel slash commands.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/onnwee/streamwatch/config"
	"github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/discord"
	"github.com/onnwee/streamwatch/monitor"
	"github.com/onnwee/streamwatch/oauth"
	"github.com/onnwee/streamwatch/platform"
	"github.com/onnwee/streamwatch/server"
	"github.com/onnwee/streamwatch/store"
	"github.com/onnwee/streamwatch/telemetry"
	"github.com/onnwee/streamwatch/twitchapi"
	"github.com/onnwee/streamwatch/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("streamwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; embedded SQL as fallback for deployments
	// created before the schema_migrations table existed.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting embedded SQL fallback",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(database)

	registry := platform.NewRegistry()
	if cfg.TwitchEnabled() {
		registry.Register(twitchapi.NewPoller(cfg.TwitchClientID, cfg.TwitchClientSecret))
		slog.Info("twitch poller registered")
	}
	if cfg.YouTubeEnabled() {
		ytSvc := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})
		registry.Register(youtubeapi.NewPoller(ytSvc))
		slog.Info("youtube poller registered")
	}
	if len(registry.Names()) == 0 {
		slog.Error("no platform credentials configured, nothing to poll")
		os.Exit(1)
	}

	bot, err := discord.New(cfg.DiscordToken, st, registry)
	if err != nil {
		slog.Error("discord setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := bot.Start(); err != nil {
		slog.Error("discord start failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := bot.Stop(); err != nil {
			slog.Error("discord close failed", slog.Any("err", err))
		}
	}()

	notifier := discord.NewNotifier(bot.Session(), st)
	mon := monitor.New(st, registry, notifier, cfg.PollTimeout, cfg.UploadLookback)
	mon.Start(ctx, cfg.PollInterval)

	// Refresh the stored YouTube user token when the OAuth path is in use.
	if cfg.YTClientID != "" {
		oauth.StartRefresher(ctx, database, "youtube", 10*time.Minute, 20*time.Minute,
			func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
				oc := &oauth2.Config{
					ClientID:     cfg.YTClientID,
					ClientSecret: cfg.YTClientSecret,
					Endpoint:     google.Endpoint,
					RedirectURL:  cfg.YTRedirectURI,
				}
				newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
				if err != nil {
					return "", "", time.Time{}, "", err
				}
				return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
			})
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, st, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}
