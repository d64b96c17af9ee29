// Command song-tender runs the live chat song request service. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs idempotent migrations, and restores the
//     queue, ledger, and catalog session snapshots.
//   - Starts the Twitch chat bot and (optionally) the YouTube live chat
//     poller, both feeding the shared command router.
//   - Exposes an HTTP server with health, overlay, metrics, and admin
//     endpoints.
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

	"github.com/onnwee/song-tender/catalog"
	"github.com/onnwee/song-tender/chat"
	"github.com/onnwee/song-tender/config"
	"github.com/onnwee/song-tender/db"
	"github.com/onnwee/song-tender/ledger"
	"github.com/onnwee/song-tender/oauth"
	"github.com/onnwee/song-tender/queue"
	"github.com/onnwee/song-tender/router"
	"github.com/onnwee/song-tender/server"
	"github.com/onnwee/song-tender/telemetry"
	"github.com/onnwee/song-tender/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("song-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx, database); err != nil {
		migrateCancel()
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}
	migrateCancel()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots := &db.SnapshotStore{DB: database}

	q := queue.New(queue.Config{Cooldown: cfg.RequestCooldown, MaxPending: cfg.MaxPending}, snapshots)
	if err := q.Load(ctx); err != nil {
		slog.Warn("queue snapshot restore failed", slog.Any("err", err))
	}

	l := ledger.New(ledger.DefaultRates(), snapshots)
	if err := l.Load(ctx); err != nil {
		slog.Warn("ledger snapshot restore failed", slog.Any("err", err))
	}

	cat := catalog.New(cfg.CatalogCommunityURL, cfg.CatalogAPIURL, cfg.CatalogUsername, cfg.CatalogPassword)
	cat.Sessions = &db.CatalogSessionStore{DB: database}
	if cfg.HasCatalogCredentials() {
		go func() {
			if cat.RestoreSession(ctx) {
				slog.Info("catalog session restored")
				return
			}
			if ok, err := cat.Login(ctx, false); err != nil {
				slog.Warn("catalog login failed, searches degrade to public strategies", slog.Any("err", err))
			} else if ok {
				slog.Info("catalog login complete")
			}
		}()
	} else {
		slog.Info("catalog credentials not set, using public search strategies only")
	}

	r := router.New(q, l, cat, router.Config{
		SearchTimeout: cfg.SearchTimeout,
		PriorityCost:  cfg.PriorityCost,
	})

	// Twitch chat transport
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("twitch chat disabled", slog.Any("err", err))
	} else {
		bot := chat.NewBot(cfg, r)
		r.WireEvents(bot)
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("twitch chat exited", slog.Any("err", err))
			}
		}()
	}

	// YouTube live chat transport
	if cfg.HasYouTube() {
		yt := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})
		poller := youtubeapi.NewPoller(yt, cfg.YTLiveChatID, r)
		r.WireEvents(poller)
		go poller.Run(ctx)

		oauth.StartRefresher(ctx, database, "youtube", 10*time.Minute, 20*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
			oc := &oauth2.Config{ClientID: cfg.YTClientID, ClientSecret: cfg.YTClientSecret, Endpoint: google.Endpoint, RedirectURL: cfg.YTRedirectURI}
			newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
			if err != nil {
				return "", "", time.Time{}, "", err
			}
			return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
		})
	} else {
		slog.Info("youtube live chat disabled (missing client credentials)")
	}

	go func() {
		handler := server.NewMux(ctx, database, q, l, r, cat)
		if err := server.Start(ctx, cfg.HTTPAddr, handler); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT (text | json).
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
