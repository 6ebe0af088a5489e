// Command miner is the process entry point: it loads the YAML config,
// authenticates against Twitch, and wires the Platform Gateway (C1), the
// PubSub Multiplexer (C2), the State Store (C3), the Watch Scheduler (C4),
// the Prediction Engine (C5), the Event Loop (C6), the Analytics Writer
// (C7), and the control-plane HTTP server into one running process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twitch-miner/predictor/internal/analytics"
	"github.com/twitch-miner/predictor/internal/auth"
	"github.com/twitch-miner/predictor/internal/config"
	"github.com/twitch-miner/predictor/internal/database"
	"github.com/twitch-miner/predictor/internal/engine"
	"github.com/twitch-miner/predictor/internal/logger"
	"github.com/twitch-miner/predictor/internal/notifications"
	"github.com/twitch-miner/predictor/internal/platform"
	"github.com/twitch-miner/predictor/internal/predictor"
	"github.com/twitch-miner/predictor/internal/pubsub"
	"github.com/twitch-miner/predictor/internal/store"
	"github.com/twitch-miner/predictor/internal/util"
	"github.com/twitch-miner/predictor/internal/version"
	"github.com/twitch-miner/predictor/internal/watch"
	"github.com/twitch-miner/predictor/internal/web"
)

var (
	configPath  = flag.String("config", "config.yaml", "path to the YAML config file")
	tokenPath   = flag.String("token", "", "path to the token store (overrides config)")
	analyticsDB = flag.String("analytics-db", "", "path to the analytics database directory (overrides config)")
	logFile     = flag.String("log-file", "", "path to the log file (overrides config)")
	simulate    = flag.Bool("simulate", false, "log decisions without placing real bets")
	debug       = flag.Bool("debug", false, "force debug-level logging")
)

// Exit codes per spec.md §6: 0 normal, 1 fatal config/auth error, 2 network
// fatal after retry budget.
const (
	exitOK           = 0
	exitConfigOrAuth = 1
	exitNetworkFatal = 2
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			fresh := config.DefaultConfig()
			if saveErr := config.SaveConfig(*configPath, &fresh); saveErr != nil {
				slog.Error("failed to write default config", "path", *configPath, "error", saveErr)
				return exitConfigOrAuth
			}
			cfg = &fresh
			slog.Info("wrote default config, edit it and add streamers", "path", *configPath)
		} else {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			return exitConfigOrAuth
		}
	}

	applyFlagOverrides(cfg)

	log, err := logger.Setup(cfg.LogFile, *debug)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return exitConfigOrAuth
	}
	defer log.Close()

	slog.Info("starting", "version", version.Version, "repo", version.RepoURL, "simulate", cfg.Simulate)

	if cfg.DeviceID == "" {
		cfg.DeviceID = util.DeviceID()
		if err := config.SaveConfig(*configPath, cfg); err != nil {
			slog.Warn("failed to persist generated device id", "error", err)
		}
	}

	st := store.New()
	for name, body := range cfg.Presets {
		st.UpsertPreset(name, body)
	}
	if len(cfg.WatchPriority) > 0 {
		st.SetWatchPriority(cfg.WatchPriority)
	}

	twitchAuth := auth.NewTwitchAuth(cfg.TokenPath, cfg.DeviceID)
	if err := twitchAuth.Login(); err != nil {
		slog.Error("authentication failed", "error", err)
		return exitConfigOrAuth
	}
	slog.Info("authenticated", "user", twitchAuth.GetUserName())

	client := platform.New(twitchAuth, cfg.DeviceID)

	// Configured streamers are named by channel_name in the YAML file;
	// resolve each to a channel_id and seed its initial live/points state
	// before the event loop and scheduler start.
	resolveCtx, cancelResolve := context.WithTimeout(context.Background(), 30*time.Second)
	resolved := 0
	for _, entry := range cfg.Streamers {
		channelID, err := client.ResolveChannel(resolveCtx, entry.ChannelName)
		if err != nil {
			slog.Warn("could not resolve configured streamer, skipping", "channel", entry.ChannelName, "error", err)
			continue
		}
		resolved++
		st.AddStreamer(channelID, entry.ChannelName, entry.Config)
		if info, err := client.StreamInfo(resolveCtx, entry.ChannelName); err == nil {
			st.SetLive(channelID, info)
		}
		if points, _, err := client.ChannelPointsBalance(resolveCtx, entry.ChannelName); err == nil {
			st.SetPoints(channelID, points)
		}
	}
	cancelResolve()

	// The gateway retries transport failures internally (internal/platform
	// backoffDelay); if every configured streamer still failed to resolve,
	// the network itself is unreachable rather than any one channel being
	// wrong, so treat it as the fatal case spec.md §6 names separately from
	// a config/auth error.
	if len(cfg.Streamers) > 0 && resolved == 0 {
		slog.Error("could not resolve any configured streamer after retries")
		return exitNetworkFatal
	}

	db, err := database.Open(cfg.Analytics.DBPath)
	if err != nil {
		slog.Error("failed to open analytics database", "error", err)
		return exitConfigOrAuth
	}
	defer db.Close()

	writer, err := analytics.NewWriter(db, time.Duration(cfg.Analytics.FlushInterval)*time.Second, cfg.Analytics.FlushRows)
	if err != nil {
		slog.Error("failed to start analytics writer", "error", err)
		return exitConfigOrAuth
	}
	repo := analytics.NewRepository(db)

	var notifier engine.Notifier
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		n, err := notifications.New(cfg.Discord.WebhookURL)
		if err != nil {
			slog.Warn("discord notifier disabled: bad webhook url", "error", err)
		} else {
			notifier = n
		}
	}

	scheduler := watch.New(st, client)
	pred := predictor.New(time.Now().UnixNano())
	mux := pubsub.NewMultiplexer(twitchAuth.GetAuthToken)

	names := func(channelID string) string {
		snap := st.Snapshot()
		if s, ok := snap.Streamers[channelID]; ok {
			return s.ChannelName
		}
		return channelID
	}
	loop := engine.New(st, client, twitchAuth, pred, writer, scheduler, notifier, names, cfg.Simulate)

	// community-points-user-v1 is scoped to the authenticated user, not to
	// any one channel, and is shared across every tracked streamer
	// (spec.md §4.2); it is submitted once, keyed by the user id, not
	// per-channel.
	if err := mux.Submit(pubsub.NewTopic(pubsub.TopicCommunityPointsUser, twitchAuth.GetUserID())); err != nil {
		slog.Warn("failed to subscribe to community points topic", "error", err)
	}

	for channelID := range st.Snapshot().Streamers {
		if err := mux.Submit(pubsub.NewTopic(pubsub.TopicPredictionsChannel, channelID)); err != nil {
			slog.Warn("failed to subscribe to predictions topic", "channel", channelID, "error", err)
		}
		if err := mux.Submit(pubsub.NewTopic(pubsub.TopicVideoPlaybackByID, channelID)); err != nil {
			slog.Warn("failed to subscribe to video playback topic", "channel", channelID, "error", err)
		}
		if err := mux.Submit(pubsub.NewTopic(pubsub.TopicRaid, channelID)); err != nil {
			slog.Warn("failed to subscribe to raid topic", "channel", channelID, "error", err)
		}
	}

	persist := func() { persistStore(*configPath, cfg, st) }

	server := web.New(web.Deps{
		Store:         st,
		Repository:    repo,
		Platform:      client,
		Predictor:     pred,
		Scheduler:     scheduler,
		Identity:      twitchAuth,
		LogFile:       cfg.LogFile,
		BasicAuthUser: cfg.ControlPlane.BasicAuthUser,
		BasicAuthPass: cfg.ControlPlane.BasicAuthPass,
		Persist:       persist,
	})
	server.Status().SetStatus(web.StatusRunning, "mining")
	server.Start(cfg.ControlPlane.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(ctx)
	go writer.Run(ctx)
	go sweepLoop(ctx, st)
	go loop.Run(ctx, mux.Events())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Warn("control plane shutdown error", "error", err)
	}
	mux.Close()

	// loop.Run drains buffered events for up to 5s on its own once ctx is
	// canceled (internal/engine.Loop.drain); give it a moment to finish
	// before the process exits.
	time.Sleep(5 * time.Second)

	return exitOK
}

func applyFlagOverrides(cfg *config.Config) {
	if *tokenPath != "" {
		cfg.TokenPath = *tokenPath
	}
	if *analyticsDB != "" {
		cfg.Analytics.DBPath = *analyticsDB
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *simulate {
		cfg.Simulate = true
	}
}

// sweepLoop periodically removes stale resolved events from the store
// (spec.md §8 invariant 3: "within 10s ± scheduler jitter").
func sweepLoop(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep(time.Now())
		}
	}
}

// persistStore rewrites the config file with the store's current tracked
// streamers, presets, and watch priority, called after any control-plane
// mutation (spec.md §6 persisted-state note).
func persistStore(path string, cfg *config.Config, st *store.Store) {
	snap := st.Snapshot()

	entries := make([]config.StreamerEntry, 0, len(snap.Streamers))
	for _, s := range snap.Streamers {
		entries = append(entries, config.StreamerEntry{ChannelName: s.ChannelName, Config: s.Config})
	}

	cfg.Streamers = entries
	cfg.Presets = snap.Presets
	cfg.WatchPriority = snap.WatchPriority

	if err := config.SaveConfig(path, cfg); err != nil {
		slog.Warn("failed to persist config", "error", err)
	}
}
