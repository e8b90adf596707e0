package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/quakewatch/internal/api"
	"github.com/Priya8975/quakewatch/internal/config"
	"github.com/Priya8975/quakewatch/internal/engine"
	"github.com/Priya8975/quakewatch/internal/feed"
	"github.com/Priya8975/quakewatch/internal/store"
	"github.com/Priya8975/quakewatch/internal/websocket"
	"github.com/Priya8975/quakewatch/internal/worker"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := store.NewSnapshotCache()
	hub := websocket.NewHub(cache, logger)

	publishers := []engine.Publisher{hub}
	var limiter api.RefreshLimiter

	// Optional Redis relay for other processes
	if cfg.RedisURL != "" {
		redisClient, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		relay := engine.NewRelay(redisClient, cfg.RedisChannelPrefix, logger)
		publishers = append(publishers, relay)
		limiter = engine.NewRefreshLimiter(redisClient, cfg.RefreshLimit, cfg.RefreshWindow, logger)
		logger.Info("redis relay enabled",
			"snapshot_channel", relay.SnapshotChannel(),
			"new_event_channel", relay.NewEventChannel(),
		)
	}

	fanout := engine.NewFanout(logger, publishers...)
	client := feed.NewClient(cfg.FeedURL, cfg.FetchTimeout)
	poller := worker.NewPoller(client, cache, fanout, cfg.PollInterval, logger)

	router := api.NewRouter(api.Deps{
		Snapshots:  cache,
		Refresher:  poller,
		Limiter:    limiter,
		Clients:    hub,
		Poller:     poller,
		WebSocket:  hub.HandleWebSocket,
		Version:    version,
		// three missed polls
		StaleAfter: 3 * cfg.PollInterval,
		Logger:     logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		poller.Start(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("server starting",
			"port", cfg.Port,
			"feed_url", client.URL(),
			"poll_interval", cfg.PollInterval.String(),
			"publishers", fanout.Len(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
