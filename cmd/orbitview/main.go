package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/orbitview/internal/api"
	"github.com/star/orbitview/internal/app"
	"github.com/star/orbitview/internal/auth"
	"github.com/star/orbitview/internal/config"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/stream"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.ConfigEnv), "path to a YAML, JSON or TOML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stdout)
	for _, w := range warnings {
		logger.Warn("config value ignored", "detail", w)
	}
	logger.Info("config loaded",
		"file", *configPath,
		"groups", cfg.Elements.Groups,
		"source_url", cfg.Elements.SourceURL,
		"cache_dir", cfg.Elements.CacheDir,
		"fetch_enabled", cfg.Elements.FetchEnabled,
		"display_radius", cfg.Orbit.DisplayRadius,
		"speed_constant", cfg.Orbit.SpeedConstant,
	)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, nil, logger)
	go a.Run(ctx)

	// Readiness follows the first successful load, so preload in the
	// background while the listener is already up.
	go func() {
		n := a.Preload(ctx)
		logger.Info("startup preload finished", "groups_loaded", n, "groups_configured", len(cfg.Elements.Groups))
	}()

	streamHandler := stream.NewHandler(a.Controller, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		MaxTotal:           cfg.Stream.MaxTotal,
		Interval:           cfg.Stream.Interval,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.HTTP.TrustProxy,
	}, logger)

	srv := api.NewServer(api.Config{
		Addr:       cfg.HTTP.Addr,
		Auth:       auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
		TrustProxy: cfg.HTTP.TrustProxy,
	}, api.Deps{
		Controller: a.Controller,
		Store:      a.Store,
		Paths:      a.Paths,
		Stream:     streamHandler,
	}, logger)

	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "open_streams", streamHandler.Active())
}
