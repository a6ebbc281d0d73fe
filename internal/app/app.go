// Package app assembles the element provider, tracker and caches from a
// loaded configuration. The server and the terminal viewer share it.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/star/orbitview/internal/cache"
	"github.com/star/orbitview/internal/config"
	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/tracker"
)

// ageInterval is how often dataset age gauges are refreshed.
const ageInterval = 10 * time.Second

// App holds the wired components of one process.
type App struct {
	Config     config.Config
	Store      *elements.Store
	Provider   *elements.Provider
	Paths      *cache.PathCache
	Pool       *propagation.WorkerPool
	Controller *tracker.Controller

	logger *slog.Logger
}

// New wires the components described by cfg. source may be nil, in which
// case sets are fetched from cfg.Elements.SourceURL.
func New(cfg config.Config, source elements.Source, logger *slog.Logger) *App {
	if source == nil {
		source = elements.NewFetcher(cfg.Elements.SourceURL, logger,
			elements.WithRateLimit(cfg.Elements.RateLimit),
			elements.WithMaxRetries(cfg.Elements.MaxRetries),
		)
	}

	store := elements.NewStore()
	provider := elements.NewProvider(
		source,
		elements.NewCache(cfg.Elements.CacheDir, cfg.Elements.MaxFiles),
		store,
		elements.ProviderConfig{
			MaxAge:       cfg.Elements.MaxAge,
			FetchEnabled: cfg.Elements.FetchEnabled,
			RetryAfter:   cfg.Elements.RetryAfter,
		},
		logger,
	)

	pool := propagation.NewWorkerPool(propagation.Config{
		Workers:           cfg.Tracker.Workers,
		ParallelThreshold: cfg.Tracker.ParallelThreshold,
	}, logger)
	metrics.SetTickWorkersActive(pool.Workers())

	paths := cache.NewPathCache(cache.Config{
		MaxEntries: cfg.Tracker.PathCacheEntries,
		IdleTTL:    cfg.Tracker.PathCacheIdleTTL,
	}, logger)

	ctrl := tracker.New(provider, paths, pool, tracker.Config{
		BodyRadiusKm:  cfg.Orbit.BodyRadiusKm,
		DisplayRadius: cfg.Orbit.DisplayRadius,
		SpeedConstant: cfg.Orbit.SpeedConstant,
		Segments:      cfg.Orbit.Segments,
	}, logger)

	if cfg.Markers.SeedSamples {
		for _, spec := range tracker.SampleMarkers() {
			if _, err := ctrl.AddMarker(spec); err != nil {
				logger.Warn("failed to seed marker", "name", spec.Name, "error", err)
			}
		}
	}

	return &App{
		Config:     cfg,
		Store:      store,
		Provider:   provider,
		Paths:      paths,
		Pool:       pool,
		Controller: ctrl,
		logger:     logger,
	}
}

// Preload loads every configured group and, when enabled, warms their
// orbit paths. Groups that fail to load are logged and skipped; the number
// loaded is returned.
func (a *App) Preload(ctx context.Context) int {
	loaded := 0
	for _, group := range a.Config.Elements.Groups {
		v, err := a.Controller.View(ctx, group)
		if err != nil {
			a.logger.Warn("group not loaded at startup", "group", group, "error", err)
			continue
		}
		loaded++
		a.logger.Info("group loaded",
			"group", group,
			"objects", len(v.Objects),
			"rejected", len(v.Rejected),
			"fetched_at", v.FetchedAt.Format(time.RFC3339),
		)
		if a.Config.Tracker.WarmPaths {
			n := a.Controller.WarmPaths(ctx, v)
			a.logger.Debug("orbit paths warmed", "group", group, "paths", n)
		}
	}
	return loaded
}

// Run starts the path cache sweeper and keeps dataset age gauges current
// until ctx is done.
func (a *App) Run(ctx context.Context) {
	go a.Paths.Start(ctx)

	ticker := time.NewTicker(ageInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.updateAges()
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) updateAges() {
	for _, group := range a.Store.Groups() {
		if age := a.Store.AgeSeconds(group); age >= 0 {
			metrics.SetElementDatasetAge(group, age)
		}
	}
}
