package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stopboard/internal/cache"
	"stopboard/internal/config"
	"stopboard/internal/gtfs"
	"stopboard/internal/provider"
	"stopboard/internal/realtime"
)

func main() {
	// A local .env is optional; the environment always wins.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg := config.Load()

	// CLI flags
	exportStops := flag.String("export-stops", "", "Comma-separated stop ids: write a pruned feed bundle and exit")
	exportOut := flag.String("out", "bundle.json", "Output path for -export-stops")
	flag.StringVar(&cfg.StopID, "stop", cfg.StopID, "GTFS stop id to display")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the feed bundle and offline cache")
	flag.Parse()

	// Context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if *exportStops != "" {
		if err := runExport(ctx, cfg, splitStops(*exportStops), *exportOut, logger); err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func splitStops(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runExport downloads the full feed, prunes it to the requested stops,
// and writes the scoped bundle for transfer to a constrained client.
func runExport(ctx context.Context, cfg *config.Config, stopIDs []string, out string, logger *slog.Logger) error {
	manager := gtfs.NewManager(gtfs.ManagerConfig{URL: cfg.GTFSURL}, logger)
	if err := manager.Refresh(ctx); err != nil {
		return err
	}

	pruned, stats := gtfs.Prune(manager.Store(), stopIDs)
	logger.Info("feed pruned for export",
		"stops", stopIDs,
		"stops_removed", stats.StopsRemoved,
		"trips_removed", stats.TripsRemoved,
		"routes_removed", stats.RoutesRemoved,
	)

	if err := gtfs.WriteBundle(out, pruned.Bundle(cfg.GTFSURL, time.Now())); err != nil {
		return err
	}
	if info, err := os.Stat(out); err == nil {
		logger.Info("bundle written", "path", out, "size_kb", info.Size()/1024)
	}
	return nil
}

// run wires the providers into a fallback chain and drives the periodic
// arrivals loop that a renderer consumes.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	offline, err := cache.Open(cfg.CachePath(), logger)
	if err != nil {
		return err
	}
	defer offline.Close()

	// The local feed is pruned to the configured stop so a constrained
	// device never holds the full dataset.
	var targets []string
	if cfg.StopID != "" {
		targets = []string{cfg.StopID}
	}
	manager := gtfs.NewManager(gtfs.ManagerConfig{
		URL:         cfg.GTFSURL,
		TargetStops: targets,
		BundlePath:  cfg.BundlePath(),
	}, logger)

	var delays *realtime.Index
	if cfg.GTFSRTURL != "" {
		delays = realtime.NewIndex(cfg.GTFSRTURL, logger)
	}
	local := provider.NewLocal(manager, delays, logger)

	var primary provider.Provider
	if cfg.Mode == config.ModeAPI {
		remote := provider.NewRemote(cfg.APIURL, logger)
		if err := remote.Refresh(ctx); err != nil {
			logger.Warn("prediction API unreachable at startup", "error", err)
		}
		primary = remote
	}

	chain := provider.NewChain(primary, local, offline, logger)
	chain.MaxArrivals = cfg.MaxArrivals

	logger.Info("stopboard started",
		"mode", cfg.Mode,
		"stop", cfg.StopID,
		"refresh_interval", cfg.RefreshInterval,
	)

	refreshFeed(ctx, manager, logger)
	tick(ctx, cfg, chain, logger)

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refreshFeed(ctx, manager, logger)
			tick(ctx, cfg, chain, logger)
		case <-ctx.Done():
			logger.Info("stopboard stopped")
			return nil
		}
	}
}

// refreshFeed re-downloads the static feed when the snapshot has aged
// out. An unconfigured feed URL is expected in API-only setups.
func refreshFeed(ctx context.Context, manager *gtfs.Manager, logger *slog.Logger) {
	if !manager.NeedsRefresh() {
		return
	}
	if err := manager.Refresh(ctx); err != nil {
		if errors.Is(err, gtfs.ErrNotConfigured) {
			logger.Info("no GTFS feed configured, running without local schedule")
			return
		}
		logger.Warn("feed refresh failed, keeping previous snapshot", "error", err)
	}
}

// tick performs one arrivals query and logs the line a renderer consumes.
func tick(ctx context.Context, cfg *config.Config, chain *provider.Chain, logger *slog.Logger) {
	if cfg.StopID == "" {
		logger.Info("no stop configured")
		return
	}
	res, _ := chain.GetArrivals(ctx, cfg.StopID)
	next := "-"
	if len(res.Arrivals) > 0 {
		a := res.Arrivals[0]
		next = a.RouteShortName + " in " + minutesLabel(a.MinutesAway)
	}
	logger.Info("arrivals updated",
		"stop", res.Stop.Name,
		"count", len(res.Arrivals),
		"connected", res.IsConnected,
		"cached", res.IsCached,
		"next", next,
		"error", res.Err,
	)
}

func minutesLabel(m int) string {
	if m <= 0 {
		return "Now"
	}
	return strconv.Itoa(m) + " min"
}
