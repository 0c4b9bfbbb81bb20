package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stopboard/internal/cache"
	"stopboard/internal/gtfs"
	"stopboard/internal/realtime"
)

// FeedSource supplies immutable feed snapshots. *gtfs.Manager is the
// production implementation.
type FeedSource interface {
	Store() *gtfs.Store
	Ready() bool
	Refresh(ctx context.Context) error
}

// Local is a backend that serves arrivals from the locally held GTFS
// feed, overlaying live delays when a delay index is configured.
type Local struct {
	manager FeedSource
	delays  *realtime.Index // nil when no GTFS-RT feed is configured
	logger  *slog.Logger
	now     func() time.Time
}

// NewLocal creates a local-feed backend. delays may be nil.
func NewLocal(manager FeedSource, delays *realtime.Index, logger *slog.Logger) *Local {
	return &Local{
		manager: manager,
		delays:  delays,
		logger:  logger,
		now:     time.Now,
	}
}

var errFeedNotLoaded = errors.New("GTFS feed not loaded")

// SearchStops searches the loaded feed.
func (l *Local) SearchStops(ctx context.Context, query string, limit int) ([]gtfs.Stop, error) {
	store := l.manager.Store()
	if store == nil {
		return nil, errFeedNotLoaded
	}
	return store.SearchStops(query, limit), nil
}

// GetStop looks up a stop in the loaded feed.
func (l *Local) GetStop(ctx context.Context, id string) (*gtfs.Stop, error) {
	store := l.manager.Store()
	if store == nil {
		return nil, errFeedNotLoaded
	}
	stop, ok := store.GetStop(id)
	if !ok {
		return nil, nil
	}
	return &stop, nil
}

// GetArrivals computes upcoming arrivals from the feed snapshot. The
// delay index is refreshed best effort first; its throttle makes the
// extra calls free between polls, and a refresh failure only means the
// previous delays stay in effect.
func (l *Local) GetArrivals(ctx context.Context, stopID string) (ArrivalsResult, error) {
	store := l.manager.Store()
	if store == nil {
		return ArrivalsResult{}, errFeedNotLoaded
	}

	var delays gtfs.DelaySource
	if l.delays != nil {
		if err := l.delays.Refresh(ctx); err != nil {
			l.logger.Warn("trip update refresh failed, using scheduled times", "error", err)
		}
		delays = l.delays
	}

	now := l.now()
	stop, ok := store.GetStop(stopID)
	if !ok {
		return ArrivalsResult{
			Stop:      gtfs.Stop{ID: stopID, Name: "Unknown"},
			Timestamp: now,
			Err:       "stop not found",
		}, nil
	}

	return ArrivalsResult{
		Stop:        stop,
		Arrivals:    store.ArrivalsAt(stopID, now, gtfs.ArrivalOptions{}, delays),
		Timestamp:   now,
		IsConnected: true,
	}, nil
}

// ScheduleRows returns the raw full-day schedule the offline cache stores.
func (l *Local) ScheduleRows(ctx context.Context, stopID string) ([]cache.ScheduleRow, error) {
	store := l.manager.Store()
	if store == nil {
		return nil, errFeedNotLoaded
	}
	schedule := store.ScheduleFor(stopID, l.now())
	rows := make([]cache.ScheduleRow, 0, len(schedule))
	for _, a := range schedule {
		rows = append(rows, cache.ScheduleRow{
			RouteShortName: a.RouteShortName,
			RouteColor:     a.RouteColor,
			Headsign:       a.Headsign,
			ArrivalTime:    a.ScheduledTime,
		})
	}
	return rows, nil
}

// Refresh downloads and publishes a new feed snapshot.
func (l *Local) Refresh(ctx context.Context) error {
	return l.manager.Refresh(ctx)
}

// IsReady reports whether a feed snapshot is loaded.
func (l *Local) IsReady() bool {
	return l.manager.Ready()
}
