package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"stopboard/internal/cache"
	"stopboard/internal/gtfs"
)

// displayMax caps the combined arrival list handed to the display.
const displayMax = 8

// Chain composes backends in priority order: a primary (remote API), a
// secondary (local feed), and the offline cache as the last resort. Every
// failure path returns a fully formed, tagged ArrivalsResult; nothing
// above the chain ever receives a raw parse or network error.
// OfflineStore is the offline cache capability the chain consults when
// every live backend fails. *cache.Cache is the production implementation.
type OfflineStore interface {
	Stale(stopID string) bool
	Load(stopID string) (cache.Stop, []cache.ScheduleRow, bool)
	Save(stopID string, stop cache.Stop, rows []cache.ScheduleRow) error
}

type Chain struct {
	primary   Provider     // may be nil
	secondary Provider     // may be nil
	offline   OfflineStore // may be nil
	logger    *slog.Logger
	now       func() time.Time

	// MaxArrivals caps the combined list when supplementing primary
	// results with scheduled arrivals.
	MaxArrivals int
}

// NewChain builds the orchestrator. Either backend may be nil; the chain
// simply skips absent links.
func NewChain(primary, secondary Provider, offline OfflineStore, logger *slog.Logger) *Chain {
	return &Chain{
		primary:     primary,
		secondary:   secondary,
		offline:     offline,
		logger:      logger,
		now:         time.Now,
		MaxArrivals: displayMax,
	}
}

// GetArrivals walks the fallback chain. The returned error is always nil:
// failures are folded into the result's tags and Err text.
func (c *Chain) GetArrivals(ctx context.Context, stopID string) (ArrivalsResult, error) {
	if c.primary != nil {
		res, err := c.primary.GetArrivals(ctx, stopID)
		if err == nil {
			res.IsConnected = true
			res.IsCached = false
			if c.secondary != nil && c.secondary.IsReady() {
				res.Arrivals = c.supplement(ctx, stopID, res.Arrivals)
			}
			c.maybeCacheSchedule(ctx, stopID, res.Stop)
			return res, nil
		}
		c.logger.Warn("primary backend failed, falling back", "stop", stopID, "error", err)

		if c.secondary != nil && c.secondary.IsReady() {
			fallback, ferr := c.secondary.GetArrivals(ctx, stopID)
			if ferr == nil {
				fallback.IsConnected = false
				fallback.IsCached = true
				fallback.Err = fmt.Sprintf("using static schedule: %v", err)
				c.maybeCacheSchedule(ctx, stopID, fallback.Stop)
				return fallback, nil
			}
			c.logger.Warn("secondary backend failed", "stop", stopID, "error", ferr)
		}
		return c.cachedResult(stopID, err.Error()), nil
	}

	if c.secondary != nil {
		res, err := c.secondary.GetArrivals(ctx, stopID)
		if err == nil {
			res.IsConnected = true
			c.maybeCacheSchedule(ctx, stopID, res.Stop)
			return res, nil
		}
		c.logger.Warn("local backend failed", "stop", stopID, "error", err)
		return c.cachedResult(stopID, err.Error()), nil
	}

	return ArrivalsResult{
		Stop:      gtfs.Stop{ID: stopID, Name: "Unknown"},
		Timestamp: c.now(),
		Err:       "no schedule backend configured",
	}, nil
}

// supplement appends scheduled-only arrivals from the secondary backend
// beyond the horizon of the primary's predictions. Only entries strictly
// later than the latest prediction are added, so the lists never overlap,
// and the combined list is capped after concatenation (so a full
// prediction list starves the supplements rather than displacing them).
func (c *Chain) supplement(ctx context.Context, stopID string, primary []gtfs.Arrival) []gtfs.Arrival {
	maxPredicted := 0
	for _, a := range primary {
		if a.MinutesAway > maxPredicted {
			maxPredicted = a.MinutesAway
		}
	}

	sched, err := c.secondary.GetArrivals(ctx, stopID)
	if err != nil {
		c.logger.Warn("could not supplement with scheduled arrivals", "stop", stopID, "error", err)
		return capArrivals(primary, c.MaxArrivals)
	}

	combined := primary
	for _, a := range sched.Arrivals {
		if a.MinutesAway > maxPredicted {
			a.IsRealtime = false
			a.DelaySeconds = 0
			combined = append(combined, a)
		}
	}
	return capArrivals(combined, c.MaxArrivals)
}

func capArrivals(arrivals []gtfs.Arrival, max int) []gtfs.Arrival {
	if max > 0 && len(arrivals) > max {
		return arrivals[:max]
	}
	return arrivals
}

// maybeCacheSchedule refreshes the offline cache for a stop after a
// successful live computation, but only when the entry is stale.
func (c *Chain) maybeCacheSchedule(ctx context.Context, stopID string, stop gtfs.Stop) {
	if c.offline == nil || !c.offline.Stale(stopID) {
		return
	}

	var rows []cache.ScheduleRow
	var err error
	for _, p := range []Provider{c.secondary, c.primary} {
		src, ok := p.(ScheduleSource)
		if !ok || p == nil || !p.IsReady() {
			continue
		}
		rows, err = src.ScheduleRows(ctx, stopID)
		if err == nil {
			break
		}
		c.logger.Warn("schedule rows unavailable", "stop", stopID, "error", err)
	}
	if len(rows) == 0 {
		return
	}
	if err := c.offline.Save(stopID, toCacheStop(stop), rows); err != nil {
		c.logger.Warn("failed to update offline cache", "stop", stopID, "error", err)
	}
}

// cachedResult serves the offline cache when every live backend failed.
// Minutes away are recomputed against the current clock, with the same
// post-midnight handling as the arrival engine.
func (c *Chain) cachedResult(stopID, cause string) ArrivalsResult {
	now := c.now()
	if c.offline != nil {
		if stop, rows, ok := c.offline.Load(stopID); ok {
			c.logger.Info("serving arrivals from offline cache", "stop", stopID, "rows", len(rows))
			return ArrivalsResult{
				Stop:      fromCacheStop(stop),
				Arrivals:  arrivalsFromRows(rows, now),
				Timestamp: now,
				IsCached:  true,
				Err:       cause,
			}
		}
	}
	return ArrivalsResult{
		Stop:      gtfs.Stop{ID: stopID, Name: "Unknown"},
		Timestamp: now,
		Err:       cause,
	}
}

// arrivalsFromRows recomputes display arrivals from raw cached schedule
// rows relative to the load instant.
func arrivalsFromRows(rows []cache.ScheduleRow, now time.Time) []gtfs.Arrival {
	nowSecs := now.Hour()*3600 + now.Minute()*60 + now.Second()
	windowMinutes := 60

	var arrivals []gtfs.Arrival
	for _, row := range rows {
		secs, ok := gtfs.ParseTimeOfDay(row.ArrivalTime)
		if !ok || row.ArrivalTime == "" {
			continue
		}
		if secs < nowSecs {
			continue
		}
		minutes := (secs - nowSecs) / 60
		if minutes > windowMinutes {
			continue
		}
		arrivals = append(arrivals, gtfs.Arrival{
			RouteShortName: row.RouteShortName,
			RouteColor:     row.RouteColor,
			Headsign:       row.Headsign,
			ScheduledTime:  row.ArrivalTime,
			MinutesAway:    minutes,
		})
	}
	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].MinutesAway < arrivals[j].MinutesAway
	})
	if len(arrivals) > 10 {
		arrivals = arrivals[:10]
	}
	return arrivals
}

// SearchStops tries each backend in priority order.
func (c *Chain) SearchStops(ctx context.Context, query string, limit int) ([]gtfs.Stop, error) {
	for _, p := range c.backends() {
		stops, err := p.SearchStops(ctx, query, limit)
		if err == nil {
			return stops, nil
		}
		c.logger.Warn("stop search failed, trying next backend", "error", err)
	}
	return nil, nil
}

// GetStop tries each backend in priority order.
func (c *Chain) GetStop(ctx context.Context, id string) (*gtfs.Stop, error) {
	for _, p := range c.backends() {
		stop, err := p.GetStop(ctx, id)
		if err == nil {
			if stop == nil {
				continue // unknown here, maybe known downstream
			}
			return stop, nil
		}
		c.logger.Warn("stop lookup failed, trying next backend", "id", id, "error", err)
	}
	return nil, nil
}

// Refresh refreshes every configured backend. It succeeds when at least
// one backend refreshed.
func (c *Chain) Refresh(ctx context.Context) error {
	var lastErr error
	ok := false
	for _, p := range c.backends() {
		if err := p.Refresh(ctx); err != nil {
			c.logger.Warn("backend refresh failed", "error", err)
			lastErr = err
			continue
		}
		ok = true
	}
	if ok {
		return nil
	}
	return lastErr
}

// IsReady reports whether any backend can serve requests.
func (c *Chain) IsReady() bool {
	for _, p := range c.backends() {
		if p.IsReady() {
			return true
		}
	}
	return false
}

func (c *Chain) backends() []Provider {
	var out []Provider
	if c.primary != nil {
		out = append(out, c.primary)
	}
	if c.secondary != nil {
		out = append(out, c.secondary)
	}
	return out
}
