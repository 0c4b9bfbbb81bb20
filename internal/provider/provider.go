// Package provider defines the schedule-provider capability and its
// concrete backends: a remote prediction API, a local GTFS feed, and a
// fallback chain that composes them with an offline cache.
package provider

import (
	"context"
	"time"

	"stopboard/internal/cache"
	"stopboard/internal/gtfs"
)

// ArrivalsResult is the single envelope every consumer receives from an
// arrivals query. Failures are carried in Err with the tagging flags;
// they are never surfaced as panics or raw errors above the chain.
type ArrivalsResult struct {
	Stop        gtfs.Stop
	Arrivals    []gtfs.Arrival
	Timestamp   time.Time
	IsConnected bool
	IsCached    bool
	Err         string
}

// Provider is the capability every schedule backend implements. A nil
// error with an empty result expresses logical absence (unknown stop, no
// active service); a non-nil error expresses backend failure (transport,
// missing data) that a caller may recover from by falling back.
type Provider interface {
	SearchStops(ctx context.Context, query string, limit int) ([]gtfs.Stop, error)
	GetStop(ctx context.Context, id string) (*gtfs.Stop, error)
	GetArrivals(ctx context.Context, stopID string) (ArrivalsResult, error)
	Refresh(ctx context.Context) error
	IsReady() bool
}

// ScheduleSource is implemented by backends that can produce the raw
// full-day schedule rows the offline cache stores.
type ScheduleSource interface {
	ScheduleRows(ctx context.Context, stopID string) ([]cache.ScheduleRow, error)
}

func toCacheStop(s gtfs.Stop) cache.Stop {
	return cache.Stop{ID: s.ID, Name: s.Name, Code: s.Code, Lat: s.Lat, Lon: s.Lon}
}

func fromCacheStop(s cache.Stop) gtfs.Stop {
	return gtfs.Stop{ID: s.ID, Name: s.Name, Code: s.Code, Lat: s.Lat, Lon: s.Lon}
}
