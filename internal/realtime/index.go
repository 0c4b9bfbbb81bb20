// Package realtime maintains a live delay index built from a GTFS-RT
// trip-updates feed. The index maps (trip, stop) visits to signed delay
// seconds; an absent entry means the visit runs as scheduled.
package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const (
	// refreshThrottle bounds how often the feed is actually fetched.
	// A Refresh inside the window is a success no-op: the index is
	// considered still fresh.
	refreshThrottle = 30 * time.Second

	fetchTimeout = 10 * time.Second
)

// Index holds the current delay observations. Refreshes replace the whole
// map at once; a failed refresh leaves the previous snapshot in place.
type Index struct {
	url    string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	delays      map[string]map[string]int // trip id -> stop id -> delay seconds
	lastRefresh time.Time
}

// NewIndex creates a delay index fed by the given GTFS-RT URL.
func NewIndex(url string, logger *slog.Logger) *Index {
	return &Index{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// DelayFor returns the delay seconds observed for a (trip, stop) visit.
// The second return is false when no real-time data exists for the visit.
func (x *Index) DelayFor(tripID, stopID string) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	stops, ok := x.delays[tripID]
	if !ok {
		return 0, false
	}
	d, ok := stops[stopID]
	return d, ok
}

// Refresh fetches and parses the feed, replacing the index wholesale.
// Within the throttle window of the last successful refresh it returns
// nil without fetching. Transport and parse failures are returned to the
// caller and leave the existing index untouched.
func (x *Index) Refresh(ctx context.Context) error {
	x.mu.RLock()
	fresh := !x.lastRefresh.IsZero() && x.now().Sub(x.lastRefresh) < refreshThrottle
	x.mu.RUnlock()
	if fresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", x.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch trip updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trip updates feed returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read trip updates body: %w", err)
	}

	return x.apply(body)
}

// apply decodes a feed message and swaps in the new delay map.
func (x *Index) apply(data []byte) error {
	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return fmt.Errorf("parse trip updates protobuf: %w", err)
	}

	delays := make(map[string]map[string]int)
	trips := 0
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		tripID := tu.GetTrip().GetTripId()
		if tripID == "" {
			continue
		}

		stopDelays := make(map[string]int)
		for _, stu := range tu.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if stopID == "" {
				continue
			}
			// Prefer the arrival delay; fall back to departure.
			switch {
			case stu.GetArrival() != nil:
				stopDelays[stopID] = int(stu.GetArrival().GetDelay())
			case stu.GetDeparture() != nil:
				stopDelays[stopID] = int(stu.GetDeparture().GetDelay())
			default:
				stopDelays[stopID] = 0
			}
		}
		if len(stopDelays) > 0 {
			delays[tripID] = stopDelays
			trips++
		}
	}

	x.mu.Lock()
	x.delays = delays
	x.lastRefresh = x.now()
	x.mu.Unlock()

	x.logger.Info("trip update delays refreshed", "trips", trips)
	return nil
}
