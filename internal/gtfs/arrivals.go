package gtfs

import (
	"sort"
	"strings"
	"time"
)

// Arrival is one predicted visit at a stop, ready for display.
type Arrival struct {
	RouteShortName string `json:"route_short_name"`
	RouteColor     string `json:"route_color"`
	Headsign       string `json:"headsign"`
	ScheduledTime  string `json:"scheduled_time"`
	MinutesAway    int    `json:"minutes_away"`
	IsRealtime     bool   `json:"is_realtime"`
	DelaySeconds   int    `json:"delay_seconds"`
}

// DelaySource supplies live delay observations for (trip, stop) visits.
// An absent entry means no real-time data: the visit runs as scheduled.
type DelaySource interface {
	DelayFor(tripID, stopID string) (int, bool)
}

// ArrivalOptions bounds an arrivals query. Zero values take the defaults.
type ArrivalOptions struct {
	Window time.Duration // how far ahead to look, default 60 minutes
	Limit  int           // maximum results, default 10
}

const (
	defaultWindow = 60 * time.Minute
	defaultLimit  = 10
)

// ArrivalsAt computes the upcoming arrivals for a stop at the given
// instant. Stop times whose trip service is not active on asOf's date are
// skipped, live delays from delays (may be nil) are applied, visits that
// already departed are dropped, and the rest are sorted ascending by
// minutes away (stable, so schedule order breaks ties) and truncated to
// the limit. A stop with no scheduled times yields an empty list.
func (s *Store) ArrivalsAt(stopID string, asOf time.Time, opts ArrivalOptions, delays DelaySource) []Arrival {
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	windowMinutes := int(window / time.Minute)
	nowSecs := secondsOfDay(asOf.Hour(), asOf.Minute(), asOf.Second())

	var arrivals []Arrival
	for _, st := range s.StopTimes[stopID] {
		trip, ok := s.Trips[st.TripID]
		if !ok {
			continue
		}
		if !s.ServiceActive(trip.ServiceID, asOf) {
			continue
		}

		delay := 0
		isRealtime := false
		if delays != nil {
			if d, ok := delays.DelayFor(trip.ID, stopID); ok {
				delay = d
				isRealtime = true
			}
		}

		// Post-midnight times (>= 86400) are simply larger values
		// relative to today's midnight, so the comparison holds.
		effective := st.ArrivalSecs + delay
		if effective < nowSecs {
			continue // already departed
		}

		minutesAway := (effective - nowSecs) / 60
		if minutesAway > windowMinutes {
			continue
		}

		routeShort := trip.RouteID
		routeColor := "000000"
		if route, ok := s.Routes[trip.RouteID]; ok {
			routeShort = route.ShortName
			routeColor = route.Color
		}

		arrivals = append(arrivals, Arrival{
			RouteShortName: routeShort,
			RouteColor:     routeColor,
			Headsign:       trip.Headsign,
			ScheduledTime:  st.ArrivalTime,
			MinutesAway:    minutesAway,
			IsRealtime:     isRealtime,
			DelaySeconds:   delay,
		})
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].MinutesAway < arrivals[j].MinutesAway
	})
	if len(arrivals) > limit {
		arrivals = arrivals[:limit]
	}
	return arrivals
}

// ScheduleFor returns every visit at a stop whose service is active on
// the given date, sorted by scheduled arrival, regardless of the time of
// day. It feeds the offline cache, which recomputes minutes away later.
func (s *Store) ScheduleFor(stopID string, on time.Time) []Arrival {
	var rows []Arrival
	for _, st := range s.StopTimes[stopID] {
		trip, ok := s.Trips[st.TripID]
		if !ok {
			continue
		}
		if !s.ServiceActive(trip.ServiceID, on) {
			continue
		}
		routeShort := trip.RouteID
		routeColor := "000000"
		if route, ok := s.Routes[trip.RouteID]; ok {
			routeShort = route.ShortName
			routeColor = route.Color
		}
		rows = append(rows, Arrival{
			RouteShortName: routeShort,
			RouteColor:     routeColor,
			Headsign:       trip.Headsign,
			ScheduledTime:  st.ArrivalTime,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := ParseTimeOfDay(rows[i].ScheduledTime)
		b, _ := ParseTimeOfDay(rows[j].ScheduledTime)
		return a < b
	})
	return rows
}

// SearchStops finds stops whose name, code, or id contains the query,
// case-insensitively. Results are capped at limit.
func (s *Store) SearchStops(query string, limit int) []Stop {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)

	var results []Stop
	for _, stop := range s.Stops {
		if strings.Contains(strings.ToLower(stop.Name), q) ||
			(stop.Code != "" && strings.Contains(strings.ToLower(stop.Code), q)) ||
			strings.Contains(strings.ToLower(stop.ID), q) {
			results = append(results, stop)
			if len(results) >= limit {
				break
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}
