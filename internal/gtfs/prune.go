package gtfs

// PruneStats reports what a prune removed, for logging.
type PruneStats struct {
	StopsRemoved  int
	TripsRemoved  int
	RoutesRemoved int
}

// Prune reduces a store to the dependency closure of the target stops:
// the stops themselves, their stop times (full per-trip detail), the trips
// referenced by those stop times, the routes and services of those trips,
// and the calendar rules and exceptions of those services. Nothing outside
// the closure survives. Each step consumes only the output of the previous
// one, so pruning an already-pruned store for the same targets returns an
// equal store.
func Prune(store *Store, stopIDs []string) (*Store, PruneStats) {
	pruned := NewStore()

	// 1. Keep only the target stops.
	for _, id := range stopIDs {
		if stop, ok := store.Stops[id]; ok {
			pruned.Stops[id] = stop
		}
	}

	// 2. Keep stop times at target stops and collect the trips they reference.
	tripIDs := make(map[string]bool)
	for _, id := range stopIDs {
		times := store.StopTimes[id]
		if len(times) == 0 {
			continue
		}
		pruned.StopTimes[id] = times
		for _, st := range times {
			tripIDs[st.TripID] = true
		}
	}

	// 3. Keep those trips and collect their routes and services.
	routeIDs := make(map[string]bool)
	serviceIDs := make(map[string]bool)
	for id := range tripIDs {
		trip, ok := store.Trips[id]
		if !ok {
			continue
		}
		pruned.Trips[id] = trip
		routeIDs[trip.RouteID] = true
		serviceIDs[trip.ServiceID] = true
	}

	// 4. Keep the referenced routes.
	for id := range routeIDs {
		if route, ok := store.Routes[id]; ok {
			pruned.Routes[id] = route
		}
	}

	// 5. Keep calendar rules and exceptions for the referenced services.
	for id := range serviceIDs {
		if entry, ok := store.Calendar[id]; ok {
			pruned.Calendar[id] = entry
		}
		if dates, ok := store.CalendarDates[id]; ok {
			pruned.CalendarDates[id] = dates
		}
	}

	stats := PruneStats{
		StopsRemoved:  len(store.Stops) - len(pruned.Stops),
		TripsRemoved:  len(store.Trips) - len(pruned.Trips),
		RoutesRemoved: len(store.Routes) - len(pruned.Routes),
	}
	return pruned, stats
}
