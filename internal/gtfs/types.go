package gtfs

import "time"

// Stop is a physical boarding point from stops.txt.
type Stop struct {
	ID   string  `json:"stop_id"`
	Name string  `json:"stop_name"`
	Code string  `json:"stop_code,omitempty"`
	Lat  float64 `json:"stop_lat"`
	Lon  float64 `json:"stop_lon"`
}

// Route is a transit line from routes.txt.
type Route struct {
	ID        string `json:"route_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Color     string `json:"route_color"`
	TextColor string `json:"route_text_color"`
}

// Trip is one scheduled run of a route from trips.txt.
type Trip struct {
	ID          string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	ServiceID   string `json:"service_id"`
	Headsign    string `json:"trip_headsign,omitempty"`
	DirectionID int    `json:"direction_id"`
}

// StopTime is one visit of a trip to a stop from stop_times.txt.
// Times are seconds since local midnight and may exceed 86400 for
// post-midnight service continuing the prior service day.
type StopTime struct {
	TripID        string `json:"trip_id"`
	StopID        string `json:"stop_id"`
	ArrivalSecs   int    `json:"arrival_secs"`
	DepartureSecs int    `json:"departure_secs"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
	StopSequence  int    `json:"stop_sequence"`
}

// CalendarEntry is a weekly recurring service pattern from calendar.txt.
// Weekdays is indexed by time.Weekday (Sunday = 0).
type CalendarEntry struct {
	ServiceID string  `json:"service_id"`
	Weekdays  [7]bool `json:"weekdays"`
	StartDate string  `json:"start_date"` // YYYYMMDD, inclusive
	EndDate   string  `json:"end_date"`   // YYYYMMDD, inclusive
}

// Exception kinds from calendar_dates.txt.
const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

// CalendarDate is a date-specific service override from calendar_dates.txt.
type CalendarDate struct {
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"` // YYYYMMDD
	ExceptionType int    `json:"exception_type"`
}

// Store holds a parsed GTFS feed, indexed for stop-level queries.
// A Store is immutable once built; refreshes build a new Store and
// swap it in wholesale.
type Store struct {
	Stops         map[string]Stop
	Routes        map[string]Route
	Trips         map[string]Trip
	StopTimes     map[string][]StopTime     // keyed by stop id
	Calendar      map[string]CalendarEntry  // keyed by service id
	CalendarDates map[string][]CalendarDate // keyed by service id
}

// NewStore returns an empty Store with all indexes allocated.
func NewStore() *Store {
	return &Store{
		Stops:         make(map[string]Stop),
		Routes:        make(map[string]Route),
		Trips:         make(map[string]Trip),
		StopTimes:     make(map[string][]StopTime),
		Calendar:      make(map[string]CalendarEntry),
		CalendarDates: make(map[string][]CalendarDate),
	}
}

// GetStop looks up a stop by id.
func (s *Store) GetStop(id string) (Stop, bool) {
	stop, ok := s.Stops[id]
	return stop, ok
}

// GetRoute looks up a route by id.
func (s *Store) GetRoute(id string) (Route, bool) {
	r, ok := s.Routes[id]
	return r, ok
}

// GetTrip looks up a trip by id.
func (s *Store) GetTrip(id string) (Trip, bool) {
	t, ok := s.Trips[id]
	return t, ok
}

// StopTimesAt returns all stop times for a stop, in file order.
// Callers must sort by computed arrival instant, not file order.
func (s *Store) StopTimesAt(stopID string) []StopTime {
	return s.StopTimes[stopID]
}

// dateKey formats a date as the YYYYMMDD key used throughout the feed.
func dateKey(t time.Time) string {
	return t.Format("20060102")
}
