package gtfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// BundleVersion is bumped whenever the bundle schema changes shape.
// Readers reject bundles written with a different version.
const BundleVersion = 1

// Bundle is the serialized form of a Store: the five pruned relations plus
// provenance. It is the transfer format for scoped exports to constrained
// clients and the durable form of the device's parsed feed.
type Bundle struct {
	Version       int             `json:"version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	SourceURL     string          `json:"source_url"`
	Stops         []Stop          `json:"stops"`
	Routes        []Route         `json:"routes"`
	Trips         []Trip          `json:"trips"`
	StopTimes     []StopTime      `json:"stop_times"`
	Calendar      []CalendarEntry `json:"calendar"`
	CalendarDates []CalendarDate  `json:"calendar_dates"`
}

// Bundle flattens the store into its serialized form. Relations are
// sorted by key so repeated exports of the same store are byte-identical.
func (s *Store) Bundle(sourceURL string, generatedAt time.Time) *Bundle {
	b := &Bundle{
		Version:     BundleVersion,
		GeneratedAt: generatedAt,
		SourceURL:   sourceURL,
	}
	for _, stop := range s.Stops {
		b.Stops = append(b.Stops, stop)
	}
	sort.Slice(b.Stops, func(i, j int) bool { return b.Stops[i].ID < b.Stops[j].ID })

	for _, route := range s.Routes {
		b.Routes = append(b.Routes, route)
	}
	sort.Slice(b.Routes, func(i, j int) bool { return b.Routes[i].ID < b.Routes[j].ID })

	for _, trip := range s.Trips {
		b.Trips = append(b.Trips, trip)
	}
	sort.Slice(b.Trips, func(i, j int) bool { return b.Trips[i].ID < b.Trips[j].ID })

	stopIDs := make([]string, 0, len(s.StopTimes))
	for id := range s.StopTimes {
		stopIDs = append(stopIDs, id)
	}
	sort.Strings(stopIDs)
	for _, id := range stopIDs {
		b.StopTimes = append(b.StopTimes, s.StopTimes[id]...)
	}

	for _, entry := range s.Calendar {
		b.Calendar = append(b.Calendar, entry)
	}
	sort.Slice(b.Calendar, func(i, j int) bool { return b.Calendar[i].ServiceID < b.Calendar[j].ServiceID })

	serviceIDs := make([]string, 0, len(s.CalendarDates))
	for id := range s.CalendarDates {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)
	for _, id := range serviceIDs {
		b.CalendarDates = append(b.CalendarDates, s.CalendarDates[id]...)
	}

	return b
}

// FromBundle rebuilds a Store from its serialized form.
func FromBundle(b *Bundle) (*Store, error) {
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d (want %d)", b.Version, BundleVersion)
	}
	store := NewStore()
	for _, stop := range b.Stops {
		store.Stops[stop.ID] = stop
	}
	for _, route := range b.Routes {
		store.Routes[route.ID] = route
	}
	for _, trip := range b.Trips {
		store.Trips[trip.ID] = trip
	}
	for _, st := range b.StopTimes {
		store.StopTimes[st.StopID] = append(store.StopTimes[st.StopID], st)
	}
	for _, entry := range b.Calendar {
		store.Calendar[entry.ServiceID] = entry
	}
	for _, cd := range b.CalendarDates {
		store.CalendarDates[cd.ServiceID] = append(store.CalendarDates[cd.ServiceID], cd)
	}
	return store, nil
}

// WriteBundle writes a bundle to disk as a whole-file replacement: the
// JSON is staged in a temp file and renamed over the target, so a reader
// never observes a partially written bundle.
func WriteBundle(path string, b *Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "bundle-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace bundle: %w", err)
	}
	return nil
}

// ReadBundle reads a bundle from disk.
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}
