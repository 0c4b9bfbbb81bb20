package gtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
)

// Raw row types mirror the GTFS column names. All fields are decoded as
// strings and normalized afterwards so a single malformed value can skip
// one row instead of failing the whole table.

type stopRow struct {
	StopID   string `csv:"stop_id"`
	StopCode string `csv:"stop_code"`
	StopName string `csv:"stop_name"`
	StopLat  string `csv:"stop_lat"`
	StopLon  string `csv:"stop_lon"`
}

type routeRow struct {
	RouteID        string `csv:"route_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
	RouteColor     string `csv:"route_color"`
	RouteTextColor string `csv:"route_text_color"`
}

type tripRow struct {
	TripID       string `csv:"trip_id"`
	RouteID      string `csv:"route_id"`
	ServiceID    string `csv:"service_id"`
	TripHeadsign string `csv:"trip_headsign"`
	DirectionID  string `csv:"direction_id"`
}

type stopTimeRow struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
}

type calendarRow struct {
	ServiceID string `csv:"service_id"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type calendarDateRow struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

// LoadZip parses a GTFS zip archive from a file on disk.
func LoadZip(path string, logger *slog.Logger) (*Store, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()
	return load(&r.Reader, logger)
}

// LoadBytes parses a GTFS zip archive held in memory.
func LoadBytes(data []byte, logger *slog.Logger) (*Store, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	return load(zr, logger)
}

// load decodes each known table that is present in the archive. An absent
// table leaves the corresponding relation empty rather than failing the load.
func load(zr *zip.Reader, logger *slog.Logger) (*Store, error) {
	store := NewStore()

	for _, f := range zr.File {
		var err error
		switch f.Name {
		case "stops.txt":
			err = parseTable(f, func(r stopRow) { store.addStop(r) })
		case "routes.txt":
			err = parseTable(f, func(r routeRow) { store.addRoute(r) })
		case "trips.txt":
			err = parseTable(f, func(r tripRow) { store.addTrip(r) })
		case "stop_times.txt":
			err = parseTable(f, func(r stopTimeRow) { store.addStopTime(r) })
		case "calendar.txt":
			err = parseTable(f, func(r calendarRow) { store.addCalendar(r) })
		case "calendar_dates.txt":
			err = parseTable(f, func(r calendarDateRow) { store.addCalendarDate(r) })
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
	}

	logger.Info("GTFS feed parsed",
		"stops", len(store.Stops),
		"routes", len(store.Routes),
		"trips", len(store.Trips),
		"calendar", len(store.Calendar),
		"calendar_dates", len(store.CalendarDates),
	)

	return store, nil
}

// addStop normalizes a raw stop row. Rows without a stop_id are skipped;
// a malformed coordinate skips the row.
func (s *Store) addStop(r stopRow) {
	if r.StopID == "" {
		return
	}
	lat, ok := parseFloat(r.StopLat)
	if !ok {
		return
	}
	lon, ok := parseFloat(r.StopLon)
	if !ok {
		return
	}
	s.Stops[r.StopID] = Stop{
		ID:   r.StopID,
		Name: r.StopName,
		Code: r.StopCode,
		Lat:  lat,
		Lon:  lon,
	}
}

func (s *Store) addRoute(r routeRow) {
	if r.RouteID == "" {
		return
	}
	color := r.RouteColor
	if color == "" {
		color = "000000"
	}
	textColor := r.RouteTextColor
	if textColor == "" {
		textColor = "FFFFFF"
	}
	s.Routes[r.RouteID] = Route{
		ID:        r.RouteID,
		ShortName: r.RouteShortName,
		LongName:  r.RouteLongName,
		Color:     color,
		TextColor: textColor,
	}
}

func (s *Store) addTrip(r tripRow) {
	if r.TripID == "" {
		return
	}
	dir, ok := parseInt(r.DirectionID)
	if !ok {
		return
	}
	s.Trips[r.TripID] = Trip{
		ID:          r.TripID,
		RouteID:     r.RouteID,
		ServiceID:   r.ServiceID,
		Headsign:    r.TripHeadsign,
		DirectionID: dir,
	}
}

func (s *Store) addStopTime(r stopTimeRow) {
	if r.TripID == "" || r.StopID == "" {
		return
	}
	arrival, ok := ParseTimeOfDay(r.ArrivalTime)
	if !ok {
		return
	}
	departure, ok := ParseTimeOfDay(r.DepartureTime)
	if !ok {
		return
	}
	seq, ok := parseInt(r.StopSequence)
	if !ok {
		return
	}
	s.StopTimes[r.StopID] = append(s.StopTimes[r.StopID], StopTime{
		TripID:        r.TripID,
		StopID:        r.StopID,
		ArrivalSecs:   arrival,
		DepartureSecs: departure,
		ArrivalTime:   r.ArrivalTime,
		DepartureTime: r.DepartureTime,
		StopSequence:  seq,
	})
}

func (s *Store) addCalendar(r calendarRow) {
	if r.ServiceID == "" {
		return
	}
	entry := CalendarEntry{
		ServiceID: r.ServiceID,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
	}
	entry.Weekdays[0] = r.Sunday == "1"
	entry.Weekdays[1] = r.Monday == "1"
	entry.Weekdays[2] = r.Tuesday == "1"
	entry.Weekdays[3] = r.Wednesday == "1"
	entry.Weekdays[4] = r.Thursday == "1"
	entry.Weekdays[5] = r.Friday == "1"
	entry.Weekdays[6] = r.Saturday == "1"
	s.Calendar[r.ServiceID] = entry
}

func (s *Store) addCalendarDate(r calendarDateRow) {
	if r.ServiceID == "" || r.Date == "" {
		return
	}
	kind, ok := parseInt(r.ExceptionType)
	if !ok {
		return
	}
	s.CalendarDates[r.ServiceID] = append(s.CalendarDates[r.ServiceID], CalendarDate{
		ServiceID:     r.ServiceID,
		Date:          r.Date,
		ExceptionType: kind,
	})
}

// parseFloat parses an optional numeric field. Empty means zero; a
// non-numeric value reports failure so the caller can skip the row.
func parseFloat(v string) (float64, bool) {
	if v == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseInt(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseTable reads a single CSV file from the zip and calls fn for each
// decoded row. The header row defines column positions; columns without a
// matching csv tag on T are ignored.
func parseTable[T any](f *zip.File, fn func(T)) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	// Strip BOM from first field if present
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}

	fieldMap := buildFieldMap[T](header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		fn(decodeRecord[T](record, fieldMap))
	}

	return nil
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
}

// buildFieldMap creates a mapping from CSV column positions to struct field positions.
func buildFieldMap[T any](header []string) []fieldMapping {
	var t T
	typ := reflect.TypeOf(t)

	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("csv")
		if tag != "" {
			tagToField[tag] = i
		}
	}

	var mappings []fieldMapping
	for csvIdx, colName := range header {
		colName = strings.TrimSpace(colName)
		if fieldIdx, ok := tagToField[colName]; ok {
			mappings = append(mappings, fieldMapping{csvIndex: csvIdx, fieldIndex: fieldIdx})
		}
	}
	return mappings
}

// decodeRecord fills a struct T from a CSV record using the field mapping.
func decodeRecord[T any](record []string, fieldMap []fieldMapping) T {
	var t T
	v := reflect.ValueOf(&t).Elem()
	for _, fm := range fieldMap {
		if fm.csvIndex < len(record) {
			v.Field(fm.fieldIndex).SetString(strings.TrimSpace(record[fm.csvIndex]))
		}
	}
	return t
}
