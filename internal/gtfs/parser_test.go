package gtfs

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildZip assembles an in-memory GTFS archive from file name to CSV
// content.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestLoadBytesFullFeed(t *testing.T) {
	data := buildZip(t, map[string]string{
		"stops.txt": "stop_id,stop_code,stop_name,stop_lat,stop_lon\n" +
			"s1,1001,Main St,44.95,-93.10\n" +
			"s2,1002,Oak Ave,44.96,-93.11\n",
		"routes.txt": "route_id,route_short_name,route_long_name,route_color,route_text_color\n" +
			"r1,10,Downtown Express,FF0000,FFFFFF\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"r1,wk,t1,Downtown,0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:30:00,08:30:00,s1,1\n" +
			"t1,08:40:00,08:40:00,s2,2\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"wk,1,1,1,1,1,0,0,20250101,20251231\n",
		"calendar_dates.txt": "service_id,date,exception_type\n" +
			"wk,20250704,2\n",
	})

	store, err := LoadBytes(data, testLogger())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}

	if len(store.Stops) != 2 {
		t.Errorf("got %d stops, want 2", len(store.Stops))
	}
	stop, ok := store.GetStop("s1")
	if !ok {
		t.Fatal("stop s1 missing")
	}
	if stop.Name != "Main St" || stop.Code != "1001" || stop.Lat != 44.95 {
		t.Errorf("unexpected stop: %+v", stop)
	}

	route, ok := store.GetRoute("r1")
	if !ok || route.ShortName != "10" || route.Color != "FF0000" {
		t.Errorf("unexpected route: %+v (ok=%v)", route, ok)
	}

	trip, ok := store.GetTrip("t1")
	if !ok || trip.RouteID != "r1" || trip.ServiceID != "wk" || trip.Headsign != "Downtown" {
		t.Errorf("unexpected trip: %+v (ok=%v)", trip, ok)
	}

	times := store.StopTimesAt("s1")
	if len(times) != 1 {
		t.Fatalf("got %d stop times at s1, want 1", len(times))
	}
	if times[0].ArrivalSecs != 8*3600+30*60 {
		t.Errorf("arrival secs = %d, want %d", times[0].ArrivalSecs, 8*3600+30*60)
	}

	cal, ok := store.Calendar["wk"]
	if !ok {
		t.Fatal("calendar entry wk missing")
	}
	if !cal.Weekdays[1] || cal.Weekdays[0] || cal.Weekdays[6] {
		t.Errorf("unexpected weekdays: %v", cal.Weekdays)
	}
	if cal.StartDate != "20250101" || cal.EndDate != "20251231" {
		t.Errorf("unexpected range: %s..%s", cal.StartDate, cal.EndDate)
	}

	dates := store.CalendarDates["wk"]
	if len(dates) != 1 || dates[0].Date != "20250704" || dates[0].ExceptionType != ExceptionRemoved {
		t.Errorf("unexpected calendar dates: %+v", dates)
	}
}

func TestLoadBytesMissingTables(t *testing.T) {
	data := buildZip(t, map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\ns1,Main St,44.95,-93.10\n",
	})
	store, err := LoadBytes(data, testLogger())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(store.Stops) != 1 {
		t.Errorf("got %d stops, want 1", len(store.Stops))
	}
	if len(store.Routes) != 0 || len(store.Trips) != 0 || len(store.StopTimes) != 0 ||
		len(store.Calendar) != 0 || len(store.CalendarDates) != 0 {
		t.Error("absent tables should leave relations empty")
	}
}

func TestLoadBytesSkipsMalformedRows(t *testing.T) {
	data := buildZip(t, map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,Main St,44.95,-93.10\n" +
			"s2,Bad Lat,not-a-number,-93.11\n" +
			",No ID,44.97,-93.12\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"r1,wk,t1,Downtown,0\n" +
			"r1,wk,t2,Downtown,oops\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"t1,08:30:00,08:30:00,s1,1\n" +
			"t1,garbage,08:40:00,s1,2\n" +
			"t1,08:50:00,08:50:00,,3\n",
	})
	store, err := LoadBytes(data, testLogger())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(store.Stops) != 1 {
		t.Errorf("got %d stops, want 1 (malformed and keyless rows skipped)", len(store.Stops))
	}
	if len(store.Trips) != 1 {
		t.Errorf("got %d trips, want 1", len(store.Trips))
	}
	if len(store.StopTimesAt("s1")) != 1 {
		t.Errorf("got %d stop times, want 1", len(store.StopTimesAt("s1")))
	}
}

func TestLoadBytesDefaults(t *testing.T) {
	data := buildZip(t, map[string]string{
		"routes.txt": "route_id,route_short_name,route_long_name,route_color,route_text_color\n" +
			"r1,10,Downtown Express,,\n",
		"stops.txt": "stop_id,stop_name\ns1,No Coords\n",
	})
	store, err := LoadBytes(data, testLogger())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	route := store.Routes["r1"]
	if route.Color != "000000" || route.TextColor != "FFFFFF" {
		t.Errorf("route colors = %s/%s, want defaults 000000/FFFFFF", route.Color, route.TextColor)
	}
	stop := store.Stops["s1"]
	if stop.Lat != 0 || stop.Lon != 0 {
		t.Errorf("missing coordinates should default to zero, got %f,%f", stop.Lat, stop.Lon)
	}
}

func TestLoadBytesUnknownColumnsAndBOM(t *testing.T) {
	data := buildZip(t, map[string]string{
		"stops.txt": "\xef\xbb\xbfstop_id,stop_name,wheelchair_boarding,stop_lat,stop_lon\n" +
			"s1,Main St,1,44.95,-93.10\n",
	})
	store, err := LoadBytes(data, testLogger())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	stop, ok := store.GetStop("s1")
	if !ok {
		t.Fatal("BOM on the first header field should be stripped")
	}
	if stop.Name != "Main St" {
		t.Errorf("stop name = %q, want Main St", stop.Name)
	}
}

func TestLoadBytesNotAZip(t *testing.T) {
	if _, err := LoadBytes([]byte("not a zip archive"), testLogger()); err == nil {
		t.Error("expected error for non-zip input")
	}
}
