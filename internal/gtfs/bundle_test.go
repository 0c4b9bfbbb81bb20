package gtfs

import (
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func bundleTestStore() *Store {
	s := NewStore()
	s.Stops["s1"] = Stop{ID: "s1", Name: "Main St", Lat: 44.95, Lon: -93.10}
	s.Routes["r1"] = Route{ID: "r1", ShortName: "10", Color: "FF0000", TextColor: "FFFFFF"}
	s.Trips["t1"] = Trip{ID: "t1", RouteID: "r1", ServiceID: "wk", Headsign: "Downtown"}
	s.StopTimes["s1"] = []StopTime{
		{TripID: "t1", StopID: "s1", ArrivalSecs: 30600, ArrivalTime: "08:30:00", StopSequence: 1},
	}
	s.Calendar["wk"] = CalendarEntry{
		ServiceID: "wk",
		Weekdays:  [7]bool{false, true, true, true, true, true, false},
		StartDate: "20250101",
		EndDate:   "20251231",
	}
	s.CalendarDates["wk"] = []CalendarDate{
		{ServiceID: "wk", Date: "20250704", ExceptionType: ExceptionRemoved},
	}
	return s
}

func TestBundleRoundTrip(t *testing.T) {
	store := bundleTestStore()
	generated := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "bundle.json")

	if err := WriteBundle(path, store.Bundle("https://example.com/gtfs.zip", generated)); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	b, err := ReadBundle(path)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if b.Version != BundleVersion {
		t.Errorf("version = %d, want %d", b.Version, BundleVersion)
	}
	if b.SourceURL != "https://example.com/gtfs.zip" || !b.GeneratedAt.Equal(generated) {
		t.Errorf("provenance: %s at %s", b.SourceURL, b.GeneratedAt)
	}

	rebuilt, err := FromBundle(b)
	if err != nil {
		t.Fatalf("FromBundle: %v", err)
	}
	if !reflect.DeepEqual(store, rebuilt) {
		t.Errorf("round trip changed the store:\n was %+v\n got %+v", store, rebuilt)
	}
}

func TestBundleDeterministic(t *testing.T) {
	store := bundleTestStore()
	generated := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	a, err := json.Marshal(store.Bundle("u", generated))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(store.Bundle("u", generated))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("repeated exports of the same store should be byte-identical")
	}
}

func TestFromBundleVersionMismatch(t *testing.T) {
	if _, err := FromBundle(&Bundle{Version: BundleVersion + 1}); err == nil {
		t.Error("expected error for unsupported bundle version")
	}
}

func TestReadBundleMissing(t *testing.T) {
	if _, err := ReadBundle(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for a missing bundle file")
	}
}
