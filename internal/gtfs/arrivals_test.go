package gtfs

import (
	"testing"
	"time"
)

type stubDelays map[string]map[string]int

func (d stubDelays) DelayFor(tripID, stopID string) (int, bool) {
	delay, ok := d[tripID][stopID]
	return delay, ok
}

// arrivalsTestStore builds a store with one stop, one route, and a trip
// per scheduled time, all on an always-active service.
func arrivalsTestStore(times map[string]string) *Store {
	s := NewStore()
	s.Stops["s1"] = Stop{ID: "s1", Name: "Main St"}
	s.Routes["r1"] = Route{ID: "r1", ShortName: "10", Color: "FF0000"}
	s.Calendar["daily"] = CalendarEntry{
		ServiceID: "daily",
		Weekdays:  [7]bool{true, true, true, true, true, true, true},
	}
	for tripID, at := range times {
		s.Trips[tripID] = Trip{ID: tripID, RouteID: "r1", ServiceID: "daily", Headsign: "Downtown"}
		secs, _ := ParseTimeOfDay(at)
		s.StopTimes["s1"] = append(s.StopTimes["s1"], StopTime{
			TripID: tripID, StopID: "s1", ArrivalSecs: secs, ArrivalTime: at,
		})
	}
	return s
}

var nineAM = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestArrivalsAtRanking(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"t20": "09:20:00",
		"t05": "09:05:00",
		"t45": "09:45:00",
		"t00": "09:00:00",
	})

	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{}, nil)
	if len(arrivals) != 4 {
		t.Fatalf("got %d arrivals, want 4", len(arrivals))
	}
	want := []int{0, 5, 20, 45}
	for i, w := range want {
		if arrivals[i].MinutesAway != w {
			t.Errorf("arrival %d: minutes = %d, want %d", i, arrivals[i].MinutesAway, w)
		}
	}
	// A visit at the query instant is due now, not departed.
	if arrivals[0].MinutesAway != 0 || arrivals[0].ScheduledTime != "09:00:00" {
		t.Errorf("due-now arrival mishandled: %+v", arrivals[0])
	}
	if arrivals[0].RouteShortName != "10" || arrivals[0].RouteColor != "FF0000" {
		t.Errorf("route fields not resolved: %+v", arrivals[0])
	}
}

func TestArrivalsAtWindowAndDeparted(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"gone":    "08:59:00",
		"soon":    "09:10:00",
		"beyond":  "10:30:00",
		"at-edge": "10:00:00",
	})

	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{}, nil)
	if len(arrivals) != 2 {
		t.Fatalf("got %d arrivals, want 2: %+v", len(arrivals), arrivals)
	}
	if arrivals[0].MinutesAway != 10 || arrivals[1].MinutesAway != 60 {
		t.Errorf("got minutes %d,%d, want 10,60", arrivals[0].MinutesAway, arrivals[1].MinutesAway)
	}
}

func TestArrivalsAtPostMidnight(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"owl": "24:10:00",
	})
	lateNight := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)

	arrivals := s.ArrivalsAt("s1", lateNight, ArrivalOptions{}, nil)
	if len(arrivals) != 1 {
		t.Fatalf("got %d arrivals, want 1", len(arrivals))
	}
	if arrivals[0].MinutesAway != 40 {
		t.Errorf("minutes = %d, want 40", arrivals[0].MinutesAway)
	}
}

func TestArrivalsAtDelayOverlay(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"late":      "09:00:00",
		"scheduled": "09:05:00",
	})
	delays := stubDelays{"late": {"s1": 120}}

	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{}, delays)
	if len(arrivals) != 2 {
		t.Fatalf("got %d arrivals, want 2", len(arrivals))
	}
	if arrivals[0].MinutesAway != 2 || !arrivals[0].IsRealtime || arrivals[0].DelaySeconds != 120 {
		t.Errorf("delayed arrival: %+v", arrivals[0])
	}
	if arrivals[1].IsRealtime || arrivals[1].DelaySeconds != 0 {
		t.Errorf("undelayed arrival should stay scheduled: %+v", arrivals[1])
	}
}

func TestArrivalsAtDelayPushesPastDeparture(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		// Scheduled after now, but running three minutes early.
		"early": "09:02:00",
	})
	delays := stubDelays{"early": {"s1": -180}}

	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{}, delays)
	if len(arrivals) != 0 {
		t.Errorf("early-running visit already departed, got %+v", arrivals)
	}
}

func TestArrivalsAtLimit(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"a": "09:01:00", "b": "09:02:00", "c": "09:03:00",
	})
	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{Limit: 2}, nil)
	if len(arrivals) != 2 {
		t.Fatalf("got %d arrivals, want limit 2", len(arrivals))
	}
	if arrivals[0].MinutesAway != 1 || arrivals[1].MinutesAway != 2 {
		t.Error("limit should keep the soonest arrivals")
	}
}

func TestArrivalsAtSkipsInactiveAndDangling(t *testing.T) {
	s := arrivalsTestStore(map[string]string{"ok": "09:05:00"})
	s.Trips["off"] = Trip{ID: "off", RouteID: "r1", ServiceID: "nonexistent"}
	s.StopTimes["s1"] = append(s.StopTimes["s1"],
		StopTime{TripID: "off", StopID: "s1", ArrivalSecs: 9*3600 + 600, ArrivalTime: "09:10:00"},
		StopTime{TripID: "ghost", StopID: "s1", ArrivalSecs: 9*3600 + 900, ArrivalTime: "09:15:00"},
	)

	arrivals := s.ArrivalsAt("s1", nineAM, ArrivalOptions{}, nil)
	if len(arrivals) != 1 {
		t.Fatalf("got %d arrivals, want 1 (inactive service and dangling trip skipped)", len(arrivals))
	}
}

func TestArrivalsAtUnknownStop(t *testing.T) {
	s := arrivalsTestStore(nil)
	if got := s.ArrivalsAt("nowhere", nineAM, ArrivalOptions{}, nil); len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}

func TestScheduleFor(t *testing.T) {
	s := arrivalsTestStore(map[string]string{
		"evening": "18:00:00",
		"morning": "06:00:00",
		"owl":     "24:30:00",
	})

	rows := s.ScheduleFor("s1", nineAM)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (full day, no window)", len(rows))
	}
	want := []string{"06:00:00", "18:00:00", "24:30:00"}
	for i, w := range want {
		if rows[i].ScheduledTime != w {
			t.Errorf("row %d: scheduled %s, want %s", i, rows[i].ScheduledTime, w)
		}
	}
}

func TestSearchStops(t *testing.T) {
	s := NewStore()
	s.Stops["s1"] = Stop{ID: "s1", Name: "Main Street", Code: "1001"}
	s.Stops["s2"] = Stop{ID: "s2", Name: "Oak Avenue", Code: "1002"}
	s.Stops["s3"] = Stop{ID: "s3", Name: "main st & 5th", Code: "2001"}

	got := s.SearchStops("MAIN", 10)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != "s1" || got[1].ID != "s3" {
		t.Errorf("results not sorted by id: %+v", got)
	}

	byCode := s.SearchStops("1002", 10)
	if len(byCode) != 1 || byCode[0].ID != "s2" {
		t.Errorf("code search: %+v", byCode)
	}
}
