package gtfs

import (
	"strconv"
	"strings"
)

// ParseTimeOfDay converts a GTFS HH:MM:SS value to seconds since local
// midnight. Hours may exceed 24 for service continuing past midnight, so
// the result may exceed 86400. Empty means zero (non-timepoint visits
// omit times); a malformed value reports failure.
func ParseTimeOfDay(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	seconds := 0
	if len(parts) == 3 {
		seconds, err = strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return 0, false
		}
	}
	return hours*3600 + minutes*60 + seconds, true
}

// secondsOfDay returns how far into the local day the given instant is.
func secondsOfDay(hour, minute, second int) int {
	return hour*3600 + minute*60 + second
}
