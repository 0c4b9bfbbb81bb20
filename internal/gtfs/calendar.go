package gtfs

import "time"

// ServiceActive reports whether a service runs on the given calendar date.
// A calendar_dates exception for the exact date overrides the weekly rule;
// otherwise the weekly rule applies within its inclusive date range. A
// service with no rule and no exception is inactive, never assumed active.
func (s *Store) ServiceActive(serviceID string, on time.Time) bool {
	date := dateKey(on)

	for _, ex := range s.CalendarDates[serviceID] {
		if ex.Date == date {
			return ex.ExceptionType == ExceptionAdded
		}
	}

	entry, ok := s.Calendar[serviceID]
	if !ok {
		return false
	}
	if entry.StartDate != "" && date < entry.StartDate {
		return false
	}
	if entry.EndDate != "" && date > entry.EndDate {
		return false
	}
	return entry.Weekdays[on.Weekday()]
}
