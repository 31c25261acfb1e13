package app

import (
	"time"

	"github.com/hylla/reqtrack/internal/domain"
)

// endOfDayNanos is 23:59:59.999 expressed as the nanosecond field of time.Date.
const endOfDayNanos = int(999 * time.Millisecond)

// WeekWindow returns the Monday-to-Friday window containing now, shifted by offset weeks.
//
// Boundaries are computed in now's location with calendar arithmetic, so a DST
// change inside the week does not move Monday 00:00 or Friday 23:59:59.999.
func WeekWindow(now time.Time, offset int) domain.Window {
	back := int(now.Weekday()) - 1
	if now.Weekday() == time.Sunday {
		back = 6
	}
	loc := now.Location()
	start := time.Date(now.Year(), now.Month(), now.Day()-back+offset*7, 0, 0, 0, 0, loc)
	end := time.Date(start.Year(), start.Month(), start.Day()+domain.WorkdaysPerWeek-1, 23, 59, 59, endOfDayNanos, loc)
	return domain.Window{Offset: offset, Start: start, End: end}
}
