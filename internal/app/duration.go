package app

import (
	"strings"
	"time"

	"github.com/hylla/reqtrack/internal/i18n"
)

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * minutesPerHour
)

// FormatDuration renders d as whole days, hours, and minutes.
//
// Zero components are omitted, except that minutes are always shown when days
// and hours are both zero. Negative durations render as zero.
func FormatDuration(d time.Duration, loc Localizer) string {
	if loc == nil {
		loc = i18n.Default()
	}
	total := int64(d / time.Minute)
	if total < 0 {
		total = 0
	}
	days := total / minutesPerDay
	hours := total % minutesPerDay / minutesPerHour
	minutes := total % minutesPerHour

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, loc.Translate(i18n.KeyDurationDays, days))
	}
	if hours > 0 {
		parts = append(parts, loc.Translate(i18n.KeyDurationHours, hours))
	}
	if minutes > 0 || (days == 0 && hours == 0) {
		parts = append(parts, loc.Translate(i18n.KeyDurationMinutes, minutes))
	}
	return strings.Join(parts, " ")
}
