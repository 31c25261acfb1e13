// Package i18n holds the message catalogs used for user-facing text.
package i18n

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	KeyDurationDays    = "duration.days"
	KeyDurationHours   = "duration.hours"
	KeyDurationMinutes = "duration.minutes"
	KeyBlockerResolved = "blocker.resolved"
	KeyStatusChanged   = "status.changed"
	KeyNoBlockers      = "report.no_blockers"
	KeyNoActivity      = "report.no_activity"
	KeyWeekOf          = "report.week_of"
	KeyActiveBlockers  = "report.active_blockers"
	KeyMetrics         = "report.metrics"
)

// weekdayKeys maps weekdays onto their label keys.
var weekdayKeys = [...]string{
	time.Sunday:    "weekday.sunday",
	time.Monday:    "weekday.monday",
	time.Tuesday:   "weekday.tuesday",
	time.Wednesday: "weekday.wednesday",
	time.Thursday:  "weekday.thursday",
	time.Friday:    "weekday.friday",
	time.Saturday:  "weekday.saturday",
}

// WeekdayKey returns the label key for a weekday.
func WeekdayKey(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return weekdayKeys[d]
}

// supported lists the catalog languages, fallback first.
var supported = []language.Tag{language.English, language.Indonesian}

// messages stores the catalog text per language.
var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyDurationDays:     "%d days",
		KeyDurationHours:    "%d hours",
		KeyDurationMinutes:  "%d minutes",
		KeyBlockerResolved:  "Blocker resolved after %s",
		KeyStatusChanged:    "Status changed from %s to %s",
		KeyNoBlockers:       "No active blockers",
		KeyNoActivity:       "No activity",
		KeyWeekOf:           "Week of %s",
		KeyActiveBlockers:   "Active blockers (%d)",
		KeyMetrics:          "Metrics",
		"weekday.sunday":    "Sunday",
		"weekday.monday":    "Monday",
		"weekday.tuesday":   "Tuesday",
		"weekday.wednesday": "Wednesday",
		"weekday.thursday":  "Thursday",
		"weekday.friday":    "Friday",
		"weekday.saturday":  "Saturday",
	},
	language.Indonesian: {
		KeyDurationDays:     "%d hari",
		KeyDurationHours:    "%d jam",
		KeyDurationMinutes:  "%d menit",
		KeyBlockerResolved:  "Hambatan diselesaikan setelah %s",
		KeyStatusChanged:    "Status berubah dari %s ke %s",
		KeyNoBlockers:       "Tidak ada hambatan aktif",
		KeyNoActivity:       "Tidak ada aktivitas",
		KeyWeekOf:           "Minggu %s",
		KeyActiveBlockers:   "Hambatan aktif (%d)",
		KeyMetrics:          "Metrik",
		"weekday.sunday":    "Minggu",
		"weekday.monday":    "Senin",
		"weekday.tuesday":   "Selasa",
		"weekday.wednesday": "Rabu",
		"weekday.thursday":  "Kamis",
		"weekday.friday":    "Jumat",
		"weekday.saturday":  "Sabtu",
	},
}

var (
	buildOnce    sync.Once
	builtCatalog *catalog.Builder
	buildErr     error
	matcher      = language.NewMatcher(supported)
)

// Catalog translates message keys for one locale.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns the catalog best matching locale. An empty locale selects English.
func New(locale string) (*Catalog, error) {
	cat, err := sharedCatalog()
	if err != nil {
		return nil, err
	}
	tag := language.English
	if locale = strings.TrimSpace(locale); locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
		_, index, _ := matcher.Match(parsed)
		tag = supported[index]
	}
	return &Catalog{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}, nil
}

// Default returns the English catalog.
func Default() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

// Supported returns the supported locale names.
func Supported() []string {
	out := make([]string, 0, len(supported))
	for _, tag := range supported {
		out = append(out, tag.String())
	}
	return out
}

// Translate formats the message stored under key. Unknown keys are formatted as-is.
func (c *Catalog) Translate(key string, args ...any) string {
	return c.printer.Sprintf(key, args...)
}

// Locale returns the selected locale name.
func (c *Catalog) Locale() string {
	return c.tag.String()
}

// sharedCatalog builds the message catalog once.
func sharedCatalog() (*catalog.Builder, error) {
	buildOnce.Do(func() {
		builder := catalog.NewBuilder(catalog.Fallback(language.English))
		for tag, entries := range messages {
			for key, msg := range entries {
				if err := builder.SetString(tag, key, msg); err != nil {
					buildErr = fmt.Errorf("catalog %s %q: %w", tag, key, err)
					return
				}
			}
		}
		builtCatalog = builder
	})
	return builtCatalog, buildErr
}
