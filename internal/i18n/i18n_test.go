package i18n

import (
	"testing"
	"time"
)

func TestTranslateLocales(t *testing.T) {
	cases := []struct {
		locale string
		key    string
		args   []any
		want   string
	}{
		{locale: "", key: KeyDurationDays, args: []any{int64(3)}, want: "3 days"},
		{locale: "en-US", key: KeyDurationMinutes, args: []any{int64(0)}, want: "0 minutes"},
		{locale: "id", key: KeyDurationHours, args: []any{int64(18)}, want: "18 jam"},
		{locale: "id-ID", key: KeyBlockerResolved, args: []any{"1 hari"}, want: "Hambatan diselesaikan setelah 1 hari"},
		{locale: "fr", key: WeekdayKey(time.Monday), want: "Monday"},
	}
	for _, tc := range cases {
		t.Run(tc.locale+"/"+tc.key, func(t *testing.T) {
			c, err := New(tc.locale)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := c.Translate(tc.key, tc.args...); got != tc.want {
				t.Fatalf("Translate() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocaleSelection(t *testing.T) {
	c, err := New("id")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Locale() != "id" {
		t.Fatalf("Locale() = %q, want id", c.Locale())
	}
	if Default().Locale() != "en" {
		t.Fatalf("Default().Locale() = %q, want en", Default().Locale())
	}
	if _, err := New("not a locale!"); err == nil {
		t.Fatal("expected parse error for malformed locale")
	}
}

func TestUnknownKeyFallsThrough(t *testing.T) {
	if got := Default().Translate("missing.key"); got != "missing.key" {
		t.Fatalf("Translate(missing) = %q", got)
	}
}

func TestWeekdayKeyBounds(t *testing.T) {
	if WeekdayKey(time.Friday) != "weekday.friday" {
		t.Fatalf("WeekdayKey(Friday) = %q", WeekdayKey(time.Friday))
	}
	if WeekdayKey(time.Weekday(9)) != "" {
		t.Fatal("expected empty key for out-of-range weekday")
	}
}
