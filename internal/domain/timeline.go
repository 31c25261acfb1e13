package domain

import "time"

// DateLayout is the calendar-date layout used for date-range queries.
const DateLayout = "2006-01-02"

// WorkdaysPerWeek is the number of daily buckets in a weekly window.
const WorkdaysPerWeek = 5

// Window is an inclusive Monday 00:00 to Friday 23:59:59.999 work-week range.
type Window struct {
	Offset int       `json:"offset"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// StartDate returns the window's first calendar date.
func (w Window) StartDate() string {
	return w.Start.Format(DateLayout)
}

// EndDate returns the window's last calendar date.
func (w Window) EndDate() string {
	return w.End.Format(DateLayout)
}

// Days returns the start-of-day instant for each workday, Monday first.
func (w Window) Days() []time.Time {
	days := make([]time.Time, 0, WorkdaysPerWeek)
	for i := range WorkdaysPerWeek {
		days = append(days, time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day()+i, 0, 0, 0, 0, w.Start.Location()))
	}
	return days
}

// Contains reports whether t falls inside the window bounds.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DailySummary groups one workday's entries.
type DailySummary struct {
	Date    string          `json:"date"`
	Weekday time.Weekday    `json:"weekday"`
	Label   string          `json:"label"`
	Entries []ActivityEntry `json:"entries"`
}

// WeeklyMetrics summarizes one filtered window.
//
// ActiveBlockers is a window-local approximation (reported minus resolved,
// floored at zero) and can differ from the live blocker reconstruction.
type WeeklyMetrics struct {
	TotalEntries      int `json:"total_entries"`
	RequestsTouched   int `json:"requests_touched"`
	ActiveBlockers    int `json:"active_blockers"`
	CompletedRequests int `json:"completed_requests"`
	ProgressUpdates   int `json:"progress_updates"`
}

// WeeklyTimeline is the aggregated view of one window and actor filter.
type WeeklyTimeline struct {
	Window      Window          `json:"window"`
	ActorID     string          `json:"actor_id,omitempty"`
	Entries     []ActivityEntry `json:"entries"`
	Days        []DailySummary  `json:"days"`
	Unbucketed  int             `json:"unbucketed"`
	Metrics     WeeklyMetrics   `json:"metrics"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// BlockerState is the derived blocker state of one request.
type BlockerState string

// BlockerState values.
const (
	BlockerStateNone    BlockerState = "NO_BLOCKER"
	BlockerStateBlocked BlockerState = "BLOCKED"
)

// ActiveBlocker is one request with an open blocker at evaluation time.
type ActiveBlocker struct {
	Request      Request       `json:"request"`
	AssigneeName string        `json:"assignee_name,omitempty"`
	OpeningEvent ActivityEntry `json:"opening_event"`
	Duration     time.Duration `json:"-"`
	DurationMS   int64         `json:"duration_ms"`
	DurationText string        `json:"duration_text"`
}
