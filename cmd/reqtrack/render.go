package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// outputFormat selects how reports are written.
type outputFormat string

// outputFormat values.
const (
	formatText     outputFormat = "text"
	formatMarkdown outputFormat = "markdown"
	formatPretty   outputFormat = "pretty"
	formatJSON     outputFormat = "json"
)

// parseFormat validates a --format value.
func parseFormat(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return formatText, nil
	case formatText, formatMarkdown, formatPretty, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q: want text, markdown, pretty, or json", raw)
	}
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dayStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	blockedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

// report renders timelines and blocker lists for one locale and timezone.
type report struct {
	loc      app.Localizer
	location *time.Location
	// wrap is the glamour word-wrap width for pretty output.
	wrap int
}

func newReport(loc app.Localizer, location *time.Location) report {
	if loc == nil {
		loc = i18n.Default()
	}
	if location == nil {
		location = time.Local
	}
	return report{loc: loc, location: location, wrap: 100}
}

// timeline writes t in format f.
func (r report) timeline(w io.Writer, f outputFormat, t domain.WeeklyTimeline) error {
	switch f {
	case formatJSON:
		return writeJSON(w, t)
	case formatMarkdown:
		_, err := io.WriteString(w, r.timelineMarkdown(t))
		return err
	case formatPretty:
		return r.writePretty(w, r.timelineMarkdown(t))
	default:
		_, err := io.WriteString(w, r.timelineText(t))
		return err
	}
}

// blockers writes the active blocker list in format f.
func (r report) blockers(w io.Writer, f outputFormat, blockers []domain.ActiveBlocker) error {
	if blockers == nil {
		blockers = []domain.ActiveBlocker{}
	}
	switch f {
	case formatJSON:
		return writeJSON(w, map[string]any{"blockers": blockers, "count": len(blockers)})
	case formatMarkdown:
		_, err := io.WriteString(w, r.blockersMarkdown(blockers))
		return err
	case formatPretty:
		return r.writePretty(w, r.blockersMarkdown(blockers))
	default:
		_, err := io.WriteString(w, r.blockersText(blockers))
		return err
	}
}

func (r report) timelineText(t domain.WeeklyTimeline) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(r.weekHeading(t.Window)))
	fmt.Fprintf(&b, " (%s - %s)\n", t.Window.StartDate(), t.Window.EndDate())
	for _, day := range t.Days {
		b.WriteString("\n")
		b.WriteString(dayStyle.Render(r.dayLabel(day)))
		b.WriteString("\n")
		if len(day.Entries) == 0 {
			b.WriteString("  " + mutedStyle.Render(r.loc.Translate(i18n.KeyNoActivity)) + "\n")
			continue
		}
		for _, e := range day.Entries {
			fmt.Fprintf(&b, "  %s  %s  %s  %s  %s\n",
				timeStyle.Render(e.CreatedAt.In(r.location).Format("15:04")),
				requestRef(e),
				actorLabel(e),
				e.Type,
				e.Description,
			)
		}
	}
	b.WriteString("\n")
	b.WriteString(headingStyle.Render(r.loc.Translate(i18n.KeyMetrics)))
	b.WriteString("\n")
	m := t.Metrics
	fmt.Fprintf(&b, "  entries=%d requests=%d active_blockers=%d completed=%d progress=%d\n",
		m.TotalEntries, m.RequestsTouched, m.ActiveBlockers, m.CompletedRequests, m.ProgressUpdates)
	if t.Unbucketed > 0 {
		fmt.Fprintf(&b, "  unbucketed=%d\n", t.Unbucketed)
	}
	return b.String()
}

func (r report) timelineMarkdown(t domain.WeeklyTimeline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.weekHeading(t.Window))
	fmt.Fprintf(&b, "_%s - %s_\n", t.Window.StartDate(), t.Window.EndDate())
	for _, day := range t.Days {
		fmt.Fprintf(&b, "\n## %s\n\n", r.dayLabel(day))
		if len(day.Entries) == 0 {
			fmt.Fprintf(&b, "_%s_\n", r.loc.Translate(i18n.KeyNoActivity))
			continue
		}
		for _, e := range day.Entries {
			fmt.Fprintf(&b, "- **%s** `%s` %s: %s (%s)%s\n",
				e.CreatedAt.In(r.location).Format("15:04"),
				requestRef(e),
				actorLabel(e),
				e.Description,
				e.Type,
				metadataSuffix(e.Metadata),
			)
		}
	}
	m := t.Metrics
	fmt.Fprintf(&b, "\n## %s\n\n", r.loc.Translate(i18n.KeyMetrics))
	b.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| total_entries | %d |\n", m.TotalEntries)
	fmt.Fprintf(&b, "| requests_touched | %d |\n", m.RequestsTouched)
	fmt.Fprintf(&b, "| active_blockers | %d |\n", m.ActiveBlockers)
	fmt.Fprintf(&b, "| completed_requests | %d |\n", m.CompletedRequests)
	fmt.Fprintf(&b, "| progress_updates | %d |\n", m.ProgressUpdates)
	return b.String()
}

func (r report) blockersText(blockers []domain.ActiveBlocker) string {
	if len(blockers) == 0 {
		return mutedStyle.Render(r.loc.Translate(i18n.KeyNoBlockers)) + "\n"
	}
	var b strings.Builder
	b.WriteString(headingStyle.Render(r.loc.Translate(i18n.KeyActiveBlockers, len(blockers))))
	b.WriteString("\n")
	for _, blk := range blockers {
		assignee := blk.AssigneeName
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(&b, "  %s  %s  %s  %s  %s\n",
			blockedStyle.Render(blk.DurationText),
			requestLabel(blk.Request),
			blk.Request.Title,
			assignee,
			blk.OpeningEvent.Description,
		)
	}
	return b.String()
}

func (r report) blockersMarkdown(blockers []domain.ActiveBlocker) string {
	if len(blockers) == 0 {
		return fmt.Sprintf("_%s_\n", r.loc.Translate(i18n.KeyNoBlockers))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.loc.Translate(i18n.KeyActiveBlockers, len(blockers)))
	b.WriteString("| request | title | assignee | blocked for | reason |\n|---|---|---|---|---|\n")
	for _, blk := range blockers {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			requestLabel(blk.Request),
			escapeCell(blk.Request.Title),
			escapeCell(blk.AssigneeName),
			blk.DurationText,
			escapeCell(blk.OpeningEvent.Description),
		)
	}
	return b.String()
}

// writePretty renders markdown through glamour, falling back to the raw markdown.
func (r report) writePretty(w io.Writer, markdown string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(r.wrap),
	)
	if err != nil {
		_, werr := io.WriteString(w, markdown)
		return werr
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		_, werr := io.WriteString(w, markdown)
		return werr
	}
	_, err = io.WriteString(w, strings.TrimRight(rendered, "\n")+"\n")
	return err
}

func (r report) weekHeading(w domain.Window) string {
	return r.loc.Translate(i18n.KeyWeekOf, w.StartDate())
}

func (r report) dayLabel(day domain.DailySummary) string {
	label := day.Label
	if label == "" {
		label = r.loc.Translate(i18n.WeekdayKey(day.Weekday))
	}
	return fmt.Sprintf("%s %s", label, day.Date)
}

// requestRef prefers the human-facing internal id of the entry's request.
func requestRef(e domain.ActivityEntry) string {
	if e.RequestInternalID != "" {
		return e.RequestInternalID
	}
	return e.RequestID
}

func requestLabel(r domain.Request) string {
	if r.InternalID != "" {
		return r.InternalID
	}
	return r.ID
}

func actorLabel(e domain.ActivityEntry) string {
	if e.ActorName != "" {
		return e.ActorName
	}
	if e.ActorID != nil {
		return *e.ActorID
	}
	return "system"
}

// metadataSuffix renders metadata as " [k=v, ...]" in key order.
func metadataSuffix(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	parts := make([]string, 0, len(meta))
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
