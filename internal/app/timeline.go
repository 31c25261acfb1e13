package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// TimelineQuery holds input values for weekly timeline reads.
type TimelineQuery struct {
	WeekOffset int
	ActorID    string
}

// FilterEntries keeps entries produced by actorID; an empty filter keeps everything.
// System entries never match a non-empty filter.
func FilterEntries(entries []domain.ActivityEntry, actorID string) []domain.ActivityEntry {
	actorID = strings.TrimSpace(actorID)
	out := make([]domain.ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		if actorID != "" && !entry.ActorIs(actorID) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// GroupByDay buckets entries into the window's five workdays by local calendar date.
//
// Store order is preserved inside each bucket. Entries dated outside Monday to
// Friday are left out of every bucket; their count is returned as unbucketed.
func GroupByDay(entries []domain.ActivityEntry, window domain.Window) (days []domain.DailySummary, unbucketed int) {
	loc := window.Start.Location()
	starts := window.Days()
	days = make([]domain.DailySummary, len(starts))
	index := make(map[string]int, len(starts))
	for i, start := range starts {
		date := start.Format(domain.DateLayout)
		days[i] = domain.DailySummary{
			Date:    date,
			Weekday: start.Weekday(),
			Entries: []domain.ActivityEntry{},
		}
		index[date] = i
	}
	for _, entry := range entries {
		i, ok := index[entry.LocalDate(loc)]
		if !ok {
			unbucketed++
			continue
		}
		days[i].Entries = append(days[i].Entries, entry)
	}
	return days, unbucketed
}

// FilteredEntries loads the window's entries and applies the actor filter.
func (s *Service) FilteredEntries(ctx context.Context, window domain.Window, actorID string) ([]domain.ActivityEntry, error) {
	entries, err := s.repo.ListByDateRange(ctx, window.StartDate(), window.EndDate())
	if err != nil {
		return nil, storeReadError("list window entries", err)
	}
	return FilterEntries(entries, actorID), nil
}

// WeeklyTimeline builds the grouped timeline and metrics for one week.
func (s *Service) WeeklyTimeline(ctx context.Context, q TimelineQuery) (domain.WeeklyTimeline, error) {
	now := s.now()
	window := WeekWindow(now, q.WeekOffset)
	entries, err := s.FilteredEntries(ctx, window, q.ActorID)
	if err != nil {
		return domain.WeeklyTimeline{}, err
	}

	days, unbucketed := GroupByDay(entries, window)
	for i := range days {
		days[i].Label = s.localizer.Translate(i18n.WeekdayKey(days[i].Weekday))
	}
	if unbucketed > 0 {
		s.logger.Debug("timeline entries outside workdays", "week_offset", q.WeekOffset, "count", unbucketed)
	}

	return domain.WeeklyTimeline{
		Window:      window,
		ActorID:     strings.TrimSpace(q.ActorID),
		Entries:     entries,
		Days:        days,
		Unbucketed:  unbucketed,
		Metrics:     ComputeWeeklyMetrics(entries),
		GeneratedAt: now,
	}, nil
}

// storeReadError wraps store read failures so context cancellation stays visible.
func storeReadError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
