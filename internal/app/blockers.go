package app

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hylla/reqtrack/internal/domain"
)

// ActiveBlockersQuery holds input values for active blocker reads.
type ActiveBlockersQuery struct {
	Scope domain.RequestScope
}

// ReplayBlockers replays blocker events per request and returns the opening
// entry of every request that is still blocked.
//
// A nil candidates set admits every request. Events are replayed in
// (CreatedAt, Seq) order; a report opens (or re-anchors) the blocker and a
// resolution clears it whether or not one was open.
func ReplayBlockers(entries []domain.ActivityEntry, candidates map[string]struct{}) map[string]domain.ActivityEntry {
	grouped := map[string][]domain.ActivityEntry{}
	for _, entry := range entries {
		if !entry.Type.IsBlockerEvent() {
			continue
		}
		if candidates != nil {
			if _, ok := candidates[entry.RequestID]; !ok {
				continue
			}
		}
		grouped[entry.RequestID] = append(grouped[entry.RequestID], entry)
	}

	open := make(map[string]domain.ActivityEntry, len(grouped))
	for requestID, events := range grouped {
		slices.SortStableFunc(events, domain.CompareChronological)
		var (
			anchor  domain.ActivityEntry
			blocked bool
		)
		for _, event := range events {
			switch event.Type {
			case domain.ActivityBlockerReported:
				anchor, blocked = event, true
			case domain.ActivityBlockerResolved:
				anchor, blocked = domain.ActivityEntry{}, false
			}
		}
		if blocked {
			open[requestID] = anchor
		}
	}
	return open
}

// BlockerStateFor replays one request and reports its blocker state and opening entry.
func BlockerStateFor(entries []domain.ActivityEntry, requestID string) (domain.BlockerState, *domain.ActivityEntry) {
	open := ReplayBlockers(entries, map[string]struct{}{requestID: {}})
	anchor, ok := open[requestID]
	if !ok {
		return domain.BlockerStateNone, nil
	}
	return domain.BlockerStateBlocked, &anchor
}

// ReconstructActiveBlockers returns the requests with an open blocker at now,
// longest-blocked first. Ties keep request id order.
func ReconstructActiveBlockers(entries []domain.ActivityEntry, requests []domain.Request, now time.Time) []domain.ActiveBlocker {
	candidates := make(map[string]struct{}, len(requests))
	for _, request := range requests {
		candidates[request.ID] = struct{}{}
	}
	open := ReplayBlockers(entries, candidates)

	ordered := slices.Clone(requests)
	slices.SortFunc(ordered, func(a, b domain.Request) int {
		return cmp.Compare(a.ID, b.ID)
	})
	out := make([]domain.ActiveBlocker, 0, len(open))
	for _, request := range ordered {
		anchor, ok := open[request.ID]
		if !ok {
			continue
		}
		delete(open, request.ID)
		duration := now.Sub(anchor.CreatedAt)
		out = append(out, domain.ActiveBlocker{
			Request:      request,
			OpeningEvent: anchor,
			Duration:     duration,
			DurationMS:   duration.Milliseconds(),
		})
	}
	slices.SortStableFunc(out, func(a, b domain.ActiveBlocker) int {
		return cmp.Compare(b.Duration, a.Duration)
	})
	return out
}

// ActiveBlockers reconstructs the open blockers for every request visible in scope.
func (s *Service) ActiveBlockers(ctx context.Context, q ActiveBlockersQuery) ([]domain.ActiveBlocker, error) {
	var (
		entries  []domain.ActivityEntry
		requests []domain.Request
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		entries, err = s.repo.ListAll(groupCtx)
		if err != nil {
			return storeReadError("list activity entries", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		requests, err = s.repo.ListVisibleRequests(groupCtx, q.Scope)
		if err != nil {
			return storeReadError("list visible requests", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	blockers := ReconstructActiveBlockers(entries, requests, now)
	names := map[string]string{}
	for i := range blockers {
		blockers[i].DurationText = FormatDuration(blockers[i].Duration, s.localizer)
		assigneeID := blockers[i].Request.AssigneeID
		if assigneeID == nil {
			continue
		}
		name, ok := names[*assigneeID]
		if !ok {
			name = s.lookupUserName(ctx, *assigneeID)
			names[*assigneeID] = name
		}
		blockers[i].AssigneeName = name
	}
	return blockers, nil
}

// lookupUserName returns a user's display name, or "" when the user is unknown.
func (s *Service) lookupUserName(ctx context.Context, userID string) string {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("user lookup failed", "user_id", userID, "err", err)
		}
		return ""
	}
	return user.DisplayName
}
