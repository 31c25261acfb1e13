package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// ResolveBlockerInput holds input values for blocker resolution.
type ResolveBlockerInput struct {
	RequestID string
	// BlockerEntryID optionally names the opening blocker_reported entry.
	BlockerEntryID string
	// Actor overrides the session actor carried by the context.
	Actor *domain.Actor
}

// ResolveBlocker appends a blocker_resolved entry for the request's open blocker.
//
// When BlockerEntryID is given, the resolution is recorded against that report
// even if a newer report has since replaced it; replay treats the extra
// resolution as a no-op.
func (s *Service) ResolveBlocker(ctx context.Context, in ResolveBlockerInput) (domain.ActivityEntry, error) {
	actor, err := s.sessionActor(ctx, in.Actor)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		return domain.ActivityEntry{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}

	request, found, err := s.findRequest(ctx, requestID)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	if err := s.authorizeResolve(actor, request, found); err != nil {
		return domain.ActivityEntry{}, err
	}

	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return domain.ActivityEntry{}, storeReadError("list activity entries", err)
	}
	opening, err := locateOpeningEvent(entries, requestID, strings.TrimSpace(in.BlockerEntryID))
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	if !found {
		request = requestFromEntry(opening)
	}

	now := s.now()
	duration := now.Sub(opening.CreatedAt)
	durationText := FormatDuration(duration, s.localizer)
	actorID := actor.ID
	entry, err := domain.NewActivityEntry(domain.ActivityEntryInput{
		ID:                s.idGen(),
		RequestID:         request.ID,
		RequestInternalID: request.InternalID,
		RequestTitle:      request.Title,
		ActorID:           &actorID,
		ActorName:         s.actorName(ctx, actor),
		TeamID:            request.TeamID,
		FiscalYear:        request.FiscalYear,
		Type:              domain.ActivityBlockerResolved,
		Description:       s.localizer.Translate(i18n.KeyBlockerResolved, durationText),
		Metadata: map[string]any{
			domain.MetaBlockerEntryID: opening.ID,
			domain.MetaDurationMS:     duration.Milliseconds(),
			domain.MetaDurationText:   durationText,
		},
	}, now)
	if err != nil {
		return domain.ActivityEntry{}, err
	}

	stored, err := s.repo.Append(ctx, entry)
	if err != nil {
		s.logger.Error("blocker resolution not recorded", "request_id", requestID, "blocker_entry_id", opening.ID, "err", err)
		return domain.ActivityEntry{}, fmt.Errorf("append blocker resolution: %w", errors.Join(ErrStoreUnavailable, err))
	}
	s.logger.Info("blocker resolved", "request_id", requestID, "blocker_entry_id", opening.ID, "actor_id", actor.ID, "duration", durationText)
	return stored, nil
}

// locateOpeningEvent finds the report a resolution closes.
func locateOpeningEvent(entries []domain.ActivityEntry, requestID, entryID string) (domain.ActivityEntry, error) {
	if entryID != "" {
		for _, entry := range entries {
			if entry.ID == entryID && entry.RequestID == requestID && entry.Type == domain.ActivityBlockerReported {
				return entry, nil
			}
		}
		return domain.ActivityEntry{}, fmt.Errorf("%w: entry %q is not a blocker report for request %q", ErrNoOpenBlocker, entryID, requestID)
	}
	state, anchor := BlockerStateFor(entries, requestID)
	if state != domain.BlockerStateBlocked {
		return domain.ActivityEntry{}, fmt.Errorf("%w: request %q", ErrNoOpenBlocker, requestID)
	}
	return *anchor, nil
}

// authorizeResolve applies the role and assignee policy for blocker resolution.
func (s *Service) authorizeResolve(actor domain.Actor, request domain.Request, found bool) error {
	if slices.Contains(s.resolveRoles, domain.NormalizeRole(actor.Role)) {
		return nil
	}
	if s.allowAssigneeResolve && found && request.AssigneeID != nil && *request.AssigneeID == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: actor %q may not resolve blockers on request %q", ErrForbidden, actor.ID, request.ID)
}

// sessionActor returns the explicit actor or the one carried by ctx.
func (s *Service) sessionActor(ctx context.Context, explicit *domain.Actor) (domain.Actor, error) {
	if explicit != nil && strings.TrimSpace(explicit.ID) != "" {
		return *explicit, nil
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

// findRequest loads a request, reporting whether the directory knows it.
func (s *Service) findRequest(ctx context.Context, requestID string) (domain.Request, bool, error) {
	request, err := s.repo.FindRequest(ctx, requestID)
	switch {
	case err == nil:
		return request, true, nil
	case errors.Is(err, ErrNotFound):
		return domain.Request{ID: requestID}, false, nil
	default:
		return domain.Request{}, false, storeReadError("find request", err)
	}
}

// requestFromEntry rebuilds a request snapshot from an entry's denormalized fields.
func requestFromEntry(entry domain.ActivityEntry) domain.Request {
	return domain.Request{
		ID:         entry.RequestID,
		InternalID: entry.RequestInternalID,
		Title:      entry.RequestTitle,
		TeamID:     entry.TeamID,
		FiscalYear: entry.FiscalYear,
	}
}
