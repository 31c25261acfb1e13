package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// RecordActivityInput holds input values for activity recording.
type RecordActivityInput struct {
	RequestID   string
	Type        domain.ActivityType
	Description string
	Metadata    map[string]any
	// Actor overrides the session actor; when both are absent the entry is a system entry.
	Actor *domain.Actor
}

// RecordActivity appends one activity entry for an existing request.
//
// Blocker resolutions must go through ResolveBlocker so that they carry the
// opening entry and duration metadata.
func (s *Service) RecordActivity(ctx context.Context, in RecordActivityInput) (domain.ActivityEntry, error) {
	kind := domain.NormalizeActivityType(in.Type)
	if !domain.IsValidActivityType(kind) {
		return domain.ActivityEntry{}, fmt.Errorf("%w: %w", ErrInvalidInput, domain.ErrInvalidActivityType)
	}
	if kind == domain.ActivityBlockerResolved {
		return domain.ActivityEntry{}, fmt.Errorf("%w: use ResolveBlocker to resolve blockers", ErrInvalidInput)
	}
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		return domain.ActivityEntry{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	request, found, err := s.findRequest(ctx, requestID)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	if !found {
		return domain.ActivityEntry{}, fmt.Errorf("request %q: %w", requestID, ErrNotFound)
	}

	var (
		actorID   *string
		actorName string
	)
	actor, err := s.sessionActor(ctx, in.Actor)
	switch {
	case err == nil:
		id := actor.ID
		actorID = &id
		actorName = s.actorName(ctx, actor)
	case errors.Is(err, ErrUnauthenticated):
		actorName = domain.SystemActorName
	default:
		return domain.ActivityEntry{}, err
	}

	now := s.now()
	entry, err := domain.NewActivityEntry(domain.ActivityEntryInput{
		ID:                s.idGen(),
		RequestID:         request.ID,
		RequestInternalID: request.InternalID,
		RequestTitle:      request.Title,
		ActorID:           actorID,
		ActorName:         actorName,
		TeamID:            request.TeamID,
		FiscalYear:        request.FiscalYear,
		Type:              kind,
		Description:       in.Description,
		Metadata:          in.Metadata,
	}, now)
	if err != nil {
		return domain.ActivityEntry{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	stored, err := s.repo.Append(ctx, entry)
	if err != nil {
		s.logger.Error("activity not recorded", "request_id", request.ID, "type", kind, "err", err)
		return domain.ActivityEntry{}, fmt.Errorf("append activity: %w", errors.Join(ErrStoreUnavailable, err))
	}
	s.logger.Debug("activity recorded", "request_id", request.ID, "type", kind, "entry_id", stored.ID)
	return stored, nil
}

// ReportBlocker records a blocker_reported entry.
func (s *Service) ReportBlocker(ctx context.Context, requestID, description string) (domain.ActivityEntry, error) {
	return s.RecordActivity(ctx, RecordActivityInput{
		RequestID:   requestID,
		Type:        domain.ActivityBlockerReported,
		Description: description,
	})
}

// AddComment records a comment_added entry.
func (s *Service) AddComment(ctx context.Context, requestID, body string) (domain.ActivityEntry, error) {
	return s.RecordActivity(ctx, RecordActivityInput{
		RequestID:   requestID,
		Type:        domain.ActivityCommentAdded,
		Description: body,
	})
}

// ChangeStatus records a status_change entry with old and new status metadata.
func (s *Service) ChangeStatus(ctx context.Context, requestID, oldStatus, newStatus string) (domain.ActivityEntry, error) {
	oldStatus = strings.TrimSpace(strings.ToLower(oldStatus))
	newStatus = strings.TrimSpace(strings.ToLower(newStatus))
	if newStatus == "" {
		return domain.ActivityEntry{}, fmt.Errorf("%w: new status is required", ErrInvalidInput)
	}
	return s.RecordActivity(ctx, RecordActivityInput{
		RequestID:   requestID,
		Type:        domain.ActivityStatusChange,
		Description: s.localizer.Translate(i18n.KeyStatusChanged, oldStatus, newStatus),
		Metadata: map[string]any{
			domain.MetaOldStatus: oldStatus,
			domain.MetaNewStatus: newStatus,
		},
	})
}
