package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/telemetry"
)

// AppServiceAdapter maps transport contracts onto app.Service APIs.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// WeeklyTimeline resolves one weekly timeline.
func (a *AppServiceAdapter) WeeklyTimeline(ctx context.Context, in WeeklyTimelineRequest) (_ domain.WeeklyTimeline, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tracker.weekly_timeline",
		trace.WithAttributes(attribute.Int("week_offset", in.WeekOffset)))
	defer func() { endSpan(span, err) }()
	if err := a.ready(); err != nil {
		return domain.WeeklyTimeline{}, err
	}
	timeline, err := a.service.WeeklyTimeline(ctx, app.TimelineQuery{
		WeekOffset: in.WeekOffset,
		ActorID:    strings.TrimSpace(in.ActorID),
	})
	if err != nil {
		return domain.WeeklyTimeline{}, mapAppError("weekly timeline", err)
	}
	return timeline, nil
}

// ActiveBlockers resolves the active blockers in scope.
func (a *AppServiceAdapter) ActiveBlockers(ctx context.Context, in ActiveBlockersRequest) (_ ActiveBlockersResponse, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tracker.active_blockers")
	defer func() { endSpan(span, err) }()
	if err := a.ready(); err != nil {
		return ActiveBlockersResponse{}, err
	}
	if in.FiscalYear < 0 {
		return ActiveBlockersResponse{}, fmt.Errorf("fiscal_year must be >= 0: %w", ErrInvalidRequest)
	}
	blockers, err := a.service.ActiveBlockers(ctx, app.ActiveBlockersQuery{
		Scope: domain.RequestScope{
			TeamID:     strings.TrimSpace(in.TeamID),
			FiscalYear: in.FiscalYear,
		},
	})
	if err != nil {
		return ActiveBlockersResponse{}, mapAppError("active blockers", err)
	}
	return ActiveBlockersResponse{Blockers: blockers, Count: len(blockers)}, nil
}

// ResolveBlocker resolves one blocker as the session actor.
func (a *AppServiceAdapter) ResolveBlocker(ctx context.Context, in ResolveBlockerRequest) (_ domain.ActivityEntry, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tracker.resolve_blocker",
		trace.WithAttributes(attribute.String("request_id", in.RequestID)))
	defer func() { endSpan(span, err) }()
	if err := a.ready(); err != nil {
		return domain.ActivityEntry{}, err
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return domain.ActivityEntry{}, fmt.Errorf("request_id is required: %w", ErrInvalidRequest)
	}
	entry, err := a.service.ResolveBlocker(ctx, app.ResolveBlockerInput{
		RequestID:      in.RequestID,
		BlockerEntryID: in.BlockerEntryID,
	})
	if err != nil {
		return domain.ActivityEntry{}, mapAppError("resolve blocker", err)
	}
	return entry, nil
}

// RecordActivity appends one activity entry as the session actor.
func (a *AppServiceAdapter) RecordActivity(ctx context.Context, in RecordActivityRequest) (_ domain.ActivityEntry, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tracker.record_activity",
		trace.WithAttributes(attribute.String("request_id", in.RequestID), attribute.String("type", in.Type)))
	defer func() { endSpan(span, err) }()
	if err := a.ready(); err != nil {
		return domain.ActivityEntry{}, err
	}
	if strings.TrimSpace(in.Type) == "" {
		return domain.ActivityEntry{}, fmt.Errorf("type is required: %w", ErrInvalidRequest)
	}
	entry, err := a.service.RecordActivity(ctx, app.RecordActivityInput{
		RequestID:   in.RequestID,
		Type:        domain.ActivityType(in.Type),
		Description: in.Description,
		Metadata:    in.Metadata,
	})
	if err != nil {
		return domain.ActivityEntry{}, mapAppError("record activity", err)
	}
	return entry, nil
}

// ResolveActor loads the directory view of one actor.
func (a *AppServiceAdapter) ResolveActor(ctx context.Context, actorID string) (domain.Actor, error) {
	if err := a.ready(); err != nil {
		return domain.Actor{}, err
	}
	actor, err := a.service.LookupActor(ctx, actorID)
	if err != nil {
		return domain.Actor{}, mapAppError("resolve actor", err)
	}
	return actor, nil
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", operation, err)
	case errors.Is(err, app.ErrStoreUnavailable):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	case errors.Is(err, app.ErrUnauthenticated):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnauthenticated, err))
	case errors.Is(err, app.ErrForbidden):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrForbidden, err))
	case errors.Is(err, app.ErrNoOpenBlocker):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrInvalidSnapshot),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidRequestID),
		errors.Is(err, domain.ErrInvalidActivityType),
		errors.Is(err, domain.ErrInvalidRole):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
