// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"

	"github.com/hylla/reqtrack/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnauthenticated reports a call that needs a session actor.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden reports a session actor without permission.
var ErrForbidden = errors.New("forbidden")

// ErrConflict reports a request that does not apply to current state.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a retryable backing-store failure.
var ErrUnavailable = errors.New("unavailable")

// WeeklyTimelineRequest captures one weekly timeline query.
type WeeklyTimelineRequest struct {
	WeekOffset int
	ActorID    string
}

// ActiveBlockersRequest captures one active blocker query.
type ActiveBlockersRequest struct {
	TeamID     string
	FiscalYear int
}

// ActiveBlockersResponse wraps active blocker rows.
type ActiveBlockersResponse struct {
	Blockers []domain.ActiveBlocker `json:"blockers"`
	Count    int                    `json:"count"`
}

// ResolveBlockerRequest captures input for resolving one blocker.
type ResolveBlockerRequest struct {
	RequestID      string `json:"request_id,omitempty"`
	BlockerEntryID string `json:"blocker_entry_id,omitempty"`
}

// RecordActivityRequest captures input for appending one activity entry.
type RecordActivityRequest struct {
	RequestID   string         `json:"request_id"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TrackerService is the app-facing surface shared by HTTP and MCP adapters.
//
// Mutating calls read the session actor from the context (see app.WithActor).
type TrackerService interface {
	WeeklyTimeline(context.Context, WeeklyTimelineRequest) (domain.WeeklyTimeline, error)
	ActiveBlockers(context.Context, ActiveBlockersRequest) (ActiveBlockersResponse, error)
	ResolveBlocker(context.Context, ResolveBlockerRequest) (domain.ActivityEntry, error)
	RecordActivity(context.Context, RecordActivityRequest) (domain.ActivityEntry, error)
}

// ActorResolver loads the current directory view of an actor.
type ActorResolver interface {
	ResolveActor(context.Context, string) (domain.Actor, error)
}
