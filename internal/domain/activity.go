package domain

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"time"
)

// ActivityType describes one persisted activity-log event kind for a request.
type ActivityType string

// ActivityType values used by the request activity ledger.
const (
	ActivityRequestCreated   ActivityType = "request_created"
	ActivityStatusChange     ActivityType = "status_change"
	ActivityAssignmentChange ActivityType = "assignment_change"
	ActivityPriorityChange   ActivityType = "priority_change"
	ActivityCommentAdded     ActivityType = "comment_added"
	ActivityProgressUpdate   ActivityType = "progress_update"
	ActivityBlockerReported  ActivityType = "blocker_reported"
	ActivityBlockerResolved  ActivityType = "blocker_resolved"
)

// validActivityTypes stores the closed set of supported activity types.
var validActivityTypes = []ActivityType{
	ActivityRequestCreated,
	ActivityStatusChange,
	ActivityAssignmentChange,
	ActivityPriorityChange,
	ActivityCommentAdded,
	ActivityProgressUpdate,
	ActivityBlockerReported,
	ActivityBlockerResolved,
}

// Metadata keys written by activity producers.
const (
	MetaOldStatus      = "old_status"
	MetaNewStatus      = "new_status"
	MetaBlockerEntryID = "blocker_entry_id"
	MetaDurationMS     = "duration_ms"
	MetaDurationText   = "duration_text"
)

// StatusDone is the request status that counts as a completion.
const StatusDone = "done"

// SystemActorName labels entries produced without an actor.
const SystemActorName = "system"

// ActivityTypes returns all supported activity types in canonical order.
func ActivityTypes() []ActivityType {
	return slices.Clone(validActivityTypes)
}

// NormalizeActivityType canonicalizes activity types to their stored form.
func NormalizeActivityType(t ActivityType) ActivityType {
	return ActivityType(strings.TrimSpace(strings.ToLower(string(t))))
}

// IsValidActivityType reports whether the activity type is supported.
func IsValidActivityType(t ActivityType) bool {
	return slices.Contains(validActivityTypes, NormalizeActivityType(t))
}

// IsBlockerEvent reports whether the type participates in blocker replay.
func (t ActivityType) IsBlockerEvent() bool {
	return t == ActivityBlockerReported || t == ActivityBlockerResolved
}

// ActivityEntry is one immutable activity-log record for a request.
//
// RequestInternalID, RequestTitle and ActorName are snapshots taken when the
// entry was created and are never re-synced. Seq is assigned by the store at
// append time and breaks ties between entries with equal CreatedAt.
type ActivityEntry struct {
	ID                string         `json:"id"`
	Seq               int64          `json:"seq"`
	RequestID         string         `json:"request_id"`
	RequestInternalID string         `json:"request_internal_id"`
	RequestTitle      string         `json:"request_title"`
	ActorID           *string        `json:"actor_id"`
	ActorName         string         `json:"actor_name"`
	TeamID            *string        `json:"team_id,omitempty"`
	FiscalYear        *int           `json:"fiscal_year,omitempty"`
	Type              ActivityType   `json:"type"`
	Description       string         `json:"description"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ActivityEntryInput holds input values for activity entry creation.
type ActivityEntryInput struct {
	ID                string
	RequestID         string
	RequestInternalID string
	RequestTitle      string
	ActorID           *string
	ActorName         string
	TeamID            *string
	FiscalYear        *int
	Type              ActivityType
	Description       string
	Metadata          map[string]any
	CreatedAt         time.Time
}

// NewActivityEntry constructs a normalized activity entry.
func NewActivityEntry(in ActivityEntryInput, now time.Time) (ActivityEntry, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return ActivityEntry{}, ErrInvalidID
	}
	in.RequestID = strings.TrimSpace(in.RequestID)
	if in.RequestID == "" {
		return ActivityEntry{}, ErrInvalidRequestID
	}
	in.Type = NormalizeActivityType(in.Type)
	if !IsValidActivityType(in.Type) {
		return ActivityEntry{}, ErrInvalidActivityType
	}

	actorID := trimmedOrNil(in.ActorID)
	actorName := strings.TrimSpace(in.ActorName)
	if actorName == "" && actorID == nil {
		actorName = SystemActorName
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var metadata map[string]any
	if len(in.Metadata) > 0 {
		metadata = maps.Clone(in.Metadata)
	}

	return ActivityEntry{
		ID:                in.ID,
		RequestID:         in.RequestID,
		RequestInternalID: strings.TrimSpace(in.RequestInternalID),
		RequestTitle:      strings.TrimSpace(in.RequestTitle),
		ActorID:           actorID,
		ActorName:         actorName,
		TeamID:            trimmedOrNil(in.TeamID),
		FiscalYear:        in.FiscalYear,
		Type:              in.Type,
		Description:       strings.TrimSpace(in.Description),
		Metadata:          metadata,
		CreatedAt:         createdAt.UTC(),
	}, nil
}

// IsSystem reports whether the entry was produced without an actor.
func (e ActivityEntry) IsSystem() bool {
	return e.ActorID == nil
}

// ActorIs reports whether the entry was produced by the given actor id.
func (e ActivityEntry) ActorIs(actorID string) bool {
	return e.ActorID != nil && *e.ActorID == actorID
}

// MetadataString returns a string metadata value, or "" when absent or not a string.
func (e ActivityEntry) MetadataString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	v, ok := e.Metadata[key].(string)
	if !ok {
		return ""
	}
	return v
}

// LocalDate returns the YYYY-MM-DD calendar date of CreatedAt in loc.
func (e ActivityEntry) LocalDate(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return e.CreatedAt.In(loc).Format(DateLayout)
}

// CompareChronological orders entries by CreatedAt, then by append sequence.
func CompareChronological(a, b ActivityEntry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// trimmedOrNil returns nil for nil or blank optional identifiers.
func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
