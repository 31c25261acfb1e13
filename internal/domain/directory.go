package domain

import (
	"slices"
	"strings"
	"time"
)

// Role identifies an actor's authorization role.
type Role string

// Role values.
const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// validRoles stores supported role values.
var validRoles = []Role{RoleAdmin, RoleManager, RoleDeveloper, RoleViewer}

// NormalizeRole canonicalizes role values.
func NormalizeRole(r Role) Role {
	return Role(strings.TrimSpace(strings.ToLower(string(r))))
}

// IsValidRole reports whether the role is supported.
func IsValidRole(r Role) bool {
	return slices.Contains(validRoles, NormalizeRole(r))
}

// Request is the directory view of one tracked work item.
type Request struct {
	ID         string    `json:"id"`
	InternalID string    `json:"internal_id"`
	Title      string    `json:"title"`
	AssigneeID *string   `json:"assignee_id,omitempty"`
	TeamID     *string   `json:"team_id,omitempty"`
	FiscalYear *int      `json:"fiscal_year,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestInput holds input values for request construction.
type RequestInput struct {
	ID         string
	InternalID string
	Title      string
	AssigneeID *string
	TeamID     *string
	FiscalYear *int
	Status     string
}

// NewRequest constructs a normalized request directory record.
func NewRequest(in RequestInput, now time.Time) (Request, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return Request{}, ErrInvalidRequestID
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Request{}, ErrInvalidTitle
	}
	status := strings.TrimSpace(strings.ToLower(in.Status))
	if status == "" {
		status = "open"
	}
	return Request{
		ID:         in.ID,
		InternalID: strings.TrimSpace(in.InternalID),
		Title:      in.Title,
		AssigneeID: trimmedOrNil(in.AssigneeID),
		TeamID:     trimmedOrNil(in.TeamID),
		FiscalYear: in.FiscalYear,
		Status:     status,
		CreatedAt:  now.UTC(),
	}, nil
}

// RequestScope restricts which requests are visible in the current context.
// Zero-valued fields do not restrict.
type RequestScope struct {
	TeamID     string
	FiscalYear int
}

// Matches reports whether a request falls inside the scope.
func (s RequestScope) Matches(r Request) bool {
	if s.TeamID != "" && (r.TeamID == nil || *r.TeamID != s.TeamID) {
		return false
	}
	if s.FiscalYear != 0 && (r.FiscalYear == nil || *r.FiscalYear != s.FiscalYear) {
		return false
	}
	return true
}

// User is the directory view of one actor identity.
type User struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Role        Role    `json:"role"`
	TeamID      *string `json:"team_id,omitempty"`
}

// NewUser constructs a normalized user directory record.
func NewUser(id, displayName string, role Role, teamID *string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidID
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return User{}, ErrInvalidDisplayName
	}
	role = NormalizeRole(role)
	if role == "" {
		role = RoleViewer
	}
	if !IsValidRole(role) {
		return User{}, ErrInvalidRole
	}
	return User{ID: id, DisplayName: displayName, Role: role, TeamID: trimmedOrNil(teamID)}, nil
}

// Actor is the identity acting in the current session.
type Actor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// ActorFromUser maps a directory user onto a session actor.
func ActorFromUser(u User) Actor {
	return Actor{ID: u.ID, DisplayName: u.DisplayName, Role: u.Role}
}
