package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	// Location is the tracker timezone used for windows and calendar dates.
	Location *time.Location
	// ResolveRoles lists the roles allowed to resolve any blocker.
	ResolveRoles []domain.Role
	// AllowAssigneeResolve lets a request's assignee resolve its blocker.
	AllowAssigneeResolve bool
	Localizer            Localizer
	Logger               Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service runs timeline aggregation, blocker reconstruction, and activity writes.
type Service struct {
	repo                 Repository
	idGen                IDGenerator
	clock                Clock
	location             *time.Location
	resolveRoles         []domain.Role
	allowAssigneeResolve bool
	localizer            Localizer
	logger               Logger
}

// defaultResolveRoles are used when the config names none.
var defaultResolveRoles = []domain.Role{domain.RoleAdmin, domain.RoleManager}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	roles := make([]domain.Role, 0, len(cfg.ResolveRoles))
	for _, role := range cfg.ResolveRoles {
		role = domain.NormalizeRole(role)
		if !domain.IsValidRole(role) || slices.Contains(roles, role) {
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		roles = slices.Clone(defaultResolveRoles)
	}
	if cfg.Localizer == nil {
		cfg.Localizer = i18n.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	return &Service{
		repo:                 repo,
		idGen:                idGen,
		clock:                clock,
		location:             cfg.Location,
		resolveRoles:         roles,
		allowAssigneeResolve: cfg.AllowAssigneeResolve,
		localizer:            cfg.Localizer,
		logger:               cfg.Logger,
	}
}

// Location returns the tracker timezone.
func (s *Service) Location() *time.Location {
	return s.location
}

// Localizer returns the service localizer.
func (s *Service) Localizer() Localizer {
	return s.localizer
}

// now samples the clock once in the tracker timezone.
func (s *Service) now() time.Time {
	return s.clock().In(s.location)
}

// actorName resolves a display name for the actor, falling back to the directory.
func (s *Service) actorName(ctx context.Context, actor domain.Actor) string {
	if name := strings.TrimSpace(actor.DisplayName); name != "" {
		return name
	}
	user, err := s.repo.FindUser(ctx, actor.ID)
	if err != nil {
		return actor.ID
	}
	return user.DisplayName
}
