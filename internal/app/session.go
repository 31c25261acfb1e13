package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/reqtrack/internal/domain"
)

// actorContextKey keys the session actor in a context.
type actorContextKey struct{}

// WithActor returns a context carrying the session actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the session actor, if one is present.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// LookupActor returns the directory view of a user as a session actor.
func (s *Service) LookupActor(ctx context.Context, userID string) (domain.Actor, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
		}
		return domain.Actor{}, storeReadError("find user", err)
	}
	return domain.ActorFromUser(user), nil
}
