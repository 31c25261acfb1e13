package app

import (
	"context"

	"github.com/hylla/reqtrack/internal/domain"
)

// ActivityStore is the append-only activity log.
type ActivityStore interface {
	// ListByDateRange returns entries whose local calendar date lies in [startDate, endDate].
	ListByDateRange(ctx context.Context, startDate, endDate string) ([]domain.ActivityEntry, error)
	ListAll(ctx context.Context) ([]domain.ActivityEntry, error)
	// Append persists the entry and returns it with its assigned Seq.
	Append(ctx context.Context, entry domain.ActivityEntry) (domain.ActivityEntry, error)
}

// RequestDirectory resolves request records.
type RequestDirectory interface {
	ListVisibleRequests(ctx context.Context, scope domain.RequestScope) ([]domain.Request, error)
	FindRequest(ctx context.Context, id string) (domain.Request, error)
}

// UserDirectory resolves user records.
type UserDirectory interface {
	ListUsersByTeam(ctx context.Context, teamID string) ([]domain.User, error)
	FindUser(ctx context.Context, id string) (domain.User, error)
}

// Repository represents the full storage surface used by the service.
type Repository interface {
	ActivityStore
	RequestDirectory
	UserDirectory

	UpsertRequest(context.Context, domain.Request) error
	UpsertUser(context.Context, domain.User) error
	ListUsers(context.Context) ([]domain.User, error)
	// ImportEntry inserts an entry keeping its id and CreatedAt; existing ids are skipped.
	ImportEntry(context.Context, domain.ActivityEntry) (bool, error)
}

// Localizer translates message keys for the configured locale.
type Localizer interface {
	Translate(key string, args ...any) string
	Locale() string
}

// Logger receives structured service events.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// nopLogger discards all events.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
