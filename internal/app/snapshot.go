package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/reqtrack/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "reqtrack.snapshot.v1"

// Snapshot is the portable JSON form of the directories and the activity log.
type Snapshot struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Requests   []domain.Request       `json:"requests"`
	Users      []domain.User          `json:"users"`
	Entries    []domain.ActivityEntry `json:"entries"`
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Requests       int `json:"requests"`
	Users          int `json:"users"`
	EntriesAdded   int `json:"entries_added"`
	EntriesSkipped int `json:"entries_skipped"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	requests, err := s.repo.ListVisibleRequests(ctx, domain.RequestScope{})
	if err != nil {
		return Snapshot{}, storeReadError("list requests", err)
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return Snapshot{}, storeReadError("list users", err)
	}
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return Snapshot{}, storeReadError("list activity entries", err)
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Requests:   requests,
		Users:      users,
		Entries:    entries,
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot handles import snapshot.
//
// Requests and users are upserted. Entries are append-only, so an entry whose
// id already exists is skipped rather than overwritten.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (ImportResult, error) {
	if err := snap.Validate(); err != nil {
		return ImportResult{}, err
	}
	snap.sort()

	var result ImportResult
	for _, request := range snap.Requests {
		if err := s.repo.UpsertRequest(ctx, request); err != nil {
			return result, fmt.Errorf("upsert request %q: %w", request.ID, err)
		}
		result.Requests++
	}
	for _, user := range snap.Users {
		if err := s.repo.UpsertUser(ctx, user); err != nil {
			return result, fmt.Errorf("upsert user %q: %w", user.ID, err)
		}
		result.Users++
	}
	for _, entry := range snap.Entries {
		added, err := s.repo.ImportEntry(ctx, entry)
		if err != nil {
			return result, fmt.Errorf("import entry %q: %w", entry.ID, err)
		}
		if added {
			result.EntriesAdded++
		} else {
			result.EntriesSkipped++
		}
	}
	s.logger.Info("snapshot imported", "requests", result.Requests, "users", result.Users, "entries_added", result.EntriesAdded, "entries_skipped", result.EntriesSkipped)
	return result, nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	requestIDs := map[string]struct{}{}
	for i, r := range s.Requests {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("%w: requests[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(r.Title) == "" {
			return fmt.Errorf("%w: requests[%d].title is required", ErrInvalidSnapshot, i)
		}
		if _, exists := requestIDs[r.ID]; exists {
			return fmt.Errorf("%w: duplicate request id %q", ErrInvalidSnapshot, r.ID)
		}
		requestIDs[r.ID] = struct{}{}
	}

	userIDs := map[string]struct{}{}
	for i, u := range s.Users {
		normalized, err := domain.NewUser(u.ID, u.DisplayName, u.Role, u.TeamID)
		if err != nil {
			return fmt.Errorf("%w: users[%d]: %w", ErrInvalidSnapshot, i, err)
		}
		if _, exists := userIDs[normalized.ID]; exists {
			return fmt.Errorf("%w: duplicate user id %q", ErrInvalidSnapshot, normalized.ID)
		}
		userIDs[normalized.ID] = struct{}{}
		s.Users[i] = normalized
	}

	entryIDs := map[string]struct{}{}
	for i, e := range s.Entries {
		if e.CreatedAt.IsZero() {
			return fmt.Errorf("%w: entries[%d].created_at is required", ErrInvalidSnapshot, i)
		}
		normalized, err := domain.NewActivityEntry(domain.ActivityEntryInput{
			ID:                e.ID,
			RequestID:         e.RequestID,
			RequestInternalID: e.RequestInternalID,
			RequestTitle:      e.RequestTitle,
			ActorID:           e.ActorID,
			ActorName:         e.ActorName,
			TeamID:            e.TeamID,
			FiscalYear:        e.FiscalYear,
			Type:              e.Type,
			Description:       e.Description,
			Metadata:          e.Metadata,
			CreatedAt:         e.CreatedAt,
		}, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: entries[%d]: %w", ErrInvalidSnapshot, i, err)
		}
		if _, exists := entryIDs[normalized.ID]; exists {
			return fmt.Errorf("%w: duplicate entry id %q", ErrInvalidSnapshot, normalized.ID)
		}
		entryIDs[normalized.ID] = struct{}{}
		normalized.Seq = e.Seq
		s.Entries[i] = normalized
	}
	return nil
}

// sort orders snapshot rows deterministically; entries keep replay order.
func (s *Snapshot) sort() {
	slices.SortFunc(s.Requests, func(a, b domain.Request) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(s.Users, func(a, b domain.User) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(s.Entries, domain.CompareChronological)
}
