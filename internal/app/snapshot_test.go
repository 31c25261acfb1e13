package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hylla/reqtrack/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	src := newFakeRepo()
	src.requests["r2"] = domain.Request{ID: "r2", Title: "Beta"}
	src.requests["r1"] = domain.Request{ID: "r1", Title: "Alpha"}
	src.users["u1"] = domain.User{ID: "u1", DisplayName: "Ana", Role: domain.RoleDeveloper}
	src.entries = []domain.ActivityEntry{
		{ID: "e2", RequestID: "r1", Type: domain.ActivityCommentAdded, ActorName: "system", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "e1", RequestID: "r1", Type: domain.ActivityRequestCreated, ActorName: "system", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	snap, err := newTestService(src, now, ServiceConfig{}).ExportSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion || snap.Requests[0].ID != "r1" || snap.Entries[0].ID != "e1" {
		t.Fatalf("snapshot not sorted: %+v", snap)
	}

	dst := newFakeRepo()
	dst.entries = []domain.ActivityEntry{{ID: "e1", RequestID: "r1", Type: domain.ActivityRequestCreated, CreatedAt: snap.Entries[0].CreatedAt}}
	result, err := newTestService(dst, now, ServiceConfig{}).ImportSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	want := ImportResult{Requests: 2, Users: 1, EntriesAdded: 1, EntriesSkipped: 1}
	if result != want {
		t.Fatalf("ImportSnapshot() = %+v, want %+v", result, want)
	}
}

func TestSnapshotValidate(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		snap Snapshot
	}{
		{name: "version", snap: Snapshot{Version: "other"}},
		{name: "request title", snap: Snapshot{Requests: []domain.Request{{ID: "r1"}}}},
		{name: "duplicate request", snap: Snapshot{Requests: []domain.Request{{ID: "r1", Title: "a"}, {ID: "r1", Title: "b"}}}},
		{name: "bad role", snap: Snapshot{Users: []domain.User{{ID: "u1", DisplayName: "Ana", Role: "owner"}}}},
		{name: "entry timestamp", snap: Snapshot{Entries: []domain.ActivityEntry{{ID: "e1", RequestID: "r1", Type: domain.ActivityCommentAdded}}}},
		{name: "entry type", snap: Snapshot{Entries: []domain.ActivityEntry{{ID: "e1", RequestID: "r1", Type: "bogus", CreatedAt: at}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.snap.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
				t.Fatalf("Validate() error = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}
