package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hylla/reqtrack/internal/domain"
)

func TestRecordActivity(t *testing.T) {
	repo := newFakeRepo()
	repo.requests["r1"] = domain.Request{ID: "r1", InternalID: "REQ-1", Title: "Login"}
	repo.users["u1"] = domain.User{ID: "u1", DisplayName: "Ana"}
	now := time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)
	svc := newTestService(repo, now, ServiceConfig{})

	ctx := WithActor(context.Background(), domain.Actor{ID: "u1"})
	entry, err := svc.AddComment(ctx, "r1", "looks good")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if entry.ID != "id-1" || entry.ActorName != "Ana" || entry.RequestTitle != "Login" || !entry.CreatedAt.Equal(now) {
		t.Fatalf("entry = %#v", entry)
	}

	system, err := svc.ReportBlocker(context.Background(), "r1", "waiting on vendor")
	if err != nil {
		t.Fatalf("ReportBlocker() error = %v", err)
	}
	if !system.IsSystem() || system.ActorName != domain.SystemActorName {
		t.Fatalf("expected system entry, got %#v", system)
	}

	status, err := svc.ChangeStatus(ctx, "r1", "In_Progress", " DONE ")
	if err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	if status.MetadataString(domain.MetaNewStatus) != domain.StatusDone || status.MetadataString(domain.MetaOldStatus) != "in_progress" {
		t.Fatalf("status metadata = %#v", status.Metadata)
	}
	if got := ComputeWeeklyMetrics(repo.entries); got.CompletedRequests != 1 || got.ActiveBlockers != 1 {
		t.Fatalf("metrics = %+v", got)
	}
}

func TestRecordActivityErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.requests["r1"] = domain.Request{ID: "r1", Title: "Login"}
	svc := newTestService(repo, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), ServiceConfig{})
	ctx := context.Background()

	cases := []struct {
		name string
		in   RecordActivityInput
		want error
	}{
		{name: "unknown type", in: RecordActivityInput{RequestID: "r1", Type: "archived"}, want: ErrInvalidInput},
		{name: "resolution bypass", in: RecordActivityInput{RequestID: "r1", Type: domain.ActivityBlockerResolved}, want: ErrInvalidInput},
		{name: "missing request", in: RecordActivityInput{RequestID: "r9", Type: domain.ActivityCommentAdded}, want: ErrNotFound},
		{name: "blank request", in: RecordActivityInput{Type: domain.ActivityCommentAdded}, want: ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordActivity(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("RecordActivity() error = %v, want %v", err, tc.want)
			}
		})
	}

	repo.appendErr = errors.New("disk full")
	if _, err := svc.AddComment(ctx, "r1", "hi"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("AddComment() error = %v, want ErrStoreUnavailable", err)
	}
}
