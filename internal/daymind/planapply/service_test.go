package planapply_test

import (
	"context"
	"testing"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/planapply"
	"github.com/soraya-vance/daymind/internal/daymind/planner"
)

type fakeStore struct {
	tasks           []model.Task
	blocksByRev     map[int64][]model.CalendarBlock
	latestRevision  int64
	appendedTrigger string
	auditEntries    []model.AuditEntry
}

func (f *fakeStore) ListActive(ctx context.Context) ([]model.Task, error) { return f.tasks, nil }

func (f *fakeStore) ListBlocksForRevision(ctx context.Context, planRevision int64) ([]model.CalendarBlock, error) {
	return f.blocksByRev[planRevision], nil
}

func (f *fakeStore) LatestRevision(ctx context.Context) (int64, error) { return f.latestRevision, nil }

func (f *fakeStore) AppendRevision(ctx context.Context, trigger string, created, moved, deleted int) (int64, error) {
	f.appendedTrigger = trigger
	f.latestRevision++
	return f.latestRevision, nil
}

func (f *fakeStore) ReplaceBlocksForRevision(ctx context.Context, planRevision int64, blocks []model.CalendarBlock) error {
	if f.blocksByRev == nil {
		f.blocksByRev = make(map[int64][]model.CalendarBlock)
	}
	f.blocksByRev[planRevision] = blocks
	return nil
}

func (f *fakeStore) LogAudit(ctx context.Context, e model.AuditEntry) error {
	f.auditEntries = append(f.auditEntries, e)
	return nil
}

type fakeCalendar struct {
	created int
	deleted int
	failNew bool
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, b model.CalendarBlock) (string, error) {
	f.created++
	return "evt-" + b.BlockID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarEventID string) error {
	f.deleted++
	return nil
}

func testConstraints() planner.Constraints {
	return planner.Constraints{
		WorkdayStart:             time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		WorkdayEnd:               time.Date(2026, 8, 1, 21, 0, 0, 0, time.UTC),
		AvoidAfter:               time.Date(2026, 8, 1, 21, 0, 0, 0, time.UTC),
		BreakEveryMinutes:        50,
		BreakDurationMinutes:     10,
		MaxDeepWorkMinutesPerDay: 480,
	}
}

func TestRegenerate_CreatesBlocksAndAppendsRevision(t *testing.T) {
	due := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{tasks: []model.Task{
		{TaskID: "t1", Title: "Study", Category: model.CategoryAdmin, EstimatedMinutes: 60, MinDailyMinutes: 30, Priority: 1, DueAtLocal: &due},
	}}
	cal := &fakeCalendar{}
	now := func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	svc := planapply.New(store, cal, testConstraints(), now)
	summary, err := svc.Regenerate(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if summary.Created == 0 {
		t.Error("expected at least one created block")
	}
	if summary.RevisionID != 1 {
		t.Errorf("RevisionID: got %d, want 1", summary.RevisionID)
	}
	if cal.created != summary.Created {
		t.Errorf("calendar CreateEvent called %d times, summary says %d", cal.created, summary.Created)
	}
	if len(store.auditEntries) != 1 || store.auditEntries[0].Category != "regenerate_plan" {
		t.Errorf("expected one regenerate_plan audit entry, got %+v", store.auditEntries)
	}
}

func TestRegenerate_DeletesBlocksNoLongerDesired(t *testing.T) {
	store := &fakeStore{
		latestRevision: 1,
		blocksByRev: map[int64][]model.CalendarBlock{
			1: {
				{BlockID: "stale", TaskID: "gone", Title: "Old Task", StartLocal: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), EndLocal: time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC), CalendarEventID: "evt-stale", ManagedByAgent: true, LockLevel: model.LockFlexible, PlanRevision: 1},
			},
		},
	}
	cal := &fakeCalendar{}
	now := func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	svc := planapply.New(store, cal, testConstraints(), now)
	summary, err := svc.Regenerate(context.Background(), "scheduled")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if summary.Deleted != 1 {
		t.Errorf("Deleted: got %d, want 1", summary.Deleted)
	}
	if cal.deleted != 1 {
		t.Errorf("calendar DeleteEvent called %d times, want 1", cal.deleted)
	}
}
