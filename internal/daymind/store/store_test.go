package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "daymind-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func TestMigrations_Idempotent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "daymind-test-idempotent-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()

	s1, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	s2, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}

func TestUpsertUpdates_IgnoresDuplicateProviderMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	card := model.UpdateCard{
		UpdateID:          "u1",
		AccountID:         "acct1",
		Source:            model.SourceGmail,
		ProviderMessageID: "msg-1",
		ReceivedAtUTC:     time.Now().UTC(),
		Sender:            "prof@school.edu",
		Subject:           "Assignment 3 posted",
		BodyText:          "See the course page.",
		ParserMethod:      model.ParserMethodRuleBased,
		ParseConfidence:   0.9,
		ContentHash:       "hash1",
	}

	n, err := s.UpsertUpdates(ctx, []model.UpdateCard{card})
	if err != nil {
		t.Fatalf("UpsertUpdates: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted, got %d", n)
	}

	// Re-ingesting the same provider message id must be a no-op.
	card2 := card
	card2.UpdateID = "u2"
	n, err = s.UpsertUpdates(ctx, []model.UpdateCard{card2})
	if err != nil {
		t.Fatalf("UpsertUpdates (dup): %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 inserted on duplicate, got %d", n)
	}

	got, err := s.GetByProviderMessageID(ctx, model.SourceGmail, "msg-1")
	if err != nil {
		t.Fatalf("GetByProviderMessageID: %v", err)
	}
	if got.UpdateID != "u1" {
		t.Errorf("UpdateID: got %q, want %q (original insert should win)", got.UpdateID, "u1")
	}
}

// TestUpsertUpdatesAndTasks_CommitsBothInOneTransaction covers spec §4.4
// step 6: Updates.upsert(allParsedCards) and Tasks.upsert(tasks) must land
// in one transaction, so the task always has its backing update committed.
func TestUpsertUpdatesAndTasks_CommitsBothInOneTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	card := model.UpdateCard{
		UpdateID:          "u1",
		AccountID:         "acct1",
		Source:            model.SourceGmail,
		ProviderMessageID: "msg-1",
		ReceivedAtUTC:     time.Now().UTC(),
		Sender:            "prof@school.edu",
		Subject:           "Assignment 3 posted",
		BodyText:          "See the course page.",
		ParserMethod:      model.ParserMethodRuleBased,
		ParseConfidence:   0.9,
		ContentHash:       "hash1",
	}
	task := model.Task{
		TaskID:    "t1",
		Title:     "Problem Set 3",
		Category:  model.CategoryAssignment,
		DedupeKey: "problem set 3",
		Status:    model.TaskStatusTodo,
		Sources: []model.TaskSource{
			{TaskID: "t1", Source: model.SourceGmail, AccountID: "acct1", ProviderMessageID: "msg-1", Confidence: 0.9},
		},
	}

	n, err := s.UpsertUpdatesAndTasks(ctx, []model.UpdateCard{card}, []model.Task{task})
	if err != nil {
		t.Fatalf("UpsertUpdatesAndTasks: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 update inserted, got %d", n)
	}

	if _, err := s.GetByProviderMessageID(ctx, model.SourceGmail, "msg-1"); err != nil {
		t.Fatalf("GetByProviderMessageID: %v", err)
	}
	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].TaskID != "t1" {
		t.Fatalf("expected task t1 to be committed, got %+v", active)
	}
}

// TestUpsertUpdatesAndTasks_TaskFailureRollsBackUpdates verifies the
// update rows are rolled back when the task half of the transaction fails
// (here, a task with no TaskSource, which upsertTasksTx rejects).
func TestUpsertUpdatesAndTasks_TaskFailureRollsBackUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	card := model.UpdateCard{
		UpdateID:          "u1",
		AccountID:         "acct1",
		Source:            model.SourceGmail,
		ProviderMessageID: "msg-1",
		ReceivedAtUTC:     time.Now().UTC(),
		Sender:            "prof@school.edu",
		Subject:           "Assignment 3 posted",
		BodyText:          "See the course page.",
		ParserMethod:      model.ParserMethodRuleBased,
		ParseConfidence:   0.9,
		ContentHash:       "hash1",
	}
	badTask := model.Task{TaskID: "t1", Title: "No sources", DedupeKey: "no-sources"}

	if _, err := s.UpsertUpdatesAndTasks(ctx, []model.UpdateCard{card}, []model.Task{badTask}); err == nil {
		t.Fatal("expected an error from the task half of the transaction")
	}

	if _, err := s.GetByProviderMessageID(ctx, model.SourceGmail, "msg-1"); err != store.ErrNotFound {
		t.Errorf("GetByProviderMessageID: got err %v, want ErrNotFound (update should have rolled back)", err)
	}
}

func TestUpsertTasks_ReplacesSourcesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 8, 1, 23, 59, 0, 0, time.UTC)
	task := model.Task{
		TaskID:     "t1",
		Title:      "Problem Set 4",
		Category:   model.CategoryAssignment,
		DueAtLocal: &due,
		Priority:   5,
		DedupeKey:  "problem set 4|2026-08-01T23:59:00",
		Status:     model.TaskStatusTodo,
		Sources: []model.TaskSource{
			{TaskID: "t1", Source: model.SourceGmail, AccountID: "acct1", ProviderMessageID: "msg-1", Confidence: 0.9},
		},
	}

	if err := s.UpsertTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	task.Priority = 8
	task.Sources = []model.TaskSource{
		{TaskID: "t1", Source: model.SourceOutlook, AccountID: "acct2", ProviderMessageID: "msg-2", Confidence: 0.8},
	}
	if err := s.UpsertTasks(ctx, []model.Task{task}); err != nil {
		t.Fatalf("UpsertTasks (conflict): %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active task, got %d", len(active))
	}
	got := active[0]
	if got.Priority != 8 {
		t.Errorf("Priority: got %d, want %d", got.Priority, 8)
	}
	if len(got.Sources) != 1 || got.Sources[0].AccountID != "acct2" {
		t.Errorf("expected sources replaced with acct2, got %+v", got.Sources)
	}
}

func TestListActive_ExcludesDoneAndIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tasks := []model.Task{
		{TaskID: "a", Title: "todo", Category: model.CategoryAdmin, DedupeKey: "a", Status: model.TaskStatusTodo, Sources: []model.TaskSource{{TaskID: "a", Source: model.SourceGmail, AccountID: "x", ProviderMessageID: "m1"}}},
		{TaskID: "b", Title: "done", Category: model.CategoryAdmin, DedupeKey: "b", Status: model.TaskStatusDone, Sources: []model.TaskSource{{TaskID: "b", Source: model.SourceGmail, AccountID: "x", ProviderMessageID: "m2"}}},
		{TaskID: "c", Title: "ignored", Category: model.CategoryAdmin, DedupeKey: "c", Status: model.TaskStatusIgnored, Sources: []model.TaskSource{{TaskID: "c", Source: model.SourceGmail, AccountID: "x", ProviderMessageID: "m3"}}},
	}
	if err := s.UpsertTasks(ctx, tasks); err != nil {
		t.Fatalf("UpsertTasks: %v", err)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].TaskID != "a" {
		t.Fatalf("expected only task a active, got %+v", active)
	}
}

func TestReplaceBlocksForRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	blocks := []model.CalendarBlock{
		{BlockID: "b1", Title: "Study", StartLocal: start, EndLocal: start.Add(time.Hour), CalendarName: "primary", PlanRevision: 1, LockLevel: model.LockFlexible},
	}
	if err := s.ReplaceBlocksForRevision(ctx, 1, blocks); err != nil {
		t.Fatalf("ReplaceBlocksForRevision: %v", err)
	}

	got, err := s.ListBlocksForRevision(ctx, 1)
	if err != nil {
		t.Fatalf("ListBlocksForRevision: %v", err)
	}
	if len(got) != 1 || got[0].BlockID != "b1" {
		t.Fatalf("expected block b1, got %+v", got)
	}

	// Replacing revision 1 again clears the prior generation.
	if err := s.ReplaceBlocksForRevision(ctx, 1, nil); err != nil {
		t.Fatalf("ReplaceBlocksForRevision (clear): %v", err)
	}
	got, err = s.ListBlocksForRevision(ctx, 1)
	if err != nil {
		t.Fatalf("ListBlocksForRevision: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 blocks after clearing revision, got %d", len(got))
	}
}

func TestCursorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetCursor(ctx, "gmail", "acct1")
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound before first sync, got %v", err)
	}

	cursor := model.ProviderCursor{Provider: "gmail", AccountID: "acct1", Primary: "1700000000", Secondary: "msg-42"}
	if err := s.UpsertCursor(ctx, cursor); err != nil {
		t.Fatalf("UpsertCursor: %v", err)
	}

	got, err := s.GetCursor(ctx, "gmail", "acct1")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if got.Primary != "1700000000" || got.Secondary != "msg-42" {
		t.Errorf("unexpected cursor: %+v", got)
	}
}

func TestPlanRevisionMonotonicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AppendRevision(ctx, "scheduled", 3, 1, 0)
	if err != nil {
		t.Fatalf("AppendRevision: %v", err)
	}
	second, err := s.AppendRevision(ctx, "manual", 1, 0, 2)
	if err != nil {
		t.Fatalf("AppendRevision: %v", err)
	}
	if second <= first {
		t.Fatalf("expected monotonically increasing revision ids, got %d then %d", first, second)
	}

	latest, err := s.LatestRevision(ctx)
	if err != nil {
		t.Fatalf("LatestRevision: %v", err)
	}
	if latest != second {
		t.Errorf("LatestRevision: got %d, want %d", latest, second)
	}
}

func TestOperationUndoLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	op := model.Operation{
		OpID:                 "op1",
		ExpectedPlanRevision: 1,
		Intent:               "move",
		Status:               model.OpApplied,
		PayloadJSON:          `{"block_id":"b1"}`,
	}
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("InsertOperation: %v", err)
	}

	got, err := s.LatestUndoable(ctx)
	if err != nil {
		t.Fatalf("LatestUndoable: %v", err)
	}
	if got.OpID != "op1" {
		t.Fatalf("expected op1, got %q", got.OpID)
	}

	if err := s.UpdateOperationStatus(ctx, "op1", model.OpUndone, 2, `{"reverted":true}`); err != nil {
		t.Fatalf("UpdateOperationStatus: %v", err)
	}

	_, err = s.LatestUndoable(ctx)
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound after undo, got %v", err)
	}
}

func TestAuditLogRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.LogAudit(ctx, model.AuditEntry{
			Category: "ingestion",
			Severity: model.SeverityInfo,
			Message:  "synced account",
			Context:  map[string]any{"account_id": "acct1"},
		})
		if err != nil {
			t.Fatalf("LogAudit: %v", err)
		}
	}

	entries, err := s.RecentAudit(ctx, "ingestion", 2)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries with limit=2, got %d", len(entries))
	}
}

func TestAccountsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := model.Account{AccountID: "acct1", Provider: model.SourceGmail, Email: "me@example.com", Enabled: true}
	if err := s.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}

	got, err := s.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Email != "me@example.com" {
		t.Errorf("Email: got %q, want %q", got.Email, "me@example.com")
	}

	enabled, err := s.ListEnabledAccounts(ctx)
	if err != nil {
		t.Fatalf("ListEnabledAccounts: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled account, got %d", len(enabled))
	}
}
