// Package planapply reconciles the Planner's desired blocks against the
// managed calendar's observed state and records the resulting plan
// revision.
package planapply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/planner"
)

// Store is the subset of store.Store this service needs.
type Store interface {
	ListActive(ctx context.Context) ([]model.Task, error)
	ListBlocksForRevision(ctx context.Context, planRevision int64) ([]model.CalendarBlock, error)
	LatestRevision(ctx context.Context) (int64, error)
	AppendRevision(ctx context.Context, trigger string, created, moved, deleted int) (int64, error)
	ReplaceBlocksForRevision(ctx context.Context, planRevision int64, blocks []model.CalendarBlock) error
	LogAudit(ctx context.Context, e model.AuditEntry) error
}

// CalendarStore is the external managed-calendar capability (see §6).
type CalendarStore interface {
	CreateEvent(ctx context.Context, b model.CalendarBlock) (calendarEventID string, err error)
	DeleteEvent(ctx context.Context, calendarEventID string) error
}

// Summary is the result of one regenerate() call.
type Summary struct {
	RevisionID       int64
	Created          int
	Deleted          int
	Feasibility      model.FeasibilityState
	Unscheduled      []string
}

// Service is the PlanApplyService.
type Service struct {
	store       Store
	calendar    CalendarStore
	constraints planner.Constraints
	now         func() time.Time
}

// New builds a Service. now defaults to time.Now when nil, overridden in
// tests for determinism.
func New(store Store, calendar CalendarStore, constraints planner.Constraints, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, calendar: calendar, constraints: constraints, now: now}
}

// Regenerate implements the §4.7 algorithm.
func (s *Service) Regenerate(ctx context.Context, trigger string) (Summary, error) {
	now := s.now()

	tasks, err := s.store.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list active tasks: %w", err)
	}

	latest, err := s.store.LatestRevision(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("get latest revision: %w", err)
	}
	nextRevision := latest + 1

	existing, err := s.store.ListBlocksForRevision(ctx, latest)
	if err != nil {
		return Summary{}, fmt.Errorf("list existing blocks: %w", err)
	}

	result := planner.Plan(now, tasks, existing, s.constraints, nextRevision)

	toDelete, toCreate := diff(existing, result.Blocks)

	created, deleted := 0, 0
	for _, b := range toDelete {
		if b.CalendarEventID == "" {
			continue
		}
		if err := s.calendar.DeleteEvent(ctx, b.CalendarEventID); err != nil {
			slog.Warn("planapply: failed to delete calendar event", "block_id", b.BlockID, "err", err)
			s.auditFailure(ctx, "delete_block_failed", b.BlockID, err)
			continue
		}
		deleted++
	}

	// Blocks the new plan shares with the previous revision keep their
	// calendar event and are carried into the new revision.
	observedByKey := make(map[string]model.CalendarBlock, len(existing))
	for _, b := range existing {
		observedByKey[b.DiffKey()] = b
	}
	desired := make([]model.CalendarBlock, 0, len(result.Blocks))
	for _, b := range result.Blocks {
		if prev, ok := observedByKey[b.DiffKey()]; ok {
			b.CalendarEventID = prev.CalendarEventID
			desired = append(desired, b)
		}
	}
	for _, b := range toCreate {
		eventID, err := s.calendar.CreateEvent(ctx, b)
		if err != nil {
			slog.Warn("planapply: failed to create calendar event", "block_id", b.BlockID, "err", err)
			s.auditFailure(ctx, "create_block_failed", b.BlockID, err)
			continue
		}
		b.CalendarEventID = eventID
		desired = append(desired, b)
		created++
	}

	if err := s.store.ReplaceBlocksForRevision(ctx, nextRevision, desired); err != nil {
		return Summary{}, fmt.Errorf("persist revision %d blocks: %w", nextRevision, err)
	}

	revisionID, err := s.store.AppendRevision(ctx, trigger, created, 0, deleted)
	if err != nil {
		return Summary{}, fmt.Errorf("append plan revision: %w", err)
	}

	if err := s.store.LogAudit(ctx, model.AuditEntry{
		Category: "regenerate_plan",
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("regenerated plan revision %d (trigger=%s)", revisionID, trigger),
		Context: map[string]any{
			"created":     created,
			"deleted":     deleted,
			"feasibility": string(result.FeasibilityState),
			"unscheduled": result.UnscheduledTaskIDs,
		},
	}); err != nil {
		return Summary{}, fmt.Errorf("log regenerate_plan audit entry: %w", err)
	}

	return Summary{
		RevisionID:  revisionID,
		Created:     created,
		Deleted:     deleted,
		Feasibility: result.FeasibilityState,
		Unscheduled: result.UnscheduledTaskIDs,
	}, nil
}

// IngestionRegenerator adapts Service to the ingestion package's
// Regenerator capability, which only needs to know whether regeneration
// succeeded.
type IngestionRegenerator struct {
	Service *Service
}

func (r IngestionRegenerator) Regenerate(ctx context.Context, trigger string) error {
	_, err := r.Service.Regenerate(ctx, trigger)
	return err
}

func (s *Service) auditFailure(ctx context.Context, category, blockID string, cause error) {
	_ = s.store.LogAudit(ctx, model.AuditEntry{
		Category: category,
		Severity: model.SeverityError,
		Message:  cause.Error(),
		Context:  map[string]any{"block_id": blockID},
	})
}

// diff computes to_delete = observed \ desired and to_create = desired \
// observed using the §4.7 diff key (title | floor(start/60) | floor(end/60)).
// Moves are represented as a paired delete+create under this scheme.
func diff(observed, desired []model.CalendarBlock) (toDelete, toCreate []model.CalendarBlock) {
	observedByKey := make(map[string]model.CalendarBlock, len(observed))
	for _, b := range observed {
		observedByKey[b.DiffKey()] = b
	}
	desiredByKey := make(map[string]model.CalendarBlock, len(desired))
	for _, b := range desired {
		desiredByKey[b.DiffKey()] = b
	}

	for key, b := range observedByKey {
		if _, ok := desiredByKey[key]; !ok {
			toDelete = append(toDelete, b)
		}
	}
	for key, b := range desiredByKey {
		if _, ok := observedByKey[key]; !ok {
			toCreate = append(toCreate, b)
		}
	}
	return toDelete, toCreate
}
