// Package commands implements the chat-style edit commands (today, add,
// move, undo, help) that let a user steer the managed plan without waiting
// for the next scheduled regenerate.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
	"github.com/soraya-vance/daymind/internal/daymind/store"
)

// maxUndoDepth bounds the in-memory undo stack; operations older than this
// are still recoverable by re-reading the durable operations table, just
// not from the fast path.
const maxUndoDepth = 100

const helpText = `commands:
  today                                              list today's blocks
  add "<title>" <N>m [today|tomorrow] [<time>]       schedule a new block (default 19:00 today)
  move "<title>" <today|tomorrow> <time> [<N>m]       move an existing block
  undo                                                reverse the last applied edit
  help                                                show this message`

// Store is the subset of store.Store CommandService needs.
type Store interface {
	LatestRevision(ctx context.Context) (int64, error)
	AppendRevision(ctx context.Context, trigger string, created, moved, deleted int) (int64, error)
	InsertOperation(ctx context.Context, op model.Operation) error
	UpdateOperationStatus(ctx context.Context, opID string, status model.OperationStatus, appliedRevision int64, resultJSON string) error
	LatestUndoable(ctx context.Context) (*model.Operation, error)
	ListBlocksInRange(ctx context.Context, from, to string) ([]model.CalendarBlock, error)
	FindBlocksByTitle(ctx context.Context, title string) ([]model.CalendarBlock, error)
	InsertBlock(ctx context.Context, b model.CalendarBlock) error
	DeleteBlock(ctx context.Context, blockID string) error
}

// CalendarStore is the external managed-calendar capability (see §6). It
// mirrors planapply.CalendarStore; the two packages share the same external
// contract but never share a Go interface value across a process boundary.
type CalendarStore interface {
	CreateEvent(ctx context.Context, b model.CalendarBlock) (calendarEventID string, err error)
	DeleteEvent(ctx context.Context, calendarEventID string) error
}

// Result is what handle() returns for every command.
type Result struct {
	Text                 string
	PlanRevision         int64
	RequiresConfirmation bool
}

// Service is the CommandService. A single instance processes at most one
// command at a time; mu enforces that serialization.
type Service struct {
	mu       sync.Mutex
	store    Store
	calendar CalendarStore
	engine   *rules.Engine

	hydrated     bool
	currentRev   int64
	undoStack    []*model.Operation
}

// New builds a Service. Hydration of current_plan_revision is deferred to
// the first Handle call so construction never touches the store.
func New(s Store, calendar CalendarStore, engine *rules.Engine) *Service {
	return &Service{store: s, calendar: calendar, engine: engine}
}

// Handle implements the §4.9 handle(commandText, now) algorithm.
func (s *Service) Handle(ctx context.Context, commandText string, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.hydrate(ctx); err != nil {
		return Result{}, fmt.Errorf("hydrate command service: %w", err)
	}

	fields := tokenize(strings.TrimSpace(commandText))
	if len(fields) == 0 {
		return Result{Text: helpText, PlanRevision: s.currentRev}, nil
	}

	switch strings.ToLower(fields[0]) {
	case "today":
		return s.handleToday(ctx, now)
	case "add":
		return s.handleAdd(ctx, fields[1:], now)
	case "move":
		return s.handleMove(ctx, fields[1:], now)
	case "undo":
		return s.handleUndo(ctx)
	case "help":
		return Result{Text: helpText, PlanRevision: s.currentRev}, nil
	default:
		return Result{Text: fmt.Sprintf("unrecognized command %q, try \"help\"", fields[0]), PlanRevision: s.currentRev}, nil
	}
}

// hydrate sets current_plan_revision = max(PlanRevisions.latestId(),
// Operations.latestAppliedRevision()) exactly once.
func (s *Service) hydrate(ctx context.Context) error {
	if s.hydrated {
		return nil
	}

	rev, err := s.store.LatestRevision(ctx)
	if err != nil {
		return fmt.Errorf("read latest plan revision: %w", err)
	}

	op, err := s.store.LatestUndoable(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read latest applied operation: %w", err)
	}
	if op != nil && op.AppliedRevision > rev {
		rev = op.AppliedRevision
	}

	s.currentRev = rev
	s.hydrated = true
	return nil
}

func (s *Service) handleToday(ctx context.Context, now time.Time) (Result, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	blocks, err := s.store.ListBlocksInRange(ctx, dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339))
	if err != nil {
		return Result{}, fmt.Errorf("list today's blocks: %w", err)
	}
	if len(blocks) == 0 {
		return Result{Text: "nothing scheduled today", PlanRevision: s.currentRev}, nil
	}

	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s-%s %s", blk.StartLocal.Format("15:04"), blk.EndLocal.Format("15:04"), blk.Title)
	}
	return Result{Text: b.String(), PlanRevision: s.currentRev}, nil
}

func (s *Service) handleAdd(ctx context.Context, args []string, now time.Time) (Result, error) {
	parsed, err := parseAdd(args)
	if err != nil {
		return Result{Text: err.Error(), PlanRevision: s.currentRev}, nil
	}

	start := resolveStart(now, parsed.day, parsed.hour, parsed.minute)
	end := start.Add(time.Duration(parsed.minutes) * time.Minute)

	result := s.engine.ValidateEdit(rules.EditOperation{
		Intent:               rules.IntentCreateBlock,
		ExpectedPlanRevision: s.currentRev,
		StartLocal:           &start,
		EndLocal:             &end,
	}, rules.EditContext{CurrentPlanRevision: s.currentRev})

	if result.Decision != rules.DecisionApproved {
		return Result{Text: reasonText(result.Reason), PlanRevision: s.currentRev, RequiresConfirmation: result.Decision == rules.DecisionRequiresConfirmation}, nil
	}

	block := model.CalendarBlock{
		BlockID:        newID(),
		Title:          parsed.title,
		StartLocal:     start,
		EndLocal:       end,
		ManagedByAgent: true,
		LockLevel:      model.LockFlexible,
	}

	calendarEventID, err := s.calendar.CreateEvent(ctx, block)
	if err != nil {
		return Result{}, fmt.Errorf("create calendar event: %w", err)
	}
	block.CalendarEventID = calendarEventID

	newRevision := s.currentRev + 1
	block.PlanRevision = newRevision
	if err := s.store.InsertBlock(ctx, block); err != nil {
		return Result{}, fmt.Errorf("insert block: %w", err)
	}

	op, err := s.recordOperation(ctx, rules.IntentCreateBlock, newRevision, block, undoEnvelope{
		Kind:            envelopeCreatedBlock,
		BlockID:         block.BlockID,
		CalendarEventID: block.CalendarEventID,
	})
	if err != nil {
		return Result{}, err
	}

	if _, err := s.store.AppendRevision(ctx, "command_add", 1, 0, 0); err != nil {
		return Result{}, fmt.Errorf("append plan revision: %w", err)
	}

	s.currentRev = newRevision
	s.pushUndo(op)

	return Result{
		Text:         fmt.Sprintf("added %q %s-%s", block.Title, start.Format("15:04"), end.Format("15:04")),
		PlanRevision: newRevision,
	}, nil
}

func (s *Service) handleMove(ctx context.Context, args []string, now time.Time) (Result, error) {
	parsed, err := parseMove(args)
	if err != nil {
		return Result{Text: err.Error(), PlanRevision: s.currentRev}, nil
	}

	matches, err := s.store.FindBlocksByTitle(ctx, parsed.title)
	if err != nil {
		return Result{}, fmt.Errorf("find blocks matching %q: %w", parsed.title, err)
	}
	if len(matches) == 0 {
		return Result{Text: fmt.Sprintf("no scheduled block matches %q", parsed.title), PlanRevision: s.currentRev}, nil
	}
	target := matches[0]

	durationMinutes := parsed.minutes
	if durationMinutes == 0 {
		durationMinutes = int(target.EndLocal.Sub(target.StartLocal).Minutes())
	}
	start := resolveStart(now, parsed.day, parsed.hour, parsed.minute)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	result := s.engine.ValidateEdit(rules.EditOperation{
		Intent:               rules.IntentMoveBlock,
		ExpectedPlanRevision: s.currentRev,
		StartLocal:           &start,
		EndLocal:             &end,
	}, rules.EditContext{
		CurrentPlanRevision:         s.currentRev,
		TouchesNonAgentManagedEvent: !target.ManagedByAgent,
		MatchedTargetCount:          len(matches),
	})

	if result.Decision != rules.DecisionApproved {
		return Result{Text: reasonText(result.Reason), PlanRevision: s.currentRev, RequiresConfirmation: result.Decision == rules.DecisionRequiresConfirmation}, nil
	}

	previous := target
	if target.CalendarEventID != "" {
		if err := s.calendar.DeleteEvent(ctx, target.CalendarEventID); err != nil {
			return Result{}, fmt.Errorf("delete previous calendar event: %w", err)
		}
	}
	if err := s.store.DeleteBlock(ctx, target.BlockID); err != nil {
		return Result{}, fmt.Errorf("delete previous block: %w", err)
	}

	moved := model.CalendarBlock{
		BlockID:        newID(),
		TaskID:         target.TaskID,
		Title:          target.Title,
		StartLocal:     start,
		EndLocal:       end,
		ManagedByAgent: true,
		LockLevel:      target.LockLevel,
	}
	calendarEventID, err := s.calendar.CreateEvent(ctx, moved)
	if err != nil {
		return Result{}, fmt.Errorf("create moved calendar event: %w", err)
	}
	moved.CalendarEventID = calendarEventID

	newRevision := s.currentRev + 1
	moved.PlanRevision = newRevision
	if err := s.store.InsertBlock(ctx, moved); err != nil {
		return Result{}, fmt.Errorf("insert moved block: %w", err)
	}

	op, err := s.recordOperation(ctx, rules.IntentMoveBlock, newRevision, moved, undoEnvelope{
		Kind:     envelopeMovedBlock,
		Previous: &previous,
	})
	if err != nil {
		return Result{}, err
	}

	if _, err := s.store.AppendRevision(ctx, "command_move", 0, 1, 0); err != nil {
		return Result{}, fmt.Errorf("append plan revision: %w", err)
	}

	s.currentRev = newRevision
	s.pushUndo(op)

	return Result{
		Text:         fmt.Sprintf("moved %q to %s-%s", moved.Title, start.Format("15:04"), end.Format("15:04")),
		PlanRevision: newRevision,
	}, nil
}

// handleUndo pops the in-memory stack first; if it's empty it falls back to
// the most recent applied create_block/move_block operation on disk.
func (s *Service) handleUndo(ctx context.Context) (Result, error) {
	op, fromMemory := s.popUndo()
	if !fromMemory {
		loaded, err := s.store.LatestUndoable(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Result{Text: "nothing to undo", PlanRevision: s.currentRev}, nil
			}
			return Result{}, fmt.Errorf("load latest undoable operation: %w", err)
		}
		if loaded.Intent != string(rules.IntentCreateBlock) && loaded.Intent != string(rules.IntentMoveBlock) {
			return Result{Text: "nothing to undo", PlanRevision: s.currentRev}, nil
		}
		op = loaded
	}

	var envelope undoEnvelope
	if err := json.Unmarshal([]byte(op.ResultJSON), &envelope); err != nil {
		return Result{}, fmt.Errorf("decode undo envelope for operation %s: %w", op.OpID, err)
	}

	newRevision := s.currentRev + 1

	switch envelope.Kind {
	case envelopeCreatedBlock:
		if envelope.CalendarEventID != "" {
			if err := s.calendar.DeleteEvent(ctx, envelope.CalendarEventID); err != nil {
				return Result{}, fmt.Errorf("undo: delete calendar event: %w", err)
			}
		}
		if err := s.store.DeleteBlock(ctx, envelope.BlockID); err != nil {
			return Result{}, fmt.Errorf("undo: delete block: %w", err)
		}

	case envelopeMovedBlock:
		if envelope.Previous == nil {
			return Result{}, fmt.Errorf("undo: operation %s has a moved_block envelope with no previous snapshot", op.OpID)
		}
		var moved model.CalendarBlock
		if err := json.Unmarshal([]byte(op.PayloadJSON), &moved); err != nil {
			return Result{}, fmt.Errorf("undo: decode moved block payload: %w", err)
		}
		if moved.CalendarEventID != "" {
			if err := s.calendar.DeleteEvent(ctx, moved.CalendarEventID); err != nil {
				return Result{}, fmt.Errorf("undo: delete moved calendar event: %w", err)
			}
		}
		if err := s.store.DeleteBlock(ctx, moved.BlockID); err != nil {
			return Result{}, fmt.Errorf("undo: delete moved block: %w", err)
		}

		restored := *envelope.Previous
		calendarEventID, err := s.calendar.CreateEvent(ctx, restored)
		if err != nil {
			return Result{}, fmt.Errorf("undo: recreate previous calendar event: %w", err)
		}
		restored.CalendarEventID = calendarEventID
		restored.PlanRevision = newRevision
		if err := s.store.InsertBlock(ctx, restored); err != nil {
			return Result{}, fmt.Errorf("undo: insert restored block: %w", err)
		}

	default:
		return Result{}, fmt.Errorf("undo: operation %s has an unrecognized envelope kind %q", op.OpID, envelope.Kind)
	}

	if err := s.store.UpdateOperationStatus(ctx, op.OpID, model.OpUndone, newRevision, op.ResultJSON); err != nil {
		return Result{}, fmt.Errorf("mark operation %s undone: %w", op.OpID, err)
	}
	if _, err := s.store.AppendRevision(ctx, "undo", 0, 0, 0); err != nil {
		return Result{}, fmt.Errorf("append undo plan revision: %w", err)
	}
	s.currentRev = newRevision

	return Result{Text: "undone", PlanRevision: newRevision}, nil
}

// recordOperation persists the operation row for a just-applied create/move
// and returns it so the caller can also push it onto the in-memory undo
// stack.
func (s *Service) recordOperation(ctx context.Context, intent rules.EditIntent, appliedRevision int64, applied model.CalendarBlock, envelope undoEnvelope) (*model.Operation, error) {
	payload, err := json.Marshal(applied)
	if err != nil {
		return nil, fmt.Errorf("marshal operation payload: %w", err)
	}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal undo envelope: %w", err)
	}

	op := model.Operation{
		OpID:                 newID(),
		ExpectedPlanRevision: s.currentRev,
		AppliedRevision:      appliedRevision,
		Intent:               string(intent),
		Status:               model.OpApplied,
		PayloadJSON:          string(payload),
		ResultJSON:           string(envelopeJSON),
	}
	if err := s.store.InsertOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("insert operation: %w", err)
	}
	return &op, nil
}

func (s *Service) pushUndo(op *model.Operation) {
	s.undoStack = append(s.undoStack, op)
	if len(s.undoStack) > maxUndoDepth {
		s.undoStack = s.undoStack[len(s.undoStack)-maxUndoDepth:]
	}
}

func (s *Service) popUndo() (*model.Operation, bool) {
	n := len(s.undoStack)
	if n == 0 {
		return nil, false
	}
	op := s.undoStack[n-1]
	s.undoStack = s.undoStack[:n-1]
	return op, true
}

// resolveStart anchors an add/move command's day+time onto now's calendar
// date, in now's location.
func resolveStart(now time.Time, day dayKind, hour, minute int) time.Time {
	base := now
	if day == dayTomorrow {
		base = base.AddDate(0, 0, 1)
	}
	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, base.Location())
}

func newID() string {
	return uuid.NewString()
}

// reasonText renders a RulesEngine decision reason code as the chat-facing
// message text. Most codes are surfaced verbatim so scripted log scraping
// on the reason string keeps working; ambiguous_target gets the
// user-facing "Ambiguous match" phrasing spec'd for the move command.
func reasonText(reason string) string {
	if reason == "ambiguous_target" {
		return "Ambiguous match: more than one block matches that title, be more specific or include a time"
	}
	return reason
}

const (
	envelopeCreatedBlock = "created_block"
	envelopeMovedBlock   = "moved_block"
)

// undoEnvelope is the persisted shape of Operation.ResultJSON for the two
// undoable intents.
type undoEnvelope struct {
	Kind            string              `json:"kind"`
	BlockID         string              `json:"block_id,omitempty"`
	CalendarEventID string              `json:"calendar_event_id,omitempty"`
	Previous        *model.CalendarBlock `json:"previous,omitempty"`
}
