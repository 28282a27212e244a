// Package rules provides the policy firewall every mutation and every
// extracted update must pass through before it can touch persistent state.
// Evaluation is purely deterministic -- no LLM involvement.
package rules

import (
	"strings"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// Decision is the outcome of a rules evaluation.
type Decision int

const (
	// DecisionApproved means the operation may proceed immediately.
	DecisionApproved Decision = iota
	// DecisionRequiresConfirmation means the operation needs explicit
	// human sign-off before it proceeds.
	DecisionRequiresConfirmation
	// DecisionRejected means the operation is not permitted at all.
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRequiresConfirmation:
		return "requires_confirmation"
	case DecisionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the full output of one evaluation.
type Result struct {
	Decision Decision
	Reason   string // populated for requires_confirmation and rejected
}

// EditIntent names the kind of mutation an EditOperation carries.
type EditIntent string

const (
	IntentCreateBlock   EditIntent = "create_block"
	IntentMoveBlock     EditIntent = "move_block"
	IntentResizeBlock   EditIntent = "resize_block"
	IntentDeleteBlock   EditIntent = "delete_block"
	IntentMarkDone      EditIntent = "mark_done"
	IntentLockSleep     EditIntent = "lock_sleep"
	IntentRegeneratePlan EditIntent = "regenerate_plan"
)

// EditOperation is a structured intent to mutate plan state, subject to
// Engine.ValidateEdit.
type EditOperation struct {
	Intent               EditIntent
	ExpectedPlanRevision int64
	StartLocal           *time.Time
	EndLocal             *time.Time
	CalendarEventID      string
	FuzzyTitle           string
	SleepWindowSet       bool
	RequiresConfirmation bool
	AmbiguityReason      string
}

// EditContext carries the information RulesEngine needs that isn't part of
// the EditOperation itself.
type EditContext struct {
	CurrentPlanRevision      int64
	TouchesNonAgentManagedEvent bool
	MatchedTargetCount       int
}

// ValidateEdit implements the §4.3 validate(edit, ctx) algorithm. Checks run
// in the documented order and the first matching rule wins.
func (e *Engine) ValidateEdit(op EditOperation, ctx EditContext) Result {
	if op.ExpectedPlanRevision != ctx.CurrentPlanRevision {
		return Result{Decision: DecisionRejected, Reason: "stale_plan_revision"}
	}
	if ctx.TouchesNonAgentManagedEvent {
		return Result{Decision: DecisionRequiresConfirmation, Reason: "non_agent_event"}
	}
	if ctx.MatchedTargetCount > 1 {
		return Result{Decision: DecisionRequiresConfirmation, Reason: "ambiguous_target"}
	}
	if op.RequiresConfirmation {
		reason := op.AmbiguityReason
		if reason == "" {
			reason = "explicit_confirmation_flag"
		}
		return Result{Decision: DecisionRequiresConfirmation, Reason: reason}
	}

	switch op.Intent {
	case IntentCreateBlock, IntentMoveBlock, IntentResizeBlock:
		if op.StartLocal == nil || op.EndLocal == nil || !op.StartLocal.Before(*op.EndLocal) {
			return Result{Decision: DecisionRejected, Reason: "invalid_or_missing_time_window"}
		}
	case IntentDeleteBlock, IntentMarkDone:
		if op.CalendarEventID == "" && strings.TrimSpace(op.FuzzyTitle) == "" {
			return Result{Decision: DecisionRejected, Reason: "missing_target"}
		}
	case IntentLockSleep:
		if !op.SleepWindowSet {
			return Result{Decision: DecisionRejected, Reason: "missing_sleep_window"}
		}
	case IntentRegeneratePlan:
		// unconditional
	}

	return Result{Decision: DecisionApproved}
}

// UpdateContext carries the confidence threshold below which an otherwise
// well-formed update still requires confirmation.
type UpdateContext struct {
	Threshold float64
}

// ValidateUpdate implements the §4.3 validate(update, ctx) algorithm.
func (e *Engine) ValidateUpdate(card model.UpdateCard, ctx UpdateContext) Result {
	if card.ParseConfidence < 0 || card.ParseConfidence > 1 {
		return Result{Decision: DecisionRejected, Reason: "parse_confidence_out_of_range"}
	}
	if strings.TrimSpace(card.Subject) == "" {
		return Result{Decision: DecisionRejected, Reason: "blank_subject"}
	}
	if card.ParseConfidence < ctx.Threshold {
		return Result{Decision: DecisionRequiresConfirmation, Reason: "below_confidence_threshold"}
	}
	if card.RequiresConfirmation {
		return Result{Decision: DecisionRequiresConfirmation, Reason: "card_flagged_requires_confirmation"}
	}
	return Result{Decision: DecisionApproved}
}

// Engine is the stateless RulesEngine. It holds no configuration of its own;
// thresholds are passed in per call via the context structs so the same
// instance can serve every caller.
type Engine struct{}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{}
}
