package rules_test

import (
	"testing"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
)

func TestValidateEdit_StaleRevisionRejected(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentRegeneratePlan, ExpectedPlanRevision: 5}
	ctx := rules.EditContext{CurrentPlanRevision: 6}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRejected || got.Reason != "stale_plan_revision" {
		t.Errorf("got %+v, want rejected/stale_plan_revision", got)
	}
}

func TestValidateEdit_NonAgentEventRequiresConfirmation(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentDeleteBlock, ExpectedPlanRevision: 1, FuzzyTitle: "standup"}
	ctx := rules.EditContext{CurrentPlanRevision: 1, TouchesNonAgentManagedEvent: true}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRequiresConfirmation || got.Reason != "non_agent_event" {
		t.Errorf("got %+v, want requires_confirmation/non_agent_event", got)
	}
}

func TestValidateEdit_AmbiguousTargetRequiresConfirmation(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentDeleteBlock, ExpectedPlanRevision: 1, FuzzyTitle: "study"}
	ctx := rules.EditContext{CurrentPlanRevision: 1, MatchedTargetCount: 2}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRequiresConfirmation || got.Reason != "ambiguous_target" {
		t.Errorf("got %+v, want requires_confirmation/ambiguous_target", got)
	}
}

func TestValidateEdit_CreateBlockRequiresValidTimeWindow(t *testing.T) {
	e := rules.New()
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour) // end before start: invalid

	op := rules.EditOperation{
		Intent:               rules.IntentCreateBlock,
		ExpectedPlanRevision: 1,
		StartLocal:           &start,
		EndLocal:             &end,
	}
	ctx := rules.EditContext{CurrentPlanRevision: 1}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRejected || got.Reason != "invalid_or_missing_time_window" {
		t.Errorf("got %+v, want rejected/invalid_or_missing_time_window", got)
	}
}

func TestValidateEdit_CreateBlockApprovedWithValidWindow(t *testing.T) {
	e := rules.New()
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	op := rules.EditOperation{
		Intent:               rules.IntentCreateBlock,
		ExpectedPlanRevision: 1,
		StartLocal:           &start,
		EndLocal:             &end,
	}
	ctx := rules.EditContext{CurrentPlanRevision: 1}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionApproved {
		t.Errorf("got %+v, want approved", got)
	}
}

func TestValidateEdit_DeleteRequiresTarget(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentDeleteBlock, ExpectedPlanRevision: 1}
	ctx := rules.EditContext{CurrentPlanRevision: 1}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRejected || got.Reason != "missing_target" {
		t.Errorf("got %+v, want rejected/missing_target", got)
	}
}

func TestValidateEdit_LockSleepRequiresWindow(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentLockSleep, ExpectedPlanRevision: 1}
	ctx := rules.EditContext{CurrentPlanRevision: 1}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionRejected || got.Reason != "missing_sleep_window" {
		t.Errorf("got %+v, want rejected/missing_sleep_window", got)
	}
}

func TestValidateEdit_RegeneratePlanUnconditional(t *testing.T) {
	e := rules.New()
	op := rules.EditOperation{Intent: rules.IntentRegeneratePlan, ExpectedPlanRevision: 1}
	ctx := rules.EditContext{CurrentPlanRevision: 1}

	got := e.ValidateEdit(op, ctx)
	if got.Decision != rules.DecisionApproved {
		t.Errorf("got %+v, want approved", got)
	}
}

func TestValidateUpdate_RejectsOutOfRangeConfidence(t *testing.T) {
	e := rules.New()
	card := model.UpdateCard{Subject: "hi", ParseConfidence: 1.5}

	got := e.ValidateUpdate(card, rules.UpdateContext{Threshold: 0.5})
	if got.Decision != rules.DecisionRejected || got.Reason != "parse_confidence_out_of_range" {
		t.Errorf("got %+v, want rejected/parse_confidence_out_of_range", got)
	}
}

func TestValidateUpdate_RejectsBlankSubject(t *testing.T) {
	e := rules.New()
	card := model.UpdateCard{Subject: "   ", ParseConfidence: 0.8}

	got := e.ValidateUpdate(card, rules.UpdateContext{Threshold: 0.5})
	if got.Decision != rules.DecisionRejected || got.Reason != "blank_subject" {
		t.Errorf("got %+v, want rejected/blank_subject", got)
	}
}

func TestValidateUpdate_BelowThresholdRequiresConfirmation(t *testing.T) {
	e := rules.New()
	card := model.UpdateCard{Subject: "hi", ParseConfidence: 0.3}

	got := e.ValidateUpdate(card, rules.UpdateContext{Threshold: 0.5})
	if got.Decision != rules.DecisionRequiresConfirmation || got.Reason != "below_confidence_threshold" {
		t.Errorf("got %+v, want requires_confirmation/below_confidence_threshold", got)
	}
}

func TestValidateUpdate_Approved(t *testing.T) {
	e := rules.New()
	card := model.UpdateCard{Subject: "hi", ParseConfidence: 0.9}

	got := e.ValidateUpdate(card, rules.UpdateContext{Threshold: 0.5})
	if got.Decision != rules.DecisionApproved {
		t.Errorf("got %+v, want approved", got)
	}
}
