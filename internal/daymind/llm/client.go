// Package llm is the sole boundary between daymind and a remote language
// model. It exposes exactly two operations and is forbidden from performing
// any mutation itself -- every Task or EditOperation it returns still has to
// clear RulesEngine before it touches the store or the managed calendar.
package llm

import (
	"context"

	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
)

// Client is the §4.10 LLMClient contract.
type Client interface {
	// ExtractTasks turns a batch of rules-approved UpdateCards into Tasks.
	// Every returned Task carries at least one TaskSource pointing back at
	// the card(s) that produced it.
	ExtractTasks(ctx context.Context, cards []model.UpdateCard) ([]model.Task, error)

	// ParseEditIntent turns free-form chat text into a structured
	// EditOperation stamped with expectedPlanRevision, for callers that want
	// natural-language editing on top of CommandService's fixed grammar.
	ParseEditIntent(ctx context.Context, text string, expectedPlanRevision int64) (rules.EditOperation, error)
}
