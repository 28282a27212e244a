package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// extractTasksSystemPrompt is sent as the "system" message for an
// extractTasks call. One printf verb is substituted: the numbered digest of
// approved UpdateCards the model must extract tasks from.
const extractTasksSystemPrompt = `You are the task extraction stage of a personal scheduling agent.

You will be shown a numbered list of update cards parsed from a student's
email. For each card that names concrete work the student must do, emit one
task object. Cards that are purely informational produce no task.

RULES (strict -- do not deviate):
1. Respond ONLY with a JSON array. No markdown, no code fences, no text outside the array.
2. Every task object MUST include "source_card_index" set to the 0-based index of the card it came from.
3. "category" MUST be one of: assignment, quiz, email_reply, application, leetcode, project, admin.
4. "due_at_local" is an ISO-8601 local date-time string, or null if the card names no deadline.
5. "estimated_minutes" is your best estimate of focused work time required; never zero.
6. Never invent a task for a card that contains no actionable work.
7. Never include commentary, secrets, or any field not in the schema below.

Schema per task object:
{
  "title": "<short task title>",
  "category": "<one of the categories above>",
  "due_at_local": "<ISO-8601 date-time>" | null,
  "estimated_minutes": <integer >= 1>,
  "min_daily_minutes": <integer >= 0, minimum daily progress to stay on track>,
  "priority": <integer 1-5, 5 is most urgent>,
  "stress_weight": <number 0-1, how much this task weighs on the student>,
  "source_card_index": <integer>
}

Cards:
%s
`

// buildExtractTasksPrompt renders the numbered card digest substituted into
// extractTasksSystemPrompt.
func buildExtractTasksPrompt(cards []model.UpdateCard) string {
	var digest strings.Builder
	for i, c := range cards {
		fmt.Fprintf(&digest, "[%d] subject=%q sender=%q received=%s\n%s\n\n",
			i, c.Subject, c.Sender, c.ReceivedAtUTC.Format("2006-01-02T15:04:05Z"), c.BodyText)
	}
	return fmt.Sprintf(extractTasksSystemPrompt, digest.String())
}

// parseEditIntentSystemPrompt is sent as the "system" message for a
// parseEditIntent call. Two printf verbs are substituted: the current plan
// revision and the user's free-form text.
const parseEditIntentSystemPrompt = `You translate a free-form scheduling request into one structured edit operation.

The currently expected plan revision is %s, but you do not need to repeat it
anywhere -- the caller stamps expected_plan_revision onto the operation
itself. You only describe the edit.

RULES (strict -- do not deviate):
1. Respond ONLY with a single JSON object. No markdown, no commentary.
2. "intent" MUST be one of: create_block, move_block, resize_block, delete_block, mark_done, lock_sleep, regenerate_plan.
3. "start_local" and "end_local" are ISO-8601 local date-times, required for create_block/move_block/resize_block.
4. "fuzzy_title" names the target block for delete_block/mark_done/move_block when no calendar_event_id is known.
5. Set "requires_confirmation": true and fill "ambiguity_reason" whenever the request is unclear or could match more than one block.
6. Never propose a mutation the user did not ask for.

User request:
%s
`

func buildParseEditIntentPrompt(expectedPlanRevision int64, text string) string {
	return fmt.Sprintf(parseEditIntentSystemPrompt, strconv.FormatInt(expectedPlanRevision, 10), text)
}
