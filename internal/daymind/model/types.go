// Package model holds the data types shared across the daymind orchestration
// spine: the Store persists them, ParserPipeline and the LLMClient produce
// them, RulesEngine validates them, and Planner/PlanApplyService/
// CommandService consume them. None of these types carry behavior beyond
// small accessors — every state transition lives in the owning service.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Source identifies where an UpdateCard originated.
type Source string

const (
	SourceGmail          Source = "gmail"
	SourceOutlook        Source = "outlook"
	SourceUBLearnsEmail  Source = "ublearns_email"
	SourcePiazzaEmail    Source = "piazza_email"
)

// ParserMethod records which parsing strategy produced an UpdateCard.
type ParserMethod string

const (
	ParserMethodRuleBased   ParserMethod = "rule_based"
	ParserMethodLLMFallback ParserMethod = "llm_fallback"
)

// UpdateCard is one normalized inbound message. Created once by
// IngestionService; never mutated or deleted afterward.
type UpdateCard struct {
	UpdateID            string
	AccountID            string
	Source               Source
	ProviderMessageID    string
	ProviderThreadID     string // empty when absent
	ReceivedAtUTC        time.Time
	Sender               string
	Subject              string
	BodyText             string
	Links                []string
	Tags                 []string
	ParserMethod         ParserMethod
	ParseConfidence      float64
	Evidence             []string
	RequiresConfirmation bool
	ContentHash          string // sha256(BodyText), stable across runs
}

// TaskCategory enumerates the categories a Task may carry.
type TaskCategory string

const (
	CategoryAssignment  TaskCategory = "assignment"
	CategoryQuiz        TaskCategory = "quiz"
	CategoryEmailReply  TaskCategory = "email_reply"
	CategoryApplication TaskCategory = "application"
	CategoryLeetcode    TaskCategory = "leetcode"
	CategoryProject     TaskCategory = "project"
	CategoryAdmin       TaskCategory = "admin"
)

// FeasibilityState is the Planner's verdict for a task or a whole day.
type FeasibilityState string

const (
	FeasibilityOnTrack   FeasibilityState = "on_track"
	FeasibilityAtRisk    FeasibilityState = "at_risk"
	FeasibilityInfeasible FeasibilityState = "infeasible"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusIgnored    TaskStatus = "ignored"
)

// Task is one unit of user work, created and updated by LLMClient.extractTasks
// and retired (never deleted) once Status reaches done or ignored.
type Task struct {
	TaskID             string
	Title              string
	Category           TaskCategory
	DueAtLocal         *time.Time
	EstimatedMinutes    int
	MinDailyMinutes     int
	Priority           int
	StressWeight        float64
	FeasibilityState    FeasibilityState
	Status             TaskStatus
	DedupeKey          string
	Sources            []TaskSource
}

// DueDateOrNone renders DueAtLocal as ISO-8601 or the literal "none", matching
// the dedupe key grammar from the spec.
func (t Task) DueDateOrNone() string {
	if t.DueAtLocal == nil {
		return "none"
	}
	return t.DueAtLocal.Format("2006-01-02T15:04:05")
}

// ComputeDedupeKey implements `category | lowercase(title) | (due_at_local
// ISO-8601 | "none")`. Both the LLM extraction path and anything else that
// constructs a Task must call this rather than build the key by hand, so the
// three components always stay in the documented order.
func ComputeDedupeKey(category TaskCategory, title string, dueAtLocal *time.Time) string {
	due := "none"
	if dueAtLocal != nil {
		due = dueAtLocal.Format("2006-01-02T15:04:05")
	}
	return string(category) + "|" + strings.ToLower(title) + "|" + due
}

// TaskSource is one provenance triple for a Task. Multiple rows per task are
// permitted; each (TaskID, Source, AccountID, ProviderMessageID) is unique.
type TaskSource struct {
	TaskID            string
	Source            Source
	AccountID         string
	ProviderMessageID string
	Confidence        float64
}

// LockLevel controls whether the Planner may move or delete a CalendarBlock.
type LockLevel string

const (
	LockFlexible LockLevel = "flexible"
	LockLocked   LockLevel = "locked"
)

// CalendarBlock is a scheduled time range, either agent-managed or observed
// on the user's calendar.
type CalendarBlock struct {
	BlockID           string
	TaskID            string // empty when this block has no backing task (e.g. synthetic sleep)
	Title             string
	StartLocal        time.Time
	EndLocal          time.Time
	CalendarEventID   string // external id, empty until CalendarStore assigns one
	CalendarName      string
	ManagedByAgent    bool
	LockLevel         LockLevel
	PlanRevision      int64
}

// DiffKey is the identity PlanApplyService uses to compare desired vs.
// observed blocks: title plus start/end floored to the minute.
func (b CalendarBlock) DiffKey() string {
	return b.Title + "|" +
		timeKey(b.StartLocal) + "|" +
		timeKey(b.EndLocal)
}

func timeKey(t time.Time) string {
	return strconv.FormatInt(t.Unix()/60, 10)
}

// OperationStatus is the lifecycle state of an Operation record.
type OperationStatus string

const (
	OpApplied              OperationStatus = "applied"
	OpRejected             OperationStatus = "rejected"
	OpRequiresConfirmation OperationStatus = "requires_confirmation"
	OpUndone               OperationStatus = "undone"
)

// Operation records one attempted edit command.
type Operation struct {
	OpID                  string
	ExpectedPlanRevision  int64
	AppliedRevision       int64
	Intent                string
	Status                OperationStatus
	PayloadJSON           string
	ResultJSON            string
	CreatedAtUTC          time.Time
}

// ProviderCursor is one per-account, per-provider resumption point. Primary
// and Secondary are opaque strings whose tuple ordering is provider-defined
// (see ingestion.CursorCodec).
type ProviderCursor struct {
	Provider  string
	AccountID string
	Primary   string
	Secondary string
}

// PlanRevisionEntry is one row in the monotonic plan_revision log.
type PlanRevisionEntry struct {
	ID        int64
	Trigger   string
	Created   int
	Moved     int
	Deleted   int
	CreatedAtUTC time.Time
}

// AuditSeverity classifies an AuditEntry.
type AuditSeverity string

const (
	SeverityInfo  AuditSeverity = "info"
	SeverityWarn  AuditSeverity = "warning"
	SeverityError AuditSeverity = "error"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID           int64
	Category     string
	Severity     AuditSeverity
	Message      string
	Context      map[string]any
	CreatedAtUTC time.Time
}

// Account is one configured mailbox the coordinator may sync.
type Account struct {
	AccountID string
	Provider  Source
	Email     string
	Enabled   bool
}
