// Package audit provides the audit room notification subsystem.
//
// Every mutation and gating decision is already durably recorded through
// Store.LogAudit; this package is a secondary, best-effort channel that
// mirrors the noteworthy subset of those entries to a chat room so an
// operator watching the room sees plan regenerations, applied commands, and
// dropped low-confidence extractions without tailing the SQLite audit log.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/soraya-vance/daymind/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindTaskExtracted      Kind = "task.extracted"
	KindLowConfidenceDrop  Kind = "update.low_confidence_dropped"
	KindPlanRegenerated    Kind = "plan.regenerated"
	KindCommandApplied     Kind = "command.applied"
	KindCommandUndone      Kind = "command.undone"
	KindCommandRejected    Kind = "command.rejected"
	KindRuleViolation      Kind = "rules.violation"
	KindProviderAuthFailed Kind = "provider.auth_failed"
	KindError              Kind = "error"
)

// Event carries the data that the audit notifier formats and sends.
type Event struct {
	Kind Kind
	// AccountID is the provider account the event concerns, if any.
	AccountID string
	// Target is the primary resource affected (task title, block title, …).
	Target string
	// Message is a human-friendly description of what happened.
	Message string
	// TraceID ties the notification back to the SQLite audit record. When
	// empty the value is taken from the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier sends audit room notifications for noteworthy control-plane
// events.
type Notifier interface {
	// Notify posts an audit event. Implementations MUST NOT block the
	// caller for longer than a short timeout; send failures are logged,
	// never propagated.
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of a chat transport needed by RoomNotifier. Defined
// as an interface so the notifier can be unit-tested independently of any
// concrete transport.
type Sender interface {
	Notify(roomID, message string) error
}

// RoomNotifier posts formatted notices to a single chat room.
type RoomNotifier struct {
	sender Sender
	roomID string
}

// NewRoomNotifier creates a RoomNotifier that posts to roomID via sender.
func NewRoomNotifier(sender Sender, roomID string) *RoomNotifier {
	return &RoomNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt as a human-readable notice and posts it to the audit
// room. Errors are logged at WARN level; the caller is never blocked.
func (n *RoomNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}

	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	msg := fmt.Sprintf("[%s] %s", evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("[%s] %s: %s", evt.Kind, evt.Target, evt.Message)
	}
	if evt.AccountID != "" {
		msg = fmt.Sprintf("%s\n  account: %s", msg, evt.AccountID)
	}
	if tid != "" {
		msg = fmt.Sprintf("%s\n  trace: %s", msg, tid)
	}

	if err := n.sender.Notify(n.roomID, msg); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
	} else {
		slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
	}
}

// Noop is a no-op Notifier used when audit room notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(_ context.Context, _ Event) {}
