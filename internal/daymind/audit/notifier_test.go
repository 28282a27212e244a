package audit_test

import (
	"context"
	"strings"
	"testing"

	"github.com/soraya-vance/daymind/internal/daymind/audit"
)

// fakeSender records notices for assertion.
type fakeSender struct {
	notices []string
}

func (f *fakeSender) Notify(_, msg string) error {
	f.notices = append(f.notices, msg)
	return nil
}

func TestRoomNotifier_SendsNotice(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewRoomNotifier(sender, "!room:example.com")

	n.Notify(context.Background(), audit.Event{
		Kind:      audit.KindPlanRegenerated,
		AccountID: "acct-1",
		Target:    "today's plan",
		Message:   "regenerated after command_add",
		TraceID:   "t_abc123",
	})

	if len(sender.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sender.notices))
	}
	msg := sender.notices[0]
	for _, want := range []string{"today's plan", "regenerated", "t_abc123", "acct-1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("notice missing %q: %q", want, msg)
		}
	}
}

func TestRoomNotifier_NoopWhenEmptyRoom(t *testing.T) {
	sender := &fakeSender{}
	n := audit.NewRoomNotifier(sender, "")

	n.Notify(context.Background(), audit.Event{
		Kind:    audit.KindError,
		Message: "boom",
	})

	if len(sender.notices) != 0 {
		t.Fatalf("expected no notices for empty room, got %d", len(sender.notices))
	}
}

func TestNoop(t *testing.T) {
	// Must not panic.
	audit.Noop{}.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
}
