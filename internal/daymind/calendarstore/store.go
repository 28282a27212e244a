// Package calendarstore defines the managed-calendar capability consumed by
// PlanApplyService and CommandService, plus an in-memory implementation used
// for tests and for exercising the rest of the system without a real
// calendar backend wired in.
//
// A production backend (CalDAV, Google Calendar API, EventKit, …) implements
// Store directly; nothing else in this module depends on how blocks are
// actually persisted externally.
package calendarstore

import (
	"context"
	"errors"
	"time"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// Errors a Store implementation returns, per the §6 CalendarStore error
// taxonomy.
var (
	ErrPermissionDenied    = errors.New("calendarstore: permission denied")
	ErrCalendarNotAvailable = errors.New("calendarstore: calendar not available")
	ErrEventNotFound       = errors.New("calendarstore: event not found")
	ErrUnsupportedPlatform = errors.New("calendarstore: unsupported platform")
)

// Store is the capability abstraction consumed by PlanApplyService and
// CommandService (spec §6). Implementations must treat mutation of events
// outside the managed calendar as forbidden.
type Store interface {
	// EnsureManagedCalendar creates the named calendar if it does not
	// already exist. It is idempotent.
	EnsureManagedCalendar(ctx context.Context, name string) error

	// FetchManagedBlocks returns every block on the managed calendar whose
	// start falls on onDate in tz.
	FetchManagedBlocks(ctx context.Context, onDate time.Time, tz *time.Location) ([]model.CalendarBlock, error)

	// FindManagedBlocks returns managed blocks whose title contains
	// fuzzyTitle case-insensitively, optionally restricted to onDate.
	FindManagedBlocks(ctx context.Context, fuzzyTitle string, onDate *time.Time, tz *time.Location) ([]model.CalendarBlock, error)

	// CreateManagedBlock creates b on calendarName and returns the assigned
	// external event id.
	CreateManagedBlock(ctx context.Context, b model.CalendarBlock, calendarName string) (calendarEventID string, err error)

	// UpdateManagedBlock updates the external event backing b.
	UpdateManagedBlock(ctx context.Context, b model.CalendarBlock, calendarName string) error

	// DeleteManagedBlock removes the external event for blockID (and/or
	// externalEventID, whichever the backend can resolve) from
	// calendarName. Deleting an already-absent event is not an error.
	DeleteManagedBlock(ctx context.Context, blockID string, externalEventID string, calendarName string) error
}

// CreateEventAdapter exposes a Store as the minimal CreateEvent/DeleteEvent
// shape planapply.Service and commands.Service consume, binding every call
// to a single managed calendar name.
type CreateEventAdapter struct {
	Store        Store
	CalendarName string
}

// CreateEvent implements the planapply.CalendarStore / commands.CalendarStore
// shape.
func (a *CreateEventAdapter) CreateEvent(ctx context.Context, b model.CalendarBlock) (string, error) {
	return a.Store.CreateManagedBlock(ctx, b, a.CalendarName)
}

// DeleteEvent implements the planapply.CalendarStore / commands.CalendarStore
// shape.
func (a *CreateEventAdapter) DeleteEvent(ctx context.Context, calendarEventID string) error {
	return a.Store.DeleteManagedBlock(ctx, "", calendarEventID, a.CalendarName)
}
