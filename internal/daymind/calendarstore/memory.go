package calendarstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// Memory is an in-memory Store used in tests and for running the agent
// without a real calendar backend wired in. It never returns the
// permission/unavailable errors a real backend would -- EnsureManagedCalendar
// and DeleteManagedBlock on an absent event are always treated as no-ops.
type Memory struct {
	mu        sync.Mutex
	calendars map[string]bool
	blocks    map[string]model.CalendarBlock // keyed by CalendarEventID
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		calendars: make(map[string]bool),
		blocks:    make(map[string]model.CalendarBlock),
	}
}

var _ Store = (*Memory)(nil)

// EnsureManagedCalendar implements Store.
func (m *Memory) EnsureManagedCalendar(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[name] = true
	return nil
}

// FetchManagedBlocks implements Store.
func (m *Memory) FetchManagedBlocks(_ context.Context, onDate time.Time, tz *time.Location) ([]model.CalendarBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tz == nil {
		tz = time.Local
	}
	y, mo, d := onDate.In(tz).Date()

	var out []model.CalendarBlock
	for _, b := range m.blocks {
		by, bm, bd := b.StartLocal.In(tz).Date()
		if by == y && bm == mo && bd == d {
			out = append(out, b)
		}
	}
	return out, nil
}

// FindManagedBlocks implements Store.
func (m *Memory) FindManagedBlocks(_ context.Context, fuzzyTitle string, onDate *time.Time, tz *time.Location) ([]model.CalendarBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tz == nil {
		tz = time.Local
	}
	needle := strings.ToLower(fuzzyTitle)

	var out []model.CalendarBlock
	for _, b := range m.blocks {
		if !strings.Contains(strings.ToLower(b.Title), needle) {
			continue
		}
		if onDate != nil {
			wantY, wantM, wantD := onDate.In(tz).Date()
			gotY, gotM, gotD := b.StartLocal.In(tz).Date()
			if wantY != gotY || wantM != gotM || wantD != gotD {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// CreateManagedBlock implements Store.
func (m *Memory) CreateManagedBlock(_ context.Context, b model.CalendarBlock, calendarName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calendars[calendarName] = true
	eventID := "evt_" + uuid.NewString()
	b.CalendarEventID = eventID
	b.CalendarName = calendarName
	m.blocks[eventID] = b
	return eventID, nil
}

// UpdateManagedBlock implements Store.
func (m *Memory) UpdateManagedBlock(_ context.Context, b model.CalendarBlock, calendarName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.CalendarEventID == "" {
		return ErrEventNotFound
	}
	if _, ok := m.blocks[b.CalendarEventID]; !ok {
		return ErrEventNotFound
	}
	b.CalendarName = calendarName
	m.blocks[b.CalendarEventID] = b
	return nil
}

// DeleteManagedBlock implements Store. Deleting an event that is already
// absent is not an error.
func (m *Memory) DeleteManagedBlock(_ context.Context, _ string, externalEventID string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, externalEventID)
	return nil
}

// Len returns the number of events currently stored, for test assertions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}
