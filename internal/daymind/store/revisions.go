package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// LatestRevision returns the id of the most recently appended plan_revision
// row, or 0 if the plan has never been generated.
func (s *Store) LatestRevision(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM plan_revisions`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read latest plan revision: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return id.Int64, nil
}

// AppendRevision inserts the next plan_revision row and returns its assigned
// id. plan_revisions.id is AUTOINCREMENT, so this is the sole source of the
// monotonic counter PlanApplyService stamps onto every CalendarBlock it
// produces.
func (s *Store) AppendRevision(ctx context.Context, trigger string, created, moved, deleted int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_revisions (trigger, created, moved, deleted, created_at_utc)
		VALUES (?, ?, ?, ?, ?)
	`, trigger, created, moved, deleted, nowUTC())
	if err != nil {
		return 0, fmt.Errorf("append plan revision: %w", err)
	}
	return res.LastInsertId()
}

// GetRevision looks up a single plan_revision row by id.
func (s *Store) GetRevision(ctx context.Context, id int64) (*model.PlanRevisionEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger, created, moved, deleted, created_at_utc
		FROM plan_revisions WHERE id = ?
	`, id)

	var e model.PlanRevisionEntry
	var createdAt string
	err := row.Scan(&e.ID, &e.Trigger, &e.Created, &e.Moved, &e.Deleted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan revision %d: %w", id, err)
	}
	e.CreatedAtUTC = parseISO(createdAt)
	return &e, nil
}
