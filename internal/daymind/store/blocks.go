package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// ReplaceBlocksForRevision deletes every block at or above planRevision and
// inserts the replacement set, all inside one transaction. This is how
// PlanApplyService materializes a freshly computed plan under its new
// revision; rows of earlier revisions are left in place, so
// ListBlocksForRevision(planRevision) returns exactly the blocks given here.
func (s *Store) ReplaceBlocksForRevision(ctx context.Context, planRevision int64, blocks []model.CalendarBlock) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE plan_revision >= ?`, planRevision); err != nil {
			return fmt.Errorf("clear blocks for revision %d: %w", planRevision, err)
		}
		for _, b := range blocks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO blocks (
					block_id, task_id, title, start_local, end_local, calendar_event_id,
					calendar_name, managed_by_agent, lock_level, plan_revision
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				b.BlockID, nullableString(b.TaskID), b.Title,
				b.StartLocal.Format(isoLayout), b.EndLocal.Format(isoLayout),
				nullableString(b.CalendarEventID), b.CalendarName, boolToInt(b.ManagedByAgent),
				string(b.LockLevel), b.PlanRevision,
			)
			if err != nil {
				return fmt.Errorf("insert block %s: %w", b.BlockID, err)
			}
		}
		return nil
	})
}

// ListBlocksForRevision returns every block stamped with the given plan
// revision, ordered by start time.
func (s *Store) ListBlocksForRevision(ctx context.Context, planRevision int64) ([]model.CalendarBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, task_id, title, start_local, end_local, calendar_event_id,
		       calendar_name, managed_by_agent, lock_level, plan_revision
		FROM blocks WHERE plan_revision = ? ORDER BY start_local ASC
	`, planRevision)
	if err != nil {
		return nil, fmt.Errorf("list blocks for revision %d: %w", planRevision, err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

// ListBlocksInRange returns every block overlapping [from, to), across all
// revisions — used to render the observed calendar for a diff.
func (s *Store) ListBlocksInRange(ctx context.Context, from, to string) ([]model.CalendarBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, task_id, title, start_local, end_local, calendar_event_id,
		       calendar_name, managed_by_agent, lock_level, plan_revision
		FROM blocks WHERE start_local < ? AND end_local > ? ORDER BY start_local ASC
	`, to, from)
	if err != nil {
		return nil, fmt.Errorf("list blocks in range: %w", err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func scanBlocks(rows *sql.Rows) ([]model.CalendarBlock, error) {
	var out []model.CalendarBlock
	for rows.Next() {
		var b model.CalendarBlock
		var taskID, calendarEventID sql.NullString
		var startLocal, endLocal string
		var managedByAgent int
		if err := rows.Scan(
			&b.BlockID, &taskID, &b.Title, &startLocal, &endLocal, &calendarEventID,
			&b.CalendarName, &managedByAgent, &b.LockLevel, &b.PlanRevision,
		); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.TaskID = taskID.String
		b.CalendarEventID = calendarEventID.String
		b.StartLocal = parseISO(startLocal)
		b.EndLocal = parseISO(endLocal)
		b.ManagedByAgent = managedByAgent != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBlocksByTitle returns every block whose title contains needle
// case-insensitively, most recent start time first. CommandService uses this
// to resolve the fuzzy title a move/delete command names to a concrete
// target, surfacing ambiguity to the caller when more than one match comes
// back.
func (s *Store) FindBlocksByTitle(ctx context.Context, needle string) ([]model.CalendarBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_id, task_id, title, start_local, end_local, calendar_event_id,
		       calendar_name, managed_by_agent, lock_level, plan_revision
		FROM blocks WHERE title LIKE '%' || ? || '%' COLLATE NOCASE ORDER BY start_local DESC
	`, needle)
	if err != nil {
		return nil, fmt.Errorf("find blocks by title %q: %w", needle, err)
	}
	defer rows.Close()
	return scanBlocks(rows)
}

// DeleteBlock removes a single block by id, used when CommandService applies
// a move (delete-then-create) or a direct delete.
func (s *Store) DeleteBlock(ctx context.Context, blockID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE block_id = ?`, blockID)
	if err != nil {
		return fmt.Errorf("delete block %s: %w", blockID, err)
	}
	return nil
}

// InsertBlock inserts a single block, used by CommandService for add/move.
func (s *Store) InsertBlock(ctx context.Context, b model.CalendarBlock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (
			block_id, task_id, title, start_local, end_local, calendar_event_id,
			calendar_name, managed_by_agent, lock_level, plan_revision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.BlockID, nullableString(b.TaskID), b.Title,
		b.StartLocal.Format(isoLayout), b.EndLocal.Format(isoLayout),
		nullableString(b.CalendarEventID), b.CalendarName, boolToInt(b.ManagedByAgent),
		string(b.LockLevel), b.PlanRevision,
	)
	if err != nil {
		return fmt.Errorf("insert block %s: %w", b.BlockID, err)
	}
	return nil
}

// GetBlock looks up a single block by id.
func (s *Store) GetBlock(ctx context.Context, blockID string) (*model.CalendarBlock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_id, task_id, title, start_local, end_local, calendar_event_id,
		       calendar_name, managed_by_agent, lock_level, plan_revision
		FROM blocks WHERE block_id = ?
	`, blockID)

	var b model.CalendarBlock
	var taskID, calendarEventID sql.NullString
	var startLocal, endLocal string
	var managedByAgent int
	err := row.Scan(
		&b.BlockID, &taskID, &b.Title, &startLocal, &endLocal, &calendarEventID,
		&b.CalendarName, &managedByAgent, &b.LockLevel, &b.PlanRevision,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan block %s: %w", blockID, err)
	}
	b.TaskID = taskID.String
	b.CalendarEventID = calendarEventID.String
	b.StartLocal = parseISO(startLocal)
	b.EndLocal = parseISO(endLocal)
	b.ManagedByAgent = managedByAgent != 0
	return &b, nil
}
