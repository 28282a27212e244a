package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// UpsertTasks upserts tasks keyed by DedupeKey: on conflict, mutable fields
// are updated and the task's TaskSources rows are replaced wholesale. Every
// task must carry at least one TaskSource.
func (s *Store) UpsertTasks(ctx context.Context, tasks []model.Task) error {
	return s.WithTx(func(tx *sql.Tx) error {
		return upsertTasksTx(ctx, tx, tasks)
	})
}

// upsertTasksTx is the transaction body shared by UpsertTasks and
// UpsertUpdatesAndTasks.
func upsertTasksTx(ctx context.Context, tx *sql.Tx, tasks []model.Task) error {
	for _, t := range tasks {
		if len(t.Sources) == 0 {
			return fmt.Errorf("task %q (dedupe_key=%s) has no TaskSource", t.Title, t.DedupeKey)
		}

		var dueAt sql.NullString
		if t.DueAtLocal != nil {
			dueAt = sql.NullString{String: t.DueAtLocal.Format(isoLayout), Valid: true}
		}

		now := nowUTC()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				task_id, title, category, due_at_local, estimated_minutes, min_daily_minutes,
				priority, stress_weight, feasibility_state, status, dedupe_key,
				created_at_utc, updated_at_utc
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(dedupe_key) DO UPDATE SET
				title              = excluded.title,
				category           = excluded.category,
				due_at_local       = excluded.due_at_local,
				estimated_minutes   = excluded.estimated_minutes,
				min_daily_minutes   = excluded.min_daily_minutes,
				priority           = excluded.priority,
				stress_weight       = excluded.stress_weight,
				feasibility_state   = excluded.feasibility_state,
				updated_at_utc      = excluded.updated_at_utc
		`,
			t.TaskID, t.Title, string(t.Category), dueAt, t.EstimatedMinutes, t.MinDailyMinutes,
			t.Priority, t.StressWeight, string(t.FeasibilityState), string(firstNonEmptyStatus(t.Status)), t.DedupeKey,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert task %s: %w", t.DedupeKey, err)
		}

		var taskID string
		if err := tx.QueryRowContext(ctx, `SELECT task_id FROM tasks WHERE dedupe_key = ?`, t.DedupeKey).Scan(&taskID); err != nil {
			return fmt.Errorf("resolve task id for %s: %w", t.DedupeKey, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM task_sources WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear task sources for %s: %w", taskID, err)
		}
		for _, src := range t.Sources {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO task_sources (task_id, source, account_id, provider_message_id, confidence)
				VALUES (?, ?, ?, ?, ?)
			`, taskID, string(src.Source), src.AccountID, src.ProviderMessageID, src.Confidence)
			if err != nil {
				return fmt.Errorf("insert task source for %s: %w", taskID, err)
			}
		}
	}
	return nil
}

func firstNonEmptyStatus(status model.TaskStatus) model.TaskStatus {
	if status == "" {
		return model.TaskStatusTodo
	}
	return status
}

// ListActive returns tasks with status in {todo, in_progress}, ordered by
// priority descending then due date ascending (nulls last).
func (s *Store) ListActive(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, title, category, due_at_local, estimated_minutes, min_daily_minutes,
		       priority, stress_weight, feasibility_state, status, dedupe_key
		FROM tasks
		WHERE status IN ('todo', 'in_progress')
		ORDER BY priority DESC,
		         CASE WHEN due_at_local IS NULL THEN 1 ELSE 0 END,
		         due_at_local ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tasks {
		sources, err := s.taskSources(ctx, tasks[i].TaskID)
		if err != nil {
			return nil, err
		}
		tasks[i].Sources = sources
	}
	return tasks, nil
}

func scanTaskRow(rows *sql.Rows) (model.Task, error) {
	var t model.Task
	var dueAt sql.NullString
	if err := rows.Scan(
		&t.TaskID, &t.Title, &t.Category, &dueAt, &t.EstimatedMinutes, &t.MinDailyMinutes,
		&t.Priority, &t.StressWeight, &t.FeasibilityState, &t.Status, &t.DedupeKey,
	); err != nil {
		return t, fmt.Errorf("scan task: %w", err)
	}
	if dueAt.Valid {
		parsed := parseISO(dueAt.String)
		t.DueAtLocal = &parsed
	}
	return t, nil
}

func (s *Store) taskSources(ctx context.Context, taskID string) ([]model.TaskSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, source, account_id, provider_message_id, confidence
		FROM task_sources WHERE task_id = ?
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task sources for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []model.TaskSource
	for rows.Next() {
		var src model.TaskSource
		if err := rows.Scan(&src.TaskID, &src.Source, &src.AccountID, &src.ProviderMessageID, &src.Confidence); err != nil {
			return nil, fmt.Errorf("scan task source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SetTaskStatus transitions a task's status (e.g. to done/ignored on
// completion). No-op if the task does not exist.
func (s *Store) SetTaskStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at_utc = ? WHERE task_id = ?`, string(status), nowUTC(), taskID)
	if err != nil {
		return fmt.Errorf("set task status for %s: %w", taskID, err)
	}
	return nil
}
