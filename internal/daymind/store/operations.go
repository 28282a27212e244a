package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// InsertOperation records one attempted edit command before it is applied,
// so a crash mid-apply still leaves an audit trail of intent.
func (s *Store) InsertOperation(ctx context.Context, op model.Operation) error {
	var appliedRevision sql.NullInt64
	if op.AppliedRevision != 0 {
		appliedRevision = sql.NullInt64{Int64: op.AppliedRevision, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (
			op_id, expected_plan_revision, applied_revision, intent, status,
			payload_json, result_json, created_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.OpID, op.ExpectedPlanRevision, appliedRevision, op.Intent, string(op.Status),
		op.PayloadJSON, nullableString(op.ResultJSON), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", op.OpID, err)
	}
	return nil
}

// UpdateOperationStatus transitions an operation's status and records its
// result payload (e.g. the undo envelope) once applied.
func (s *Store) UpdateOperationStatus(ctx context.Context, opID string, status model.OperationStatus, appliedRevision int64, resultJSON string) error {
	var rev sql.NullInt64
	if appliedRevision != 0 {
		rev = sql.NullInt64{Int64: appliedRevision, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, applied_revision = ?, result_json = ? WHERE op_id = ?
	`, string(status), rev, nullableString(resultJSON), opID)
	if err != nil {
		return fmt.Errorf("update operation %s: %w", opID, err)
	}
	return nil
}

// LatestUndoable returns the most recently applied operation that has not
// already been undone, or ErrNotFound if none is left. CommandService falls
// back to it once its in-memory undo stack is empty; this method only ever
// returns the single most recent candidate, so repeated undo calls walk back
// one entry at a time.
func (s *Store) LatestUndoable(ctx context.Context) (*model.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT op_id, expected_plan_revision, applied_revision, intent, status,
		       payload_json, result_json, created_at_utc
		FROM operations
		WHERE status = 'applied'
		ORDER BY created_at_utc DESC, rowid DESC
		LIMIT 1
	`)
	return scanOperation(row)
}

// GetOperation looks up a single operation by id.
func (s *Store) GetOperation(ctx context.Context, opID string) (*model.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT op_id, expected_plan_revision, applied_revision, intent, status,
		       payload_json, result_json, created_at_utc
		FROM operations WHERE op_id = ?
	`, opID)
	return scanOperation(row)
}

func scanOperation(row *sql.Row) (*model.Operation, error) {
	var op model.Operation
	var appliedRevision sql.NullInt64
	var resultJSON sql.NullString
	var createdAt string

	err := row.Scan(
		&op.OpID, &op.ExpectedPlanRevision, &appliedRevision, &op.Intent, &op.Status,
		&op.PayloadJSON, &resultJSON, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	op.AppliedRevision = appliedRevision.Int64
	op.ResultJSON = resultJSON.String
	op.CreatedAtUTC = parseISO(createdAt)
	return &op, nil
}
