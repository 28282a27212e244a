package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// LogAudit appends one entry to the append-only audit_log table. Entries are
// never updated or deleted by this package.
func (s *Store) LogAudit(ctx context.Context, e model.AuditEntry) error {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal audit context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (category, severity, message, context_json, created_at_utc)
		VALUES (?, ?, ?, ?, ?)
	`, e.Category, string(e.Severity), e.Message, string(ctxJSON), nowUTC())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns up to limit audit entries, most recent first,
// optionally filtered to a single category.
func (s *Store) RecentAudit(ctx context.Context, category string, limit int) ([]model.AuditEntry, error) {
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, category, severity, message, context_json, created_at_utc
			FROM audit_log WHERE category = ? ORDER BY id DESC LIMIT ?
		`, category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, category, severity, message, context_json, created_at_utc
			FROM audit_log ORDER BY id DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ctxJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.Category, &e.Severity, &e.Message, &ctxJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		_ = json.Unmarshal([]byte(ctxJSON), &e.Context)
		e.CreatedAtUTC = parseISO(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
