package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// UpsertAccount adds or updates a configured mailbox.
func (s *Store) UpsertAccount(ctx context.Context, a model.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, provider, email, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			provider = excluded.provider,
			email    = excluded.email,
			enabled  = excluded.enabled
	`, a.AccountID, string(a.Provider), a.Email, boolToInt(a.Enabled))
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.AccountID, err)
	}
	return nil
}

// ListEnabledAccounts returns every account the coordinator should sync.
func (s *Store) ListEnabledAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, provider, email, enabled FROM accounts WHERE enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		var enabled int
		if err := rows.Scan(&a.AccountID, &a.Provider, &a.Email, &enabled); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Enabled = enabled != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccount looks up a single account by id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT account_id, provider, email, enabled FROM accounts WHERE account_id = ?`, accountID)
	var a model.Account
	var enabled int
	err := row.Scan(&a.AccountID, &a.Provider, &a.Email, &enabled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	a.Enabled = enabled != 0
	return &a, nil
}
