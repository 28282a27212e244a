package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// GetCursor returns the resumption point for (provider, accountID), or
// ErrNotFound if the account has never been synced.
func (s *Store) GetCursor(ctx context.Context, provider, accountID string) (*model.ProviderCursor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider, account_id, "primary", secondary
		FROM provider_cursors WHERE provider = ? AND account_id = ?
	`, provider, accountID)

	var c model.ProviderCursor
	err := row.Scan(&c.Provider, &c.AccountID, &c.Primary, &c.Secondary)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor for %s/%s: %w", provider, accountID, err)
	}
	return &c, nil
}

// UpsertCursor advances (or creates) the resumption point for an account.
// Callers are responsible for only ever moving it forward per the provider's
// tuple ordering; the store does not enforce monotonicity itself.
func (s *Store) UpsertCursor(ctx context.Context, c model.ProviderCursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_cursors (provider, account_id, "primary", secondary, updated_at_utc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			"primary"      = excluded."primary",
			secondary      = excluded.secondary,
			updated_at_utc = excluded.updated_at_utc
	`, c.Provider, c.AccountID, c.Primary, c.Secondary, nowUTC())
	if err != nil {
		return fmt.Errorf("upsert cursor for %s/%s: %w", c.Provider, c.AccountID, err)
	}
	return nil
}
