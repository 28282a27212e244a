package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/soraya-vance/daymind/internal/daymind/model"
)

// UpsertUpdates inserts cards keyed by (source, provider_message_id),
// ignoring duplicates so re-ingesting the same message is a no-op. Returns
// the number of rows actually inserted.
func (s *Store) UpsertUpdates(ctx context.Context, cards []model.UpdateCard) (int, error) {
	inserted := 0
	err := s.WithTx(func(tx *sql.Tx) error {
		n, err := upsertUpdatesTx(ctx, tx, cards)
		inserted = n
		return err
	})
	return inserted, err
}

// UpsertUpdatesAndTasks commits cards and tasks in a single transaction, as
// required by the ingestion sync pass: a failure extracting or upserting
// tasks must not leave committed update rows with no corresponding tasks.
func (s *Store) UpsertUpdatesAndTasks(ctx context.Context, cards []model.UpdateCard, tasks []model.Task) (int, error) {
	inserted := 0
	err := s.WithTx(func(tx *sql.Tx) error {
		n, err := upsertUpdatesTx(ctx, tx, cards)
		inserted = n
		if err != nil {
			return err
		}
		return upsertTasksTx(ctx, tx, tasks)
	})
	return inserted, err
}

// upsertUpdatesTx is the transaction body shared by UpsertUpdates and
// UpsertUpdatesAndTasks, so a sync pass can commit cards and the tasks
// extracted from them in one transaction.
func upsertUpdatesTx(ctx context.Context, tx *sql.Tx, cards []model.UpdateCard) (int, error) {
	inserted := 0
	for _, c := range cards {
		links, err := json.Marshal(c.Links)
		if err != nil {
			return inserted, fmt.Errorf("marshal links for %s: %w", c.UpdateID, err)
		}
		tags, err := json.Marshal(c.Tags)
		if err != nil {
			return inserted, fmt.Errorf("marshal tags for %s: %w", c.UpdateID, err)
		}
		evidence, err := json.Marshal(c.Evidence)
		if err != nil {
			return inserted, fmt.Errorf("marshal evidence for %s: %w", c.UpdateID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO updates (
				update_id, account_id, source, provider_message_id, provider_thread_id,
				received_at_utc, sender, subject, body_text, links_json, tags_json,
				parser_method, parse_confidence, evidence_json, requires_confirmation,
				content_hash, created_at_utc
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.UpdateID, c.AccountID, string(c.Source), c.ProviderMessageID, nullableString(c.ProviderThreadID),
			c.ReceivedAtUTC.UTC().Format(isoLayout), c.Sender, c.Subject, c.BodyText, string(links), string(tags),
			string(c.ParserMethod), c.ParseConfidence, string(evidence), boolToInt(c.RequiresConfirmation),
			c.ContentHash, nowUTC(),
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert update %s: %w", c.UpdateID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected for update %s: %w", c.UpdateID, err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetByProviderMessageID looks up a single update by its idempotency key.
func (s *Store) GetByProviderMessageID(ctx context.Context, source model.Source, providerMessageID string) (*model.UpdateCard, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT update_id, account_id, source, provider_message_id, provider_thread_id,
		       received_at_utc, sender, subject, body_text, links_json, tags_json,
		       parser_method, parse_confidence, evidence_json, requires_confirmation, content_hash
		FROM updates WHERE source = ? AND provider_message_id = ?
	`, string(source), providerMessageID)
	c, err := scanUpdate(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func scanUpdate(row *sql.Row) (*model.UpdateCard, error) {
	var c model.UpdateCard
	var threadID sql.NullString
	var receivedAt string
	var linksJSON, tagsJSON, evidenceJSON string
	var requiresConfirmation int

	err := row.Scan(
		&c.UpdateID, &c.AccountID, &c.Source, &c.ProviderMessageID, &threadID,
		&receivedAt, &c.Sender, &c.Subject, &c.BodyText, &linksJSON, &tagsJSON,
		&c.ParserMethod, &c.ParseConfidence, &evidenceJSON, &requiresConfirmation, &c.ContentHash,
	)
	if err != nil {
		return nil, err
	}
	c.ProviderThreadID = threadID.String
	c.ReceivedAtUTC = parseISO(receivedAt)
	c.RequiresConfirmation = requiresConfirmation != 0
	_ = json.Unmarshal([]byte(linksJSON), &c.Links)
	_ = json.Unmarshal([]byte(tagsJSON), &c.Tags)
	_ = json.Unmarshal([]byte(evidenceJSON), &c.Evidence)
	return &c, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
