// Package credentials implements the CredentialStore capability consumed by
// the per-account IngestionService (spec §6): load(provider, account) and
// save(credential, provider, account). Values are encrypted at rest with
// common/crypto and never written to logs or the main application log.
package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/soraya-vance/daymind/common/crypto"
)

// Credential carries the tokens an IngestionService needs to authenticate
// against a provider.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAtUTC *time.Time
}

// Store is the CredentialStore capability (spec §6).
type Store interface {
	// Load returns the credential for (provider, accountID), or (nil, nil)
	// when none is stored.
	Load(ctx context.Context, provider, accountID string) (*Credential, error)

	// Save persists cred under (provider, accountID), overwriting any
	// existing entry.
	Save(ctx context.Context, cred Credential, provider, accountID string) error
}

// FileStore is the encrypted-at-rest fallback store named in spec §9 ("the
// environment-variable fallback" layers on top of it via Chain). It stores
// one AES-256-GCM-encrypted JSON blob per (provider, account) pair in the
// credentials table.
type FileStore struct {
	db        *sql.DB
	masterKey []byte
}

// NewFileStore returns a FileStore backed by db (e.g. store.Store.DB()),
// encrypting every value with masterKey (see common/crypto.LoadMasterKey).
func NewFileStore(db *sql.DB, masterKey []byte) *FileStore {
	return &FileStore{db: db, masterKey: masterKey}
}

var _ Store = (*FileStore)(nil)

// Load implements Store.
func (f *FileStore) Load(ctx context.Context, provider, accountID string) (*Credential, error) {
	var ciphertext []byte
	err := f.db.QueryRowContext(ctx, `SELECT ciphertext FROM credentials WHERE provider = ? AND account_id = ?`,
		provider, accountID).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: load %s/%s: %w", provider, accountID, err)
	}

	plaintext, err := crypto.Decrypt(f.masterKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypt %s/%s: %w", provider, accountID, err)
	}

	var cred Credential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("credentials: unmarshal %s/%s: %w", provider, accountID, err)
	}
	return &cred, nil
}

// Save implements Store.
func (f *FileStore) Save(ctx context.Context, cred Credential, provider, accountID string) error {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credentials: marshal %s/%s: %w", provider, accountID, err)
	}

	ciphertext, err := crypto.Encrypt(f.masterKey, plaintext)
	if err != nil {
		return fmt.Errorf("credentials: encrypt %s/%s: %w", provider, accountID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO credentials (provider, account_id, ciphertext, updated_at_utc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			ciphertext     = excluded.ciphertext,
			updated_at_utc = excluded.updated_at_utc
	`, provider, accountID, ciphertext, now)
	if err != nil {
		return fmt.Errorf("credentials: save %s/%s: %w", provider, accountID, err)
	}
	return nil
}

// EnvFallback reads a credential from environment variables named
// <PROVIDER>_<ACCOUNT>_ACCESS_TOKEN (account ids are upper-cased and every
// non-alphanumeric rune becomes an underscore). It implements Store but
// Save always fails -- the environment is read-only from this process's
// point of view.
type EnvFallback struct{}

var _ Store = EnvFallback{}

// Load implements Store.
func (EnvFallback) Load(_ context.Context, provider, accountID string) (*Credential, error) {
	token := os.Getenv(envKey(provider, accountID, "ACCESS_TOKEN"))
	if token == "" {
		return nil, nil
	}
	return &Credential{
		AccessToken:  token,
		RefreshToken: os.Getenv(envKey(provider, accountID, "REFRESH_TOKEN")),
	}, nil
}

// Save implements Store. Environment-backed credentials are immutable from
// this process.
func (EnvFallback) Save(_ context.Context, _ Credential, provider, accountID string) error {
	return fmt.Errorf("credentials: cannot save to environment fallback for %s/%s", provider, accountID)
}

func envKey(provider, accountID, suffix string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, accountID)
	return strings.ToUpper(provider) + "_" + strings.ToUpper(clean) + "_" + suffix
}

// Chain tries each Store in order, returning the first non-nil credential
// found by Load. Save always writes through to the first store in the
// chain -- the keychain-like primary -- regardless of where the value was
// last read from.
type Chain struct {
	stores []Store
}

var _ Store = (*Chain)(nil)

// NewChain returns a Store that consults stores in order; primary first,
// fallbacks after.
func NewChain(stores ...Store) *Chain {
	return &Chain{stores: stores}
}

// Load implements Store.
func (c *Chain) Load(ctx context.Context, provider, accountID string) (*Credential, error) {
	for _, s := range c.stores {
		cred, err := s.Load(ctx, provider, accountID)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, nil
}

// Save implements Store, writing to the first configured store.
func (c *Chain) Save(ctx context.Context, cred Credential, provider, accountID string) error {
	if len(c.stores) == 0 {
		return fmt.Errorf("credentials: chain has no stores configured")
	}
	return c.stores[0].Save(ctx, cred, provider, accountID)
}
