// Package store provides the single transactional persistence layer shared
// by every daymind service: updates, tasks, task sources, calendar blocks,
// provider cursors, plan revisions, operations, preferences, and the audit
// log. No service holds persistent state of its own — everything durable
// passes through here.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the database connection used by every repository in this
// package (Updates, Tasks, Blocks, ProviderCursors, PlanRevisions,
// Operations, Audit, Accounts). The preferences table is managed by the
// config package.
type Store struct {
	db *sql.DB
}

// New opens dbPath, applies pragmas, and runs any pending migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer; keep one shared connection so concurrent
	// callers are serialized by database/sql instead of fighting for the
	// write lock across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers that need a custom query
// (e.g. the control surface's ad hoc diagnostics).
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single transaction, rolling back on error or panic
// and committing otherwise. Every multi-statement mutation in this package
// goes through WithTx so a failure never leaves partial state.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("read current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seenVersions := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := splitMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, exists := seenVersions[version]; exists {
			return fmt.Errorf("duplicate migration version %04d: %q and %q", version, prev, entry.Name())
		}
		seenVersions[version] = entry.Name()
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, ok := splitMigrationName(entry.Name())
		if !ok || version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		err = s.WithTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(string(content)); err != nil {
				return fmt.Errorf("execute migration %d: %w", version, err)
			}
			_, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
				version, time.Now(), description,
			)
			if err != nil {
				return fmt.Errorf("record migration %d: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("applied migration", "version", fmt.Sprintf("%04d", version), "description", description)
	}

	return nil
}

// splitMigrationName parses "0001_init.sql" into (1, "init", true).
func splitMigrationName(name string) (version int, description string, ok bool) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, "", false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, "", false
	}
	return version, strings.TrimSuffix(parts[1], ".sql"), true
}

// nowUTC returns the current time formatted as the ISO-8601 UTC string used
// for every timestamp column in this package.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
