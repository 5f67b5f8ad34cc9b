// Package store implements the Project Store (C1): a transactional
// sqlite3-backed ProjectStore over projects, stage records, the artifact
// ledger, statistics, API usage and system configuration.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yukkuri-system/workflow-core/contracts"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is the sqlite3-backed contracts.ProjectStore. A single connection
// pool is shared per process; writes serialize through mu for the duration
// of a transaction (snapshot-isolated reads proceed concurrently thanks to
// SQLite's WAL journal mode).
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	scheme contracts.ProjectIDScheme
	path   string
}

// Open opens (creating if necessary) the sqlite3 database at path and
// applies pending migrations.
func Open(ctx context.Context, path string, scheme contracts.ProjectIDScheme) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, &contracts.StoreError{Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(1 << 4)

	s := &Store{db: db, scheme: scheme, path: path}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies pending schema migrations, tracked by version in
// schema_migrations. It refuses to downgrade.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return &contracts.StoreError{Op: "migrate:bootstrap", Cause: err}
	}

	var maxVersion int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&maxVersion); err != nil {
		return &contracts.StoreError{Op: "migrate:read_version", Cause: err}
	}
	if maxVersion > currentSchemaVersion {
		return &contracts.StoreError{Op: "migrate", Cause: fmt.Errorf("database schema version %d is newer than supported version %d", maxVersion, currentSchemaVersion)}
	}
	if maxVersion == currentSchemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &contracts.StoreError{Op: "migrate:begin", Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return &contracts.StoreError{Op: "migrate:apply", Cause: err}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`, currentSchemaVersion, contracts.Now()); err != nil {
		return &contracts.StoreError{Op: "migrate:record", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &contracts.StoreError{Op: "migrate:commit", Cause: err}
	}
	log.Printf("[STORE] event=migrated version=%d", currentSchemaVersion)
	return nil
}

// Backup snapshots the store file atomically via VACUUM INTO, sqlite3's
// own online-backup primitive.
func (s *Store) Backup(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return &contracts.StoreError{Op: "backup", Cause: err}
	}
	log.Printf("[STORE] event=backup path=%s", path)
	return nil
}

// HealthCheck pings the database and reports degraded on failure.
func (s *Store) HealthCheck(ctx context.Context) contracts.HealthStatus {
	if err := s.db.PingContext(ctx); err != nil {
		return contracts.HealthStatus{Healthy: false, Reason: err.Error()}
	}
	return contracts.HealthStatus{Healthy: true}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, serialized through mu, committing
// on success and rolling back on any error including one raised by fn.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &contracts.StoreError{Op: "begin", Cause: err}
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &contracts.StoreError{Op: "commit", Cause: err}
	}
	return nil
}
