// Package pinstore persists operator-confirmed TLS certificate pins and the
// installation identity. Pins are keyed by endpoint stable ID and are only
// ever written by the explicit pinning flow; nothing in the connect path
// writes here.
package pinstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/theiaos/nodelink/internal/constants"
)

// Pin is one stored fingerprint with its bookkeeping timestamps.
type Pin struct {
	StableID    string
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity is the persisted installation identity advertised in connect
// envelopes.
type Identity struct {
	InstanceID  string
	DisplayName string
}

// Store is the read/write surface consumed by the connect path and the
// pinning flow. Loads may run concurrently from any number of connection
// attempts; implementations serialize writes.
type Store interface {
	// LoadFingerprint returns the pin for stableID, or "" when none is
	// stored. Absence is not an error: it is the normal state before the
	// first explicit pin.
	LoadFingerprint(ctx context.Context, stableID string) (string, error)
	// SaveFingerprint creates or overwrites the pin for stableID. Only
	// the explicit pinning/re-pin flow calls this.
	SaveFingerprint(ctx context.Context, stableID, fingerprint string) error
	// DeleteFingerprint removes a pin. Removing a missing pin is a no-op.
	DeleteFingerprint(ctx context.Context, stableID string) error
	// ListPins returns all stored pins.
	ListPins(ctx context.Context) ([]Pin, error)
	// Identity returns the installation identity, creating it on first
	// access.
	Identity(ctx context.Context) (Identity, error)
	// SetDisplayName updates the advertised display name.
	SetDisplayName(ctx context.Context, name string) error
	Close() error
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Options describes parameters for opening a pin store.
type Options struct {
	DBPath string
}

// SQLStore is the sqlite-backed Store used by real installations.
type SQLStore struct {
	db     *sql.DB
	dbPath string
}

var _ Store = (*SQLStore)(nil)

// Open initialises the pin store at the given path, creating the schema as
// needed.
func Open(opts Options) (*SQLStore, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("pinstore: db path required")
	}

	db, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("pinstore: open sqlite store: %w", err)
	}

	// Single writer connection; sqlite serializes writes for us and a
	// reader can never observe a partially written fingerprint.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreBusyTimeout)
	defer cancel()

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, dbPath: opts.DBPath}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", constants.StoreBusyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("pinstore: apply %q: %w", pragma, err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tls_pins (
		stable_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS client_identity (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		instance_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pinstore: apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pinstore: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("pinstore: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pinstore: commit transaction: %w", err)
	}
	return nil
}
