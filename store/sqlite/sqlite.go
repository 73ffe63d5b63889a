/*
Package sqlite provides a SQLite-backed implementation of the tracker storage interfaces.

PURPOSE:
  Implements tracker.KVStore for the order snapshot and the two captured
  AuthContexts, and keeps a log of emitted notifications so the API can show
  what the user was told and when.

INTERFACES IMPLEMENTED:
  tracker.KVStore:  Whole-value key/value persistence
  tracker.Notifier: Appends every notification to the log

KEY TABLES:
  kv:            One row per key, value replaced on every write
  notifications: Append-only notification log

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking. An
  in-memory database is pinned to a single connection, otherwise every pooled
  connection would see its own empty database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers do not
  block the scheduler's writes.

USAGE:
  store, err := sqlite.New("./data/suivi-sap.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  registry := tracker.NewRegistry(store)

SEE ALSO:
  - tracker/store.go: Interface definitions and keys
  - tracker/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements tracker.KVStore and tracker.Notifier using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Key/value snapshots (orders, auth contexts)
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Notifications (append-only)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		order_number TEXT NOT NULL,
		document_number TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_order
		ON notifications(order_number);
	CREATE INDEX IF NOT EXISTS idx_notifications_created_at
		ON notifications(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// KEY/VALUE STORE (tracker.KVStore interface)
// =============================================================================

// Get returns the value stored under key, or fallback when absent.
func (s *Store) Get(ctx context.Context, key, fallback string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set replaces the value stored under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// =============================================================================
// NOTIFICATION LOG (tracker.Notifier interface)
// =============================================================================

var (
	_ tracker.KVStore         = (*Store)(nil)
	_ tracker.Notifier        = (*Store)(nil)
	_ tracker.NotificationLog = (*Store)(nil)
)

// Notify appends n to the notification log.
func (s *Store) Notify(ctx context.Context, n tracker.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO notifications (id, kind, order_number, document_number, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), string(n.Kind), n.OrderNumber, nullString(n.DocumentNumber),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListNotifications returns the most recent notifications first. An empty
// orderNumber returns every order's notifications.
func (s *Store) ListNotifications(ctx context.Context, orderNumber string, limit int) ([]tracker.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var query string
	var args []any

	if orderNumber != "" {
		query = `
			SELECT id, kind, order_number, document_number, created_at
			FROM notifications
			WHERE order_number = ?
			ORDER BY created_at DESC
			LIMIT ?
		`
		args = []any{orderNumber, limit}
	} else {
		query = `
			SELECT id, kind, order_number, document_number, created_at
			FROM notifications
			ORDER BY created_at DESC
			LIMIT ?
		`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []tracker.NotificationRecord
	for rows.Next() {
		var r tracker.NotificationRecord
		var kind string
		var documentNumber, createdAt sql.NullString
		if err := rows.Scan(&r.ID, &kind, &r.OrderNumber, &documentNumber, &createdAt); err != nil {
			return nil, err
		}
		r.Kind = tracker.NotificationKind(kind)
		r.DocumentNumber = documentNumber.String
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
		records = append(records, r)
	}

	return records, rows.Err()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"kv", "notifications"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
