// Package store provides storage backends for the Cora router core.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, user_id, direction, content, thread_id, client_temp_id, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Direction, m.Content, nilIfEmpty(m.ThreadID), nilIfEmpty(m.ClientTempID), nilIfEmpty(m.RunID), m.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "messageID", m.ID)
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AttachMessageThread(messageID, threadID string) error {
	_, err := s.db.Exec(`UPDATE messages SET thread_id = ? WHERE id = ?`, threadID, messageID)
	if err != nil {
		slog.Error("SQLiteStore AttachMessageThread failed", "error", err, "messageID", messageID)
		return fmt.Errorf("failed to attach thread to message %s: %w", messageID, err)
	}
	return nil
}

func (s *SQLiteStore) ListThreadMessages(threadID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, direction, content, thread_id, client_temp_id, run_id, created_at FROM messages WHERE thread_id = ? ORDER BY created_at ASC`,
		threadID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListThreadMessages query failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to query thread messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) CountUserMessages(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND direction = ?`,
		userID, models.DirectionIncoming,
	).Scan(&n)
	if err != nil {
		slog.Error("SQLiteStore CountUserMessages failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountThreadMessages(threadID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE thread_id = ?`, threadID).Scan(&n)
	if err != nil {
		slog.Error("SQLiteStore CountThreadMessages failed", "error", err, "threadID", threadID)
		return 0, fmt.Errorf("failed to count thread messages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetActiveThread(userID string) (*models.ConversationThread, error) {
	row := s.db.QueryRow(
		`SELECT user_id, external_id, status, created_at FROM conversation_threads WHERE user_id = ? AND status = ?`,
		userID, models.ThreadStatusActive,
	)
	t, err := scanThreadRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoActiveThread
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveThread failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active thread: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) AddActiveThread(t models.ConversationThread) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_threads (user_id, external_id, status, created_at) VALUES (?, ?, ?, ?)`,
		t.UserID, t.ExternalID, models.ThreadStatusActive, t.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: user %s", ErrActiveThreadExists, t.UserID)
		}
		slog.Error("SQLiteStore AddActiveThread failed", "error", err, "userID", t.UserID)
		return fmt.Errorf("failed to insert active thread for %s: %w", t.UserID, err)
	}
	slog.Debug("SQLiteStore AddActiveThread succeeded", "userID", t.UserID, "externalID", t.ExternalID)
	return nil
}

// SwapActiveThread archives the old thread and activates the new one in a
// single transaction so a failure leaves the old thread active.
func (s *SQLiteStore) SwapActiveThread(userID, oldExternalID string, newThread models.ConversationThread) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin swap transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE conversation_threads SET status = ? WHERE user_id = ? AND external_id = ? AND status = ?`,
		models.ThreadStatusArchived, userID, oldExternalID, models.ThreadStatusActive,
	)
	if err != nil {
		slog.Error("SQLiteStore SwapActiveThread archive failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to archive thread %s: %w", oldExternalID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check archive result: %w", err)
	}
	if affected == 0 {
		return models.ErrNoActiveThread
	}

	_, err = tx.Exec(
		`INSERT INTO conversation_threads (user_id, external_id, status, created_at) VALUES (?, ?, ?, ?)`,
		userID, newThread.ExternalID, models.ThreadStatusActive, newThread.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SwapActiveThread activate failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to activate thread %s: %w", newThread.ExternalID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread swap: %w", err)
	}
	slog.Debug("SQLiteStore SwapActiveThread succeeded", "userID", userID, "old", oldExternalID, "new", newThread.ExternalID)
	return nil
}

func (s *SQLiteStore) AddRoutingDecision(d models.RoutingDecision) error {
	_, err := s.db.Exec(
		`INSERT INTO routing_decisions (id, user_id, route_kind, message_type, model_tier, tokens, estimated_cost, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.RouteKind, d.MessageType, d.ModelTier, d.Tokens, d.EstimatedCost, d.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddRoutingDecision failed", "error", err, "userID", d.UserID)
		return fmt.Errorf("failed to insert routing decision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRoutingDecisionsBetween(from, to time.Time) ([]models.RoutingDecision, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, route_kind, message_type, model_tier, tokens, estimated_cost, created_at FROM routing_decisions WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`,
		from, to,
	)
	if err != nil {
		slog.Error("SQLiteStore ListRoutingDecisionsBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query routing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.RoutingDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decision rows: %w", err)
	}
	return decisions, nil
}

func (s *SQLiteStore) GetCacheEntry(fingerprint string) (*models.CacheEntry, error) {
	row := s.db.QueryRow(
		`SELECT fingerprint, reply, class, hit_count, expires_at, created_at FROM cache_entries WHERE fingerprint = ?`,
		fingerprint,
	)
	e, err := scanCacheEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCacheEntry failed", "error", err)
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) PutCacheEntry(e models.CacheEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (fingerprint, reply, class, hit_count, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET reply = excluded.reply, class = excluded.class, hit_count = 0, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		e.Fingerprint, e.Reply, e.Class, e.HitCount, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore PutCacheEntry failed", "error", err)
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchCacheEntry(fingerprint string) error {
	_, err := s.db.Exec(`UPDATE cache_entries SET hit_count = hit_count + 1 WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredCacheEntries(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, now)
	if err != nil {
		slog.Error("SQLiteStore DeleteExpiredCacheEntries failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
