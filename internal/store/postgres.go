// Package store provides storage backends for the Cora router core.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Postgres error code for unique_violation.
const uniqueViolationCode = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	_, err := s.db.Exec(
		`INSERT INTO messages (id, user_id, direction, content, thread_id, client_temp_id, run_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.UserID, m.Direction, m.Content, nilIfEmpty(m.ThreadID), nilIfEmpty(m.ClientTempID), nilIfEmpty(m.RunID), m.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "messageID", m.ID)
		return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) AttachMessageThread(messageID, threadID string) error {
	_, err := s.db.Exec(`UPDATE messages SET thread_id = $1 WHERE id = $2`, threadID, messageID)
	if err != nil {
		slog.Error("PostgresStore AttachMessageThread failed", "error", err, "messageID", messageID)
		return fmt.Errorf("failed to attach thread to message %s: %w", messageID, err)
	}
	return nil
}

func (s *PostgresStore) ListThreadMessages(threadID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, direction, content, thread_id, client_temp_id, run_id, created_at FROM messages WHERE thread_id = $1 ORDER BY created_at ASC`,
		threadID,
	)
	if err != nil {
		slog.Error("PostgresStore ListThreadMessages query failed", "error", err, "threadID", threadID)
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

func (s *PostgresStore) CountUserMessages(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = $1 AND direction = $2`,
		userID, models.DirectionIncoming,
	).Scan(&n)
	if err != nil {
		slog.Error("PostgresStore CountUserMessages failed", "error", err, "userID", userID)
		return 0, fmt.Errorf("failed to count user messages: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountThreadMessages(threadID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE thread_id = $1`, threadID).Scan(&n)
	if err != nil {
		slog.Error("PostgresStore CountThreadMessages failed", "error", err, "threadID", threadID)
		return 0, fmt.Errorf("failed to count thread messages: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetActiveThread(userID string) (*models.ConversationThread, error) {
	row := s.db.QueryRow(
		`SELECT user_id, external_id, status, created_at FROM conversation_threads WHERE user_id = $1 AND status = $2`,
		userID, models.ThreadStatusActive,
	)
	t, err := scanThreadRow(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNoActiveThread
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveThread failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active thread: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) AddActiveThread(t models.ConversationThread) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_threads (user_id, external_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		t.UserID, t.ExternalID, models.ThreadStatusActive, t.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: user %s", ErrActiveThreadExists, t.UserID)
		}
		slog.Error("PostgresStore AddActiveThread failed", "error", err, "userID", t.UserID)
		return fmt.Errorf("failed to insert active thread for %s: %w", t.UserID, err)
	}
	slog.Debug("PostgresStore AddActiveThread succeeded", "userID", t.UserID, "externalID", t.ExternalID)
	return nil
}

// SwapActiveThread archives the old thread and activates the new one in a
// single transaction so a failure leaves the old thread active.
func (s *PostgresStore) SwapActiveThread(userID, oldExternalID string, newThread models.ConversationThread) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin swap transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE conversation_threads SET status = $1 WHERE user_id = $2 AND external_id = $3 AND status = $4`,
		models.ThreadStatusArchived, userID, oldExternalID, models.ThreadStatusActive,
	)
	if err != nil {
		slog.Error("PostgresStore SwapActiveThread archive failed", "error", err, "userID", userID)
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
		`INSERT INTO conversation_threads (user_id, external_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		userID, newThread.ExternalID, models.ThreadStatusActive, newThread.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SwapActiveThread activate failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to activate thread %s: %w", newThread.ExternalID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit thread swap: %w", err)
	}
	slog.Debug("PostgresStore SwapActiveThread succeeded", "userID", userID, "old", oldExternalID, "new", newThread.ExternalID)
	return nil
}

func (s *PostgresStore) AddRoutingDecision(d models.RoutingDecision) error {
	_, err := s.db.Exec(
		`INSERT INTO routing_decisions (id, user_id, route_kind, message_type, model_tier, tokens, estimated_cost, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.UserID, d.RouteKind, d.MessageType, d.ModelTier, d.Tokens, d.EstimatedCost, d.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddRoutingDecision failed", "error", err, "userID", d.UserID)
		return fmt.Errorf("failed to insert routing decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRoutingDecisionsBetween(from, to time.Time) ([]models.RoutingDecision, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, route_kind, message_type, model_tier, tokens, estimated_cost, created_at FROM routing_decisions WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`,
		from, to,
	)
	if err != nil {
		slog.Error("PostgresStore ListRoutingDecisionsBetween query failed", "error", err)
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

func (s *PostgresStore) GetCacheEntry(fingerprint string) (*models.CacheEntry, error) {
	row := s.db.QueryRow(
		`SELECT fingerprint, reply, class, hit_count, expires_at, created_at FROM cache_entries WHERE fingerprint = $1`,
		fingerprint,
	)
	e, err := scanCacheEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCacheEntry failed", "error", err)
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) PutCacheEntry(e models.CacheEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (fingerprint, reply, class, hit_count, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint) DO UPDATE SET reply = EXCLUDED.reply, class = EXCLUDED.class, hit_count = 0, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		e.Fingerprint, e.Reply, e.Class, e.HitCount, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore PutCacheEntry failed", "error", err)
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchCacheEntry(fingerprint string) error {
	_, err := s.db.Exec(`UPDATE cache_entries SET hit_count = hit_count + 1 WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredCacheEntries(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= $1`, now)
	if err != nil {
		slog.Error("PostgresStore DeleteExpiredCacheEntries failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
