package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

// ErrActiveThreadExists is returned when inserting an active thread for a user
// that already has one. The per-user serialization in the thread manager makes
// this unreachable in normal operation; the constraint is a backstop.
var ErrActiveThreadExists = errors.New("user already has an active thread")

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanMessage scans a Message from sql.Rows.
func scanMessage(rows *sql.Rows) (models.Message, error) {
	var m models.Message
	var threadID, clientTempID, runID sql.NullString
	err := rows.Scan(&m.ID, &m.UserID, &m.Direction, &m.Content, &threadID, &clientTempID, &runID, &m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.ThreadID = threadID.String
	m.ClientTempID = clientTempID.String
	m.RunID = runID.String
	return m, nil
}

// scanThreadRow scans a ConversationThread from a single sql.Row.
func scanThreadRow(row *sql.Row) (models.ConversationThread, error) {
	var t models.ConversationThread
	err := row.Scan(&t.UserID, &t.ExternalID, &t.Status, &t.CreatedAt)
	return t, err
}

// scanDecision scans a RoutingDecision from sql.Rows.
func scanDecision(rows *sql.Rows) (models.RoutingDecision, error) {
	var d models.RoutingDecision
	err := rows.Scan(&d.ID, &d.UserID, &d.RouteKind, &d.MessageType, &d.ModelTier, &d.Tokens, &d.EstimatedCost, &d.CreatedAt)
	if err != nil {
		return d, fmt.Errorf("scan routing decision failed: %w", err)
	}
	return d, nil
}

// scanCacheEntryRow scans a CacheEntry from a single sql.Row.
func scanCacheEntryRow(row *sql.Row) (models.CacheEntry, error) {
	var e models.CacheEntry
	err := row.Scan(&e.Fingerprint, &e.Reply, &e.Class, &e.HitCount, &e.ExpiresAt, &e.CreatedAt)
	return e, err
}
