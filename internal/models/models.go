// Package models defines the core data structures for Cora's message router.
//
// It includes message and conversation-thread records, routing enums, and the
// usage-ledger entry type, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// MessageDirection indicates whether a message was sent by the user or the coach.
type MessageDirection string

const (
	// DirectionIncoming is a message sent by the user.
	DirectionIncoming MessageDirection = "incoming"
	// DirectionOutgoing is a message generated on behalf of the coach.
	DirectionOutgoing MessageDirection = "outgoing"
)

// ThreadStatus represents the lifecycle state of a conversation thread.
type ThreadStatus string

const (
	// ThreadStatusActive indicates the thread currently receives new messages.
	ThreadStatusActive ThreadStatus = "active"
	// ThreadStatusArchived indicates the thread was retired by pruning and is
	// retained for audit only.
	ThreadStatusArchived ThreadStatus = "archived"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for inbound message content
	MaxMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID       = errors.New("user id cannot be empty")
	ErrEmptyMessage      = errors.New("message content cannot be empty")
	ErrMessageTooLong    = errors.New("message content exceeds maximum length")
	ErrInvalidDirection  = errors.New("invalid message direction")
	ErrInvalidHour       = errors.New("hour must be between 0 and 23")
	ErrNegativeStreak    = errors.New("streak cannot be negative")
	ErrNoActiveThread    = errors.New("no active thread for user")
	ErrRetryableExternal = errors.New("external dialogue service call failed")
	ErrPruneFailed       = errors.New("thread prune failed, active thread unchanged")
)

// Message represents one inbound or outbound chat turn.
//
// Outbound messages produced by a multi-turn run always carry the run id that
// was active at generation time, so concurrent or retried generations are
// never attributed to the wrong reply. Messages are never mutated after
// creation except to attach a late-arriving thread id.
type Message struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Direction    MessageDirection `json:"direction"`
	Content      string           `json:"content"`
	ThreadID     string           `json:"thread_id,omitempty"`      // external thread used, if any
	ClientTempID string           `json:"client_temp_id,omitempty"` // optimistic-UI reconciliation id
	RunID        string           `json:"run_id,omitempty"`         // generation run that produced this message
	CreatedAt    time.Time        `json:"created_at"`
}

// Validate performs validation on a Message structure.
func (m *Message) Validate() error {
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if m.Content == "" {
		return ErrEmptyMessage
	}
	if len(m.Content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if m.Direction != DirectionIncoming && m.Direction != DirectionOutgoing {
		return ErrInvalidDirection
	}
	return nil
}

// ConversationThread maps a user to the external service's multi-turn context.
// At most one thread per user has status active at any time; archived threads
// are retained for audit but never written to again.
type ConversationThread struct {
	UserID     string       `json:"user_id"`
	ExternalID string       `json:"external_id"`
	Status     ThreadStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IsValidThreadStatus checks if the given thread status is supported.
func IsValidThreadStatus(s ThreadStatus) bool {
	switch s {
	case ThreadStatusActive, ThreadStatusArchived:
		return true
	default:
		return false
	}
}

// RouteContext is the minimal caller-supplied context bundle used by the
// pattern matcher, classifier, and fingerprint cache.
type RouteContext struct {
	Hour   int `json:"hour"`   // local hour-of-day, 0-23
	Streak int `json:"streak"` // current streak length in days
}

// Validate performs validation on a RouteContext.
func (c *RouteContext) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return ErrInvalidHour
	}
	if c.Streak < 0 {
		return ErrNegativeStreak
	}
	return nil
}

// StreakBand buckets a streak length into the coarse bands used for cache
// fingerprints: "0", "1-2", "3-6", "7+".
func StreakBand(streak int) string {
	switch {
	case streak <= 0:
		return "0"
	case streak <= 2:
		return "1-2"
	case streak <= 6:
		return "3-6"
	default:
		return "7+"
	}
}
