// Package models defines routing enums and ledger records shared across modules.
package models

import "time"

// MessageType classifies a message into a small set of semantic types used for
// routing decisions. Classification is a low-precision lexical heuristic and
// misclassification is expected, recoverable behavior.
type MessageType string

const (
	// MessageTypeSimpleCheckin is a short status exchange; the default on ambiguity.
	MessageTypeSimpleCheckin MessageType = "simple_checkin"
	// MessageTypeCelebration acknowledges a completed commitment or win.
	MessageTypeCelebration MessageType = "celebration"
	// MessageTypeSupport is a request for encouragement on a rough day.
	MessageTypeSupport MessageType = "support"
	// MessageTypeDeepCoaching asks for substantive coaching on struggle or motivation.
	MessageTypeDeepCoaching MessageType = "deep_coaching"
	// MessageTypeGoalSetting discusses goals, plans, or strategy.
	MessageTypeGoalSetting MessageType = "goal_setting"
	// MessageTypePatternAnalysis asks the coach to analyze behavior patterns.
	MessageTypePatternAnalysis MessageType = "pattern_analysis"
	// MessageTypeAccountability asks the coach to hold the user to a commitment.
	MessageTypeAccountability MessageType = "accountability"
)

// IsValidMessageType checks if the given message type is supported.
func IsValidMessageType(mt MessageType) bool {
	switch mt {
	case MessageTypeSimpleCheckin, MessageTypeCelebration, MessageTypeSupport,
		MessageTypeDeepCoaching, MessageTypeGoalSetting, MessageTypePatternAnalysis,
		MessageTypeAccountability:
		return true
	default:
		return false
	}
}

// IsComplexMessageType reports whether the type routes to the multi-turn path
// once the relationship-building window has passed.
func IsComplexMessageType(mt MessageType) bool {
	switch mt {
	case MessageTypeDeepCoaching, MessageTypePatternAnalysis,
		MessageTypeGoalSetting, MessageTypeAccountability:
		return true
	default:
		return false
	}
}

// RouteKind is the path chosen to answer a message.
type RouteKind string

const (
	// RouteCanned answers from the pattern matcher's scripted reply sets.
	RouteCanned RouteKind = "canned"
	// RouteCached answers from the fingerprint cache.
	RouteCached RouteKind = "cached"
	// RouteSingleShot answers with a stateless generation call.
	RouteSingleShot RouteKind = "single_shot"
	// RouteMultiTurn answers through the user's persistent external thread.
	RouteMultiTurn RouteKind = "multi_turn"
)

// IsValidRouteKind checks if the given route kind is supported.
func IsValidRouteKind(rk RouteKind) bool {
	switch rk {
	case RouteCanned, RouteCached, RouteSingleShot, RouteMultiTurn:
		return true
	default:
		return false
	}
}

// ModelTier selects the underlying model class for generation routes.
type ModelTier string

const (
	// TierCheap is the lightweight model tier used for single-shot replies.
	TierCheap ModelTier = "cheap"
	// TierPremium is the expensive tier used by the multi-turn path.
	TierPremium ModelTier = "premium"
	// TierNone marks routes that made no generation call.
	TierNone ModelTier = "none"
)

// RoutingDecision is one append-only usage-ledger entry. Entries are never
// updated or deleted; all aggregation happens at read time.
type RoutingDecision struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	RouteKind     RouteKind   `json:"route_kind"`
	MessageType   MessageType `json:"message_type"`
	ModelTier     ModelTier   `json:"model_tier"`
	Tokens        int         `json:"tokens"`
	EstimatedCost float64     `json:"estimated_cost"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CacheClass determines the TTL applied to a cache entry. The class is derived
// from which route produced the reply, never guessed from content.
type CacheClass string

const (
	// CacheClassExact is a user-specific exact-text entry (short TTL).
	CacheClassExact CacheClass = "exact"
	// CacheClassGeneric is a pattern-level, text-only entry (long TTL).
	CacheClassGeneric CacheClass = "generic"
)

// CacheEntry is an immutable fingerprint->reply record with an expiry.
// Entries are evicted on expiry and never explicitly updated; a colliding
// store simply overwrites with an equivalent or better reply.
type CacheEntry struct {
	Fingerprint string     `json:"fingerprint"`
	Reply       string     `json:"reply"`
	Class       CacheClass `json:"class"`
	HitCount    int        `json:"hit_count"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether the entry has passed its expiry at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
