// Package classify implements the lexical complexity classifier.
//
// Classification is a fixed ordered scan of keyword rules; the first rule
// whose keyword set intersects the lowercased message wins, and the default
// on no match is a simple check-in. The heuristic is deliberately low
// precision and biases toward the cheap path on ambiguity.
package classify

import (
	"strings"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

// Context fallback thresholds. A long message from a user on a sustained
// streak leans toward deeper coaching even when no keyword rule fires.
const (
	deepCoachingStreak = 7
	shortMessageWords  = 5
)

type rule struct {
	keywords []string
	mtype    models.MessageType
}

// Rule order matters: more specific intents are checked before broader ones
// so "analyze my goal patterns" lands on pattern analysis, not goal setting.
var rules = []rule{
	{
		keywords: []string{"analyze", "pattern", "trend", "why do i", "help me understand"},
		mtype:    models.MessageTypePatternAnalysis,
	},
	{
		keywords: []string{"goal", "objective", "plan", "strategy", "approach"},
		mtype:    models.MessageTypeGoalSetting,
	},
	{
		keywords: []string{"hold me accountable", "accountability", "keep me honest", "check on me", "commitment"},
		mtype:    models.MessageTypeAccountability,
	},
	{
		keywords: []string{"struggle", "struggling", "stuck", "overwhelm", "confused", "lost", "motivation", "purpose", "procrastinat", "avoidance", "resistance"},
		mtype:    models.MessageTypeDeepCoaching,
	},
	{
		keywords: []string{"did it", "done", "finished", "completed", "crushed", "nailed", "good job", "nice work", "well done"},
		mtype:    models.MessageTypeCelebration,
	},
	{
		keywords: []string{"rough day", "hard day", "tired", "exhausted", "down today", "not feeling"},
		mtype:    models.MessageTypeSupport,
	},
}

// Classify maps a message to its type. It never returns an error; ambiguity
// resolves to a simple check-in or, for long messages on a streak of seven
// or more days, deep coaching.
func Classify(message string, ctx models.RouteContext) models.MessageType {
	lower := strings.ToLower(message)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.mtype
			}
		}
	}

	words := len(strings.Fields(lower))
	if words <= shortMessageWords {
		return models.MessageTypeSimpleCheckin
	}
	if ctx.Streak >= deepCoachingStreak {
		return models.MessageTypeDeepCoaching
	}
	return models.MessageTypeSimpleCheckin
}
