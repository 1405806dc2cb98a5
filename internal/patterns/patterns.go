// Package patterns provides the rule-based matcher that answers short,
// generic utterances from canned reply sets without touching the dialogue
// service.
//
// Matching runs in two tiers: a fast path for two-word-or-shorter greetings
// bucketed by time of day, and a general path over a fixed priority list of
// named groups with trigger substrings and optional guards.
package patterns

import (
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

// Time-of-day bucket boundaries (inclusive start, inclusive end).
const (
	morningStart   = 5
	morningEnd     = 11
	afternoonStart = 12
	afternoonEnd   = 16
	eveningStart   = 17
	eveningEnd     = 23
)

// Group is one named pattern group: trigger substrings plus optional guards.
// A group matches only if at least one trigger is present in the message and
// every guard attached to the group passes.
type Group struct {
	Name      string
	Triggers  []string
	Replies   []string
	MinStreak int  // 0 means no streak guard
	HourFrom  int  // hour guard, inclusive; active when HourTo > 0
	HourTo    int  // hour guard, inclusive
	HourGuard bool // whether the hour guard applies
}

// Match is a successful pattern hit. ContextDependent marks replies chosen
// under a time-of-day or streak condition; those must not be served back to
// contexts that would fail the same condition, so callers keep them out of
// any context-free cache.
type Match struct {
	Group            string
	Reply            string
	ContextDependent bool
}

// Opts holds configuration options for the matcher.
type Opts struct {
	Rand   *rand.Rand
	Groups []Group
}

// Option configures the matcher.
type Option func(*Opts)

// WithRand sets the random source used for reply selection. Tests inject a
// seeded source; production uses the default.
func WithRand(r *rand.Rand) Option {
	return func(o *Opts) {
		o.Rand = r
	}
}

// WithGroups replaces the default pattern group priority list.
func WithGroups(groups []Group) Option {
	return func(o *Opts) {
		o.Groups = groups
	}
}

// Matcher recognizes short generic utterances and returns canned replies.
// Group evaluation order is the fixed priority list given at construction,
// never the iteration order of a map.
type Matcher struct {
	groups    []Group
	greetings map[string]bool
	rand      *rand.Rand

	mu   sync.Mutex
	hits map[string]int
}

// NewMatcher creates a matcher with the default groups and reply banks.
func NewMatcher(opts ...Option) *Matcher {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Groups == nil {
		cfg.Groups = DefaultGroups()
	}
	return &Matcher{
		groups:    cfg.Groups,
		greetings: defaultGreetingVocabulary(),
		rand:      cfg.Rand,
		hits:      make(map[string]int),
	}
}

// Match returns a canned reply for the message, or nil when no pattern
// applies. Matching is idempotent; the reply chosen from the winning group's
// set is not.
func (m *Matcher) Match(message string, ctx models.RouteContext) *Match {
	normalized := normalize(message)
	if normalized == "" {
		return nil
	}

	if hit := m.matchGreeting(normalized, ctx.Hour); hit != nil {
		m.countHit(hit.Group)
		return hit
	}

	for _, g := range m.groups {
		if !groupTriggered(g, normalized) {
			continue
		}
		if !guardsPass(g, ctx) {
			continue
		}
		reply := g.Replies[m.pick(len(g.Replies))]
		m.countHit(g.Name)
		slog.Debug("patterns.Match: group hit", "group", g.Name)
		return &Match{Group: g.Name, Reply: reply, ContextDependent: groupContextDependent(g)}
	}
	return nil
}

// Hits returns a copy of the per-group hit counters.
func (m *Matcher) Hits() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.hits))
	for k, v := range m.hits {
		out[k] = v
	}
	return out
}

// GroupReplies returns the declared reply set for a named group, including
// the greeting buckets. Used by tests asserting reply membership.
func (m *Matcher) GroupReplies(name string) []string {
	switch name {
	case "greeting_morning":
		return morningGreetings
	case "greeting_afternoon":
		return afternoonGreetings
	case "greeting_evening":
		return eveningGreetings
	}
	for _, g := range m.groups {
		if g.Name == name {
			return g.Replies
		}
	}
	return nil
}

// matchGreeting handles the fast path: messages of at most two words checked
// against the greeting vocabulary and routed to a time-of-day bucket. Hours
// outside all buckets (00-04) are a deliberate no-match, not a silent default.
func (m *Matcher) matchGreeting(normalized string, hour int) *Match {
	if len(strings.Fields(normalized)) > 2 {
		return nil
	}
	if !m.greetings[normalized] {
		return nil
	}
	switch {
	case hour >= morningStart && hour <= morningEnd:
		return &Match{Group: "greeting_morning", Reply: morningGreetings[m.pick(len(morningGreetings))], ContextDependent: true}
	case hour >= afternoonStart && hour <= afternoonEnd:
		return &Match{Group: "greeting_afternoon", Reply: afternoonGreetings[m.pick(len(afternoonGreetings))], ContextDependent: true}
	case hour >= eveningStart && hour <= eveningEnd:
		return &Match{Group: "greeting_evening", Reply: eveningGreetings[m.pick(len(eveningGreetings))], ContextDependent: true}
	default:
		return nil
	}
}

// groupContextDependent reports whether a group's replies are only valid under
// its guards. Unguarded groups produce replies safe for any context.
func groupContextDependent(g Group) bool {
	return g.MinStreak > 0 || g.HourGuard
}

func (m *Matcher) pick(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rand.IntN(n)
}

func (m *Matcher) countHit(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[group]++
}

func groupTriggered(g Group, normalized string) bool {
	for _, trigger := range g.Triggers {
		if strings.Contains(normalized, trigger) {
			return true
		}
	}
	return false
}

func guardsPass(g Group, ctx models.RouteContext) bool {
	if g.MinStreak > 0 && ctx.Streak < g.MinStreak {
		return false
	}
	if g.HourGuard && (ctx.Hour < g.HourFrom || ctx.Hour > g.HourTo) {
		return false
	}
	return true
}

func normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}
