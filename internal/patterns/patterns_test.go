package patterns

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

func seededMatcher() *Matcher {
	return NewMatcher(WithRand(rand.New(rand.NewPCG(1, 2))))
}

func TestMatch_GreetingBuckets(t *testing.T) {
	m := seededMatcher()
	cases := []struct {
		hour  int
		group string
	}{
		{5, "greeting_morning"},
		{11, "greeting_morning"},
		{12, "greeting_afternoon"},
		{16, "greeting_afternoon"},
		{17, "greeting_evening"},
		{23, "greeting_evening"},
	}
	for _, tc := range cases {
		hit := m.Match("hey", models.RouteContext{Hour: tc.hour})
		if hit == nil {
			t.Fatalf("hour %d: expected greeting match, got nil", tc.hour)
		}
		if hit.Group != tc.group {
			t.Errorf("hour %d: expected group %s, got %s", tc.hour, tc.group, hit.Group)
		}
		if !slices.Contains(m.GroupReplies(tc.group), hit.Reply) {
			t.Errorf("hour %d: reply %q not in %s reply set", tc.hour, hit.Reply, tc.group)
		}
	}
}

func TestMatch_GreetingDeadHours(t *testing.T) {
	m := seededMatcher()
	for hour := 0; hour <= 4; hour++ {
		if hit := m.Match("hello", models.RouteContext{Hour: hour}); hit != nil {
			t.Errorf("hour %d: expected no match in dead hours, got %+v", hour, hit)
		}
	}
}

func TestMatch_GreetingNormalization(t *testing.T) {
	m := seededMatcher()
	if hit := m.Match("  HEY  ", models.RouteContext{Hour: 9}); hit == nil {
		t.Error("expected case-insensitive, whitespace-trimmed greeting match")
	}
	if hit := m.Match("Good Morning", models.RouteContext{Hour: 8}); hit == nil {
		t.Error("expected two-word greeting to match")
	}
	// Three words is past the fast-path word limit even if it contains a
	// greeting.
	if hit := m.Match("hey there friend", models.RouteContext{Hour: 9}); hit != nil {
		t.Errorf("expected no greeting match for three words, got %+v", hit)
	}
}

func TestMatch_CompletionBeforeSupport(t *testing.T) {
	m := seededMatcher()
	// Contains triggers from two groups; the earlier group in the priority
	// list must win.
	hit := m.Match("done with it but so tired", models.RouteContext{Hour: 14})
	if hit == nil {
		t.Fatal("expected a match")
	}
	if hit.Group != "completion_celebration" {
		t.Errorf("expected completion_celebration to win by priority, got %s", hit.Group)
	}
}

func TestMatch_StreakGuard(t *testing.T) {
	m := seededMatcher()
	if hit := m.Match("my streak is alive", models.RouteContext{Hour: 10, Streak: 3}); hit != nil {
		t.Errorf("expected streak guard to block at streak 3, got %+v", hit)
	}
	hit := m.Match("my streak is alive", models.RouteContext{Hour: 10, Streak: 7})
	if hit == nil || hit.Group != "streak_pride" {
		t.Fatalf("expected streak_pride at streak 7, got %+v", hit)
	}
}

func TestMatch_HourGuard(t *testing.T) {
	m := seededMatcher()
	if hit := m.Match("still up thinking", models.RouteContext{Hour: 14}); hit != nil {
		t.Errorf("expected hour guard to block midday, got %+v", hit)
	}
	hit := m.Match("still up thinking", models.RouteContext{Hour: 22})
	if hit == nil || hit.Group != "late_night_checkin" {
		t.Fatalf("expected late_night_checkin at hour 22, got %+v", hit)
	}
}

func TestMatch_ContextDependentFlag(t *testing.T) {
	m := seededMatcher()

	// Hour-bucketed and guarded hits are only valid for the context that
	// produced them.
	for _, tc := range []struct {
		msg string
		ctx models.RouteContext
	}{
		{"hey", models.RouteContext{Hour: 9}},
		{"my streak is alive", models.RouteContext{Hour: 10, Streak: 8}},
		{"still up thinking", models.RouteContext{Hour: 22}},
	} {
		hit := m.Match(tc.msg, tc.ctx)
		if hit == nil {
			t.Fatalf("message %q: expected a match", tc.msg)
		}
		if !hit.ContextDependent {
			t.Errorf("message %q: expected context-dependent hit for group %s", tc.msg, hit.Group)
		}
	}

	// Unguarded groups produce replies safe for any context.
	for _, msg := range []string{"finished my workout", "thank you"} {
		hit := m.Match(msg, models.RouteContext{Hour: 14})
		if hit == nil {
			t.Fatalf("message %q: expected a match", msg)
		}
		if hit.ContextDependent {
			t.Errorf("message %q: group %s carries no guards, expected context-free hit", msg, hit.Group)
		}
	}
}

func TestMatch_NoMatch(t *testing.T) {
	m := seededMatcher()
	for _, msg := range []string{
		"",
		"   ",
		"I want to talk about my five year plan",
		"why do I always procrastinate on tuesdays",
	} {
		if hit := m.Match(msg, models.RouteContext{Hour: 10, Streak: 10}); hit != nil {
			t.Errorf("message %q: expected no match, got %+v", msg, hit)
		}
	}
}

func TestHits_Counters(t *testing.T) {
	m := seededMatcher()
	ctx := models.RouteContext{Hour: 9}
	m.Match("hey", ctx)
	m.Match("hi", ctx)
	m.Match("finished my workout", ctx)

	hits := m.Hits()
	if hits["greeting_morning"] != 2 {
		t.Errorf("expected 2 greeting_morning hits, got %d", hits["greeting_morning"])
	}
	if hits["completion_celebration"] != 1 {
		t.Errorf("expected 1 completion_celebration hit, got %d", hits["completion_celebration"])
	}
}

func TestMatch_CustomGroups(t *testing.T) {
	m := NewMatcher(
		WithRand(rand.New(rand.NewPCG(1, 1))),
		WithGroups([]Group{
			{Name: "only", Triggers: []string{"ping"}, Replies: []string{"pong"}},
		}),
	)
	hit := m.Match("ping me", models.RouteContext{Hour: 3})
	if hit == nil || hit.Reply != "pong" {
		t.Fatalf("expected custom group reply, got %+v", hit)
	}
	if hit := m.Match("finished", models.RouteContext{Hour: 10}); hit != nil {
		t.Errorf("default groups should be replaced, got %+v", hit)
	}
}
