package patterns

// Greeting vocabulary for the fast path. Messages of at most two normalized
// words that equal one of these entries count as a greeting.
func defaultGreetingVocabulary() map[string]bool {
	return map[string]bool{
		"hi":           true,
		"hey":          true,
		"hello":        true,
		"yo":           true,
		"sup":          true,
		"hiya":         true,
		"morning":      true,
		"good morning": true,
		"gm":           true,
		"afternoon":    true,
		"evening":      true,
		"good evening": true,
		"hey cora":     true,
		"hi cora":      true,
		"hello cora":   true,
	}
}

var morningGreetings = []string{
	"Morning! What's the one thing that matters most today?",
	"Good morning. Fresh day, fresh shot at it. What's first?",
	"Morning! How are we starting today?",
}

var afternoonGreetings = []string{
	"Hey! How's the day treating you so far?",
	"Afternoon! Still on track with what you planned?",
	"Hey there. Midday check, how's it going?",
}

var eveningGreetings = []string{
	"Evening! How did today go?",
	"Hey! Winding down? Tell me one win from today.",
	"Good evening. What's the highlight from today?",
}

// DefaultGroups returns the built-in pattern group priority list. Order is
// significant: the first group whose trigger and guards pass wins.
func DefaultGroups() []Group {
	return []Group{
		{
			Name:     "completion_celebration",
			Triggers: []string{"done", "finished", "completed", "crushed it", "did it", "nailed it"},
			Replies: []string{
				"Yes! That's what showing up looks like. What's next?",
				"Love it. One more rep in the bank. Keep that energy.",
				"Boom. Done is done. How does it feel?",
				"That's the move. Momentum builds on exactly this.",
			},
		},
		{
			Name:     "struggle_support",
			Triggers: []string{"struggling", "hard today", "can't do", "cant do", "want to quit", "giving up", "so tired"},
			Replies: []string{
				"Rough days count too. Showing up to say so is already something.",
				"Okay, today is heavy. What's the smallest version of the plan you could still do?",
				"You don't need a perfect day, just a non-zero one. What's one tiny step?",
				"Heard. Be honest with me: what's actually in the way right now?",
			},
		},
		{
			Name:      "streak_pride",
			Triggers:  []string{"my streak", "streak going", "still going", "kept it up", "kept the streak"},
			MinStreak: 7,
			Replies: []string{
				"A week-plus and counting. That's not luck, that's a system. Proud of you.",
				"This streak is getting serious. What's made it stick this time?",
				"Look at that streak. You're becoming the kind of person who just does it.",
			},
		},
		{
			Name:      "late_night_checkin",
			Triggers:  []string{"still up", "can't sleep", "cant sleep", "up late"},
			HourGuard: true,
			HourFrom:  21,
			HourTo:    23,
			Replies: []string{
				"Late one, huh. Anything on your mind, or just winding down?",
				"Night owl mode. Don't trade tomorrow's energy for tonight's scroll.",
			},
		},
		{
			Name:     "gratitude",
			Triggers: []string{"thank you", "thanks cora", "appreciate you", "appreciate it"},
			Replies: []string{
				"Anytime. That's what I'm here for.",
				"Of course. Now go do the thing.",
				"You're doing the work, I'm just here cheering.",
			},
		},
	}
}
