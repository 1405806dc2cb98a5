package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/cache"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/genai"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/ledger"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/patterns"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/thread"
)

// fakeDialogue is a scriptable stand-in for the external dialogue service.
type fakeDialogue struct {
	mu              sync.Mutex
	singleShotCalls int
	singleShotErr   error
	singleShotText  string
	runErr          error
	runReplies      []string
	nextID          int
}

func newFakeDialogue() *fakeDialogue {
	return &fakeDialogue{
		singleShotText: "single-shot reply",
		runReplies:     []string{"thread reply"},
	}
}

func (f *fakeDialogue) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("th_%d", f.nextID), nil
}

func (f *fakeDialogue) AppendMessage(ctx context.Context, threadID, role, text string) error {
	return nil
}

func (f *fakeDialogue) RunThread(ctx context.Context, threadID string, opts genai.RunOptions) (*genai.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runErr != nil {
		return nil, f.runErr
	}
	f.nextID++
	return &genai.RunResult{RunID: fmt.Sprintf("run_%d", f.nextID), Messages: f.runReplies}, nil
}

func (f *fakeDialogue) SingleShot(ctx context.Context, req genai.SingleShotRequest) (*genai.SingleShotResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleShotCalls++
	if f.singleShotErr != nil {
		return nil, f.singleShotErr
	}
	return &genai.SingleShotResult{Text: f.singleShotText, TokensUsed: 120}, nil
}

type fixture struct {
	store    *store.InMemoryStore
	dialogue *fakeDialogue
	cache    *cache.Cache
	ledger   *ledger.Ledger
	router   *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewInMemoryStore()
	dialogue := newFakeDialogue()
	c := cache.New(s)
	l := ledger.New(s)
	matcher := patterns.NewMatcher(patterns.WithRand(rand.New(rand.NewPCG(7, 7))))
	threads := thread.NewManager(s, dialogue)
	return &fixture{
		store:    s,
		dialogue: dialogue,
		cache:    c,
		ledger:   l,
		router:   New(s, matcher, c, threads, dialogue, l),
	}
}

// seedInbound stores n prior inbound messages so the user is past the
// relationship window.
func (f *fixture) seedInbound(t *testing.T, userID string, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		require.NoError(t, f.store.AddMessage(models.Message{
			ID:        fmt.Sprintf("seed_%s_%d", userID, i),
			UserID:    userID,
			Direction: models.DirectionIncoming,
			Content:   "earlier message",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func (f *fixture) ledgerEntries(t *testing.T) []models.RoutingDecision {
	t.Helper()
	now := time.Now().UTC()
	decisions, err := f.store.ListRoutingDecisionsBetween(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	return decisions
}

func TestRoute_CannedGreeting(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)

	result, err := f.router.Route(context.Background(), "u1", "hey", "", models.RouteContext{Hour: 9})
	require.NoError(t, err)
	assert.Equal(t, models.RouteCanned, result.RouteKind)
	require.Len(t, result.Replies, 1)
	assert.Contains(t, patterns.NewMatcher().GroupReplies("greeting_morning"), result.Replies[0])
	assert.Equal(t, 0, f.dialogue.singleShotCalls, "canned path must not generate")

	// Greeting replies are bucketed by hour, so nothing lands in the
	// context-free cache.
	entry, err := f.store.GetCacheEntry(cache.GenericFingerprint("hey"))
	require.NoError(t, err)
	assert.Nil(t, entry)

	entries := f.ledgerEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RouteCanned, entries[0].RouteKind)
	assert.Equal(t, models.TierNone, entries[0].ModelTier)
}

func TestRoute_CannedUnguardedGroupCached(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)

	result, err := f.router.Route(context.Background(), "u1", "thank you", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteCanned, result.RouteKind)

	// Gratitude replies carry no guards, so the reply is reusable for anyone.
	entry, err := f.store.GetCacheEntry(cache.GenericFingerprint("thank you"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.CacheClassGeneric, entry.Class)
}

func TestRoute_StreakGuardedCannedNotReused(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "streaker", 5)
	f.seedInbound(t, "newbie", 5)

	result, err := f.router.Route(context.Background(), "streaker", "my streak is still going", "", models.RouteContext{Hour: 14, Streak: 9})
	require.NoError(t, err)
	assert.Equal(t, models.RouteCanned, result.RouteKind)

	// The streak-guarded reply must not be stored under the text-only key.
	entry, err := f.store.GetCacheEntry(cache.GenericFingerprint("my streak is still going"))
	require.NoError(t, err)
	assert.Nil(t, entry)

	// A zero-streak user sending the same text gets generation, never
	// someone else's streak praise.
	result, err = f.router.Route(context.Background(), "newbie", "my streak is still going", "", models.RouteContext{Hour: 14, Streak: 0})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSingleShot, result.RouteKind)
	assert.NotContains(t, patterns.NewMatcher().GroupReplies("streak_pride"), result.Replies[0])
}

func TestRoute_GreetingNotReplayedOutsideItsHourBucket(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)

	result, err := f.router.Route(context.Background(), "u1", "hey", "", models.RouteContext{Hour: 9})
	require.NoError(t, err)
	assert.Equal(t, models.RouteCanned, result.RouteKind)

	// At 2am no greeting bucket applies and nothing was cached at 9am, so
	// the same text goes to generation instead of a stale morning greeting.
	result, err = f.router.Route(context.Background(), "u1", "hey", "", models.RouteContext{Hour: 2})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSingleShot, result.RouteKind)
	assert.NotContains(t, patterns.NewMatcher().GroupReplies("greeting_morning"), result.Replies[0])
}

func TestRoute_CachedReply(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)
	f.cache.StoreReply(models.RouteSingleShot, "u1", "quiet day over here today", "glad it was calm", 0)

	result, err := f.router.Route(context.Background(), "u1", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteCached, result.RouteKind)
	assert.Equal(t, []string{"glad it was calm"}, result.Replies)
	assert.Equal(t, 0, f.dialogue.singleShotCalls, "cached path must not generate")

	entries := f.ledgerEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RouteCached, entries[0].RouteKind)
}

func TestRoute_RelationshipWindowGoesMultiTurn(t *testing.T) {
	f := newFixture(t)

	// Brand-new user, trivially simple message, still multi-turn.
	result, err := f.router.Route(context.Background(), "u_new", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteMultiTurn, result.RouteKind)
	assert.NotEmpty(t, result.ThreadID)
	assert.NotEmpty(t, result.RunID)
}

func TestRoute_WindowCountsOnlyPriorMessages(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u_two", 2)
	f.seedInbound(t, "u_three", 3)

	// Two prior turns: the current message is the third, still inside the
	// relationship window.
	result, err := f.router.Route(context.Background(), "u_two", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteMultiTurn, result.RouteKind)

	// Three prior turns: the window is spent, route drops to single-shot.
	result, err = f.router.Route(context.Background(), "u_three", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSingleShot, result.RouteKind)
}

func TestRoute_SingleShotPastWindow(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)

	result, err := f.router.Route(context.Background(), "u1", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSingleShot, result.RouteKind)
	assert.Equal(t, models.MessageTypeSimpleCheckin, result.MessageType)
	assert.Equal(t, []string{"single-shot reply"}, result.Replies)
	assert.Equal(t, 1, f.dialogue.singleShotCalls)

	// The reply is now cached under the user-bound exact key.
	entry, err := f.store.GetCacheEntry(cache.ExactFingerprint("u1", "quiet day over here today", 0))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.CacheClassExact, entry.Class)

	entries := f.ledgerEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RouteSingleShot, entries[0].RouteKind)
	assert.Equal(t, models.TierCheap, entries[0].ModelTier)
	assert.Equal(t, 120, entries[0].Tokens, "actual token usage preferred over the estimate")
}

func TestRoute_PatternAnalysisMultiTurnWithRunID(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)
	f.dialogue.runReplies = []string{"pattern insight one", "pattern insight two"}

	result, err := f.router.Route(context.Background(), "u1", "why do I keep skipping mornings", "", models.RouteContext{Hour: 10, Streak: 2})
	require.NoError(t, err)
	assert.Equal(t, models.RouteMultiTurn, result.RouteKind)
	assert.Equal(t, models.MessageTypePatternAnalysis, result.MessageType)
	assert.Len(t, result.Replies, 2)
	require.NotEmpty(t, result.RunID)

	// Outbound messages carry the run id active at generation time.
	msgs, err := f.store.ListThreadMessages(result.ThreadID)
	require.NoError(t, err)
	outbound := 0
	for _, m := range msgs {
		if m.Direction == models.DirectionOutgoing {
			outbound++
			assert.Equal(t, result.RunID, m.RunID)
		}
	}
	assert.Equal(t, 2, outbound)

	// Multi-turn replies are never cached.
	entry, err := f.store.GetCacheEntry(cache.ExactFingerprint("u1", "why do I keep skipping mornings", 2))
	require.NoError(t, err)
	assert.Nil(t, entry)

	entries := f.ledgerEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.RouteMultiTurn, entries[0].RouteKind)
	assert.Equal(t, models.TierPremium, entries[0].ModelTier)
}

func TestRoute_GenerationFailureIsRetryableAndUncached(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)
	f.dialogue.singleShotErr = errors.New("deadline exceeded")

	_, err := f.router.Route(context.Background(), "u1", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRetryableExternal)

	// No cache write and no ledger entry for the failed attempt.
	entry, getErr := f.store.GetCacheEntry(cache.ExactFingerprint("u1", "quiet day over here today", 0))
	require.NoError(t, getErr)
	assert.Nil(t, entry)
	assert.Empty(t, f.ledgerEntries(t))
}

func TestRoute_ThreadRunFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.dialogue.runErr = errors.New("run stuck")

	_, err := f.router.Route(context.Background(), "u_new", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRetryableExternal)
}

func TestRoute_InputValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Route(context.Background(), "u1", "", "", models.RouteContext{Hour: 9})
	assert.ErrorIs(t, err, models.ErrEmptyMessage)

	_, err = f.router.Route(context.Background(), "", "hello", "", models.RouteContext{Hour: 9})
	assert.ErrorIs(t, err, models.ErrEmptyUserID)

	_, err = f.router.Route(context.Background(), "u1", "hello", "", models.RouteContext{Hour: 24})
	assert.ErrorIs(t, err, models.ErrInvalidHour)
}

func TestRoute_CallerCancellationDoesNotAbortGeneration(t *testing.T) {
	f := newFixture(t)
	f.seedInbound(t, "u1", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The generation context is detached from the caller's, so a cancelled
	// caller context still produces and records a reply.
	result, err := f.router.Route(ctx, "u1", "quiet day over here today", "", models.RouteContext{Hour: 14})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSingleShot, result.RouteKind)
	assert.Len(t, f.ledgerEntries(t), 1)
}
