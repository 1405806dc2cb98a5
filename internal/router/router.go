// Package router wires the routing pipeline together: pattern matcher,
// fingerprint cache, complexity classifier, route selector, generation
// paths, and the usage ledger.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/cache"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/classify"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/genai"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/ledger"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/patterns"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/thread"
)

// DefaultGenerationTimeout bounds one generation call. Generation runs on a
// context detached from the caller so an in-flight run completes and gets
// recorded even if the caller goes away; this timeout is its only bound.
const DefaultGenerationTimeout = 60 * time.Second

const singleShotSystemPrompt = "You are Cora, a direct, warm accountability coach. " +
	"Reply in one or two short sentences. Acknowledge what the user said and " +
	"end with one concrete nudge or question."

// RouteResult is what the pipeline hands back to the caller.
type RouteResult struct {
	Replies     []string           `json:"replies"`
	RouteKind   models.RouteKind   `json:"route_kind"`
	MessageType models.MessageType `json:"message_type"`
	ThreadID    string             `json:"thread_id,omitempty"`
	RunID       string             `json:"run_id,omitempty"`
}

// Opts holds configuration options for the router.
type Opts struct {
	GenerationTimeout time.Duration
	Now               func() time.Time
}

// Option configures the router.
type Option func(*Opts)

// WithGenerationTimeout overrides the per-generation deadline.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.GenerationTimeout = d
	}
}

// WithClock injects the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Router is the pipeline entry point.
type Router struct {
	store      store.Store
	matcher    *patterns.Matcher
	cache      *cache.Cache
	threads    *thread.Manager
	client     genai.ClientInterface
	ledger     *ledger.Ledger
	genTimeout time.Duration
	now        func() time.Time
}

// New creates a router over the given collaborators.
func New(s store.Store, matcher *patterns.Matcher, c *cache.Cache, threads *thread.Manager, client genai.ClientInterface, l *ledger.Ledger, opts ...Option) *Router {
	cfg := Opts{
		GenerationTimeout: DefaultGenerationTimeout,
		Now:               time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{
		store:      s,
		matcher:    matcher,
		cache:      c,
		threads:    threads,
		client:     client,
		ledger:     l,
		genTimeout: cfg.GenerationTimeout,
		now:        cfg.Now,
	}
}

// Route runs one inbound message through the full pipeline and returns the
// reply. External failures surface as retryable errors; canned and cached
// tiers never fail the request on their own.
func (r *Router) Route(ctx context.Context, userID, text, clientTempID string, reqCtx models.RouteContext) (*RouteResult, error) {
	inbound := models.Message{
		ID:           uuid.NewString(),
		UserID:       userID,
		Direction:    models.DirectionIncoming,
		Content:      text,
		ClientTempID: clientTempID,
		CreatedAt:    r.now(),
	}
	if err := inbound.Validate(); err != nil {
		return nil, err
	}
	if err := reqCtx.Validate(); err != nil {
		return nil, err
	}
	// The relationship window counts the turns before this one, so take the
	// count before the inbound message is persisted.
	priorCount, countErr := r.store.CountUserMessages(userID)
	if countErr != nil {
		slog.Error("router.Route: message count unavailable, failing toward quality", "error", countErr, "userID", userID)
	}
	if err := r.store.AddMessage(inbound); err != nil {
		return nil, fmt.Errorf("persisting inbound message: %w", err)
	}

	if hit := r.matcher.Match(text, reqCtx); hit != nil {
		r.persistOutbound(userID, hit.Reply, "", "")
		if !hit.ContextDependent {
			r.cache.StoreReply(models.RouteCanned, userID, text, hit.Reply, reqCtx.Streak)
		}
		r.ledger.Record(userID, models.RouteCanned, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
		slog.Debug("router.Route: canned", "userID", userID, "group", hit.Group)
		return &RouteResult{
			Replies:     []string{hit.Reply},
			RouteKind:   models.RouteCanned,
			MessageType: models.MessageTypeSimpleCheckin,
		}, nil
	}

	if reply, class, ok := r.cache.LookupMessage(userID, text, reqCtx.Streak); ok {
		r.persistOutbound(userID, reply, "", "")
		r.ledger.Record(userID, models.RouteCached, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
		slog.Debug("router.Route: cache hit", "userID", userID, "class", class)
		return &RouteResult{
			Replies:     []string{reply},
			RouteKind:   models.RouteCached,
			MessageType: models.MessageTypeSimpleCheckin,
		}, nil
	}

	msgType := classify.Classify(text, reqCtx)
	decision := Select(msgType, priorCount, countErr)
	slog.Debug("router.Route: selected", "userID", userID, "messageType", msgType, "routeKind", decision.Kind, "tier", decision.Tier, "priorCount", priorCount)

	// Detach generation from the caller's cancellation so an in-flight run
	// completes and gets recorded even if the caller goes away.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.genTimeout)
	defer cancel()

	switch decision.Kind {
	case models.RouteSingleShot:
		return r.routeSingleShot(genCtx, inbound, msgType, decision, reqCtx)
	default:
		return r.routeMultiTurn(genCtx, inbound, msgType, decision)
	}
}

func (r *Router) routeSingleShot(ctx context.Context, inbound models.Message, msgType models.MessageType, decision Decision, reqCtx models.RouteContext) (*RouteResult, error) {
	cfg, _ := TierConfig(decision.Tier)
	result, err := r.client.SingleShot(ctx, genai.SingleShotRequest{
		SystemPrompt: singleShotSystemPrompt,
		UserText:     inbound.Content,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: single-shot generation: %v", models.ErrRetryableExternal, err)
	}

	r.persistOutbound(inbound.UserID, result.Text, "", "")
	r.cache.StoreReply(models.RouteSingleShot, inbound.UserID, inbound.Content, result.Text, reqCtx.Streak)

	tokens, cost := EstimateUsage(inbound.Content, decision.Tier)
	if result.TokensUsed > 0 {
		tokens = int(result.TokensUsed)
		cost = float64(tokens) / 1000 * cfg.CostPer1K
	}
	r.ledger.Record(inbound.UserID, models.RouteSingleShot, msgType, decision.Tier, tokens, cost)

	return &RouteResult{
		Replies:     []string{result.Text},
		RouteKind:   models.RouteSingleShot,
		MessageType: msgType,
	}, nil
}

func (r *Router) routeMultiTurn(ctx context.Context, inbound models.Message, msgType models.MessageType, decision Decision) (*RouteResult, error) {
	outcome, err := r.threads.AppendAndRun(ctx, inbound.UserID, inbound.Content, msgType)
	if err != nil {
		return nil, err
	}

	// Late thread-id attachment for the inbound record; best effort.
	if err := r.store.AttachMessageThread(inbound.ID, outcome.ThreadID); err != nil {
		slog.Error("router.Route: attaching inbound to thread failed", "error", err, "messageID", inbound.ID)
	}
	for _, reply := range outcome.Replies {
		r.persistOutbound(inbound.UserID, reply, outcome.ThreadID, outcome.RunID)
	}

	tokens, cost := EstimateUsage(inbound.Content, decision.Tier)
	r.ledger.Record(inbound.UserID, models.RouteMultiTurn, msgType, decision.Tier, tokens, cost)

	return &RouteResult{
		Replies:     outcome.Replies,
		RouteKind:   models.RouteMultiTurn,
		MessageType: msgType,
		ThreadID:    outcome.ThreadID,
		RunID:       outcome.RunID,
	}, nil
}

// persistOutbound stores one outbound message. The reply is already in the
// caller's hands at this point, so a store failure is logged rather than
// failing the request after the fact.
func (r *Router) persistOutbound(userID, content, threadID, runID string) {
	msg := models.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Direction: models.DirectionOutgoing,
		Content:   content,
		ThreadID:  threadID,
		RunID:     runID,
		CreatedAt: r.now(),
	}
	if err := r.store.AddMessage(msg); err != nil {
		slog.Error("router: persisting outbound message failed", "error", err, "userID", userID)
	}
}
