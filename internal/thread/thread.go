// Package thread implements the conversation-thread lifecycle manager.
//
// It owns the mapping from user to active external thread: lazy creation,
// serialization of same-user operations, and the pruning policy that caps
// thread context by archiving the old thread and reseeding a new one with
// the most recent messages. Pruning is compaction, not summarization;
// dropped history is simply gone.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/genai"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
)

// DefaultPruneCeiling is the thread message count above which pruning
// triggers, and also the number of most recent messages replayed into the
// replacement thread.
const DefaultPruneCeiling = 20

// RunOutcome is the result of one append-and-run cycle: the thread that was
// used, the run that produced the replies, and the reply texts themselves.
type RunOutcome struct {
	ThreadID string
	RunID    string
	Replies  []string
}

// Opts holds configuration options for the thread manager.
type Opts struct {
	PruneCeiling int
	Now          func() time.Time
}

// Option configures the thread manager.
type Option func(*Opts)

// WithPruneCeiling overrides the pruning threshold. Tests use small values.
func WithPruneCeiling(n int) Option {
	return func(o *Opts) {
		o.PruneCeiling = n
	}
}

// WithClock injects the time source used for thread record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Manager serializes thread operations per user and talks to the external
// dialogue service for thread creation, message replay, and generation.
type Manager struct {
	store        store.Store
	client       genai.ClientInterface
	pruneCeiling int
	now          func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewManager creates a thread lifecycle manager.
func NewManager(s store.Store, client genai.ClientInterface, opts ...Option) *Manager {
	cfg := Opts{
		PruneCeiling: DefaultPruneCeiling,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		store:        s,
		client:       client,
		pruneCeiling: cfg.PruneCeiling,
		now:          cfg.Now,
		userLocks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing operations for one user. Locks are
// per user, so distinct users proceed fully in parallel.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}

// GetOrCreateActiveThread returns the user's active external thread id,
// creating one on the dialogue service if none exists. Safe under concurrent
// invocation for the same user; a second concurrent caller observes the
// thread the first one created.
func (m *Manager) GetOrCreateActiveThread(ctx context.Context, userID string) (string, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.getOrCreateLocked(ctx, userID)
}

func (m *Manager) getOrCreateLocked(ctx context.Context, userID string) (string, error) {
	t, err := m.store.GetActiveThread(userID)
	if err == nil {
		return t.ExternalID, nil
	}
	if !errors.Is(err, models.ErrNoActiveThread) {
		return "", fmt.Errorf("loading active thread for %s: %w", userID, err)
	}

	externalID, err := m.client.CreateThread(ctx)
	if err != nil {
		slog.Error("thread.getOrCreate: external create failed", "error", err, "userID", userID)
		return "", fmt.Errorf("%w: thread create: %v", models.ErrRetryableExternal, err)
	}
	// Only persisted as active once the external create succeeded; a failed
	// create leaves no local record behind.
	err = m.store.AddActiveThread(models.ConversationThread{
		UserID:     userID,
		ExternalID: externalID,
		Status:     models.ThreadStatusActive,
		CreatedAt:  m.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrActiveThreadExists) {
			if existing, getErr := m.store.GetActiveThread(userID); getErr == nil {
				return existing.ExternalID, nil
			}
		}
		return "", fmt.Errorf("persisting active thread for %s: %w", userID, err)
	}
	slog.Debug("thread.getOrCreate: created thread", "userID", userID, "threadID", externalID)
	return externalID, nil
}

// AppendAndRun forwards the user message to the active thread, triggers
// generation, and returns the replies tagged with the run id that produced
// them. Pruning is evaluated before the new message is appended. Tool
// definitions are attached only for message types that may call them, since
// their presence consumes input budget even unused.
func (m *Manager) AppendAndRun(ctx context.Context, userID, text string, msgType models.MessageType) (*RunOutcome, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	threadID, err := m.getOrCreateLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	threadID, err = m.pruneIfNeededLocked(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	if err := m.client.AppendMessage(ctx, threadID, "user", text); err != nil {
		return nil, fmt.Errorf("%w: append message: %v", models.ErrRetryableExternal, err)
	}

	result, err := m.client.RunThread(ctx, threadID, genai.RunOptions{
		IncludeTools:     needsTools(msgType),
		ResponseTypeHint: string(msgType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: run: %v", models.ErrRetryableExternal, err)
	}
	return &RunOutcome{ThreadID: threadID, RunID: result.RunID, Replies: result.Messages}, nil
}

// PruneIfNeeded applies the pruning policy for the user's given thread and
// returns the thread id to use afterwards. Exposed for maintenance callers;
// AppendAndRun invokes the same logic itself.
func (m *Manager) PruneIfNeeded(ctx context.Context, userID, threadID string) (string, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.pruneIfNeededLocked(ctx, userID, threadID)
}

// pruneIfNeededLocked replaces an over-ceiling thread with a fresh external
// thread seeded with the most recent ceiling messages in their original
// chronological order. The archive-old/activate-new transition is a single
// atomic store call; on any failure the old thread stays active and the
// error is retryable.
func (m *Manager) pruneIfNeededLocked(ctx context.Context, userID, threadID string) (string, error) {
	count, err := m.store.CountThreadMessages(threadID)
	if err != nil {
		return "", fmt.Errorf("counting thread messages: %w", err)
	}
	if count <= m.pruneCeiling {
		return threadID, nil
	}

	slog.Info("thread.prune: ceiling exceeded, compacting", "userID", userID, "threadID", threadID, "count", count)

	newID, err := m.client.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: replacement thread create: %v", models.ErrPruneFailed, err)
	}

	msgs, err := m.store.ListThreadMessages(threadID)
	if err != nil {
		return "", fmt.Errorf("%w: loading replay messages: %v", models.ErrPruneFailed, err)
	}
	if len(msgs) > m.pruneCeiling {
		msgs = msgs[len(msgs)-m.pruneCeiling:]
	}
	for _, msg := range msgs {
		role := "user"
		if msg.Direction == models.DirectionOutgoing {
			role = "assistant"
		}
		if err := m.client.AppendMessage(ctx, newID, role, msg.Content); err != nil {
			return "", fmt.Errorf("%w: replaying message %s: %v", models.ErrPruneFailed, msg.ID, err)
		}
	}

	err = m.store.SwapActiveThread(userID, threadID, models.ConversationThread{
		UserID:     userID,
		ExternalID: newID,
		Status:     models.ThreadStatusActive,
		CreatedAt:  m.now(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: activating replacement thread: %v", models.ErrPruneFailed, err)
	}

	slog.Info("thread.prune: compacted", "userID", userID, "oldThreadID", threadID, "newThreadID", newID, "replayed", len(msgs))
	return newID, nil
}

// needsTools reports whether the message type may invoke function tools.
func needsTools(mt models.MessageType) bool {
	return mt == models.MessageTypeGoalSetting || mt == models.MessageTypeAccountability
}
