// Package store provides storage backends for the Cora router core.
//
// It defines the Store interface over message, conversation-thread,
// usage-ledger, and response-cache records, with in-memory, SQLite, and
// PostgreSQL implementations.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the database connection string. For SQLite this is a file path,
	// for Postgres a connection URL.
	DSN string
}

// Option configures store implementations.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// Store is the persistence contract used by the router, thread lifecycle
// manager, fingerprint cache, and usage ledger.
type Store interface {
	// AddMessage appends a message record. Messages are never deleted by this
	// subsystem and never mutated after creation except via AttachMessageThread.
	AddMessage(m models.Message) error
	// AttachMessageThread attaches a late-arriving external thread id to a
	// stored message (optimistic-UI reconciliation).
	AttachMessageThread(messageID, threadID string) error
	// ListThreadMessages returns all messages linked to the external thread id
	// in chronological order.
	ListThreadMessages(threadID string) ([]models.Message, error)
	// CountUserMessages returns the number of inbound messages stored for the
	// user. This drives the relationship-building window.
	CountUserMessages(userID string) (int, error)
	// CountThreadMessages returns the number of messages linked to the thread.
	CountThreadMessages(threadID string) (int, error)

	// GetActiveThread returns the user's active conversation thread, or
	// models.ErrNoActiveThread when none exists.
	GetActiveThread(userID string) (*models.ConversationThread, error)
	// AddActiveThread inserts a new active thread record. It fails if the user
	// already has an active thread.
	AddActiveThread(t models.ConversationThread) error
	// SwapActiveThread atomically archives the user's thread identified by
	// oldExternalID and activates newThread. On failure neither change is
	// applied and the old thread remains active.
	SwapActiveThread(userID, oldExternalID string, newThread models.ConversationThread) error

	// AddRoutingDecision appends one usage-ledger entry.
	AddRoutingDecision(d models.RoutingDecision) error
	// ListRoutingDecisionsBetween returns ledger entries with
	// from <= created_at < to, in insertion order.
	ListRoutingDecisionsBetween(from, to time.Time) ([]models.RoutingDecision, error)

	// GetCacheEntry returns the cache entry for a fingerprint, expired or not,
	// or nil when absent. Expiry filtering is the caller's concern.
	GetCacheEntry(fingerprint string) (*models.CacheEntry, error)
	// PutCacheEntry inserts or overwrites a cache entry (last writer wins).
	PutCacheEntry(e models.CacheEntry) error
	// TouchCacheEntry increments the hit counter for a fingerprint.
	TouchCacheEntry(fingerprint string) error
	// DeleteExpiredCacheEntries removes entries whose expiry is at or before
	// now and reports how many were deleted.
	DeleteExpiredCacheEntries(now time.Time) (int, error)

	// Close releases any underlying resources.
	Close() error
}

// InMemoryStore is a concurrency-safe in-memory Store used for tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu        sync.Mutex
	messages  []models.Message
	threads   []models.ConversationThread
	decisions []models.RoutingDecision
	cache     map[string]models.CacheEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cache: make(map[string]models.CacheEntry)}
}

// AddMessage appends a message record.
func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

// AttachMessageThread attaches a thread id to a stored message.
func (s *InMemoryStore) AttachMessageThread(messageID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].ThreadID = threadID
			return nil
		}
	}
	return nil
}

// ListThreadMessages returns the thread's messages in chronological order.
func (s *InMemoryStore) ListThreadMessages(threadID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CountUserMessages counts inbound messages for the user.
func (s *InMemoryStore) CountUserMessages(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.UserID == userID && m.Direction == models.DirectionIncoming {
			n++
		}
	}
	return n, nil
}

// CountThreadMessages counts messages linked to the thread.
func (s *InMemoryStore) CountThreadMessages(threadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			n++
		}
	}
	return n, nil
}

// GetActiveThread returns the user's active thread or models.ErrNoActiveThread.
func (s *InMemoryStore) GetActiveThread(userID string) (*models.ConversationThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.threads {
		if s.threads[i].UserID == userID && s.threads[i].Status == models.ThreadStatusActive {
			t := s.threads[i]
			return &t, nil
		}
	}
	return nil, models.ErrNoActiveThread
}

// AddActiveThread inserts a new active thread, enforcing one active per user.
func (s *InMemoryStore) AddActiveThread(t models.ConversationThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.threads {
		if s.threads[i].UserID == t.UserID && s.threads[i].Status == models.ThreadStatusActive {
			return fmt.Errorf("%w: user %s", ErrActiveThreadExists, t.UserID)
		}
	}
	t.Status = models.ThreadStatusActive
	s.threads = append(s.threads, t)
	return nil
}

// SwapActiveThread archives the old thread and activates the new one.
func (s *InMemoryStore) SwapActiveThread(userID, oldExternalID string, newThread models.ConversationThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldIdx := -1
	for i := range s.threads {
		if s.threads[i].UserID == userID && s.threads[i].ExternalID == oldExternalID && s.threads[i].Status == models.ThreadStatusActive {
			oldIdx = i
			break
		}
	}
	if oldIdx < 0 {
		return models.ErrNoActiveThread
	}
	s.threads[oldIdx].Status = models.ThreadStatusArchived
	newThread.UserID = userID
	newThread.Status = models.ThreadStatusActive
	s.threads = append(s.threads, newThread)
	return nil
}

// AddRoutingDecision appends one ledger entry.
func (s *InMemoryStore) AddRoutingDecision(d models.RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

// ListRoutingDecisionsBetween returns ledger entries in [from, to).
func (s *InMemoryStore) ListRoutingDecisionsBetween(from, to time.Time) ([]models.RoutingDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RoutingDecision
	for _, d := range s.decisions {
		if !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// GetCacheEntry returns the entry for a fingerprint or nil.
func (s *InMemoryStore) GetCacheEntry(fingerprint string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[fingerprint]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// PutCacheEntry inserts or overwrites a cache entry.
func (s *InMemoryStore) PutCacheEntry(e models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[e.Fingerprint] = e
	return nil
}

// TouchCacheEntry increments the hit counter for a fingerprint.
func (s *InMemoryStore) TouchCacheEntry(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[fingerprint]; ok {
		e.HitCount++
		s.cache[fingerprint] = e
	}
	return nil
}

// DeleteExpiredCacheEntries removes expired entries.
func (s *InMemoryStore) DeleteExpiredCacheEntries(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, e := range s.cache {
		if e.Expired(now) {
			delete(s.cache, fp)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
