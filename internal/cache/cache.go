// Package cache implements the fingerprint cache, a best-effort reply
// accelerator in front of the generation paths.
//
// Fingerprints are stable sha256 digests over normalized message text plus a
// coarse context bucket. The cache never blocks a request: any store error on
// lookup degrades to a miss, and store failures on write are logged and
// dropped.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
)

// Default TTLs per cache class.
const (
	DefaultExactTTL   = time.Hour
	DefaultGenericTTL = 7 * 24 * time.Hour
)

// Opts holds configuration options for the cache.
type Opts struct {
	ExactTTL   time.Duration
	GenericTTL time.Duration
	Now        func() time.Time
}

// Option configures the cache.
type Option func(*Opts)

// WithExactTTL overrides the TTL for user-specific exact-text entries.
func WithExactTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.ExactTTL = d
	}
}

// WithGenericTTL overrides the TTL for text-only generic entries.
func WithGenericTTL(d time.Duration) Option {
	return func(o *Opts) {
		o.GenericTTL = d
	}
}

// WithClock injects the time source. Tests freeze it.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Cache is the fingerprint cache over a persistence backend.
type Cache struct {
	store      store.Store
	exactTTL   time.Duration
	genericTTL time.Duration
	now        func() time.Time
}

// New creates a cache backed by the given store.
func New(s store.Store, opts ...Option) *Cache {
	cfg := Opts{
		ExactTTL:   DefaultExactTTL,
		GenericTTL: DefaultGenericTTL,
		Now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		store:      s,
		exactTTL:   cfg.ExactTTL,
		genericTTL: cfg.GenericTTL,
		now:        cfg.Now,
	}
}

// NormalizeText lowercases and collapses whitespace so trivially different
// spellings share a fingerprint.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ExactFingerprint is the user-bound key: user id, normalized text, and the
// streak band.
func ExactFingerprint(userID, text string, streak int) string {
	return digest("exact|" + userID + "|" + NormalizeText(text) + "|" + models.StreakBand(streak))
}

// GenericFingerprint is the text-only key shared across users.
func GenericFingerprint(text string) string {
	return digest("generic|" + NormalizeText(text))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached reply for the fingerprint, or a miss. Expired
// entries and store errors both count as misses; a hit bumps the entry's hit
// counter best-effort.
func (c *Cache) Lookup(fingerprint string) (string, bool) {
	entry, err := c.store.GetCacheEntry(fingerprint)
	if err != nil {
		slog.Debug("cache.Lookup: store error, treating as miss", "error", err)
		return "", false
	}
	if entry == nil || entry.Expired(c.now()) {
		return "", false
	}
	if err := c.store.TouchCacheEntry(fingerprint); err != nil {
		slog.Debug("cache.Lookup: hit counter bump failed", "error", err)
	}
	return entry.Reply, true
}

// LookupMessage checks the exact user-bound key first and falls back to the
// generic key. The returned route class reports which key hit.
func (c *Cache) LookupMessage(userID, text string, streak int) (string, models.CacheClass, bool) {
	if reply, ok := c.Lookup(ExactFingerprint(userID, text, streak)); ok {
		return reply, models.CacheClassExact, true
	}
	if reply, ok := c.Lookup(GenericFingerprint(text)); ok {
		return reply, models.CacheClassGeneric, true
	}
	return "", "", false
}

// StoreReply caches a reply produced by the given route. The TTL class is
// derived from the route kind, never guessed from content: canned replies get
// the long-lived generic key, single-shot replies the short-lived exact key,
// and multi-turn replies are never cached since they depend on thread state
// beyond the coarse bucket. Store failures are logged and dropped.
func (c *Cache) StoreReply(route models.RouteKind, userID, text, reply string, streak int) {
	var entry models.CacheEntry
	now := c.now()

	switch route {
	case models.RouteCanned:
		entry = models.CacheEntry{
			Fingerprint: GenericFingerprint(text),
			Reply:       reply,
			Class:       models.CacheClassGeneric,
			ExpiresAt:   now.Add(c.genericTTL),
			CreatedAt:   now,
		}
	case models.RouteSingleShot:
		entry = models.CacheEntry{
			Fingerprint: ExactFingerprint(userID, text, streak),
			Reply:       reply,
			Class:       models.CacheClassExact,
			ExpiresAt:   now.Add(c.exactTTL),
			CreatedAt:   now,
		}
	default:
		return
	}

	if err := c.store.PutCacheEntry(entry); err != nil {
		slog.Error("cache.StoreReply failed", "error", err, "class", entry.Class)
	}
}

// Sweep deletes expired entries. Intended for a periodic maintenance call;
// correctness does not depend on it since Lookup checks expiry itself.
func (c *Cache) Sweep() (int, error) {
	return c.store.DeleteExpiredCacheEntries(c.now())
}
