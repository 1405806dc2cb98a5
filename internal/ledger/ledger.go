// Package ledger implements the append-only usage ledger.
//
// Every routing decision is recorded with token and cost estimates. Writes
// must never block or fail the reply path; aggregation happens purely at
// read time over the append-only log.
package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
)

// KindStats aggregates the decisions of one route kind.
type KindStats struct {
	Count         int     `json:"count"`
	Tokens        int     `json:"tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// DailyReport is the read-time aggregation of one UTC day of decisions.
type DailyReport struct {
	Date          string                         `json:"date"`
	ByRoute       map[models.RouteKind]KindStats `json:"by_route"`
	TotalCount    int                            `json:"total_count"`
	TotalTokens   int                            `json:"total_tokens"`
	TotalCost     float64                        `json:"total_cost"`
	// LowCostShare is the fraction of decisions answered without a
	// generation call (canned plus cached).
	LowCostShare float64 `json:"low_cost_share"`
}

// Opts holds configuration options for the ledger.
type Opts struct {
	Now func() time.Time
}

// Option configures the ledger.
type Option func(*Opts)

// WithClock injects the time source used for decision timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Ledger records routing decisions and serves aggregations.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// New creates a ledger over the given store.
func New(s store.Store, opts ...Option) *Ledger {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Ledger{store: s, now: cfg.Now}
}

// Record appends one decision. A store failure is logged and swallowed so a
// ledger outage never blocks the reply path.
func (l *Ledger) Record(userID string, kind models.RouteKind, msgType models.MessageType, tier models.ModelTier, tokens int, estimatedCost float64) {
	d := models.RoutingDecision{
		ID:            uuid.NewString(),
		UserID:        userID,
		RouteKind:     kind,
		MessageType:   msgType,
		ModelTier:     tier,
		Tokens:        tokens,
		EstimatedCost: estimatedCost,
		CreatedAt:     l.now(),
	}
	if err := l.store.AddRoutingDecision(d); err != nil {
		slog.Error("ledger.Record failed", "error", err, "userID", userID, "routeKind", kind)
		return
	}
	slog.Debug("ledger.Record", "userID", userID, "routeKind", kind, "messageType", msgType, "tier", tier, "tokens", tokens)
}

// DailyReport aggregates the given UTC day's decisions by route kind.
func (l *Ledger) DailyReport(date time.Time) (*DailyReport, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	decisions, err := l.store.ListRoutingDecisionsBetween(day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("loading decisions for %s: %w", day.Format("2006-01-02"), err)
	}

	report := &DailyReport{
		Date:    day.Format("2006-01-02"),
		ByRoute: make(map[models.RouteKind]KindStats),
	}
	lowCost := 0
	for _, d := range decisions {
		stats := report.ByRoute[d.RouteKind]
		stats.Count++
		stats.Tokens += d.Tokens
		stats.EstimatedCost += d.EstimatedCost
		report.ByRoute[d.RouteKind] = stats

		report.TotalCount++
		report.TotalTokens += d.Tokens
		report.TotalCost += d.EstimatedCost
		if d.RouteKind == models.RouteCanned || d.RouteKind == models.RouteCached {
			lowCost++
		}
	}
	if report.TotalCount > 0 {
		report.LowCostShare = float64(lowCost) / float64(report.TotalCount)
	}
	return report, nil
}
