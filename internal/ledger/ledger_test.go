package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
)

type failingDecisionStore struct {
	store.Store
}

func (f *failingDecisionStore) AddRoutingDecision(d models.RoutingDecision) error {
	return errors.New("ledger backend down")
}

func frozen(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecord_AppendsDecision(t *testing.T) {
	now := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()
	l := New(s, WithClock(frozen(now)))

	l.Record("u1", models.RouteSingleShot, models.MessageTypeSimpleCheckin, models.TierCheap, 200, 0.03)

	decisions, err := s.ListRoutingDecisionsBetween(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListRoutingDecisionsBetween: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	d := decisions[0]
	if d.ID == "" {
		t.Error("expected generated decision id")
	}
	if d.RouteKind != models.RouteSingleShot || d.Tokens != 200 || d.EstimatedCost != 0.03 {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestRecord_StoreFailureSwallowed(t *testing.T) {
	l := New(&failingDecisionStore{Store: store.NewInMemoryStore()})
	// Must not panic or propagate.
	l.Record("u1", models.RouteCanned, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
}

func TestDailyReport_AggregatesByRoute(t *testing.T) {
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()
	l := New(s, WithClock(frozen(day.Add(10 * time.Hour))))

	l.Record("u1", models.RouteCanned, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
	l.Record("u1", models.RouteCached, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
	l.Record("u2", models.RouteSingleShot, models.MessageTypeCelebration, models.TierCheap, 200, 0.03)
	l.Record("u2", models.RouteMultiTurn, models.MessageTypeDeepCoaching, models.TierPremium, 400, 12)

	report, err := l.DailyReport(day.Add(15 * time.Hour))
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}
	if report.Date != "2026-08-23" {
		t.Errorf("unexpected report date %s", report.Date)
	}
	if report.TotalCount != 4 || report.TotalTokens != 600 {
		t.Errorf("unexpected totals: %+v", report)
	}
	if got := report.ByRoute[models.RouteMultiTurn]; got.Count != 1 || got.Tokens != 400 || got.EstimatedCost != 12 {
		t.Errorf("unexpected multi_turn stats: %+v", got)
	}
	if got := report.ByRoute[models.RouteCanned]; got.Count != 1 {
		t.Errorf("unexpected canned stats: %+v", got)
	}
	if math.Abs(report.LowCostShare-0.5) > 1e-9 {
		t.Errorf("expected low-cost share 0.5, got %f", report.LowCostShare)
	}
}

func TestDailyReport_DayBoundaries(t *testing.T) {
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	s := store.NewInMemoryStore()

	// One decision the day before, one the day after; neither counts.
	New(s, WithClock(frozen(day.Add(-time.Second)))).
		Record("u1", models.RouteCanned, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
	New(s, WithClock(frozen(day.Add(24 * time.Hour)))).
		Record("u1", models.RouteCanned, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)
	New(s, WithClock(frozen(day))).
		Record("u1", models.RouteCached, models.MessageTypeSimpleCheckin, models.TierNone, 0, 0)

	report, err := New(s).DailyReport(day)
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}
	if report.TotalCount != 1 {
		t.Errorf("expected only same-day decisions, got %d", report.TotalCount)
	}
	if report.LowCostShare != 1 {
		t.Errorf("expected low-cost share 1, got %f", report.LowCostShare)
	}
}

func TestDailyReport_EmptyDay(t *testing.T) {
	l := New(store.NewInMemoryStore())
	report, err := l.DailyReport(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DailyReport: %v", err)
	}
	if report.TotalCount != 0 || report.LowCostShare != 0 || len(report.ByRoute) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}
