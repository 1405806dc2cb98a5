// Package scheduler provides cron-based background maintenance for the Cora
// router core. Its one standing duty is the periodic sweep of expired
// fingerprint-cache entries; correctness never depends on it, since cache
// lookups check expiry themselves.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs maintenance at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// SweepFunc deletes expired entries and reports how many were removed.
type SweepFunc func() (int, error)

// Scheduler runs background maintenance jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a scheduler. Jobs panicking are recovered
// rather than taking the process down.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// ScheduleCacheSweep registers the cache sweep on the given 5-field cron
// expression. Sweep failures are logged; the next run retries.
func (s *Scheduler) ScheduleCacheSweep(expr string, sweep SweepFunc) error {
	return s.AddJob(expr, func() {
		deleted, err := sweep()
		if err != nil {
			slog.Error("scheduler: cache sweep failed", "error", err)
			return
		}
		slog.Debug("scheduler: cache sweep completed", "deleted", deleted)
	})
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
