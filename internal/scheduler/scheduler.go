// Package scheduler provides periodic job scheduling for CarePipe.
//
// It wraps robfig/cron so owners (such as the session controller's
// watchdog) can register fixed-interval jobs and remove them again when
// their session terminates.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a scheduler.
func NewScheduler() *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddEvery schedules a task to run on a fixed interval.
// It returns the job ID so the caller can remove the job later.
func (s *Scheduler) AddEvery(interval time.Duration, task func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %v", interval)
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval), task)
}

// Remove cancels a scheduled job by ID.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
