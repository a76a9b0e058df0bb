// Package scheduler provides scheduling logic for AtendeBot.
//
// It allows housekeeping jobs (menu cache refresh, daily analytics rollup,
// session expiry) to be scheduled using cron expressions.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddDailyJob schedules a task for a fixed wall-clock hour every day.
// If the hour has already passed today, cron fires it the next day.
func (s *Scheduler) AddDailyJob(hour int, task func()) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour %d: must be 0-23", hour)
	}
	return s.AddJob(fmt.Sprintf("0 %d * * *", hour), task)
}

// AddIntervalJob schedules a task every n minutes.
func (s *Scheduler) AddIntervalJob(minutes int, task func()) error {
	if minutes <= 0 || minutes > 59 {
		return fmt.Errorf("invalid interval %d: must be 1-59 minutes", minutes)
	}
	return s.AddJob(fmt.Sprintf("*/%d * * * *", minutes), task)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
