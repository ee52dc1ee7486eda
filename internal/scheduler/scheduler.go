// Package scheduler fires the automated curation run on the configured
// daily or weekly schedule.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/TobiSchelling/curator/internal/models"
)

// Next returns the first run time strictly after after. Weekly schedules with
// an unknown day fall back to daily.
func Next(s models.Schedule, after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())

	if s.Frequency == models.FrequencyWeekly {
		if day := models.ParseWeekday(s.Day); day >= 0 {
			shift := (day - int(candidate.Weekday()) + 7) % 7
			candidate = candidate.AddDate(0, 0, shift)
			if !candidate.After(after) {
				candidate = candidate.AddDate(0, 0, 7)
			}
			return candidate
		}
	}

	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// ScheduleSource supplies the current schedule.
type ScheduleSource interface {
	Get(ctx context.Context) (models.Settings, error)
}

// Job is one automated run.
type Job func(ctx context.Context) error

// Runner waits for each scheduled time and runs the job on a single
// goroutine, so runs never overlap.
type Runner struct {
	settings ScheduleSource
	job      Job

	// Recheck bounds how long the runner sleeps before re-reading the
	// schedule, so configuration changes take effect.
	Recheck time.Duration
	Now     func() time.Time
	After   func(time.Duration) <-chan time.Time
}

// NewRunner creates a runner.
func NewRunner(src ScheduleSource, job Job) *Runner {
	return &Runner{
		settings: src,
		job:      job,
		Recheck:  time.Minute,
		Now:      time.Now,
		After:    time.After,
	}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var planned time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg, err := r.settings.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Scheduler could not read settings: %v", err)
		} else {
			now := r.Now()
			if planned.IsZero() {
				planned = Next(cfg.Schedule, now)
				log.Printf("Next scheduled run at %s", planned.Format(time.RFC1123))
			}
			if !now.Before(planned) {
				log.Println("Scheduled run starting")
				if err := r.job(ctx); err != nil {
					log.Printf("Scheduled run failed: %v", err)
				}
				planned = time.Time{}
				continue
			}
			// Re-plan if the schedule moved the next run.
			if next := Next(cfg.Schedule, now); !next.Equal(planned) {
				planned = next
				log.Printf("Schedule changed, next run at %s", planned.Format(time.RFC1123))
			}
		}

		wait := r.Recheck
		if !planned.IsZero() {
			if d := planned.Sub(r.Now()); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.After(wait):
		}
	}
}
