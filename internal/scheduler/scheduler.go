// ABOUTME: Cron jobs for the serve daemon: the end-of-month rollup batch and the reminder tick
// ABOUTME: Jobs run in the calendar's time zone; overlapping runs are skipped, panics recovered
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/notify"
)

// Scheduler owns the cron runner
type Scheduler struct {
	pipeline *core.Pipeline
	notifier notify.Notifier
	log      *logging.Logger
	cron     *cron.Cron
	timeout  time.Duration
}

// New creates a scheduler; call Register then Start
func New(pipeline *core.Pipeline, notifier notify.Notifier, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Named("scheduler")
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		pipeline: pipeline,
		notifier: notifier,
		log:      log,
		cron: cron.New(
			cron.WithLocation(pipeline.Deps().Calendar.Loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: 10 * time.Minute,
	}
}

// Register adds the monthly batch and reminder jobs
func (s *Scheduler) Register(monthlySpec, reminderSpec string) error {
	if _, err := s.cron.AddFunc(monthlySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, _, err := s.RunMonthly(ctx); err != nil {
			s.log.Error("monthly batch failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("monthly schedule %q: %w", monthlySpec, err)
	}

	if _, err := s.cron.AddFunc(reminderSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.ReminderTick(ctx); err != nil {
			s.log.Warn("reminder tick had failures", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("reminder schedule %q: %w", reminderSpec, err)
	}
	return nil
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts new runs and waits for running jobs or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunMonthly runs the batch on the last day of a month, and again on the 1st
// for the month just ended. Other days are a no-op and report ran=false.
func (s *Scheduler) RunMonthly(ctx context.Context) (core.BatchReport, bool, error) {
	d := s.pipeline.Deps()
	now := d.Now().In(d.Calendar.Loc)

	var day time.Time
	switch {
	case isLastDayOfMonth(now):
		day = now
	case now.Day() == 1:
		day = now.AddDate(0, 0, -1)
	default:
		return core.BatchReport{}, false, nil
	}

	report, err := s.pipeline.Rollups.RunMonthlyBatch(ctx, day)
	return report, true, err
}

// ReminderTick re-evaluates every user's reminder state and delivers what is due this minute
func (s *Scheduler) ReminderTick(ctx context.Context) (int, error) {
	d := s.pipeline.Deps()
	users, err := d.Users.List(ctx)
	if err != nil {
		return 0, err
	}
	now := d.Now().In(d.Calendar.Loc)

	var sent int
	var errs []error
	for _, userID := range users {
		res, err := s.pipeline.Reminders.Reschedule(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reschedule %s: %w", userID, err))
			continue
		}
		for _, kind := range core.DueReminders(res.Plan, now) {
			r := notify.Reminder{UserID: userID, Kind: kind, At: now.Format("15:04")}
			if err := s.notifier.Notify(ctx, r); err != nil {
				errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
				continue
			}
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

// cronLogger adapts the structured logger to cron's logging interface
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
