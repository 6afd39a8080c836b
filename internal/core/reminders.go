// ABOUTME: Reminder suppression state machine gating the daily journal reminder
// ABOUTME: Transitions are pure; Reschedule loads, transitions, and saves only on change
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Calendar-day windows for the suppression transitions
const (
	SuppressAfterActiveDays = 3
	ResumeAfterQuietDays    = 2
)

// Reminder kinds emitted to notifiers
const (
	ReminderMeditation = "meditation"
	ReminderJournal    = "journal"
)

// DayActivity is the entry count for one local day
type DayActivity struct {
	Day     string `json:"day"`
	Entries int    `json:"entries"`
}

// NextReminderState applies one transition. recent holds the days before
// today, most recent first. Returns the new state and whether it changed.
func NextReminderState(st models.ReminderState, recent []DayActivity, now time.Time) (models.ReminderState, bool) {
	if !st.Suppressed() {
		if len(recent) < SuppressAfterActiveDays {
			return st, false
		}
		for _, d := range recent[:SuppressAfterActiveDays] {
			if d.Entries == 0 {
				return st, false
			}
		}
		since := now.UTC()
		st.JournalSuppressedSince = &since
		return st, true
	}

	if len(recent) < ResumeAfterQuietDays {
		return st, false
	}
	for _, d := range recent[:ResumeAfterQuietDays] {
		if d.Entries > 0 {
			return st, false
		}
	}
	st.JournalSuppressedSince = nil
	return st, true
}

// Plan decides today's reminders. The meditation reminder is always scheduled.
func Plan(st models.ReminderState, todayEntries int) models.ReminderPlan {
	plan := models.ReminderPlan{MeditationAt: st.MeditationTime}
	switch {
	case !st.JournalEnabled:
		plan.Reason = "journal reminder disabled"
	case st.Suppressed():
		plan.Reason = "suppressed: consistent daily journaling"
	case todayEntries > 0:
		plan.Reason = "already journaled today"
	default:
		plan.JournalReminder = true
		plan.JournalAt = st.JournalTime
	}
	return plan
}

// DueReminders returns the reminder kinds scheduled for the minute of now
func DueReminders(plan models.ReminderPlan, now time.Time) []string {
	hm := now.Format("15:04")
	var due []string
	if plan.MeditationAt == hm {
		due = append(due, ReminderMeditation)
	}
	if plan.JournalReminder && plan.JournalAt == hm {
		due = append(due, ReminderJournal)
	}
	return due
}

// RescheduleResult is the outcome of one reschedule cycle
type RescheduleResult struct {
	State        models.ReminderState `json:"state"`
	Plan         models.ReminderPlan  `json:"plan"`
	Transitioned bool                 `json:"transitioned"`
	Activity     []DayActivity        `json:"activity"`
}

// Reminders runs the reschedule cycle against the stores
type Reminders struct {
	deps Deps
	log  *logging.Logger
}

// NewReminders creates a Reminders service
func NewReminders(d Deps) *Reminders {
	d = d.withDefaults()
	return &Reminders{deps: d, log: d.Logger.Named("reminders")}
}

// State loads the stored state, or the default ACTIVE state for a new user
func (r *Reminders) State(ctx context.Context, userID string) (models.ReminderState, bool, error) {
	st, err := r.deps.Reminders.Get(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DefaultReminderState(userID), true, nil
	}
	if err != nil {
		return models.ReminderState{}, false, err
	}
	return st, false, nil
}

// Reschedule runs once per app foreground
func (r *Reminders) Reschedule(ctx context.Context, userID string) (RescheduleResult, error) {
	st, fresh, err := r.State(ctx, userID)
	if err != nil {
		return RescheduleResult{}, err
	}

	now := r.deps.Now()
	cal := r.deps.Calendar
	today := cal.DayKey(now)
	days := cal.PreviousDays(now, SuppressAfterActiveDays)

	counts, err := r.deps.Entries.EntryDays(ctx, userID, append([]string{today}, days...))
	if err != nil {
		return RescheduleResult{}, err
	}
	activity := make([]DayActivity, len(days))
	for i, d := range days {
		activity[i] = DayActivity{Day: d, Entries: counts[d]}
	}

	next, changed := NextReminderState(st, activity, now)
	if changed || fresh {
		next.UpdatedAt = now.UTC()
		if err := r.deps.Reminders.Save(ctx, next); err != nil {
			return RescheduleResult{}, err
		}
	}
	if changed {
		r.log.Info("journal reminder transitioned", "user", userID, "suppressed", next.Suppressed())
	}

	return RescheduleResult{
		State:        next,
		Plan:         Plan(next, counts[today]),
		Transitioned: changed,
		Activity:     activity,
	}, nil
}

// ScheduleUpdate changes reminder settings; nil fields are left alone
type ScheduleUpdate struct {
	MeditationTime *string
	JournalTime    *string
	JournalEnabled *bool
}

// SetSchedule validates and saves new reminder settings
func (r *Reminders) SetSchedule(ctx context.Context, userID string, u ScheduleUpdate) (models.ReminderState, error) {
	st, _, err := r.State(ctx, userID)
	if err != nil {
		return models.ReminderState{}, err
	}
	if u.MeditationTime != nil {
		if err := validClock(*u.MeditationTime); err != nil {
			return models.ReminderState{}, err
		}
		st.MeditationTime = *u.MeditationTime
	}
	if u.JournalTime != nil {
		if err := validClock(*u.JournalTime); err != nil {
			return models.ReminderState{}, err
		}
		st.JournalTime = *u.JournalTime
	}
	if u.JournalEnabled != nil {
		st.JournalEnabled = *u.JournalEnabled
	}
	st.UpdatedAt = r.deps.Now().UTC()
	if err := r.deps.Reminders.Save(ctx, st); err != nil {
		return models.ReminderState{}, err
	}
	return st, nil
}

func validClock(s string) error {
	if _, err := time.Parse("15:04", s); err != nil || len(s) != 5 {
		return fmt.Errorf("%w: time %q, want HH:MM", ErrInvalidInput, s)
	}
	return nil
}
