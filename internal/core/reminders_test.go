// ABOUTME: Tests for the journal reminder suppression state machine and daily plan
// ABOUTME: Covers every transition pattern plus persistence through Reschedule
package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/models"
)

func activity(counts ...int) []DayActivity {
	out := make([]DayActivity, len(counts))
	for i, n := range counts {
		out[i] = DayActivity{Day: time.Date(2026, 3, 3-i, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), Entries: n}
	}
	return out
}

func TestNextReminderState(t *testing.T) {
	since := fixedNow.Add(-96 * time.Hour)
	active := models.DefaultReminderState("u1")
	suppressed := active
	suppressed.JournalSuppressedSince = &since

	tests := []struct {
		name           string
		state          models.ReminderState
		recent         []DayActivity
		wantSuppressed bool
		wantChanged    bool
	}{
		{"three active days suppress", active, activity(1, 2, 1), true, true},
		{"gap in three days stays active", active, activity(1, 0, 1), false, false},
		{"only two days of history", active, activity(1, 1), false, false},
		{"two quiet days resume", suppressed, activity(0, 0, 3), false, true},
		{"one quiet day stays suppressed", suppressed, activity(0, 1, 0), true, false},
		{"still journaling stays suppressed", suppressed, activity(1, 1, 1), true, false},
		{"no history stays suppressed", suppressed, nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := NextReminderState(tt.state, tt.recent, fixedNow)
			assert.Equal(t, tt.wantSuppressed, got.Suppressed())
			assert.Equal(t, tt.wantChanged, changed)
			if tt.wantChanged && tt.wantSuppressed {
				assert.Equal(t, fixedNow, *got.JournalSuppressedSince)
			}
			if !tt.wantChanged && tt.state.Suppressed() {
				assert.Equal(t, since, *got.JournalSuppressedSince)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	st := models.DefaultReminderState("u1")

	p := Plan(st, 0)
	assert.True(t, p.JournalReminder)
	assert.Equal(t, "20:00", p.JournalAt)
	assert.Equal(t, "07:00", p.MeditationAt)

	p = Plan(st, 1)
	assert.False(t, p.JournalReminder)
	assert.Equal(t, "07:00", p.MeditationAt)
	assert.Contains(t, p.Reason, "already journaled")

	now := fixedNow
	st.JournalSuppressedSince = &now
	p = Plan(st, 0)
	assert.False(t, p.JournalReminder)
	assert.Equal(t, "07:00", p.MeditationAt)

	st = models.DefaultReminderState("u1")
	st.JournalEnabled = false
	p = Plan(st, 0)
	assert.False(t, p.JournalReminder)
	assert.Equal(t, "07:00", p.MeditationAt)
}

func TestDueReminders(t *testing.T) {
	plan := models.ReminderPlan{MeditationAt: "07:00", JournalAt: "07:00", JournalReminder: true}
	at := time.Date(2026, 3, 4, 7, 0, 30, 0, time.UTC)
	assert.Equal(t, []string{ReminderMeditation, ReminderJournal}, DueReminders(plan, at))

	plan.JournalReminder = false
	assert.Equal(t, []string{ReminderMeditation}, DueReminders(plan, at))
	assert.Empty(t, DueReminders(plan, at.Add(time.Minute)))
}

func TestReschedule_SuppressesThenResumes(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	r := NewReminders(env.deps)

	res, err := r.Reschedule(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)
	assert.True(t, res.Plan.JournalReminder)
	_, err = env.store.Reminders.Get(ctx, "u1")
	require.NoError(t, err, "fresh state is persisted")

	for _, day := range []int{1, 2, 3} {
		env.entryAt(t, "u1", "00", time.Date(2026, 3, day, 20, 0, 0, 0, time.UTC), true)
	}
	res, err = r.Reschedule(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.True(t, res.State.Suppressed())
	assert.False(t, res.Plan.JournalReminder)
	assert.Equal(t, "07:00", res.Plan.MeditationAt)

	stored, err := env.store.Reminders.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.Suppressed())

	res, err = r.Reschedule(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Transitioned)

	// two quiet days later
	env.now = time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)
	res, err = r.Reschedule(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.False(t, res.State.Suppressed())
	assert.True(t, res.Plan.JournalReminder)
}

func TestReschedule_SameDayEntrySkipsJournalReminder(t *testing.T) {
	env := newEnv(t)
	env.entryAt(t, "u1", "00", fixedNow.Add(-time.Hour), true)

	res, err := NewReminders(env.deps).Reschedule(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, res.State.Suppressed())
	assert.False(t, res.Plan.JournalReminder)
	assert.Equal(t, "07:00", res.Plan.MeditationAt)
}

func TestSetSchedule(t *testing.T) {
	env := newEnv(t)
	r := NewReminders(env.deps)
	med, journal, off := "06:30", "21:15", false

	st, err := r.SetSchedule(context.Background(), "u1", ScheduleUpdate{MeditationTime: &med, JournalTime: &journal, JournalEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, "06:30", st.MeditationTime)
	assert.Equal(t, "21:15", st.JournalTime)
	assert.False(t, st.JournalEnabled)

	for _, bad := range []string{"7:00", "25:00", "noon", "07:60"} {
		_, err := r.SetSchedule(context.Background(), "u1", ScheduleUpdate{MeditationTime: &bad})
		assert.Error(t, err, bad)
	}
}
