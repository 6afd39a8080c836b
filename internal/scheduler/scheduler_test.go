// ABOUTME: Tests for the reminder tick and month-end batch gating
// ABOUTME: Moves the fixture clock instead of waiting on cron
package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/core/coretest"
	"github.com/harper/sitjournal/internal/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	got  []notify.Reminder
	fail bool
}

func (n *recordingNotifier) Notify(_ context.Context, r notify.Reminder) error {
	if n.fail {
		return errors.New("delivery failed")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, r)
	return nil
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestReminderTick(t *testing.T) {
	env := coretest.New(t)
	ctx := context.Background()
	_, err := env.Store.Users.GetOrCreate(ctx, "u1", "00")
	require.NoError(t, err)

	rec := &recordingNotifier{}
	s := New(env.Pipeline, rec, nil)

	env.Clock = at(7, 0)
	sent, err := s.ReminderTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, rec.got, 1)
	assert.Equal(t, notify.Reminder{UserID: "u1", Kind: core.ReminderMeditation, At: "07:00"}, rec.got[0])

	env.Clock = at(12, 30)
	sent, err = s.ReminderTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	env.Clock = at(20, 0)
	sent, err = s.ReminderTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, core.ReminderJournal, rec.got[1].Kind)
}

func TestReminderTick_SkipsJournalAfterWriting(t *testing.T) {
	env := coretest.New(t)
	ctx := context.Background()
	env.Entry(t, "u1", "00", at(8, 0), nil)

	rec := &recordingNotifier{}
	s := New(env.Pipeline, rec, nil)

	env.Clock = at(20, 0)
	sent, err := s.ReminderTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, rec.got)
}

func TestReminderTick_CollectsDeliveryErrors(t *testing.T) {
	env := coretest.New(t)
	ctx := context.Background()
	for _, u := range []string{"u1", "u2"} {
		_, err := env.Store.Users.GetOrCreate(ctx, u, "00")
		require.NoError(t, err)
	}

	s := New(env.Pipeline, &recordingNotifier{fail: true}, nil)
	env.Clock = at(7, 0)
	sent, err := s.ReminderTick(ctx)
	assert.Equal(t, 0, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u1")
	assert.Contains(t, err.Error(), "u2")
}

func TestRunMonthly_Gating(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantRan   bool
		wantMonth string
	}{
		{"mid month", time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC), false, ""},
		{"28th of a 31 day month", time.Date(2026, 3, 28, 23, 30, 0, 0, time.UTC), false, ""},
		{"last day", time.Date(2026, 3, 31, 23, 30, 0, 0, time.UTC), true, "2026-03"},
		{"february end", time.Date(2026, 2, 28, 23, 30, 0, 0, time.UTC), true, "2026-02"},
		{"first catches up", time.Date(2026, 4, 1, 23, 30, 0, 0, time.UTC), true, "2026-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := coretest.New(t)
			env.Clock = tt.now
			s := New(env.Pipeline, &recordingNotifier{}, nil)

			report, ran, err := s.RunMonthly(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantRan, ran)
			assert.Equal(t, tt.wantMonth, report.Month)
		})
	}
}

func TestRegister(t *testing.T) {
	env := coretest.New(t)
	s := New(env.Pipeline, nil, nil)

	assert.Error(t, s.Register("not a spec", "* * * * *"))
	assert.Error(t, New(env.Pipeline, nil, nil).Register("30 23 1,28-31 * *", "every minute"))

	require.NoError(t, s.Register("30 23 1,28-31 * *", "* * * * *"))
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
