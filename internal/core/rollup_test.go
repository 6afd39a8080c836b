// ABOUTME: Tests for weekly and monthly rollups including the idempotence check
// ABOUTME: A spy on the rollup store counts upserts to prove unchanged windows write nothing
package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/models"
)

const synthesisResponse = `{
  "summary": "A settling week with restless starts.",
  "key_themes": ["restlessness", "patience", "patience"],
  "mood_trend": "Improving ",
  "samatha_trend": "meh",
  "notable_events": ["first full count to ten"],
  "hindrance_frequency": {},
  "techniques_used": []
}`

// monday is the start of fixedNow's week
var monday = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func seedWeek(t *testing.T, env *testEnv, user string, n int) []*models.Entry {
	t.Helper()
	var out []*models.Entry
	for i := 0; i < n; i++ {
		at := monday.Add(time.Duration(i) * 24 * time.Hour)
		out = append(out, env.analyzed(t, user, "02", at,
			signals("02", withMood(3+i%2), withHindrance("losing_count", "tired"))))
	}
	return out
}

func TestGenerateWeekly_TwoEntriesSkips(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond(synthesisResponse)
	seedWeek(t, env, "u1", 2)

	res, err := NewRollups(env.deps).GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)
	assert.Equal(t, RollupSkipped, res.Status)
	assert.Contains(t, res.Reason, "need 3")
	assert.Equal(t, int32(0), env.inf.calls.Load())
	assert.Equal(t, int32(0), env.rollups.upserts.Load())
}

func TestGenerateWeekly_WritesThenIsIdempotent(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond(synthesisResponse)
	entries := seedWeek(t, env, "u1", 3)
	r := NewRollups(env.deps)

	res, err := r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)
	require.Equal(t, RollupWritten, res.Status)
	s := res.Summary
	assert.Equal(t, "2026-03-02", s.DateRangeStart)
	assert.Equal(t, "2026-03-08", s.DateRangeEnd)
	assert.Equal(t, 3, s.EntryCount)
	assert.Len(t, s.EntryIDs, 3)
	assert.True(t, sortedStrings(s.EntryIDs))
	assert.ElementsMatch(t, []string{entries[0].ID, entries[1].ID, entries[2].ID}, s.EntryIDs)
	assert.Equal(t, models.MoodImproving, s.MoodTrend)
	assert.Equal(t, models.SamathaVariable, s.SamathaTrend)
	assert.Equal(t, []string{"restlessness", "patience"}, s.KeyThemes)
	assert.Equal(t, map[string]int{"tired": 3}, s.HindranceFrequency)
	assert.Equal(t, []string{"counting"}, s.TechniquesUsed)
	require.NotNil(t, s.AvgMoodScore)
	assert.InDelta(t, 3.33, *s.AvgMoodScore, 0.001)
	assert.Equal(t, int32(1), env.rollups.upserts.Load())

	again, err := r.GenerateWeekly(context.Background(), "u1", fixedNow.Add(48*time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, RollupSkipped, again.Status)
	assert.Equal(t, "unchanged", again.Reason)
	assert.Equal(t, int32(1), env.rollups.upserts.Load())
	assert.Equal(t, int32(1), env.inf.calls.Load())
}

func TestGenerateWeekly_ChangedSetOverwritesSameRow(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond(synthesisResponse)
	seedWeek(t, env, "u1", 3)
	r := NewRollups(env.deps)

	first, err := r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)

	env.analyzed(t, "u1", "02", monday.Add(4*24*time.Hour), signals("02"))
	second, err := r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)
	require.Equal(t, RollupWritten, second.Status)
	assert.Equal(t, first.Summary.ID, second.Summary.ID)
	assert.Len(t, second.Summary.EntryIDs, 4)

	list, err := env.store.Rollups.List(context.Background(), "u1", models.RollupWeekly, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerateWeekly_ForceRewrites(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond(synthesisResponse)
	seedWeek(t, env, "u1", 3)
	r := NewRollups(env.deps)

	_, err := r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)
	res, err := r.GenerateWeekly(context.Background(), "u1", fixedNow, true)
	require.NoError(t, err)
	assert.Equal(t, RollupWritten, res.Status)
	assert.Equal(t, int32(2), env.rollups.upserts.Load())
}

func TestGenerateWeekly_ExcludesUntrackedAndUnanalyzed(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond(synthesisResponse)
	seedWeek(t, env, "u1", 2)
	env.entryAt(t, "u1", "02", monday.Add(3*24*time.Hour), true)
	untracked := env.entryAt(t, "u1", "02", monday.Add(4*24*time.Hour), false)
	require.NoError(t, env.store.Entries.UpdateSignals(context.Background(), untracked.ID, signals("02"), fixedNow))

	res, err := NewRollups(env.deps).GenerateWeekly(context.Background(), "u1", fixedNow, false)
	require.NoError(t, err)
	assert.Equal(t, RollupSkipped, res.Status)
	assert.Contains(t, res.Reason, "have 2")
}

func TestGenerateWeekly_SynthesisFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		fn   func(llm.Request) (string, error)
	}{
		{"inference error", func(llm.Request) (string, error) { return "", errors.New("timeout") }},
		{"malformed", respond("Here is your summary!")},
		{"empty summary", respond(`{"summary": "  "}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			env.inf.fn = tt.fn
			seedWeek(t, env, "u1", 3)

			_, err := NewRollups(env.deps).GenerateWeekly(context.Background(), "u1", fixedNow, false)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSynthesisFailure)
			assert.Equal(t, int32(0), env.rollups.upserts.Load())
		})
	}
}

func weeklyRow(user, start, end string, ids []string, mood *float64, count int) *models.RollupSummary {
	return &models.RollupSummary{
		UserID:             user,
		Type:               models.RollupWeekly,
		DateRangeStart:     start,
		DateRangeEnd:       end,
		EntryIDs:           ids,
		Summary:            "week " + start,
		KeyThemes:          []string{"patience"},
		MoodTrend:          models.MoodStable,
		SamathaTrend:       models.SamathaSteady,
		NotableEvents:      []string{},
		HindranceFrequency: map[string]int{"tired": count},
		TechniquesUsed:     []string{"counting"},
		AvgMoodScore:       mood,
		EntryCount:         count,
	}
}

func ptr(f float64) *float64 { return &f }

func TestGenerateMonthly_FromWeekliesOnly(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	var seen []string
	env.inf.fn = func(req llm.Request) (string, error) {
		seen = append(seen, req.Messages[1].Content)
		return synthesisResponse, nil
	}
	r := NewRollups(env.deps)

	require.NoError(t, env.store.Rollups.Upsert(ctx, weeklyRow("u1", "2026-03-02", "2026-03-08", []string{"e1", "e2", "e3"}, ptr(3), 3)))
	require.NoError(t, env.store.Rollups.Upsert(ctx, weeklyRow("u1", "2026-03-09", "2026-03-15", []string{"e4"}, ptr(4), 1)))

	res, err := r.GenerateMonthly(ctx, "u1", fixedNow, false)
	require.NoError(t, err)
	assert.Equal(t, RollupSkipped, res.Status)
	assert.Contains(t, res.Reason, "need 3 weekly")

	require.NoError(t, env.store.Rollups.Upsert(ctx, weeklyRow("u1", "2026-03-16", "2026-03-22", []string{"e5", "e3"}, nil, 2)))

	res, err = r.GenerateMonthly(ctx, "u1", fixedNow, false)
	require.NoError(t, err)
	require.Equal(t, RollupWritten, res.Status)
	s := res.Summary
	assert.Equal(t, models.RollupMonthly, s.Type)
	assert.Equal(t, "2026-03-01", s.DateRangeStart)
	assert.Equal(t, "2026-03-31", s.DateRangeEnd)
	assert.Equal(t, []string{"e1", "e2", "e3", "e4", "e5"}, s.EntryIDs)
	require.NotNil(t, s.AvgMoodScore)
	assert.InDelta(t, 3.25, *s.AvgMoodScore, 0.001)
	assert.Equal(t, map[string]int{"tired": 6}, s.HindranceFrequency)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "Week 2026-03-16")

	again, err := r.GenerateMonthly(ctx, "u1", fixedNow, false)
	require.NoError(t, err)
	assert.Equal(t, "unchanged", again.Reason)
}

func TestRunMonthlyBatch(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.inf.fn = respond(synthesisResponse)

	for _, w := range [][2]string{{"2026-03-02", "2026-03-08"}, {"2026-03-09", "2026-03-15"}, {"2026-03-16", "2026-03-22"}} {
		require.NoError(t, env.store.Rollups.Upsert(ctx, weeklyRow("u1", w[0], w[1], []string{"a" + w[0]}, ptr(3), 3)))
	}
	require.NoError(t, env.store.Rollups.Upsert(ctx, weeklyRow("u2", "2026-03-02", "2026-03-08", []string{"b"}, nil, 3)))

	report, err := NewRollups(env.deps).RunMonthlyBatch(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "2026-03", report.Month)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, []string{"u1"}, report.Written)
	assert.Empty(t, report.Failed)
}

func TestNormalizeTrend(t *testing.T) {
	assert.Equal(t, "stable", normalizeTrend(" Stable", models.MoodImproving, models.MoodStable))
	assert.Equal(t, "variable", normalizeTrend("great", models.MoodImproving, models.MoodStable))
	assert.Equal(t, "variable", normalizeTrend("", models.MoodImproving))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestGenerateWeekly_TriggerDuringSynthesisSeesNewEntry(t *testing.T) {
	env := newEnv(t)
	seedWeek(t, env, "u1", 3)
	r := NewRollups(env.deps)

	started := make(chan struct{})
	release := make(chan struct{})
	var n atomic.Int32
	env.inf.fn = func(llm.Request) (string, error) {
		if n.Add(1) == 1 {
			close(started)
			<-release
		}
		return synthesisResponse, nil
	}

	var wg sync.WaitGroup
	results := make([]RollupResult, 2)
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	}()
	<-started

	env.analyzed(t, "u1", "02", monday.Add(4*24*time.Hour), signals("02"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = r.GenerateWeekly(context.Background(), "u1", fixedNow, false)
	}()

	key := "weekly/u1/2026-03-02"
	require.Eventually(t, func() bool {
		r.locks.mu.Lock()
		defer r.locks.mu.Unlock()
		l, ok := r.locks.m[key]
		return ok && l.refs == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, RollupWritten, results[0].Status)
	assert.Equal(t, RollupWritten, results[1].Status)
	assert.Equal(t, int32(2), n.Load())

	stored, err := env.store.Rollups.Get(context.Background(), "u1", models.RollupWeekly, "2026-03-02", "2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.EntryCount)
	assert.Len(t, stored.EntryIDs, 4)

	r.locks.mu.Lock()
	assert.Empty(t, r.locks.m)
	r.locks.mu.Unlock()
}

func TestWindowLocks_WaitHonorsContext(t *testing.T) {
	var w windowLocks
	unlock, err := w.lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = w.lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := w.lock(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Empty(t, w.m)
}
