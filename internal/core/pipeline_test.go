// ABOUTME: End-to-end tests of the entry pipeline over an in-memory store
// ABOUTME: Background work runs inline so downstream effects are observable immediately
package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// scriptedInference answers extraction, synthesis, and advice prompts differently
func scriptedInference(extract string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		system := req.Messages[0].Content
		switch {
		case strings.Contains(system, "analyze meditation journal entries"):
			return extract, nil
		case strings.Contains(system, "summarize a meditator's journal"):
			return synthesisResponse, nil
		default:
			return "Begin again, gently.", nil
		}
	}
}

func TestCreateEntry_WritesThenAnalyzes(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = scriptedInference(extraction("00", map[string]any{
		"markers_observed": []string{"grounded_posture"},
		"samatha_tendency": "moderate",
	}, nil))
	p := NewPipeline(env.deps)

	e, err := p.CreateEntry(context.Background(), NewEntryInput{UserID: "u1", Content: longReflection})
	require.NoError(t, err)
	assert.Equal(t, "00", e.SkillID)
	assert.Equal(t, "2026-03-04", e.EntryDate)
	assert.True(t, e.TrackProgress)

	got, err := env.store.Entries.Get(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, got.Processed())
	assert.True(t, got.Signals.MarkerPresent)

	u, err := env.store.Users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Stats.TotalSessions)
	assert.Equal(t, 1, u.Stats.Streak)
	require.NotNil(t, u.PreSitGuidance, "guidance is available from the first analyzed entry")
	require.NotNil(t, u.ProgressReport)
	assert.Empty(t, env.exec.errs)
}

func TestCreateEntry_ExtractionFailureStillSaves(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = func(llm.Request) (string, error) { return "", errors.New("upstream down") }
	p := NewPipeline(env.deps)

	e, err := p.CreateEntry(context.Background(), NewEntryInput{UserID: "u1", Content: longReflection})
	require.NoError(t, err)

	got, err := env.store.Entries.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Signals)
	assert.Nil(t, got.ProcessedAt)
}

func TestCreateEntry_Validation(t *testing.T) {
	env := newEnv(t)
	p := NewPipeline(env.deps)

	for name, in := range map[string]NewEntryInput{
		"blank content": {UserID: "u1", Content: "   "},
		"unknown skill": {UserID: "u1", Content: "hello", SkillID: "77"},
		"bad date":      {UserID: "u1", Content: "hello", EntryDate: "March 3"},
		"no user":       {Content: "hello"},
		"bad type":      {UserID: "u1", Content: "hello", Type: "rant"},
	} {
		_, err := p.CreateEntry(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
}

func TestCreateEntry_BackdatedUntrackedSkill(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = scriptedInference(extraction("03", map[string]any{}, nil))
	p := NewPipeline(env.deps)
	off := false

	e, err := p.CreateEntry(context.Background(), NewEntryInput{
		UserID:        "u1",
		Content:       "ok",
		SkillID:       "3",
		TrackProgress: &off,
		EntryDate:     "2026-02-20",
	})
	require.NoError(t, err)
	assert.Equal(t, "03", e.SkillID)
	assert.Equal(t, "2026-02-20", e.EntryDate)
	assert.False(t, e.TrackProgress)
	assert.Equal(t, int32(0), env.inf.calls.Load())
}

func TestDeleteEntry_RecomputesAndChecksOwner(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = scriptedInference("")
	entries := seedWeek(t, env, "u1", 3)
	env.user(t, "u1", "02")
	p := NewPipeline(env.deps)

	require.NoError(t, p.RecomputeAggregates(context.Background(), "u1", fixedNow))
	assert.Equal(t, int32(1), env.rollups.upserts.Load())

	err := p.DeleteEntry(context.Background(), "someone-else", entries[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, p.DeleteEntry(context.Background(), "u1", entries[0].ID))
	_, err = env.store.Entries.Get(context.Background(), entries[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, int32(1), env.rollups.upserts.Load(), "two entries left: weekly skipped, stale row stays")
	assert.Contains(t, env.exec.names, "delete:"+entries[0].ID)
}

func TestEditEntry(t *testing.T) {
	env := newEnv(t)
	e := env.entryAt(t, "u1", "00", fixedNow, true)
	p := NewPipeline(env.deps)

	got, err := p.EditEntry(context.Background(), "u1", e.ID, "rewritten")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", got.Content)

	_, err = p.EditEntry(context.Background(), "u2", e.ID, "hijack")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = p.EditEntry(context.Background(), "u1", e.ID, " ")
	assert.Error(t, err)
}

func TestRecomputeAggregates_ContinuesPastFailures(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = func(req llm.Request) (string, error) {
		if strings.Contains(req.Messages[0].Content, "summarize") {
			return "", errors.New("synthesis down")
		}
		return "Stay with the count.", nil
	}
	seedWeek(t, env, "u1", 3)
	env.user(t, "u1", "02")

	err := NewPipeline(env.deps).RecomputeAggregates(context.Background(), "u1", fixedNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesisFailure)

	u, err := env.store.Users.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u.PreSitGuidance, "guidance still regenerated")
}

func TestBackfill_RegeneratesEveryQualifyingWeek(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = scriptedInference(extraction("02", map[string]any{"samatha_tendency": "strong"}, nil))
	env.user(t, "u1", "02")

	weeks := []time.Time{
		time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC),
	}
	for _, w := range weeks {
		for d := 0; d < 3; d++ {
			env.analyzed(t, "u1", "02", w.Add(time.Duration(d)*24*time.Hour), signals("02", withMood(3)))
		}
	}
	env.analyzed(t, "u1", "02", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), signals("02"))

	report, err := NewPipeline(env.deps).Backfill(context.Background(), "u1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-09", "2026-02-16", "2026-02-23"}, report.WeeksWritten)
	assert.Equal(t, []string{"2026-03-02"}, report.WeeksSkipped)
	assert.Equal(t, []string{"2026-02"}, report.MonthsWritten)
	assert.True(t, report.GuidanceReady)
	assert.Zero(t, report.Reextracted)

	report, err = NewPipeline(env.deps).Backfill(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Reextracted)
	assert.Len(t, report.WeeksWritten, 3, "force rewrites even unchanged weeks")
}

func TestPipeline_AdvanceDelegates(t *testing.T) {
	env := newEnv(t)
	env.inf.fn = respond("Notice the aha.")
	env.user(t, "u1", "02")
	seedReadyHistory(t, env, "u1", "02")

	res, err := NewPipeline(env.deps).Advance(context.Background(), "u1", "02")
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, "03", res.NewSkillID)
}

func TestPipeline_AskStoresQuestionAndAnswers(t *testing.T) {
	env := newEnv(t)
	env.inf.tools = func(req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error) {
		out, err := handle(context.Background(), LookupUserProfile, nil)
		if err != nil {
			return "", err
		}
		var profile UserProfile
		if err := json.Unmarshal([]byte(out), &profile); err != nil {
			return "", err
		}
		return "You are on " + profile.CurrentSkill.Name + ".", nil
	}
	p := NewPipeline(env.deps)

	res, err := p.Ask(context.Background(), "u1", "What am I working on?")
	require.NoError(t, err)
	assert.Equal(t, models.EntryAsk, res.Entry.Type)
	assert.Equal(t, "You are on Arriving in the Body.", res.Answer)

	u, err := env.store.Users.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, u.Stats.TotalSessions, "questions are not sessions")
}
