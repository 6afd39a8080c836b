// ABOUTME: Shared fixtures for pipeline tests: fake inference, inline executor, seeded entries
// ABOUTME: Every test gets its own in-memory database and a fixed clock
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/calendar"
	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
	"github.com/harper/sitjournal/internal/storage/sqlite"
)

// fakeInference answers through fn and counts calls
type fakeInference struct {
	calls atomic.Int32
	fn    func(req llm.Request) (string, error)
	tools func(req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error)
}

func (f *fakeInference) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls.Add(1)
	if f.fn == nil {
		return "", fmt.Errorf("no response configured")
	}
	return f.fn(req)
}

func (f *fakeInference) CompleteWithTools(ctx context.Context, req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error) {
	f.calls.Add(1)
	if f.tools == nil {
		return f.Complete(ctx, req)
	}
	return f.tools(req, tools, handle)
}

func respond(s string) func(llm.Request) (string, error) {
	return func(llm.Request) (string, error) { return s, nil }
}

// inlineExecutor runs tasks synchronously and records their errors
type inlineExecutor struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (e *inlineExecutor) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	err := fn(context.WithoutCancel(ctx))
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

// spyRollups counts upserts on top of a real store
type spyRollups struct {
	storage.RollupStore
	upserts atomic.Int32
}

func (s *spyRollups) Upsert(ctx context.Context, r *models.RollupSummary) error {
	s.upserts.Add(1)
	return s.RollupStore.Upsert(ctx, r)
}

type testEnv struct {
	store   *sqlite.Storage
	deps    Deps
	inf     *fakeInference
	exec    *inlineExecutor
	rollups *spyRollups
	now     time.Time
}

// fixedNow is a Wednesday
var fixedNow = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:   store,
		inf:     &fakeInference{},
		exec:    &inlineExecutor{},
		rollups: &spyRollups{RollupStore: store.Rollups},
		now:     fixedNow,
	}
	env.deps = Deps{
		Catalog:   catalog.Default(),
		Entries:   store.Entries,
		Users:     store.Users,
		Rollups:   env.rollups,
		Reminders: store.Reminders,
		Inference: env.inf,
		Calendar:  calendar.New(time.UTC),
		Executor:  env.exec,
		Now:       func() time.Time { return env.now },
		Rand:      rand.New(rand.NewPCG(1, 2)),
	}
	return env
}

func (env *testEnv) user(t *testing.T, id, skill string) *models.UserState {
	t.Helper()
	u, err := env.store.Users.GetOrCreate(context.Background(), id, skill)
	require.NoError(t, err)
	return u
}

// entryAt writes an entry created at the given time, dated by its UTC day
func (env *testEnv) entryAt(t *testing.T, user, skill string, at time.Time, track bool) *models.Entry {
	t.Helper()
	e, err := models.NewEntry(user, models.EntryReflect,
		"sat for twenty minutes with the breath and noticed the mind settle slowly",
		skill, at.Format("2006-01-02"), track, at)
	require.NoError(t, err)
	require.NoError(t, env.store.Entries.Create(context.Background(), e))
	return e
}

// analyzed writes an entry and stores signals for it
func (env *testEnv) analyzed(t *testing.T, user, skill string, at time.Time, sig *models.SignalBlock) *models.Entry {
	t.Helper()
	e := env.entryAt(t, user, skill, at, true)
	require.NoError(t, env.store.Entries.UpdateSignals(context.Background(), e.ID, sig, at))
	e.Signals = sig
	return e
}

type sigOpt func(*models.SignalBlock)

func withMarker(code string) sigOpt {
	return func(s *models.SignalBlock) {
		s.SkillPhases[0].MarkersObserved = append(s.SkillPhases[0].MarkersObserved, code)
		s.MarkerPresent = true
	}
}

func withSamatha(t models.SamathaTendency) sigOpt {
	return func(s *models.SignalBlock) {
		s.SkillPhases[0].SamathaTendency = t
		s.SamathaTendency = t
		s.OverallSamathaTendency = t
	}
}

func withProgression(note string) sigOpt {
	return func(s *models.SignalBlock) { s.ProgressionSignals = append(s.ProgressionSignals, note) }
}

func withHindrance(code string, conditions ...string) sigOpt {
	return func(s *models.SignalBlock) {
		s.SkillPhases[0].HindrancesObserved = append(s.SkillPhases[0].HindrancesObserved, code)
		s.SkillPhases[0].HindranceConditions = append(s.SkillPhases[0].HindranceConditions, conditions...)
		s.HindrancePresent = true
		s.HindranceConditions = append(s.HindranceConditions, conditions...)
	}
}

func withBalance(approach string) sigOpt {
	return func(s *models.SignalBlock) {
		s.SkillPhases[0].BalanceApproach = approach
		s.BalanceApproach = &approach
	}
}

func withMood(n int) sigOpt {
	return func(s *models.SignalBlock) { s.MoodScore = &n }
}

func signals(skill string, opts ...sigOpt) *models.SignalBlock {
	s := &models.SignalBlock{
		FrontierSkillInferred: skill,
		SkillPhases: []models.SkillPhase{{
			SkillID:            skill,
			MarkersObserved:    []string{},
			HindrancesObserved: []string{},
			SamathaTendency:    models.SamathaWeak,
			Techniques:         []string{"counting"},
		}},
		OverallSamathaTendency: models.SamathaWeak,
		FlatSignals: models.FlatSignals{
			SamathaTendency:     models.SamathaWeak,
			HindranceConditions: []string{},
			TechniquesMentioned: []string{"counting"},
		},
		Summary:            "A steady sit.",
		MoodTags:           []string{},
		Themes:             []string{},
		ProgressionSignals: []string{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// extraction builds a model response for one phase on skill
func extraction(skill string, phase map[string]any, extra map[string]any) string {
	phase["skill_id"] = skill
	body := map[string]any{
		"frontier_skill_inferred":  skill,
		"skill_phases":             []any{phase},
		"overall_samatha_tendency": "moderate",
		"summary":                  "Settled after a restless start.",
		"mood_score":               4,
	}
	for k, v := range extra {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return string(data)
}

const longReflection = "Sat for twenty minutes this morning. The body was restless at first but the breath helped me settle down."
