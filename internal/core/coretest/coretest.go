// ABOUTME: Test fixtures for packages that drive the pipeline from outside core
// ABOUTME: Builds a pipeline over in-memory SQLite with scripted inference and inline background work
package coretest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harper/sitjournal/internal/calendar"
	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage/sqlite"
)

// Now is the fixed clock every fixture starts on (a Wednesday)
var Now = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

// Inference answers completions through Fn; tool calls go to Tools when set
type Inference struct {
	mu    sync.Mutex
	calls int
	Fn    func(req llm.Request) (string, error)
	Tools func(req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error)
}

func (f *Inference) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Fn == nil {
		return "", fmt.Errorf("no response configured")
	}
	return f.Fn(req)
}

func (f *Inference) CompleteWithTools(ctx context.Context, req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error) {
	if f.Tools == nil {
		return f.Complete(ctx, req)
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.Tools(req, tools, handle)
}

// Calls reports how many completions were requested
func (f *Inference) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Inline runs submitted work synchronously
type Inline struct {
	mu    sync.Mutex
	Names []string
}

func (e *Inline) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) {
	_ = fn(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.Names = append(e.Names, name)
	e.mu.Unlock()
}

// Env is a ready pipeline plus handles on its collaborators
type Env struct {
	Store    *sqlite.Storage
	Pipeline *core.Pipeline
	Inf      *Inference
	Exec     *Inline
	Clock    time.Time
}

// New builds a pipeline over a fresh in-memory database
func New(t testing.TB) *Env {
	t.Helper()
	store, err := sqlite.NewStorageInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	env := &Env{Store: store, Inf: &Inference{}, Exec: &Inline{}, Clock: Now}
	env.Pipeline = core.NewPipeline(core.Deps{
		Catalog:   catalog.Default(),
		Entries:   store.Entries,
		Users:     store.Users,
		Rollups:   store.Rollups,
		Reminders: store.Reminders,
		Inference: env.Inf,
		Calendar:  calendar.New(time.UTC),
		Executor:  env.Exec,
		Now:       func() time.Time { return env.Clock },
		Rand:      rand.New(rand.NewPCG(1, 2)),
	})
	return env
}

// Entry writes a reflection directly to the store, skipping the pipeline
func (env *Env) Entry(t testing.TB, user, skill string, at time.Time, sig *models.SignalBlock) *models.Entry {
	t.Helper()
	ctx := context.Background()
	_, err := env.Store.Users.GetOrCreate(ctx, user, skill)
	require.NoError(t, err)
	e, err := models.NewEntry(user, models.EntryReflect,
		"sat for twenty minutes with the breath and noticed the mind settle slowly",
		skill, at.Format("2006-01-02"), true, at)
	require.NoError(t, err)
	require.NoError(t, env.Store.Entries.Create(ctx, e))
	if sig != nil {
		require.NoError(t, env.Store.Entries.UpdateSignals(ctx, e.ID, sig, at))
		e.Signals = sig
		processed := at
		e.ProcessedAt = &processed
	}
	return e
}

// Hindrance is a processed signal block reporting the skill's hindrance under the given conditions
func Hindrance(skill string, conditions ...string) *models.SignalBlock {
	phase := models.SkillPhase{
		SkillID:             skill,
		MarkersObserved:     []string{},
		HindrancesObserved:  []string{"h"},
		SamathaTendency:     models.SamathaModerate,
		Techniques:          []string{},
		HindranceConditions: conditions,
	}
	sig := &models.SignalBlock{
		FrontierSkillInferred:  skill,
		SkillPhases:            []models.SkillPhase{phase},
		OverallSamathaTendency: models.SamathaModerate,
		Summary:                "a restless sit",
		MoodTags:               []string{},
		Themes:                 []string{},
		ProgressionSignals:     []string{},
	}
	sig.FlatSignals = core.Flatten(sig.SkillPhases, skill, sig.OverallSamathaTendency)
	return sig
}
