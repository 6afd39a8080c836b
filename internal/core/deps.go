// ABOUTME: Collaborator contracts and shared wiring for the coaching pipeline
// ABOUTME: Components take a Deps value so tests can swap stores, inference, and clock
package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/harper/sitjournal/internal/calendar"
	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/storage"
)

// Inference is the natural-language capability: messages in, text out
type Inference interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// ToolInference can run lookups mid-completion before answering
type ToolInference interface {
	Inference
	CompleteWithTools(ctx context.Context, req llm.Request, tools []llm.ToolSpec, handle llm.ToolHandler) (string, error)
}

// Executor runs best-effort background work
type Executor interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error)
}

var (
	// ErrInferenceUnavailable is returned when no inference client is configured
	ErrInferenceUnavailable = errors.New("inference unavailable: set OPENAI_API_KEY")
	// ErrInvalidInput marks caller mistakes: unknown skills, bad dates, empty text
	ErrInvalidInput = errors.New("invalid input")
)

// Deps bundles everything the pipeline components need
type Deps struct {
	Catalog   *catalog.Catalog
	Entries   storage.EntryStore
	Users     storage.UserStore
	Rollups   storage.RollupStore
	Reminders storage.ReminderStore
	Inference ToolInference
	Calendar  calendar.Calendar
	Executor  Executor
	Logger    *logging.Logger
	Now       func() time.Time
	Rand      *rand.Rand
}

func (d Deps) withDefaults() Deps {
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.Inference == nil {
		d.Inference = unavailable{}
	}
	if d.Calendar.Loc == nil {
		d.Calendar = calendar.New(nil)
	}
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if d.Executor == nil {
		d.Executor = NewBackground(4, 2*time.Minute, d.Logger)
	}
	return d
}

type unavailable struct{}

func (unavailable) Complete(context.Context, llm.Request) (string, error) {
	return "", ErrInferenceUnavailable
}

func (unavailable) CompleteWithTools(context.Context, llm.Request, []llm.ToolSpec, llm.ToolHandler) (string, error) {
	return "", ErrInferenceUnavailable
}
