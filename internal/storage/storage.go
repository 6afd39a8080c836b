// ABOUTME: Store contracts shared by the coaching pipeline and its SQLite backend
// ABOUTME: Defines entry filters and the sentinel errors callers check with errors.Is
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/harper/sitjournal/internal/models"
)

var (
	// ErrNotFound is returned when a keyed record does not exist
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a versioned update keeps losing the race
	ErrVersionConflict = errors.New("version conflict")
	// ErrStore wraps driver failures on read or write
	ErrStore = errors.New("store failure")
)

// EntryFilter selects journal rows. Zero values mean "no constraint".
type EntryFilter struct {
	UserID        string
	Type          models.EntryType
	SkillID       string
	TrackProgress *bool
	ProcessedOnly bool

	// DateFrom and DateTo are inclusive local day keys
	DateFrom string
	DateTo   string

	// CreatedFrom is inclusive, CreatedTo exclusive
	CreatedFrom time.Time
	CreatedTo   time.Time

	NewestFirst bool
	Limit       int
}

// Tracked is a convenience for the common TrackProgress=true filter
func Tracked() *bool {
	v := true
	return &v
}

// EntryStore persists journal entries
type EntryStore interface {
	Create(ctx context.Context, e *models.Entry) error
	Get(ctx context.Context, id string) (*models.Entry, error)
	Query(ctx context.Context, f EntryFilter) ([]*models.Entry, error)
	UpdateContent(ctx context.Context, id, content string, now time.Time) error
	// UpdateSignals writes the whole signal block and processed_at in one statement
	UpdateSignals(ctx context.Context, id string, signals *models.SignalBlock, processedAt time.Time) error
	Delete(ctx context.Context, id string) error
	// EntryDays counts entries per local day key for the given days
	EntryDays(ctx context.Context, userID string, days []string) (map[string]int, error)
}

// UserStore persists the per-user practice record
type UserStore interface {
	Get(ctx context.Context, userID string) (*models.UserState, error)
	GetOrCreate(ctx context.Context, userID, initialSkill string) (*models.UserState, error)
	// Update is the single mutation path: read, mutate, compare-and-swap on version
	Update(ctx context.Context, userID string, mutate func(*models.UserState) error) (*models.UserState, error)
	List(ctx context.Context) ([]string, error)
}

// RollupStore persists weekly and monthly summaries
type RollupStore interface {
	Get(ctx context.Context, userID string, typ models.RollupType, start, end string) (*models.RollupSummary, error)
	Upsert(ctx context.Context, r *models.RollupSummary) error
	// List returns summaries whose start day lies in [from, to], oldest first
	List(ctx context.Context, userID string, typ models.RollupType, from, to string) ([]*models.RollupSummary, error)
	// UsersWith returns users having at least min summaries starting in [from, to]
	UsersWith(ctx context.Context, typ models.RollupType, from, to string, min int) ([]string, error)
}

// ReminderStore persists reminder settings
type ReminderStore interface {
	Get(ctx context.Context, userID string) (models.ReminderState, error)
	Save(ctx context.Context, st models.ReminderState) error
}
