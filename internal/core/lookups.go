// ABOUTME: Structured lookups the model may call mid-completion when answering a question
// ABOUTME: The same lookups back the MCP tools, so both surfaces return identical payloads
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Lookup names
const (
	LookupUserProfile       = "get_user_profile"
	LookupSkillDetails      = "get_skill_details"
	LookupRecentEntries     = "get_recent_entries"
	LookupProgressionStats  = "get_progression_stats"
	LookupHindrancePatterns = "get_hindrance_patterns"
	LookupPracticeSummaries = "get_practice_summaries"
)

const (
	defaultLookupLimit = 5
	maxLookupLimit     = 20
)

// ErrUnknownLookup is returned by Dispatch for a name it does not serve
var ErrUnknownLookup = errors.New("unknown lookup")

// Lookups answers read-only questions about one user's practice
type Lookups struct {
	deps        Deps
	progression *Progression
}

// NewLookups creates a Lookups service
func NewLookups(d Deps, p *Progression) *Lookups {
	d = d.withDefaults()
	if p == nil {
		p = NewProgression(d, nil)
	}
	return &Lookups{deps: d, progression: p}
}

// UserProfile is the practitioner's current standing
type UserProfile struct {
	UserID       string           `json:"user_id"`
	CurrentSkill models.Skill     `json:"current_skill"`
	Cultivation  string           `json:"cultivation"`
	Stats        models.Stats     `json:"stats"`
	Onboarding   json.RawMessage  `json:"onboarding,omitempty"`
	Guidance     *models.Guidance `json:"pre_sit_guidance,omitempty"`
}

// EntryDigest is a compact view of one entry
type EntryDigest struct {
	ID         string                 `json:"id"`
	EntryDate  string                 `json:"entry_date"`
	Type       models.EntryType       `json:"type"`
	SkillID    string                 `json:"skill_id"`
	Summary    string                 `json:"summary,omitempty"`
	Samatha    models.SamathaTendency `json:"samatha_tendency,omitempty"`
	MoodScore  *int                   `json:"mood_score,omitempty"`
	Hindrance  bool                   `json:"hindrance_present"`
	Conditions []string               `json:"hindrance_conditions,omitempty"`
	Excerpt    string                 `json:"excerpt,omitempty"`
}

// ProgressionStats pairs readiness with the cross-skill snapshot
type ProgressionStats struct {
	CurrentSkill string                 `json:"current_skill"`
	Readiness    Readiness              `json:"readiness"`
	Unmet        []string               `json:"unmet,omitempty"`
	Report       *models.ProgressReport `json:"progress_report,omitempty"`
}

// HindrancePatterns describes recurring obstacles
type HindrancePatterns struct {
	SkillID          string                      `json:"skill_id,omitempty"`
	HindranceCount   int                         `json:"hindrance_count"`
	CommonConditions []string                    `json:"common_conditions"`
	Recurring        []models.RecurringHindrance `json:"recurring"`
	BalanceApproach  []string                    `json:"recent_balance_approaches"`
}

// UserProfile returns the user's current skill, stats, and guidance
func (l *Lookups) UserProfile(ctx context.Context, userID string) (UserProfile, error) {
	u, err := l.deps.Users.GetOrCreate(ctx, userID, l.deps.Catalog.First().ID)
	if err != nil {
		return UserProfile{}, err
	}
	skill, _ := l.deps.Catalog.Get(u.CurrentSkill)
	return UserProfile{
		UserID:       u.UserID,
		CurrentSkill: skill,
		Cultivation:  skill.Cultivation,
		Stats:        u.Stats,
		Onboarding:   u.Onboarding,
		Guidance:     u.PreSitGuidance,
	}, nil
}

// SkillDetails returns one catalog skill
func (l *Lookups) SkillDetails(skillID string) (models.Skill, error) {
	id, ok := l.deps.Catalog.NormalizeID(skillID)
	if !ok {
		return models.Skill{}, fmt.Errorf("%w: unknown skill %q", ErrInvalidInput, skillID)
	}
	s, _ := l.deps.Catalog.Get(id)
	return s, nil
}

// RecentEntries returns the newest entries, optionally for one skill
func (l *Lookups) RecentEntries(ctx context.Context, userID, skillID string, limit int) ([]EntryDigest, error) {
	entries, err := l.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:      userID,
		SkillID:     skillID,
		NewestFirst: true,
		Limit:       clampLimit(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]EntryDigest, 0, len(entries))
	for _, e := range entries {
		d := EntryDigest{ID: e.ID, EntryDate: e.EntryDate, Type: e.Type, SkillID: e.SkillID}
		if s := e.Signals; s != nil {
			d.Summary = s.Summary
			d.Samatha = s.SamathaTendency
			d.MoodScore = s.MoodScore
			d.Hindrance = s.HindrancePresent
			d.Conditions = s.HindranceConditions
		} else {
			d.Excerpt = truncateSentence(e.Content, selfAdviceLimit)
		}
		out = append(out, d)
	}
	return out, nil
}

// ProgressionStats evaluates readiness for the user's current skill
func (l *Lookups) ProgressionStats(ctx context.Context, userID string) (ProgressionStats, error) {
	u, err := l.deps.Users.GetOrCreate(ctx, userID, l.deps.Catalog.First().ID)
	if err != nil {
		return ProgressionStats{}, err
	}
	r, err := l.progression.Readiness(ctx, userID, u.CurrentSkill)
	if err != nil {
		return ProgressionStats{}, err
	}
	return ProgressionStats{
		CurrentSkill: u.CurrentSkill,
		Readiness:    r,
		Unmet:        r.Unmet(),
		Report:       u.ProgressReport,
	}, nil
}

// HindrancePatterns analyzes recent processed entries, optionally for one skill
func (l *Lookups) HindrancePatterns(ctx context.Context, userID, skillID string) (HindrancePatterns, error) {
	entries, err := l.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		SkillID:       skillID,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
		NewestFirst:   true,
		Limit:         guidanceWindow,
	})
	if err != nil {
		return HindrancePatterns{}, err
	}
	h := AnalyzeHistory(entries)
	return HindrancePatterns{
		SkillID:          skillID,
		HindranceCount:   h.HindranceCount,
		CommonConditions: nonNil(h.CommonConditions),
		Recurring:        RecurringHindrances(l.deps.Catalog, entries),
		BalanceApproach:  nonNil(h.BalanceApproaches),
	}, nil
}

// PracticeSummaries returns the most recent rollups of one type, newest first
func (l *Lookups) PracticeSummaries(ctx context.Context, userID string, typ models.RollupType, limit int) ([]*models.RollupSummary, error) {
	if typ == "" {
		typ = models.RollupWeekly
	}
	if typ != models.RollupWeekly && typ != models.RollupMonthly {
		return nil, fmt.Errorf("%w: unknown rollup type %q", ErrInvalidInput, typ)
	}
	today := l.deps.Calendar.DayKey(l.deps.Now())
	all, err := l.deps.Rollups.List(ctx, userID, typ, "0000-01-01", today)
	if err != nil {
		return nil, err
	}
	n := clampLimit(limit)
	out := make([]*models.RollupSummary, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLookupLimit
	}
	if n > maxLookupLimit {
		return maxLookupLimit
	}
	return n
}

// LookupArgs is the union of lookup parameters
type LookupArgs struct {
	SkillID string `json:"skill_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Dispatch runs the named lookup for userID and returns its JSON payload
func (l *Lookups) Dispatch(ctx context.Context, userID, name string, raw json.RawMessage) (string, error) {
	var args LookupArgs
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("%w: arguments for %s: %v", ErrInvalidInput, name, err)
		}
	}

	var (
		result any
		err    error
	)
	switch name {
	case LookupUserProfile:
		result, err = l.UserProfile(ctx, userID)
	case LookupSkillDetails:
		result, err = l.SkillDetails(args.SkillID)
	case LookupRecentEntries:
		result, err = l.RecentEntries(ctx, userID, args.SkillID, args.Limit)
	case LookupProgressionStats:
		result, err = l.ProgressionStats(ctx, userID)
	case LookupHindrancePatterns:
		result, err = l.HindrancePatterns(ctx, userID, args.SkillID)
	case LookupPracticeSummaries:
		result, err = l.PracticeSummaries(ctx, userID, models.RollupType(args.Type), args.Limit)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownLookup, name)
	}
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return string(data), nil
}

// Tools describes every lookup for a tool-augmented completion
func (l *Lookups) Tools() []llm.ToolSpec {
	skillParam := map[string]any{"type": "string", "description": "Two-digit skill id, e.g. \"03\""}
	limitParam := map[string]any{"type": "integer", "description": "Maximum items to return (default 5, max 20)"}
	obj := func(props map[string]any, required ...string) map[string]any {
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}

	return []llm.ToolSpec{
		{
			Name:        LookupUserProfile,
			Description: "Current skill, cultivation, streak and session counts, and latest pre-sit guidance",
			Parameters:  obj(map[string]any{}),
		},
		{
			Name:        LookupSkillDetails,
			Description: "Marker, hindrance, antidote, techniques, and advancement criteria for one skill",
			Parameters:  obj(map[string]any{"skill_id": skillParam}, "skill_id"),
		},
		{
			Name:        LookupRecentEntries,
			Description: "Most recent journal entries with their extracted summaries",
			Parameters:  obj(map[string]any{"skill_id": skillParam, "limit": limitParam}),
		},
		{
			Name:        LookupProgressionStats,
			Description: "Advancement readiness for the current skill and the cross-skill progress snapshot",
			Parameters:  obj(map[string]any{}),
		},
		{
			Name:        LookupHindrancePatterns,
			Description: "Recurring hindrances, their trigger conditions, and balance approaches that helped",
			Parameters:  obj(map[string]any{"skill_id": skillParam}),
		},
		{
			Name:        LookupPracticeSummaries,
			Description: "Recent weekly or monthly practice summaries",
			Parameters: obj(map[string]any{
				"type":  map[string]any{"type": "string", "enum": []string{"weekly", "monthly"}},
				"limit": limitParam,
			}),
		},
	}
}
