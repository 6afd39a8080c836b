// ABOUTME: Entry pipeline wiring writes to background extraction and aggregate recomputation
// ABOUTME: The durable write always completes first; downstream work is best-effort
package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Pipeline is the coaching pipeline with all of its components
type Pipeline struct {
	deps Deps
	log  *logging.Logger

	Extractor   *Extractor
	Progression *Progression
	Rollups     *Rollups
	Guidance    *GuidanceSynth
	Reminders   *Reminders
	Nudges      *Nudges
	Lookups     *Lookups
	Advisor     *Advisor
}

// NewPipeline wires every component over the same dependencies
func NewPipeline(d Deps) *Pipeline {
	d = d.withDefaults()
	guidance := NewGuidanceSynth(d)
	progression := NewProgression(d, guidance)
	lookups := NewLookups(d, progression)
	return &Pipeline{
		deps:        d,
		log:         d.Logger.Named("pipeline"),
		Extractor:   NewExtractor(d),
		Progression: progression,
		Rollups:     NewRollups(d),
		Guidance:    guidance,
		Reminders:   NewReminders(d),
		Nudges:      NewNudges(d),
		Lookups:     lookups,
		Advisor:     NewAdvisor(d, lookups),
	}
}

// Deps exposes the wiring the pipeline was built with
func (p *Pipeline) Deps() Deps {
	return p.deps
}

// NewEntryInput is a request to write one entry
type NewEntryInput struct {
	UserID  string
	Type    models.EntryType
	Content string
	// SkillID defaults to the user's current skill
	SkillID string
	// TrackProgress defaults to true
	TrackProgress *bool
	// EntryDate backdates the entry; defaults to today
	EntryDate string
}

// CreateEntry durably writes the entry, updates session stats, then schedules
// extraction and aggregate recomputation in the background.
func (p *Pipeline) CreateEntry(ctx context.Context, in NewEntryInput) (*models.Entry, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = models.EntryReflect
	}
	user, err := p.deps.Users.GetOrCreate(ctx, in.UserID, p.deps.Catalog.First().ID)
	if err != nil {
		return nil, err
	}

	skillID := user.CurrentSkill
	if in.SkillID != "" {
		id, ok := p.deps.Catalog.NormalizeID(in.SkillID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown skill %q", ErrInvalidInput, in.SkillID)
		}
		skillID = id
	}

	now := p.deps.Now()
	day := p.deps.Calendar.DayKey(now)
	if in.EntryDate != "" {
		if _, err := p.deps.Calendar.ParseDay(in.EntryDate); err != nil {
			return nil, fmt.Errorf("%w: entry date %q: %v", ErrInvalidInput, in.EntryDate, err)
		}
		day = in.EntryDate
	}

	track := true
	if in.TrackProgress != nil {
		track = *in.TrackProgress
	}

	entry, err := models.NewEntry(in.UserID, in.Type, in.Content, skillID, day, track, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := p.deps.Entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	p.log.Info("entry created", "entry", entry.ID, "user", entry.UserID, "type", entry.Type, "date", entry.EntryDate)

	if entry.Type == models.EntryReflect {
		if _, err := p.Progression.RecordSession(ctx, entry); err != nil {
			p.log.Warn("session stats update failed", "entry", entry.ID, "error", err)
		}
	}

	p.deps.Executor.Submit(ctx, "entry:"+entry.ID, func(ctx context.Context) error {
		if entry.Type == models.EntryReflect {
			res, err := p.Extractor.ProcessEntry(ctx, entry.ID, false)
			switch {
			case err != nil:
				p.log.Warn("extraction failed", "entry", entry.ID, "error", err)
			case res.Skipped:
				p.log.Debug("extraction skipped", "entry", entry.ID, "reason", res.Reason)
			}
		}
		return p.RecomputeAggregates(ctx, entry.UserID, p.dayTime(entry.EntryDate))
	})
	return entry, nil
}

// EditEntry replaces an entry's content. Signals are not re-extracted.
func (p *Pipeline) EditEntry(ctx context.Context, userID, entryID, content string) (*models.Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}
	if _, err := p.owned(ctx, userID, entryID); err != nil {
		return nil, err
	}
	if err := p.deps.Entries.UpdateContent(ctx, entryID, content, p.deps.Now().UTC()); err != nil {
		return nil, err
	}
	return p.deps.Entries.Get(ctx, entryID)
}

// DeleteEntry removes an entry and recomputes the aggregates it fed
func (p *Pipeline) DeleteEntry(ctx context.Context, userID, entryID string) error {
	entry, err := p.owned(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if err := p.deps.Entries.Delete(ctx, entryID); err != nil {
		return err
	}
	p.log.Info("entry deleted", "entry", entryID, "user", userID)

	p.deps.Executor.Submit(ctx, "delete:"+entryID, func(ctx context.Context) error {
		return p.RecomputeAggregates(ctx, userID, p.dayTime(entry.EntryDate))
	})
	return nil
}

// GetEntry returns one of the user's entries; other users' entries are not found
func (p *Pipeline) GetEntry(ctx context.Context, userID, entryID string) (*models.Entry, error) {
	return p.owned(ctx, userID, entryID)
}

// ListEntries queries the user's entries; the filter's user is always overridden
func (p *Pipeline) ListEntries(ctx context.Context, userID string, f storage.EntryFilter) ([]*models.Entry, error) {
	f.UserID = userID
	return p.deps.Entries.Query(ctx, f)
}

func (p *Pipeline) owned(ctx context.Context, userID, entryID string) (*models.Entry, error) {
	entry, err := p.deps.Entries.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	return entry, nil
}

func (p *Pipeline) dayTime(key string) time.Time {
	t, err := p.deps.Calendar.ParseDay(key)
	if err != nil {
		return p.deps.Now()
	}
	return t
}

// RecomputeAggregates refreshes the weekly and monthly rollups around day and
// the user's guidance. Each step runs even when an earlier one fails.
func (p *Pipeline) RecomputeAggregates(ctx context.Context, userID string, day time.Time) error {
	var errs []error

	if res, err := p.Rollups.GenerateWeekly(ctx, userID, day, false); err != nil {
		errs = append(errs, fmt.Errorf("weekly rollup: %w", err))
	} else if res.Status == RollupSkipped {
		p.log.Debug("weekly rollup skipped", "user", userID, "reason", res.Reason)
	}

	if res, err := p.Rollups.GenerateMonthly(ctx, userID, day, false); err != nil {
		errs = append(errs, fmt.Errorf("monthly rollup: %w", err))
	} else if res.Status == RollupSkipped {
		p.log.Debug("monthly rollup skipped", "user", userID, "reason", res.Reason)
	}

	if _, err := p.Guidance.Regenerate(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("guidance: %w", err))
	}
	return errors.Join(errs...)
}

// BackfillReport summarizes a backfill run
type BackfillReport struct {
	Reextracted   int      `json:"reextracted"`
	ExtractFailed int      `json:"extract_failed"`
	WeeksWritten  []string `json:"weeks_written"`
	WeeksSkipped  []string `json:"weeks_skipped"`
	MonthsWritten []string `json:"months_written"`
	GuidanceReady bool     `json:"guidance_ready"`
	FailedWindows []string `json:"failed_windows"`
}

// Backfill walks all of a user's history, regenerating every week with enough
// analyzed entries, then each month, then guidance once. With reextract set,
// every reflection is analyzed again first.
func (p *Pipeline) Backfill(ctx context.Context, userID string, reextract bool) (BackfillReport, error) {
	report := BackfillReport{
		WeeksWritten:  []string{},
		WeeksSkipped:  []string{},
		MonthsWritten: []string{},
		FailedWindows: []string{},
	}

	if reextract {
		all, err := p.deps.Entries.Query(ctx, storage.EntryFilter{UserID: userID, Type: models.EntryReflect})
		if err != nil {
			return report, err
		}
		for _, e := range all {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			res, err := p.Extractor.ProcessEntry(ctx, e.ID, true)
			switch {
			case err != nil:
				report.ExtractFailed++
				p.log.Warn("backfill extraction failed", "entry", e.ID, "error", err)
			case !res.Skipped:
				report.Reextracted++
			}
		}
	}

	entries, err := p.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
	})
	if err != nil {
		return report, err
	}

	cal := p.deps.Calendar
	weeks := map[string]int{}
	for _, e := range entries {
		_, _, first, _ := cal.WeekBounds(p.dayTime(e.EntryDate))
		weeks[first]++
	}
	starts := make([]string, 0, len(weeks))
	for s := range weeks {
		starts = append(starts, s)
	}
	sort.Strings(starts)

	months := map[string]bool{}
	var monthOrder []string
	for _, start := range starts {
		if weeks[start] < MinWeeklyEntries {
			report.WeeksSkipped = append(report.WeeksSkipped, start)
			continue
		}
		day := p.dayTime(start)
		res, err := p.Rollups.GenerateWeekly(ctx, userID, day, true)
		if err != nil {
			report.FailedWindows = append(report.FailedWindows, "week "+start)
			p.log.Warn("backfill weekly failed", "user", userID, "start", start, "error", err)
			continue
		}
		if res.Status == RollupWritten {
			report.WeeksWritten = append(report.WeeksWritten, start)
			month := start[:7]
			if !months[month] {
				months[month] = true
				monthOrder = append(monthOrder, month)
			}
		}
	}

	for _, month := range monthOrder {
		res, err := p.Rollups.GenerateMonthly(ctx, userID, p.dayTime(month+"-01"), true)
		if err != nil {
			report.FailedWindows = append(report.FailedWindows, "month "+month)
			p.log.Warn("backfill monthly failed", "user", userID, "month", month, "error", err)
			continue
		}
		if res.Status == RollupWritten {
			report.MonthsWritten = append(report.MonthsWritten, month)
		}
	}

	g, err := p.Guidance.Regenerate(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("guidance: %w", err)
	}
	report.GuidanceReady = g != nil
	return report, nil
}

// Advance re-validates readiness and moves the user to the next skill
func (p *Pipeline) Advance(ctx context.Context, userID, currentSkill string) (AdvanceResult, error) {
	return p.Progression.Advance(ctx, userID, currentSkill)
}

// AskResult pairs the stored question with its answer
type AskResult struct {
	Entry  *models.Entry `json:"entry"`
	Answer string        `json:"answer"`
}

// Ask stores the question as an ask entry, then answers it
func (p *Pipeline) Ask(ctx context.Context, userID, question string) (AskResult, error) {
	entry, err := p.CreateEntry(ctx, NewEntryInput{UserID: userID, Type: models.EntryAsk, Content: question})
	if err != nil {
		return AskResult{}, err
	}
	answer, err := p.Advisor.Ask(ctx, userID, question)
	if err != nil {
		return AskResult{Entry: entry}, err
	}
	return AskResult{Entry: entry, Answer: answer}, nil
}
