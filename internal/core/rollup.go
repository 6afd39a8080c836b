// ABOUTME: Rollup aggregator producing idempotent weekly and monthly narrative summaries
// ABOUTME: Weekly reads analyzed entries; monthly reads only weekly summaries
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Minimum inputs for a summary
const (
	MinWeeklyEntries   = 3
	MinMonthlyWeeklies = 3
)

// ErrSynthesisFailure means the narrative could not be produced
var ErrSynthesisFailure = errors.New("rollup synthesis failed")

// RollupStatus says whether a summary was written
type RollupStatus string

const (
	RollupWritten RollupStatus = "written"
	RollupSkipped RollupStatus = "skipped"
)

// RollupResult is a written summary or an explicit skip
type RollupResult struct {
	Status  RollupStatus          `json:"status"`
	Reason  string                `json:"reason,omitempty"`
	Summary *models.RollupSummary `json:"summary,omitempty"`
}

func skipped(reason string) RollupResult {
	return RollupResult{Status: RollupSkipped, Reason: reason}
}

// BatchReport summarizes a monthly batch run
type BatchReport struct {
	Month   string   `json:"month"`
	Users   int      `json:"users"`
	Written []string `json:"written"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

// Rollups generates weekly and monthly summaries
type Rollups struct {
	deps  Deps
	log   *logging.Logger
	locks windowLocks
}

// NewRollups creates a Rollups aggregator
func NewRollups(d Deps) *Rollups {
	d = d.withDefaults()
	return &Rollups{deps: d, log: d.Logger.Named("rollups")}
}

// GenerateWeekly summarizes the Monday-start week containing day
func (r *Rollups) GenerateWeekly(ctx context.Context, userID string, day time.Time, force bool) (RollupResult, error) {
	_, _, first, _ := r.deps.Calendar.WeekBounds(day)
	unlock, err := r.locks.lock(ctx, "weekly/"+userID+"/"+first)
	if err != nil {
		return RollupResult{}, err
	}
	defer unlock()
	return r.generateWeekly(ctx, userID, day, force)
}

func (r *Rollups) generateWeekly(ctx context.Context, userID string, day time.Time, force bool) (RollupResult, error) {
	_, _, first, last := r.deps.Calendar.WeekBounds(day)

	entries, err := r.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
		DateFrom:      first,
		DateTo:        last,
	})
	if err != nil {
		return RollupResult{}, err
	}
	if len(entries) < MinWeeklyEntries {
		return skipped(fmt.Sprintf("need %d qualifying entries, have %d", MinWeeklyEntries, len(entries))), nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	sort.Strings(ids)

	existing, err := r.deps.Rollups.Get(ctx, userID, models.RollupWeekly, first, last)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return RollupResult{}, err
	}
	if existing != nil && !force && slices.Equal(existing.EntryIDs, ids) {
		return skipped("unchanged"), nil
	}

	payload, err := r.synthesize(ctx, "week", weeklyHistory(entries))
	if err != nil {
		return RollupResult{}, err
	}

	summary := payload.toSummary(userID, models.RollupWeekly, first, last, ids)
	summary.AvgMoodScore = averageMood(entries)
	summary.EntryCount = len(entries)
	if len(summary.HindranceFrequency) == 0 {
		summary.HindranceFrequency = conditionFrequency(entries)
	}
	if len(summary.TechniquesUsed) == 0 {
		summary.TechniquesUsed = techniquesUsed(entries)
	}
	if existing != nil {
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
	}

	if err := r.deps.Rollups.Upsert(ctx, summary); err != nil {
		return RollupResult{}, err
	}
	r.log.Info("weekly rollup written", "user", userID, "start", first, "entries", len(ids))
	return RollupResult{Status: RollupWritten, Summary: summary}, nil
}

// GenerateMonthly summarizes the month containing day from its weekly summaries
func (r *Rollups) GenerateMonthly(ctx context.Context, userID string, day time.Time, force bool) (RollupResult, error) {
	_, _, first, _ := r.deps.Calendar.MonthBounds(day)
	unlock, err := r.locks.lock(ctx, "monthly/"+userID+"/"+first)
	if err != nil {
		return RollupResult{}, err
	}
	defer unlock()
	return r.generateMonthly(ctx, userID, day, force)
}

// windowLocks serializes generation per (type, user, window). A caller that
// waits re-reads the entry set once it holds the lock, so a trigger that
// arrives mid-synthesis still writes its own view.
type windowLocks struct {
	mu sync.Mutex
	m  map[string]*windowLock
}

type windowLock struct {
	ch   chan struct{}
	refs int
}

func (w *windowLocks) lock(ctx context.Context, key string) (func(), error) {
	w.mu.Lock()
	if w.m == nil {
		w.m = make(map[string]*windowLock)
	}
	l, ok := w.m[key]
	if !ok {
		l = &windowLock{ch: make(chan struct{}, 1)}
		w.m[key] = l
	}
	l.refs++
	w.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			w.release(key, l)
		}, nil
	case <-ctx.Done():
		w.release(key, l)
		return nil, ctx.Err()
	}
}

func (w *windowLocks) release(key string, l *windowLock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(w.m, key)
	}
}

func (r *Rollups) generateMonthly(ctx context.Context, userID string, day time.Time, force bool) (RollupResult, error) {
	_, _, first, last := r.deps.Calendar.MonthBounds(day)

	weeks, err := r.deps.Rollups.List(ctx, userID, models.RollupWeekly, first, last)
	if err != nil {
		return RollupResult{}, err
	}
	if len(weeks) < MinMonthlyWeeklies {
		return skipped(fmt.Sprintf("need %d weekly summaries, have %d", MinMonthlyWeeklies, len(weeks))), nil
	}

	idSet := map[string]bool{}
	for _, w := range weeks {
		for _, id := range w.EntryIDs {
			idSet[id] = true
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	existing, err := r.deps.Rollups.Get(ctx, userID, models.RollupMonthly, first, last)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return RollupResult{}, err
	}
	if existing != nil && !force && slices.Equal(existing.EntryIDs, ids) {
		return skipped("unchanged"), nil
	}

	payload, err := r.synthesize(ctx, "month", monthlyHistory(weeks))
	if err != nil {
		return RollupResult{}, err
	}

	summary := payload.toSummary(userID, models.RollupMonthly, first, last, ids)
	summary.AvgMoodScore = averageWeeklyMood(weeks)
	summary.EntryCount = len(ids)
	if len(summary.HindranceFrequency) == 0 {
		summary.HindranceFrequency = map[string]int{}
		for _, w := range weeks {
			for k, v := range w.HindranceFrequency {
				summary.HindranceFrequency[k] += v
			}
		}
	}
	if len(summary.TechniquesUsed) == 0 {
		var all []string
		for _, w := range weeks {
			all = append(all, w.TechniquesUsed...)
		}
		summary.TechniquesUsed = cleanList(all, false)
	}
	if existing != nil {
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
	}

	if err := r.deps.Rollups.Upsert(ctx, summary); err != nil {
		return RollupResult{}, err
	}
	r.log.Info("monthly rollup written", "user", userID, "month", first, "weeks", len(weeks))
	return RollupResult{Status: RollupWritten, Summary: summary}, nil
}

// RunMonthlyBatch generates the monthly summary for every user with enough
// weekly summaries, one user at a time. Per-user failures are logged and skipped.
func (r *Rollups) RunMonthlyBatch(ctx context.Context, day time.Time) (BatchReport, error) {
	_, _, first, last := r.deps.Calendar.MonthBounds(day)
	report := BatchReport{Month: first[:7], Written: []string{}, Skipped: []string{}, Failed: []string{}}

	users, err := r.deps.Rollups.UsersWith(ctx, models.RollupWeekly, first, last, MinMonthlyWeeklies)
	if err != nil {
		return report, err
	}
	report.Users = len(users)

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := r.GenerateMonthly(ctx, userID, day, false)
		switch {
		case err != nil:
			r.log.Error("monthly rollup failed", "user", userID, "month", report.Month, "error", err)
			report.Failed = append(report.Failed, userID)
		case res.Status == RollupSkipped:
			report.Skipped = append(report.Skipped, userID)
		default:
			report.Written = append(report.Written, userID)
		}
	}
	r.log.Info("monthly batch finished", "month", report.Month, "users", report.Users,
		"written", len(report.Written), "failed", len(report.Failed))
	return report, nil
}

type rollupPayload struct {
	Summary            string         `json:"summary"`
	KeyThemes          []string       `json:"key_themes"`
	MoodTrend          string         `json:"mood_trend"`
	SamathaTrend       string         `json:"samatha_trend"`
	NotableEvents      []string       `json:"notable_events"`
	HindranceFrequency map[string]int `json:"hindrance_frequency"`
	TechniquesUsed     []string       `json:"techniques_used"`
}

func (p rollupPayload) toSummary(userID string, typ models.RollupType, first, last string, ids []string) *models.RollupSummary {
	freq := map[string]int{}
	for k, v := range p.HindranceFrequency {
		if k = strings.TrimSpace(k); k != "" && v > 0 {
			freq[k] = v
		}
	}
	return &models.RollupSummary{
		UserID:             userID,
		Type:               typ,
		DateRangeStart:     first,
		DateRangeEnd:       last,
		EntryIDs:           ids,
		Summary:            strings.TrimSpace(p.Summary),
		KeyThemes:          cleanList(p.KeyThemes, false),
		MoodTrend:          normalizeTrend(p.MoodTrend, models.MoodImproving, models.MoodStable, models.MoodChallenging),
		SamathaTrend:       normalizeTrend(p.SamathaTrend, models.SamathaStrengthening, models.SamathaSteady, models.SamathaStruggling),
		NotableEvents:      cleanList(p.NotableEvents, false),
		HindranceFrequency: freq,
		TechniquesUsed:     cleanList(p.TechniquesUsed, false),
	}
}

// normalizeTrend maps anything outside the allowed set to "variable"
func normalizeTrend(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return models.MoodVariable
}

func (r *Rollups) synthesize(ctx context.Context, period, history string) (rollupPayload, error) {
	system := fmt.Sprintf(`You summarize a meditator's journal for one %s. Respond with a JSON object:
{
  "summary": "2-3 sentences",
  "key_themes": ["3-5 themes"],
  "mood_trend": "improving|stable|challenging|variable",
  "samatha_trend": "strengthening|stable|struggling|variable",
  "notable_events": ["..."],
  "hindrance_frequency": {"condition": count},
  "techniques_used": ["..."]
}`, period)

	raw, err := r.deps.Inference.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: history},
		},
		MaxTokens:   900,
		JSONMode:    true,
		Temperature: 0.4,
	})
	if err != nil {
		return rollupPayload{}, fmt.Errorf("%w: %w", ErrSynthesisFailure, err)
	}

	body, err := llm.ExtractJSON(raw)
	if err != nil {
		return rollupPayload{}, fmt.Errorf("%w: %w", ErrSynthesisFailure, err)
	}
	var p rollupPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return rollupPayload{}, fmt.Errorf("%w: %w: %v", ErrSynthesisFailure, llm.ErrMalformedResponse, err)
	}
	if strings.TrimSpace(p.Summary) == "" {
		return rollupPayload{}, fmt.Errorf("%w: %w: missing summary", ErrSynthesisFailure, llm.ErrMalformedResponse)
	}
	return p, nil
}

func weeklyHistory(entries []*models.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		s := e.Signals
		fmt.Fprintf(&b, "## %s (skill %s)\n", e.EntryDate, e.SkillID)
		if s.Summary != "" {
			fmt.Fprintf(&b, "summary: %s\n", s.Summary)
		}
		if s.MoodScore != nil {
			fmt.Fprintf(&b, "mood: %d/5 %s\n", *s.MoodScore, strings.Join(s.MoodTags, ", "))
		}
		fmt.Fprintf(&b, "samatha: %s\n", s.SamathaTendency)
		for _, p := range s.SkillPhases {
			fmt.Fprintf(&b, "phase %s: markers=%s hindrances=%s conditions=%s techniques=%s\n",
				p.SkillID, strings.Join(p.MarkersObserved, ","), strings.Join(p.HindrancesObserved, ","),
				strings.Join(p.HindranceConditions, ","), strings.Join(p.Techniques, ","))
		}
		if len(s.Themes) > 0 {
			fmt.Fprintf(&b, "themes: %s\n", strings.Join(s.Themes, ", "))
		}
		if s.HasBreakthrough {
			b.WriteString("breakthrough\n")
		}
		if s.HasStruggle {
			b.WriteString("struggle\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func monthlyHistory(weeks []*models.RollupSummary) string {
	var b strings.Builder
	for _, w := range weeks {
		fmt.Fprintf(&b, "## Week %s to %s (%d entries)\n", w.DateRangeStart, w.DateRangeEnd, w.EntryCount)
		fmt.Fprintf(&b, "summary: %s\n", w.Summary)
		fmt.Fprintf(&b, "themes: %s\n", strings.Join(w.KeyThemes, ", "))
		fmt.Fprintf(&b, "mood trend: %s, samatha trend: %s\n", w.MoodTrend, w.SamathaTrend)
		if len(w.NotableEvents) > 0 {
			fmt.Fprintf(&b, "events: %s\n", strings.Join(w.NotableEvents, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// averageMood is the mean of non-null mood scores rounded to 2 decimals
func averageMood(entries []*models.Entry) *float64 {
	var sum, n int
	for _, e := range entries {
		if e.Signals != nil && e.Signals.MoodScore != nil {
			sum += *e.Signals.MoodScore
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := round2(float64(sum) / float64(n))
	return &v
}

// averageWeeklyMood weights each week's average by its entry count
func averageWeeklyMood(weeks []*models.RollupSummary) *float64 {
	var sum, weight float64
	for _, w := range weeks {
		if w.AvgMoodScore == nil || w.EntryCount == 0 {
			continue
		}
		sum += *w.AvgMoodScore * float64(w.EntryCount)
		weight += float64(w.EntryCount)
	}
	if weight == 0 {
		return nil
	}
	v := round2(sum / weight)
	return &v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func conditionFrequency(entries []*models.Entry) map[string]int {
	freq := map[string]int{}
	for _, e := range entries {
		if e.Signals == nil || !e.Signals.HindrancePresent {
			continue
		}
		for _, c := range e.Signals.HindranceConditions {
			freq[c]++
		}
	}
	return freq
}

func techniquesUsed(entries []*models.Entry) []string {
	var all []string
	for _, e := range entries {
		if e.Signals == nil {
			continue
		}
		all = append(all, e.Signals.TechniquesMentioned...)
		for _, p := range e.Signals.SkillPhases {
			all = append(all, p.Techniques...)
		}
	}
	return cleanList(all, false)
}
