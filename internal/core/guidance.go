// ABOUTME: Guidance synthesizer producing the pre-session object shown before a sit
// ABOUTME: Combines verbatim catalog reading, recurring patterns, and a short self-advice note
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Guidance tuning
const (
	guidanceWindow  = 20
	minRecurrence   = 2
	maxConditions   = 3
	selfAdviceLimit = 220
)

// GuidanceSynth builds and persists pre-sit guidance
type GuidanceSynth struct {
	deps Deps
	log  *logging.Logger
}

// NewGuidanceSynth creates a GuidanceSynth
func NewGuidanceSynth(d Deps) *GuidanceSynth {
	d = d.withDefaults()
	return &GuidanceSynth{deps: d, log: d.Logger.Named("guidance")}
}

// Regenerate rebuilds guidance for the user. It returns nil without error
// when the user has no analyzed entry yet.
func (g *GuidanceSynth) Regenerate(ctx context.Context, userID string) (*models.Guidance, error) {
	user, err := g.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := g.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
		NewestFirst:   true,
		Limit:         guidanceWindow,
	})
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		processed, err := g.deps.Entries.Query(ctx, storage.EntryFilter{UserID: userID, ProcessedOnly: true, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(processed) == 0 {
			g.log.Debug("no analyzed entries yet", "user", userID)
			return nil, nil
		}
	}

	cat := g.deps.Catalog
	frontier, ok := cat.Get(user.CurrentSkill)
	if !ok {
		frontier = cat.First()
	}

	guidance := &models.Guidance{
		FrontierSkillID:     frontier.ID,
		FrontierSkillName:   frontier.Name,
		ReadingMaterial:     ReadingNear(cat, frontier.ID),
		RecurringHindrances: RecurringHindrances(cat, recent),
		RecurringMarkers:    RecurringMarkers(cat, recent),
	}

	advice, err := g.selfAdvice(ctx, frontier, guidance, recent)
	if err != nil {
		return nil, fmt.Errorf("self advice: %w", err)
	}
	guidance.SelfAdvice = advice
	guidance.GeneratedAt = g.deps.Now().UTC()

	if _, err := g.deps.Users.Update(ctx, userID, func(u *models.UserState) error {
		u.PreSitGuidance = guidance
		return nil
	}); err != nil {
		return nil, err
	}
	g.log.Info("guidance regenerated", "user", userID, "frontier", frontier.ID,
		"hindrances", len(guidance.RecurringHindrances), "markers", len(guidance.RecurringMarkers))
	return guidance, nil
}

func (g *GuidanceSynth) selfAdvice(ctx context.Context, skill models.Skill, gd *models.Guidance, recent []*models.Entry) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current skill: %s %s. Antidote: %s\n", skill.ID, skill.Name, skill.Antidote)
	for _, h := range gd.RecurringHindrances {
		fmt.Fprintf(&b, "Recurring hindrance: %s (%d times", h.Name, h.Count)
		if len(h.Conditions) > 0 {
			fmt.Fprintf(&b, ", when %s", strings.Join(h.Conditions, ", "))
		}
		b.WriteString(")\n")
	}
	for _, m := range gd.RecurringMarkers {
		fmt.Fprintf(&b, "Recurring marker: %s (%d times)\n", m.Name, m.Count)
	}
	for i, e := range recent {
		if i == 5 {
			break
		}
		s := e.Signals
		fmt.Fprintf(&b, "%s: %s", e.EntryDate, s.Summary)
		if s.BalanceApproach != nil {
			fmt.Fprintf(&b, " Helped: %s.", *s.BalanceApproach)
		}
		if s.KeyUnderstanding != nil {
			fmt.Fprintf(&b, " Understood: %s.", *s.KeyUnderstanding)
		}
		b.WriteString("\n")
	}

	out, err := g.deps.Inference.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Write a note of two sentences at most from a meditator to their future self, " +
				"to read right before sitting. Draw only on the practice history given. Plain text, second person."},
			{Role: llm.RoleUser, Content: b.String()},
		},
		MaxTokens:   160,
		Temperature: 0.6,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty self advice", llm.ErrMalformedResponse)
	}
	out = truncateSentence(out, selfAdviceLimit)
	return out, nil
}

// ReadingNear returns verbatim reading excerpts for frontier-1, frontier, frontier+1
func ReadingNear(cat *catalog.Catalog, frontier string) []models.ReadingExcerpt {
	n := cat.Ordinal(frontier)
	out := []models.ReadingExcerpt{}
	for i := n - 1; i <= n+1; i++ {
		s, ok := cat.At(i)
		if !ok {
			continue
		}
		out = append(out, models.ReadingExcerpt{SkillID: s.ID, SkillName: s.Name, Excerpt: s.Reading})
	}
	return out
}

type tally struct {
	key        string
	count      int
	conditions map[string]int
	order      []string
}

// RecurringHindrances counts hindrance codes per entry across phases and keeps
// those seen at least twice, with their most frequent trigger conditions.
func RecurringHindrances(cat *catalog.Catalog, entries []*models.Entry) []models.RecurringHindrance {
	tallies := map[string]*tally{}
	var keys []string

	for _, e := range entries {
		if e.Signals == nil {
			continue
		}
		seen := map[string]bool{}
		for _, p := range e.Signals.SkillPhases {
			for _, code := range p.HindrancesObserved {
				t, ok := tallies[code]
				if !ok {
					t = &tally{key: code, conditions: map[string]int{}}
					tallies[code] = t
					keys = append(keys, code)
				}
				if !seen[code] {
					t.count++
					seen[code] = true
				}
				for _, c := range p.HindranceConditions {
					if t.conditions[c] == 0 {
						t.order = append(t.order, c)
					}
					t.conditions[c]++
				}
			}
		}
	}

	out := []models.RecurringHindrance{}
	for _, k := range keys {
		t := tallies[k]
		if t.count < minRecurrence {
			continue
		}
		out = append(out, models.RecurringHindrance{
			Name:       cat.HindranceLabel(k),
			Count:      t.count,
			Conditions: topConditions(t, maxConditions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// RecurringMarkers counts marker codes per entry and keeps those seen at least twice
func RecurringMarkers(cat *catalog.Catalog, entries []*models.Entry) []models.RecurringMarker {
	counts := map[string]int{}
	var keys []string

	for _, e := range entries {
		if e.Signals == nil {
			continue
		}
		seen := map[string]bool{}
		for _, p := range e.Signals.SkillPhases {
			for _, code := range p.MarkersObserved {
				if seen[code] {
					continue
				}
				seen[code] = true
				if counts[code] == 0 {
					keys = append(keys, code)
				}
				counts[code]++
			}
		}
	}

	out := []models.RecurringMarker{}
	for _, k := range keys {
		if counts[k] >= minRecurrence {
			out = append(out, models.RecurringMarker{Name: cat.MarkerLabel(k), Count: counts[k]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// topConditions orders conditions by frequency, ties broken by first appearance
func topConditions(t *tally, limit int) []string {
	conds := append([]string(nil), t.order...)
	sort.SliceStable(conds, func(i, j int) bool { return t.conditions[conds[i]] > t.conditions[conds[j]] })
	if len(conds) > limit {
		conds = conds[:limit]
	}
	if conds == nil {
		conds = []string{}
	}
	return conds
}

func truncateSentence(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, ".!?"); i > 0 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut) + "..."
}
