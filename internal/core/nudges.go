// ABOUTME: Nudge generator producing prioritized reflection prompts shown before writing
// ABOUTME: Combines the skill's prompt bank with hindrance and balance patterns from past entries
package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Nudge priorities, higher first
const (
	PriorityPattern       = 15
	PrioritySingleHistory = 14
	PriorityBalanceQuote  = 12
	PrioritySamatha       = 10
	PriorityUnderstanding = 9
	PriorityBalance       = 8
	PriorityCuriosity     = 6
)

const (
	MaxNudges      = 4
	nudgeHistory   = 10
	minSkillSample = 2
)

// Nudges builds reflection prompts from history
type Nudges struct {
	deps Deps
	log  *logging.Logger

	mu sync.Mutex
}

// NewNudges creates a Nudges generator
func NewNudges(d Deps) *Nudges {
	d = d.withDefaults()
	return &Nudges{deps: d, log: d.Logger.Named("nudges")}
}

// Generate returns up to four nudges for the skill, highest priority first.
// An empty skillID means the user's current skill.
func (n *Nudges) Generate(ctx context.Context, userID, skillID string) ([]models.Nudge, error) {
	if skillID == "" {
		u, err := n.deps.Users.GetOrCreate(ctx, userID, n.deps.Catalog.First().ID)
		if err != nil {
			return nil, err
		}
		skillID = u.CurrentSkill
	}
	skill, ok := n.deps.Catalog.Get(skillID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown skill %q", ErrInvalidInput, skillID)
	}

	filter := storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		SkillID:       skill.ID,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
		NewestFirst:   true,
		Limit:         nudgeHistory,
	}
	entries, err := n.deps.Entries.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(entries) < minSkillSample {
		filter.SkillID = ""
		if entries, err = n.deps.Entries.Query(ctx, filter); err != nil {
			return nil, err
		}
	}

	return BuildNudges(n.deps.Catalog, skill, entries, n.pick), nil
}

func (n *Nudges) pick(size int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.deps.Rand.IntN(size)
}

// StaticNudges returns the samatha and understanding prompts without a history lookup
func StaticNudges(cat *catalog.Catalog, skill models.Skill) []models.Nudge {
	bank, _ := cat.Bank(skill.ID)
	return []models.Nudge{
		{Kind: models.NudgeSamatha, Text: cat.SamathaPrompt(), Priority: PrioritySamatha},
		{Kind: models.NudgeUnderstanding, Text: bank.Understanding, Priority: PriorityUnderstanding},
	}
}

// History is the pattern analysis behind the nudges
type History struct {
	HindranceCount    int
	CommonConditions  []string
	RecentConditions  []string
	BalanceApproaches []string
	AvgSamatha        models.SamathaTendency
	Samples           int
}

// AnalyzeHistory summarizes entries given most recent first
func AnalyzeHistory(entries []*models.Entry) History {
	h := History{AvgSamatha: models.SamathaNone}
	counts := map[string]int{}
	var order []string
	var samathaSum int

	for _, e := range entries {
		s := e.Signals
		if s == nil {
			continue
		}
		h.Samples++
		samathaSum += s.SamathaTendency.Index()

		if s.HindrancePresent {
			h.HindranceCount++
			if h.RecentConditions == nil && len(s.HindranceConditions) > 0 {
				h.RecentConditions = s.HindranceConditions
			}
			seen := map[string]bool{}
			for _, c := range s.HindranceConditions {
				c = strings.ToLower(strings.TrimSpace(c))
				if c == "" || seen[c] {
					continue
				}
				seen[c] = true
				if counts[c] == 0 {
					order = append(order, c)
				}
				counts[c]++
			}
		}
		if s.BalanceApproach != nil && len(h.BalanceApproaches) < 2 {
			h.BalanceApproaches = append(h.BalanceApproaches, *s.BalanceApproach)
		}
	}

	for _, c := range order {
		if counts[c] >= 2 {
			h.CommonConditions = append(h.CommonConditions, c)
		}
	}
	sort.SliceStable(h.CommonConditions, func(i, j int) bool {
		return counts[h.CommonConditions[i]] > counts[h.CommonConditions[j]]
	})
	if len(h.CommonConditions) > maxConditions {
		h.CommonConditions = h.CommonConditions[:maxConditions]
	}

	if h.Samples > 0 {
		mean := float64(samathaSum) / float64(h.Samples)
		h.AvgSamatha = models.SamathaFromIndex(int(math.Round(mean)))
	}
	return h
}

// BuildNudges assembles, ranks, and caps the nudge list. pick chooses the
// curiosity prompt index in [0, n).
func BuildNudges(cat *catalog.Catalog, skill models.Skill, entries []*models.Entry, pick func(n int) int) []models.Nudge {
	bank, _ := cat.Bank(skill.ID)
	h := AnalyzeHistory(entries)
	hindrance := strings.ToLower(skill.Hindrance.Label)

	samatha := cat.SamathaPrompt()
	if h.Samples > 0 {
		samatha = fmt.Sprintf("Recent sits have leaned %s toward calm. %s", h.AvgSamatha, samatha)
	}
	out := []models.Nudge{{Kind: models.NudgeSamatha, Text: samatha, Priority: PrioritySamatha}}

	switch {
	case h.HindranceCount >= 2 && len(h.CommonConditions) > 0:
		out = append(out, models.Nudge{
			Kind:     models.NudgePattern,
			Text:     fmt.Sprintf("%s has tended to show up when you were %s. Was that true today?", capitalize(hindrance), strings.Join(h.CommonConditions, ", ")),
			Priority: PriorityPattern,
		})
	case h.HindranceCount >= 2:
		out = append(out, models.Nudge{
			Kind:     models.NudgePattern,
			Text:     fmt.Sprintf("%s has come up in %d recent sits. What seemed to set it off today?", capitalize(hindrance), h.HindranceCount),
			Priority: PriorityPattern,
		})
	case h.HindranceCount == 1 && len(h.RecentConditions) > 0:
		out = append(out, models.Nudge{
			Kind:     models.NudgePattern,
			Text:     fmt.Sprintf("Last time %s came up, you noted %s. Anything similar today?", hindrance, strings.Join(h.RecentConditions, ", ")),
			Priority: PrioritySingleHistory,
		})
	}

	if len(h.BalanceApproaches) > 0 {
		out = append(out, models.Nudge{
			Kind:     models.NudgeBalance,
			Text:     fmt.Sprintf("Recently \"%s\" helped you find balance. Did it help again?", h.BalanceApproaches[0]),
			Priority: PriorityBalanceQuote,
		})
	} else {
		out = append(out, models.Nudge{Kind: models.NudgeBalance, Text: bank.Balance, Priority: PriorityBalance})
	}

	out = append(out, models.Nudge{Kind: models.NudgeUnderstanding, Text: bank.Understanding, Priority: PriorityUnderstanding})
	if len(bank.Curiosity) > 0 {
		out = append(out, models.Nudge{
			Kind:     models.NudgeCuriosity,
			Text:     bank.Curiosity[pick(len(bank.Curiosity))],
			Priority: PriorityCuriosity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > MaxNudges {
		out = out[:MaxNudges]
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
