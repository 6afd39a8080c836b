// ABOUTME: Reducer from the per-skill phase list to the flattened legacy signal fields
// ABOUTME: Pure function with no store access so it can be tested in isolation
package core

import "github.com/harper/sitjournal/internal/models"

// Flatten picks the first phase whose skill matches frontier, else the last
// phase, else a no-signal block carrying the overall tendency.
func Flatten(phases []models.SkillPhase, frontier string, overall models.SamathaTendency) models.FlatSignals {
	if len(phases) == 0 {
		tendency := overall
		if tendency == "" {
			tendency = models.SamathaNone
		}
		return models.FlatSignals{
			SamathaTendency:     tendency,
			HindranceConditions: []string{},
			TechniquesMentioned: []string{},
		}
	}

	chosen := phases[len(phases)-1]
	for _, p := range phases {
		if p.SkillID == frontier {
			chosen = p
			break
		}
	}

	tendency := chosen.SamathaTendency
	if tendency == "" {
		tendency = models.SamathaNone
	}

	return models.FlatSignals{
		SamathaTendency:     tendency,
		MarkerPresent:       len(chosen.MarkersObserved) > 0,
		HindrancePresent:    len(chosen.HindrancesObserved) > 0,
		HindranceConditions: nonNil(chosen.HindranceConditions),
		BalanceApproach:     optional(chosen.BalanceApproach),
		KeyUnderstanding:    optional(chosen.KeyUnderstanding),
		TechniquesMentioned: nonNil(chosen.Techniques),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
