// ABOUTME: Progression engine evaluating advancement criteria and moving the current-skill pointer
// ABOUTME: Readiness is always recomputed server-side before any mutation
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// Advancement thresholds over the evaluation window
const (
	AdvanceWindow     = 50
	MinMarkerSessions = 3
	MinStrongSamatha  = 2
)

// Denial codes returned when advancement is refused
const (
	DenialNoNextSkill    = "no_next_skill"
	DenialCriteriaNotMet = "criteria_not_met"
	DenialStaleSkill     = "stale_skill"
)

// Readiness is the advancement evaluation for one skill
type Readiness struct {
	SkillID              string `json:"skill_id"`
	Window               int    `json:"window"`
	MarkerCount          int    `json:"marker_count"`
	StrongSamathaCount   int    `json:"strong_samatha_count"`
	HasProgressionSignal bool   `json:"has_progression_signal"`
	Ready                bool   `json:"ready"`
	ProgressPercent      int    `json:"progress_percent"`
	NextSkillID          string `json:"next_skill_id,omitempty"`
}

// Unmet lists the criteria still missing, in human-readable form
func (r Readiness) Unmet() []string {
	var out []string
	if r.MarkerCount < MinMarkerSessions {
		out = append(out, fmt.Sprintf("marker observed in %d of %d required sessions", r.MarkerCount, MinMarkerSessions))
	}
	if r.StrongSamathaCount < MinStrongSamatha {
		out = append(out, fmt.Sprintf("strong samatha in %d of %d required sessions", r.StrongSamathaCount, MinStrongSamatha))
	}
	if !r.HasProgressionSignal {
		out = append(out, "no progression signal recorded yet")
	}
	return out
}

// Denial explains why an advance was refused
type Denial struct {
	Code   string   `json:"code"`
	Reason string   `json:"reason"`
	Unmet  []string `json:"unmet,omitempty"`
}

// AdvanceResult is the outcome of an advance request
type AdvanceResult struct {
	Advanced        bool      `json:"advanced"`
	PreviousSkillID string    `json:"previous_skill_id"`
	NewSkillID      string    `json:"new_skill_id,omitempty"`
	Readiness       Readiness `json:"readiness"`
	Denial          *Denial   `json:"denial,omitempty"`
}

// EvaluateReadiness applies the advancement thresholds to a window of entries
func EvaluateReadiness(skillID string, entries []*models.Entry) Readiness {
	r := Readiness{SkillID: skillID, Window: len(entries)}
	for _, e := range entries {
		if e.Signals == nil || !e.TrackProgress || e.Type != models.EntryReflect {
			continue
		}
		if e.Signals.MarkerPresent {
			r.MarkerCount++
		}
		if e.Signals.SamathaTendency == models.SamathaStrong {
			r.StrongSamathaCount++
		}
		if len(e.Signals.ProgressionSignals) > 0 {
			r.HasProgressionSignal = true
		}
	}
	r.Ready = r.MarkerCount >= MinMarkerSessions &&
		r.StrongSamathaCount >= MinStrongSamatha &&
		r.HasProgressionSignal
	r.ProgressPercent = ProgressPercent(r)
	return r
}

// ProgressPercent weights markers up to 50, samatha up to 30, and a flat 20 for any progression signal
func ProgressPercent(r Readiness) int {
	markers := min(float64(r.MarkerCount)/MinMarkerSessions, 1) * 50
	samatha := min(float64(r.StrongSamathaCount)/MinStrongSamatha, 1) * 30
	pct := int(markers + samatha)
	if r.HasProgressionSignal {
		pct += 20
	}
	return pct
}

// Progression evaluates and applies skill advancement
type Progression struct {
	deps     Deps
	log      *logging.Logger
	guidance *GuidanceSynth
}

// NewProgression creates a Progression engine; guidance may be nil
func NewProgression(d Deps, guidance *GuidanceSynth) *Progression {
	d = d.withDefaults()
	return &Progression{deps: d, log: d.Logger.Named("progression"), guidance: guidance}
}

// NextSkill returns the successor of current, or false at the terminal skill
func (p *Progression) NextSkill(current string) (models.Skill, bool) {
	return p.deps.Catalog.Next(current)
}

// Readiness loads the window for skillID and evaluates it
func (p *Progression) Readiness(ctx context.Context, userID, skillID string) (Readiness, error) {
	entries, err := p.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		SkillID:       skillID,
		TrackProgress: storage.Tracked(),
		NewestFirst:   true,
		Limit:         AdvanceWindow,
	})
	if err != nil {
		return Readiness{}, err
	}
	r := EvaluateReadiness(skillID, entries)
	if next, ok := p.NextSkill(skillID); ok {
		r.NextSkillID = next.ID
	}
	return r, nil
}

var errSkillMoved = errors.New("current skill changed")

// Advance moves the user to the next skill if the stored current skill
// matches currentSkill and the criteria hold right now.
func (p *Progression) Advance(ctx context.Context, userID, currentSkill string) (AdvanceResult, error) {
	user, err := p.deps.Users.Get(ctx, userID)
	if err != nil {
		return AdvanceResult{}, err
	}
	skill := user.CurrentSkill
	res := AdvanceResult{PreviousSkillID: skill}

	if currentSkill != "" && currentSkill != skill {
		res.Denial = &Denial{
			Code:   DenialStaleSkill,
			Reason: fmt.Sprintf("current skill is %s, not %s", skill, currentSkill),
		}
		return res, nil
	}

	next, ok := p.NextSkill(skill)
	if !ok {
		res.Denial = &Denial{Code: DenialNoNextSkill, Reason: fmt.Sprintf("no next skill after %s", skill)}
		return res, nil
	}

	readiness, err := p.Readiness(ctx, userID, skill)
	if err != nil {
		return AdvanceResult{}, err
	}
	res.Readiness = readiness
	if !readiness.Ready {
		res.Denial = &Denial{
			Code:   DenialCriteriaNotMet,
			Reason: "criteria not met",
			Unmet:  readiness.Unmet(),
		}
		return res, nil
	}

	_, err = p.deps.Users.Update(ctx, userID, func(u *models.UserState) error {
		if u.CurrentSkill != skill {
			return errSkillMoved
		}
		u.CurrentSkill = next.ID
		u.Stats.CurrentSkillDays = 1
		return nil
	})
	if errors.Is(err, errSkillMoved) {
		res.Denial = &Denial{Code: DenialStaleSkill, Reason: "current skill changed during advance"}
		return res, nil
	}
	if err != nil {
		return AdvanceResult{}, err
	}

	res.Advanced = true
	res.NewSkillID = next.ID
	p.log.Info("skill advanced", "user", userID, "from", skill, "to", next.ID)

	if p.guidance != nil {
		p.deps.Executor.Submit(ctx, "guidance:"+userID, func(ctx context.Context) error {
			_, err := p.guidance.Regenerate(ctx, userID)
			return err
		})
	}
	return res, nil
}

// RecordSession updates streak and session counters for a newly written entry
func (p *Progression) RecordSession(ctx context.Context, entry *models.Entry) (*models.UserState, error) {
	cal := p.deps.Calendar
	return p.deps.Users.Update(ctx, entry.UserID, func(u *models.UserState) error {
		u.Stats.TotalSessions++

		last := u.Stats.LastEntryDate
		day := entry.EntryDate
		if last != "" && day <= last {
			// same day or a backdated entry
			return nil
		}

		if last != "" && cal.IsYesterday(last, day) {
			u.Stats.Streak++
		} else {
			u.Stats.Streak = 1
		}
		u.Stats.CurrentSkillDays++
		u.Stats.LastEntryDate = day
		return nil
	})
}
