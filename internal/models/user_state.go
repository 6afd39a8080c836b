// ABOUTME: UserState is the per-user practice record the pipeline reads then writes
// ABOUTME: Version enables compare-and-swap updates through a single mutation path
package models

import (
	"encoding/json"
	"time"
)

// Stats are the session counters maintained on entry creation
type Stats struct {
	Streak           int    `json:"streak"`
	CurrentSkillDays int    `json:"current_skill_days"`
	TotalSessions    int    `json:"total_sessions"`
	LastEntryDate    string `json:"last_entry_date,omitempty"`
}

// SkillProgress is one row of the cross-skill snapshot
type SkillProgress struct {
	SkillID           string          `json:"skill_id"`
	Sessions          int             `json:"sessions"`
	MarkerSessions    int             `json:"marker_sessions"`
	HindranceSessions int             `json:"hindrance_sessions"`
	LastSamatha       SamathaTendency `json:"last_samatha"`
}

// ProgressReport is the latest cross-skill snapshot, fed back into extraction as context
type ProgressReport struct {
	FrontierSkillInferred string          `json:"frontier_skill_inferred"`
	Skills                []SkillProgress `json:"skills"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Skill returns the row for skillID, or nil
func (r *ProgressReport) Skill(skillID string) *SkillProgress {
	if r == nil {
		return nil
	}
	for i := range r.Skills {
		if r.Skills[i].SkillID == skillID {
			return &r.Skills[i]
		}
	}
	return nil
}

// UserState is the per-user singleton
type UserState struct {
	UserID         string          `json:"user_id"`
	CurrentSkill   string          `json:"current_skill"`
	Stats          Stats           `json:"stats"`
	Onboarding     json.RawMessage `json:"onboarding,omitempty"`
	PreSitGuidance *Guidance       `json:"pre_sit_guidance,omitempty"`
	ProgressReport *ProgressReport `json:"progress_report,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
