// ABOUTME: Guidance is the pre-session object shown before a sit
// ABOUTME: Regenerated whenever the entry set changes; overwritten, never versioned
package models

import "time"

// ReadingExcerpt is a verbatim catalog passage for a skill near the frontier
type ReadingExcerpt struct {
	SkillID   string `json:"skill_id"`
	SkillName string `json:"skill_name"`
	Excerpt   string `json:"excerpt"`
}

// RecurringHindrance is a hindrance seen at least twice recently
type RecurringHindrance struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	Conditions []string `json:"conditions"`
}

// RecurringMarker is a marker seen at least twice recently
type RecurringMarker struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Guidance is persisted on the user record
type Guidance struct {
	FrontierSkillID     string               `json:"frontier_skill_id"`
	FrontierSkillName   string               `json:"frontier_skill_name"`
	ReadingMaterial     []ReadingExcerpt     `json:"reading_material"`
	RecurringHindrances []RecurringHindrance `json:"recurring_hindrances"`
	RecurringMarkers    []RecurringMarker    `json:"recurring_markers"`
	SelfAdvice          string               `json:"self_advice"`
	GeneratedAt         time.Time            `json:"generated_at"`
}
