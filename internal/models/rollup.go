// ABOUTME: RollupSummary is a weekly or monthly narrative aggregate
// ABOUTME: One row per (user, type, date range); EntryIDs drive the idempotence check
package models

import "time"

// RollupType is weekly or monthly
type RollupType string

const (
	RollupWeekly  RollupType = "weekly"
	RollupMonthly RollupType = "monthly"
)

// MoodTrend classifications
const (
	MoodImproving   = "improving"
	MoodStable      = "stable"
	MoodChallenging = "challenging"
	MoodVariable    = "variable"
)

// SamathaTrend classifications
const (
	SamathaStrengthening = "strengthening"
	SamathaSteady        = "stable"
	SamathaStruggling    = "struggling"
	SamathaVariable      = "variable"
)

// RollupSummary is one aggregate row
type RollupSummary struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	Type               RollupType     `json:"type"`
	DateRangeStart     string         `json:"date_range_start"`
	DateRangeEnd       string         `json:"date_range_end"`
	EntryIDs           []string       `json:"entry_ids"`
	Summary            string         `json:"summary"`
	KeyThemes          []string       `json:"key_themes"`
	MoodTrend          string         `json:"mood_trend"`
	SamathaTrend       string         `json:"samatha_trend"`
	NotableEvents      []string       `json:"notable_events"`
	HindranceFrequency map[string]int `json:"hindrance_frequency"`
	TechniquesUsed     []string       `json:"techniques_used"`
	AvgMoodScore       *float64       `json:"avg_mood_score"`
	EntryCount         int            `json:"entry_count"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
