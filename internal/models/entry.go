// ABOUTME: Entry is one journal row plus its asynchronously extracted signal block
// ABOUTME: Identity fields are immutable; content and signals are the only mutable parts
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryType distinguishes reflections from questions
type EntryType string

const (
	EntryReflect EntryType = "reflect"
	EntryAsk     EntryType = "ask"
)

// Valid reports whether t is a known entry type
func (t EntryType) Valid() bool {
	return t == EntryReflect || t == EntryAsk
}

// SamathaTendency rates how strongly a session tended toward calm
type SamathaTendency string

const (
	SamathaNone     SamathaTendency = "none"
	SamathaWeak     SamathaTendency = "weak"
	SamathaModerate SamathaTendency = "moderate"
	SamathaStrong   SamathaTendency = "strong"
)

var samathaScale = []SamathaTendency{SamathaNone, SamathaWeak, SamathaModerate, SamathaStrong}

// ParseSamatha normalizes model output; anything unknown becomes none
func ParseSamatha(s string) SamathaTendency {
	v := SamathaTendency(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range samathaScale {
		if v == known {
			return v
		}
	}
	return SamathaNone
}

// Index maps none..strong onto 0..3
func (s SamathaTendency) Index() int {
	for i, known := range samathaScale {
		if s == known {
			return i
		}
	}
	return 0
}

// SamathaFromIndex is the inverse of Index, clamped to the scale
func SamathaFromIndex(i int) SamathaTendency {
	if i < 0 {
		i = 0
	}
	if i >= len(samathaScale) {
		i = len(samathaScale) - 1
	}
	return samathaScale[i]
}

// SkillPhase captures what was observed for one skill within one session
type SkillPhase struct {
	SkillID             string          `json:"skill_id"`
	MarkersObserved     []string        `json:"markers_observed"`
	HindrancesObserved  []string        `json:"hindrances_observed"`
	SamathaTendency     SamathaTendency `json:"samatha_tendency"`
	Notes               string          `json:"notes,omitempty"`
	Techniques          []string        `json:"techniques"`
	HindranceConditions []string        `json:"hindrance_conditions,omitempty"`
	BalanceApproach     string          `json:"balance_approach,omitempty"`
	KeyUnderstanding    string          `json:"key_understanding,omitempty"`
}

// FlatSignals are the legacy single-skill fields derived from the phase list
type FlatSignals struct {
	SamathaTendency     SamathaTendency `json:"samatha_tendency"`
	MarkerPresent       bool            `json:"marker_present"`
	HindrancePresent    bool            `json:"hindrance_present"`
	HindranceConditions []string        `json:"hindrance_conditions"`
	BalanceApproach     *string         `json:"balance_approach"`
	KeyUnderstanding    *string         `json:"key_understanding"`
	TechniquesMentioned []string        `json:"techniques_mentioned"`
}

// SignalBlock is the persisted output of signal extraction.
// Field names are the stable schema legacy consumers read.
type SignalBlock struct {
	FrontierSkillInferred  string          `json:"frontier_skill_inferred"`
	SkillPhases            []SkillPhase    `json:"skill_phases"`
	OverallSamathaTendency SamathaTendency `json:"overall_samatha_tendency"`

	FlatSignals

	Summary            string   `json:"summary"`
	MoodScore          *int     `json:"mood_score"`
	MoodTags           []string `json:"mood_tags"`
	Themes             []string `json:"themes"`
	HasBreakthrough    bool     `json:"has_breakthrough"`
	HasStruggle        bool     `json:"has_struggle"`
	HasCrisisFlag      bool     `json:"has_crisis_flag"`
	ProgressionSignals []string `json:"progression_signals"`
}

// Entry is a journal row
type Entry struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	CreatedAt     time.Time    `json:"created_at"`
	EntryDate     string       `json:"entry_date"`
	Type          EntryType    `json:"type"`
	Content       string       `json:"content"`
	SkillID       string       `json:"skill_id"`
	TrackProgress bool         `json:"track_progress"`
	Signals       *SignalBlock `json:"signals,omitempty"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Processed reports whether extraction has completed for the entry
func (e *Entry) Processed() bool {
	return e.ProcessedAt != nil && e.Signals != nil
}

// NewEntry builds an entry with a fresh id; EntryDate must already be the local day key
func NewEntry(userID string, typ EntryType, content, skillID, entryDate string, trackProgress bool, now time.Time) (*Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id cannot be empty")
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown entry type %q", typ)
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("content cannot be empty")
	}
	if entryDate == "" {
		return nil, errors.New("entry date cannot be empty")
	}
	return &Entry{
		ID:            "entry_" + uuid.New().String(),
		UserID:        userID,
		CreatedAt:     now.UTC(),
		EntryDate:     entryDate,
		Type:          typ,
		Content:       content,
		SkillID:       skillID,
		TrackProgress: trackProgress,
		UpdatedAt:     now.UTC(),
	}, nil
}
