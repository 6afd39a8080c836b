// ABOUTME: Nudge is a short reflection prompt shown before writing
package models

// NudgeKind identifies which part of the reflection framework a nudge serves
type NudgeKind string

const (
	NudgeSamatha       NudgeKind = "samatha"
	NudgePattern       NudgeKind = "pattern"
	NudgeBalance       NudgeKind = "balance"
	NudgeUnderstanding NudgeKind = "understanding"
	NudgeCuriosity     NudgeKind = "curiosity"
)

// Nudge is one prompt with its ranking priority
type Nudge struct {
	Kind     NudgeKind `json:"kind"`
	Text     string    `json:"text"`
	Priority int       `json:"priority"`
}
