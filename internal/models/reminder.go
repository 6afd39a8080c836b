// ABOUTME: ReminderState holds per-user reminder settings and the journal suppression flag
// ABOUTME: A nil JournalSuppressedSince means ACTIVE; set means SUPPRESSED
package models

import "time"

// ReminderState is persisted per user
type ReminderState struct {
	UserID                 string     `json:"user_id"`
	MeditationTime         string     `json:"meditation_time"`
	JournalEnabled         bool       `json:"journal_enabled"`
	JournalTime            string     `json:"journal_time"`
	JournalSuppressedSince *time.Time `json:"journal_suppressed_since"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Suppressed reports whether the journal reminder is in the SUPPRESSED state
func (r ReminderState) Suppressed() bool {
	return r.JournalSuppressedSince != nil
}

// DefaultReminderState is the initial ACTIVE state for a new user
func DefaultReminderState(userID string) ReminderState {
	return ReminderState{
		UserID:         userID,
		MeditationTime: "07:00",
		JournalEnabled: true,
		JournalTime:    "20:00",
	}
}

// ReminderPlan is what the device should schedule for today
type ReminderPlan struct {
	MeditationAt    string `json:"meditation_at"`
	JournalAt       string `json:"journal_at,omitempty"`
	JournalReminder bool   `json:"journal_reminder"`
	Reason          string `json:"reason,omitempty"`
}
