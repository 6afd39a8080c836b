// ABOUTME: Reminder settings storage, one row per user
// ABOUTME: A missing row reads as ErrNotFound so callers can fall back to defaults
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// ReminderStore handles reminder state persistence
type ReminderStore struct {
	db  *DB
	now func() time.Time
}

// NewReminderStore creates a new ReminderStore
func NewReminderStore(db *DB) *ReminderStore {
	return &ReminderStore{db: db, now: time.Now}
}

// Get retrieves a user's reminder state
func (s *ReminderStore) Get(ctx context.Context, userID string) (models.ReminderState, error) {
	var (
		st         models.ReminderState
		enabled    int
		suppressed sql.NullString
		updatedAt  string
	)
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT user_id, meditation_time, journal_enabled, journal_time, journal_suppressed_since, updated_at
		FROM reminder_states WHERE user_id = ?
	`, userID).Scan(&st.UserID, &st.MeditationTime, &enabled, &st.JournalTime, &suppressed, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReminderState{}, fmt.Errorf("reminders for %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return models.ReminderState{}, storeErr("get reminder state", err)
	}

	st.JournalEnabled = enabled != 0
	if suppressed.Valid {
		t, err := parseTime(suppressed.String)
		if err != nil {
			return models.ReminderState{}, err
		}
		st.JournalSuppressedSince = &t
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return models.ReminderState{}, err
	}
	return st, nil
}

// Save inserts or replaces a user's reminder state
func (s *ReminderStore) Save(ctx context.Context, st models.ReminderState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO reminder_states (user_id, meditation_time, journal_enabled, journal_time, journal_suppressed_since, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			meditation_time = excluded.meditation_time,
			journal_enabled = excluded.journal_enabled,
			journal_time = excluded.journal_time,
			journal_suppressed_since = excluded.journal_suppressed_since,
			updated_at = excluded.updated_at
	`, st.UserID, st.MeditationTime, boolInt(st.JournalEnabled), st.JournalTime,
		nullTime(st.JournalSuppressedSince), formatTime(st.UpdatedAt))
	if err != nil {
		return storeErr("save reminder state", err)
	}
	return nil
}
