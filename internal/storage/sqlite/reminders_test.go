// ABOUTME: Tests for reminder state storage
// ABOUTME: Verifies the suppression timestamp round-trips and clears
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

func TestReminderSaveAndGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Reminders.Get(ctx, "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	st := models.DefaultReminderState("u1")
	since := time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC)
	st.JournalSuppressedSince = &since
	if err := s.Reminders.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Reminders.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Suppressed() || !got.JournalSuppressedSince.Equal(since) {
		t.Errorf("suppression not persisted: %+v", got)
	}
	if got.MeditationTime != "07:00" || !got.JournalEnabled {
		t.Errorf("settings not persisted: %+v", got)
	}

	got.JournalSuppressedSince = nil
	got.JournalTime = "21:30"
	if err := s.Reminders.Save(ctx, got); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	got, _ = s.Reminders.Get(ctx, "u1")
	if got.Suppressed() || got.JournalTime != "21:30" {
		t.Errorf("update not persisted: %+v", got)
	}
}
