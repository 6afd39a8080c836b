// ABOUTME: Tests for rollup storage keyed by window
// ABOUTME: Verifies upsert replaces rather than duplicates and range listing
package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

func weekly(user, start, end string, ids ...string) *models.RollupSummary {
	avg := 3.5
	return &models.RollupSummary{
		UserID:             user,
		Type:               models.RollupWeekly,
		DateRangeStart:     start,
		DateRangeEnd:       end,
		EntryIDs:           ids,
		Summary:            "a steady week",
		KeyThemes:          []string{"patience"},
		MoodTrend:          models.MoodStable,
		SamathaTrend:       models.SamathaSteady,
		HindranceFrequency: map[string]int{"tired": 2},
		AvgMoodScore:       &avg,
		EntryCount:         len(ids),
	}
}

func TestRollupUpsertReplaces(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first := weekly("u1", "2026-03-02", "2026-03-08", "a", "b", "c")
	if err := s.Rollups.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	second := weekly("u1", "2026-03-02", "2026-03-08", "a", "b", "c", "d")
	second.Summary = "a fuller week"
	if err := s.Rollups.Upsert(ctx, second); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := s.Rollups.Get(ctx, "u1", models.RollupWeekly, "2026-03-02", "2026-03-08")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Summary != "a fuller week" || got.EntryCount != 4 || len(got.EntryIDs) != 4 {
		t.Errorf("Get() = %+v", got)
	}
	if got.ID != first.ID {
		t.Errorf("row id changed on upsert: %s != %s", got.ID, first.ID)
	}
	if got.HindranceFrequency["tired"] != 2 {
		t.Errorf("HindranceFrequency = %v", got.HindranceFrequency)
	}
	if got.AvgMoodScore == nil || *got.AvgMoodScore != 3.5 {
		t.Errorf("AvgMoodScore = %v", got.AvgMoodScore)
	}

	var n int
	if err := s.DB().Conn().QueryRow(`SELECT COUNT(*) FROM rollups`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rollup rows = %d, want 1", n)
	}

	if _, err := s.Rollups.Get(ctx, "u1", models.RollupMonthly, "2026-03-01", "2026-03-31"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRollupListAndUsersWith(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	windows := [][2]string{
		{"2026-03-02", "2026-03-08"},
		{"2026-03-09", "2026-03-15"},
		{"2026-03-16", "2026-03-22"},
		{"2026-02-23", "2026-03-01"},
	}
	for _, w := range windows {
		if err := s.Rollups.Upsert(ctx, weekly("u1", w[0], w[1], "x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Rollups.Upsert(ctx, weekly("u2", "2026-03-02", "2026-03-08", "y")); err != nil {
		t.Fatal(err)
	}

	list, err := s.Rollups.List(ctx, "u1", models.RollupWeekly, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() returned %d, want 3", len(list))
	}
	if list[0].DateRangeStart != "2026-03-02" {
		t.Errorf("List() should be oldest first, got %s", list[0].DateRangeStart)
	}

	users, err := s.Rollups.UsersWith(ctx, models.RollupWeekly, "2026-03-01", "2026-03-31", 3)
	if err != nil {
		t.Fatalf("UsersWith() error = %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("UsersWith() = %v, want [u1]", users)
	}
}
