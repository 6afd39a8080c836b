// ABOUTME: Rollup summary storage keyed by (user, type, date range)
// ABOUTME: Upsert overwrites the row for an existing window instead of duplicating it
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// RollupStore handles weekly and monthly summary persistence
type RollupStore struct {
	db  *DB
	now func() time.Time
}

// NewRollupStore creates a new RollupStore
func NewRollupStore(db *DB) *RollupStore {
	return &RollupStore{db: db, now: time.Now}
}

const rollupColumns = `id, user_id, type, date_range_start, date_range_end, entry_ids, summary,
	key_themes, mood_trend, samatha_trend, notable_events, hindrance_frequency, techniques_used,
	avg_mood_score, entry_count, created_at, updated_at`

// Get retrieves the summary for one window
func (s *RollupStore) Get(ctx context.Context, userID string, typ models.RollupType, start, end string) (*models.RollupSummary, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT `+rollupColumns+` FROM rollups
		WHERE user_id = ? AND type = ? AND date_range_start = ? AND date_range_end = ?
	`, userID, string(typ), start, end)
	r, err := scanRollup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s rollup %s..%s: %w", typ, start, end, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get rollup", err)
	}
	return r, nil
}

// Upsert inserts or replaces the summary for its window
func (s *RollupStore) Upsert(ctx context.Context, r *models.RollupSummary) error {
	now := s.now().UTC()
	if r.ID == "" {
		r.ID = "rollup_" + uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	fields := []any{r.EntryIDs, r.KeyThemes, r.NotableEvents, r.HindranceFrequency, r.TechniquesUsed}
	encoded := make([]string, len(fields))
	for i, f := range fields {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("failed to encode rollup: %w", err)
		}
		encoded[i] = string(data)
	}

	var avg sql.NullFloat64
	if r.AvgMoodScore != nil {
		avg = sql.NullFloat64{Float64: *r.AvgMoodScore, Valid: true}
	}

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO rollups (`+rollupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, type, date_range_start, date_range_end) DO UPDATE SET
			entry_ids = excluded.entry_ids,
			summary = excluded.summary,
			key_themes = excluded.key_themes,
			mood_trend = excluded.mood_trend,
			samatha_trend = excluded.samatha_trend,
			notable_events = excluded.notable_events,
			hindrance_frequency = excluded.hindrance_frequency,
			techniques_used = excluded.techniques_used,
			avg_mood_score = excluded.avg_mood_score,
			entry_count = excluded.entry_count,
			updated_at = excluded.updated_at
	`, r.ID, r.UserID, string(r.Type), r.DateRangeStart, r.DateRangeEnd, encoded[0], r.Summary,
		encoded[1], r.MoodTrend, r.SamathaTrend, encoded[2], encoded[3], encoded[4],
		avg, r.EntryCount, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return storeErr("upsert rollup", err)
	}
	return nil
}

// List returns summaries whose start day lies in [from, to], oldest first
func (s *RollupStore) List(ctx context.Context, userID string, typ models.RollupType, from, to string) ([]*models.RollupSummary, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+rollupColumns+` FROM rollups
		WHERE user_id = ? AND type = ? AND date_range_start >= ? AND date_range_start <= ?
		ORDER BY date_range_start ASC
	`, userID, string(typ), from, to)
	if err != nil {
		return nil, storeErr("list rollups", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.RollupSummary
	for rows.Next() {
		r, err := scanRollup(rows)
		if err != nil {
			return nil, storeErr("scan rollup", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate rollups", err)
	}
	return out, nil
}

// UsersWith returns users having at least min summaries of typ starting in [from, to]
func (s *RollupStore) UsersWith(ctx context.Context, typ models.RollupType, from, to string, min int) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT user_id FROM rollups
		WHERE type = ? AND date_range_start >= ? AND date_range_start <= ?
		GROUP BY user_id
		HAVING COUNT(*) >= ?
		ORDER BY user_id
	`, string(typ), from, to, min)
	if err != nil {
		return nil, storeErr("list rollup users", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan rollup user", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate rollup users", err)
	}
	return ids, nil
}

func scanRollup(r rowScanner) (*models.RollupSummary, error) {
	var (
		out                                    models.RollupSummary
		typ, entryIDs, createdAt, updatedAt    string
		themes, events, hindrances, techniques sql.NullString
		avg                                    sql.NullFloat64
	)
	if err := r.Scan(&out.ID, &out.UserID, &typ, &out.DateRangeStart, &out.DateRangeEnd, &entryIDs,
		&out.Summary, &themes, &out.MoodTrend, &out.SamathaTrend, &events, &hindrances, &techniques,
		&avg, &out.EntryCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	out.Type = models.RollupType(typ)

	if err := json.Unmarshal([]byte(entryIDs), &out.EntryIDs); err != nil {
		return nil, fmt.Errorf("decode entry ids: %w", err)
	}
	decodeList(themes, &out.KeyThemes)
	decodeList(events, &out.NotableEvents)
	decodeList(techniques, &out.TechniquesUsed)
	if hindrances.Valid && hindrances.String != "" {
		if err := json.Unmarshal([]byte(hindrances.String), &out.HindranceFrequency); err != nil {
			out.HindranceFrequency = map[string]int{}
		}
	}
	if avg.Valid {
		v := avg.Float64
		out.AvgMoodScore = &v
	}

	var err error
	if out.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if out.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeList tolerates a damaged list column the way profile lists do
func decodeList(col sql.NullString, dst *[]string) {
	if !col.Valid || col.String == "" {
		*dst = []string{}
		return
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil || *dst == nil {
		*dst = []string{}
	}
}
