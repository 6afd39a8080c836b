// ABOUTME: Journal entry storage operations for SQLite
// ABOUTME: Signal blocks are stored as one JSON column written together with processed_at
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// EntryStore handles entry persistence
type EntryStore struct {
	db *DB
}

// NewEntryStore creates a new EntryStore
func NewEntryStore(db *DB) *EntryStore {
	return &EntryStore{db: db}
}

const entryColumns = `id, user_id, created_at, entry_date, type, content, skill_id,
	track_progress, signals, processed_at, updated_at`

// Create inserts a new entry
func (s *EntryStore) Create(ctx context.Context, e *models.Entry) error {
	signals, err := encodeSignals(e.Signals)
	if err != nil {
		return err
	}

	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, formatTime(e.CreatedAt), e.EntryDate, string(e.Type), e.Content,
		e.SkillID, boolInt(e.TrackProgress), signals, nullTime(e.ProcessedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return storeErr("create entry", err)
	}
	return nil
}

// Get retrieves an entry by id
func (s *EntryStore) Get(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get entry", err)
	}
	return e, nil
}

// Query lists entries matching the filter
func (s *EntryStore) Query(ctx context.Context, f storage.EntryFilter) ([]*models.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.SkillID != "" {
		where = append(where, "skill_id = ?")
		args = append(args, f.SkillID)
	}
	if f.TrackProgress != nil {
		where = append(where, "track_progress = ?")
		args = append(args, boolInt(*f.TrackProgress))
	}
	if f.ProcessedOnly {
		where = append(where, "processed_at IS NOT NULL AND signals IS NOT NULL")
	}
	if f.DateFrom != "" {
		where = append(where, "entry_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		where = append(where, "entry_date <= ?")
		args = append(args, f.DateTo)
	}
	if !f.CreatedFrom.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.CreatedFrom))
	}
	if !f.CreatedTo.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(f.CreatedTo))
	}

	q := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		q += ` ORDER BY created_at DESC, id DESC`
	} else {
		q += ` ORDER BY created_at ASC, id ASC`
	}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("query entries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate entries", err)
	}
	return out, nil
}

// UpdateContent replaces the raw text of an entry
func (s *EntryStore) UpdateContent(ctx context.Context, id, content string, now time.Time) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE entries SET content = ?, updated_at = ? WHERE id = ?`,
		content, formatTime(now), id)
	if err != nil {
		return storeErr("update entry content", err)
	}
	return expectOne(res, "entry", id)
}

// UpdateSignals persists the full signal block and processed_at atomically
func (s *EntryStore) UpdateSignals(ctx context.Context, id string, signals *models.SignalBlock, processedAt time.Time) error {
	if signals == nil {
		return fmt.Errorf("signal block cannot be nil")
	}
	encoded, err := encodeSignals(signals)
	if err != nil {
		return err
	}

	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE entries SET signals = ?, processed_at = ?, updated_at = ? WHERE id = ?`,
		encoded, formatTime(processedAt), formatTime(processedAt), id)
	if err != nil {
		return storeErr("update entry signals", err)
	}
	return expectOne(res, "entry", id)
}

// Delete removes an entry
func (s *EntryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete entry", err)
	}
	return expectOne(res, "entry", id)
}

// EntryDays counts entries per day key; days without entries map to zero
func (s *EntryStore) EntryDays(ctx context.Context, userID string, days []string) (map[string]int, error) {
	counts := make(map[string]int, len(days))
	if len(days) == 0 {
		return counts, nil
	}

	placeholders := make([]string, len(days))
	args := []any{userID}
	for i, d := range days {
		placeholders[i] = "?"
		args = append(args, d)
		counts[d] = 0
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT entry_date, COUNT(*) FROM entries
		WHERE user_id = ? AND entry_date IN (`+strings.Join(placeholders, ",")+`)
		GROUP BY entry_date
	`, args...)
	if err != nil {
		return nil, storeErr("count entry days", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			day string
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			return nil, storeErr("scan entry day", err)
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate entry days", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*models.Entry, error) {
	var (
		e           models.Entry
		typ         string
		track       int
		createdAt   string
		updatedAt   string
		signals     sql.NullString
		processedAt sql.NullString
	)
	if err := r.Scan(&e.ID, &e.UserID, &createdAt, &e.EntryDate, &typ, &e.Content, &e.SkillID,
		&track, &signals, &processedAt, &updatedAt); err != nil {
		return nil, err
	}

	e.Type = models.EntryType(typ)
	e.TrackProgress = track != 0

	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t, err := parseTime(processedAt.String)
		if err != nil {
			return nil, err
		}
		e.ProcessedAt = &t
	}
	if signals.Valid && signals.String != "" {
		var block models.SignalBlock
		if err := json.Unmarshal([]byte(signals.String), &block); err != nil {
			return nil, fmt.Errorf("decode signals for %s: %w", e.ID, err)
		}
		e.Signals = &block
	}
	return &e, nil
}

func encodeSignals(b *models.SignalBlock) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode signals: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
