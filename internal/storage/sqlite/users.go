// ABOUTME: User practice state storage with optimistic concurrency
// ABOUTME: Every mutation goes through Update, which compares and swaps on the version column
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// maxUpdateAttempts bounds compare-and-swap retries before ErrVersionConflict
const maxUpdateAttempts = 5

// UserStore handles user state persistence
type UserStore struct {
	db  *DB
	now func() time.Time
}

// NewUserStore creates a new UserStore
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db, now: time.Now}
}

const userColumns = `id, current_skill, streak, current_skill_days, total_sessions, last_entry_date,
	onboarding, pre_sit_guidance, progress_report, version, created_at, updated_at`

// Get retrieves a user's state
func (s *UserStore) Get(ctx context.Context, userID string) (*models.UserState, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

// GetOrCreate returns the user's state, creating it at initialSkill when absent
func (s *UserStore) GetOrCreate(ctx context.Context, userID, initialSkill string) (*models.UserState, error) {
	now := formatTime(s.now())
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO users (id, current_skill, version, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, userID, initialSkill, now, now)
	if err != nil {
		return nil, storeErr("create user", err)
	}
	return s.Get(ctx, userID)
}

// Update applies mutate to a fresh copy of the user's state and writes it
// only if nobody else wrote in between. A mutate error aborts without writing.
func (s *UserStore) Update(ctx context.Context, userID string, mutate func(*models.UserState) error) (*models.UserState, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		version := current.Version

		if err := mutate(current); err != nil {
			return nil, err
		}

		current.Version = version + 1
		current.UpdatedAt = s.now().UTC()

		ok, err := s.swap(ctx, current, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return current, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w after %d attempts", userID, storage.ErrVersionConflict, maxUpdateAttempts)
}

func (s *UserStore) swap(ctx context.Context, u *models.UserState, expected int64) (bool, error) {
	guidance, err := encodeJSON(u.PreSitGuidance)
	if err != nil {
		return false, err
	}
	report, err := encodeJSON(u.ProgressReport)
	if err != nil {
		return false, err
	}
	var onboarding sql.NullString
	if len(u.Onboarding) > 0 {
		onboarding = sql.NullString{String: string(u.Onboarding), Valid: true}
	}

	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE users SET
			current_skill = ?,
			streak = ?,
			current_skill_days = ?,
			total_sessions = ?,
			last_entry_date = ?,
			onboarding = ?,
			pre_sit_guidance = ?,
			progress_report = ?,
			version = ?,
			updated_at = ?
		WHERE id = ? AND version = ?
	`, u.CurrentSkill, u.Stats.Streak, u.Stats.CurrentSkillDays, u.Stats.TotalSessions,
		u.Stats.LastEntryDate, onboarding, guidance, report, u.Version, formatTime(u.UpdatedAt),
		u.UserID, expected)
	if err != nil {
		return false, storeErr("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("rows affected", err)
	}
	return n == 1, nil
}

// List returns every known user id
func (s *UserStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan user", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate users", err)
	}
	return ids, nil
}

func scanUser(r rowScanner) (*models.UserState, error) {
	var (
		u          models.UserState
		onboarding sql.NullString
		guidance   sql.NullString
		report     sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := r.Scan(&u.UserID, &u.CurrentSkill, &u.Stats.Streak, &u.Stats.CurrentSkillDays,
		&u.Stats.TotalSessions, &u.Stats.LastEntryDate, &onboarding, &guidance, &report,
		&u.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if onboarding.Valid {
		u.Onboarding = json.RawMessage(onboarding.String)
	}
	if guidance.Valid && guidance.String != "" {
		var g models.Guidance
		if err := json.Unmarshal([]byte(guidance.String), &g); err != nil {
			return nil, fmt.Errorf("decode guidance: %w", err)
		}
		u.PreSitGuidance = &g
	}
	if report.Valid && report.String != "" {
		var p models.ProgressReport
		if err := json.Unmarshal([]byte(report.String), &p); err != nil {
			return nil, fmt.Errorf("decode progress report: %w", err)
		}
		u.ProgressReport = &p
	}
	return &u, nil
}

func encodeJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
