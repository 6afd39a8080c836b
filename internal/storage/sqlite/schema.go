// ABOUTME: Embedded goose migrations for the journal database
// ABOUTME: Timestamps are stored as fixed-width UTC text so they sort lexically
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"time"
)

// MigrationFS holds the versioned SQL migrations
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
