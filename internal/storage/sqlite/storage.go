// ABOUTME: Unified Storage layer that wraps all SQLite stores
// ABOUTME: Hands the pipeline one value satisfying every store contract
package sqlite

import (
	"fmt"

	"github.com/harper/sitjournal/internal/storage"
)

// Storage manages all persistent journal data
type Storage struct {
	db        *DB
	Entries   *EntryStore
	Users     *UserStore
	Rollups   *RollupStore
	Reminders *ReminderStore
}

var (
	_ storage.EntryStore    = (*EntryStore)(nil)
	_ storage.UserStore     = (*UserStore)(nil)
	_ storage.RollupStore   = (*RollupStore)(nil)
	_ storage.ReminderStore = (*ReminderStore)(nil)
)

// NewStorageWithPath initializes storage with a custom database path
func NewStorageWithPath(dbPath string) (*Storage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStorage(db), nil
}

// NewStorageInMemory creates an in-memory storage (for testing)
func NewStorageInMemory() (*Storage, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return newStorage(db), nil
}

func newStorage(db *DB) *Storage {
	return &Storage{
		db:        db,
		Entries:   NewEntryStore(db),
		Users:     NewUserStore(db),
		Rollups:   NewRollupStore(db),
		Reminders: NewReminderStore(db),
	}
}

// DB exposes the underlying database
func (s *Storage) DB() *DB {
	return s.db
}

// Close closes the storage
func (s *Storage) Close() error {
	return s.db.Close()
}
