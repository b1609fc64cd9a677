// Package db keeps a local sqlite journal of everything the rig sent (or
// failed to send) to the ingestion service.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/fabric.inspect/internal/timeutil"
)

// Status values stored in the journal.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ErrClosed is returned by journal writes issued after Close.
var ErrClosed = errors.New("journal closed")

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock

	// mu is held for reading by journal writes and for writing by Close, so
	// Close waits for in-flight writes and later writes see closed.
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the journal at path and applies migrations.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close waits for in-flight journal writes and closes the database.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.DB.Close()
}

// write runs fn unless the journal has been closed.
func (db *DB) write(fn func() error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return fn()
}

// WithClock replaces the clock used to stamp journal rows.
func (db *DB) WithClock(c timeutil.Clock) *DB {
	db.clock = c
	return db
}

// Path returns the journal file path.
func (db *DB) Path() string { return db.path }

func (db *DB) nowUnix() float64 {
	return unixSeconds(db.clock.Now())
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
