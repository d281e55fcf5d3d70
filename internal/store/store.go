// Package store is the durable persistence layer of the judge. A single
// sqlite database holds tasks, tests, contest configuration, participant
// progress, submission code, judging history, rosters and frozen boards.
//
// Concurrency follows a single-writer discipline: one mutex serializes every
// write while readers run on their own pooled connections. The database is
// opened in WAL mode so readers never block the writer.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Store owns the sqlite database.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	logger  *logrus.Entry
}

// Open opens (creating if needed) the database at path and applies the
// schema. Pass ":memory:" for an in-memory database in tests.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	dsn := path
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=60000;",
		"PRAGMA cache_size=-64000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{
		db:     db,
		logger: logger.WithField("component", "store"),
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT, difficulty TEXT, topic TEXT, description TEXT,
			attachment BLOB, file_format TEXT, checker_code TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL,
			test_input TEXT, expected_output TEXT, time_limit REAL,
			FOREIGN KEY(task_id) REFERENCES tasks(id)
		)`,
		`CREATE TABLE IF NOT EXISTS contest_configs (
			contest_id TEXT PRIMARY KEY,
			name TEXT,
			task_ids_json TEXT,
			status TEXT DEFAULT 'waiting',
			duration_minutes INTEGER DEFAULT 300,
			scoring_type TEXT DEFAULT 'icpc',
			mode TEXT DEFAULT 'free',
			allowed_languages TEXT,
			freeze_minutes INTEGER DEFAULT 0,
			start_time REAL
		)`,
		`CREATE TABLE IF NOT EXISTS contest_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contest_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			nickname TEXT NOT NULL,
			organization TEXT,
			total_score INTEGER,
			task_scores TEXT,
			disqualified BOOLEAN DEFAULT 0,
			UNIQUE(contest_id, participant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS contest_submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contest_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			nickname TEXT NOT NULL,
			task_submissions TEXT,
			UNIQUE(contest_id, participant_id)
		)`,
		`CREATE TABLE IF NOT EXISTS contest_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contest_id TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			task_id INTEGER NOT NULL,
			language TEXT,
			verdict TEXT,
			tests_passed INTEGER,
			total_tests INTEGER,
			timestamp REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_contest
			ON contest_history(contest_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS whitelist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contest_id TEXT NOT NULL,
			nickname TEXT NOT NULL,
			organization TEXT,
			password TEXT NOT NULL,
			UNIQUE(contest_id, nickname)
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_contests (
			contest_id TEXT PRIMARY KEY,
			name TEXT,
			start_time REAL,
			config_json TEXT,
			task_ids_json TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS frozen_boards (
			contest_id TEXT PRIMARY KEY,
			frozen_json TEXT,
			final_json TEXT,
			freeze_time REAL,
			is_revealed BOOLEAN DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// epoch converts a time to the REAL epoch-seconds representation used in the
// database; the zero time maps to NULL via nullEpoch.
func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func nullEpoch(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return epoch(t)
}

func fromEpoch(v sql.NullFloat64) time.Time {
	if !v.Valid || v.Float64 == 0 {
		return time.Time{}
	}
	sec := int64(v.Float64)
	nsec := int64((v.Float64 - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
