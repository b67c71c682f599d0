// Package store persists journal records in SQLite.
//
// Every query is scoped by user id. Timestamps are stored as fixed-width
// UTC text so lexical order matches chronological order, and list columns
// (tags, emotions) are stored as JSON arrays.
//
// Uniqueness that the analyzers rely on is enforced by indexes:
//
//   - perspective_cards(user_id, dedup_key)
//   - outcome_checks(user_id, receipt_id)
//   - insight_events(user_id, pattern_key)
//
// so concurrent generators cannot persist the same card, check or insight
// twice.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a record does not exist for the user.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config configures the store.
type Config struct {
	// Path is the database file. MemoryPath keeps everything in memory.
	Path string

	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}

// Store is the SQLite-backed journal store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens the database, applies pragmas and runs migrations.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, errors.New("store: path required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	logger.Info("store opened", zap.String("path", cfg.Path))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS receipts (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			title          TEXT NOT NULL,
			decision_type  TEXT NOT NULL DEFAULT '',
			context        TEXT NOT NULL DEFAULT '',
			assumptions    TEXT NOT NULL DEFAULT '',
			constraints    TEXT NOT NULL DEFAULT '',
			emotions       TEXT NOT NULL DEFAULT '[]',
			confidence     INTEGER,
			change_mind    TEXT NOT NULL DEFAULT '',
			tags           TEXT NOT NULL DEFAULT '[]',
			link_url       TEXT NOT NULL DEFAULT '',
			location_label TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_receipts_user ON receipts(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS moments (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			title        TEXT NOT NULL,
			category     TEXT NOT NULL DEFAULT '',
			note         TEXT NOT NULL DEFAULT '',
			why_mattered TEXT NOT NULL DEFAULT '',
			tags         TEXT NOT NULL DEFAULT '[]',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_moments_user ON moments(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS perspective_cards (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			type         TEXT NOT NULL,
			title        TEXT NOT NULL,
			message      TEXT NOT NULL,
			related_type TEXT NOT NULL DEFAULT '',
			related_id   TEXT NOT NULL DEFAULT '',
			dedup_key    TEXT NOT NULL,
			dismissed    INTEGER NOT NULL DEFAULT 0,
			dismissed_at TEXT,
			created_at   TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_dedup ON perspective_cards(user_id, dedup_key);

		CREATE TABLE IF NOT EXISTS outcome_checks (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			receipt_id          TEXT NOT NULL,
			scheduled_at        TEXT NOT NULL,
			original_confidence INTEGER,
			original_emotions   TEXT NOT NULL DEFAULT '[]',
			decision_type       TEXT NOT NULL DEFAULT '',
			prompted            INTEGER NOT NULL DEFAULT 0,
			prompted_at         TEXT,
			outcome             TEXT NOT NULL DEFAULT '',
			assumption_delta    TEXT NOT NULL DEFAULT '',
			completed_at        TEXT,
			created_at          TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_outcomes_receipt ON outcome_checks(user_id, receipt_id);

		CREATE TABLE IF NOT EXISTS insight_events (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			insight_type    TEXT NOT NULL,
			pattern_key     TEXT NOT NULL,
			pattern_data    TEXT NOT NULL DEFAULT '{}',
			sample_size     INTEGER NOT NULL,
			signal_strength REAL NOT NULL,
			message         TEXT NOT NULL,
			surfaced        INTEGER NOT NULL DEFAULT 0,
			surfaced_at     TEXT,
			dismissed       INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_insights_pattern ON insight_events(user_id, pattern_key);

		CREATE TABLE IF NOT EXISTS notification_events (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			type         TEXT NOT NULL,
			title        TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			priority     TEXT NOT NULL,
			read         INTEGER NOT NULL DEFAULT 0,
			read_at      TEXT,
			dismissed    INTEGER NOT NULL DEFAULT 0,
			dismissed_at TEXT,
			metadata     TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			expires_at   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_user ON notification_events(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS weekly_reflections (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			period_start        TEXT NOT NULL,
			period_end          TEXT NOT NULL,
			summary             TEXT NOT NULL DEFAULT '{}',
			reflection_question TEXT NOT NULL DEFAULT '',
			suggested_action    TEXT NOT NULL DEFAULT '',
			tone                TEXT NOT NULL,
			user_notes          TEXT NOT NULL DEFAULT '',
			viewed              INTEGER NOT NULL DEFAULT 0,
			viewed_at           TEXT,
			created_at          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reflections_user ON weekly_reflections(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS profiles (
			id                        TEXT PRIMARY KEY,
			full_name                 TEXT NOT NULL DEFAULT '',
			settings                  TEXT NOT NULL DEFAULT '{}',
			last_silence_prompt_at    TEXT,
			last_weekly_reflection_at TEXT,
			updated_at                TEXT NOT NULL
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

// UserIDs returns every user with at least one entry or a profile.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM receipts
		UNION SELECT user_id FROM moments
		UNION SELECT id FROM profiles
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}

// requireAffected maps an update that touched no rows to ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
