package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrSlotTaken              = errors.New("time range overlaps an occupying booking")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateOverride      = errors.New("duplicate availability override")
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; transactions must only use their own *sql.Tx.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS hosts (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            hourly_rate_cents INTEGER NOT NULL,
            time_zone TEXT NOT NULL DEFAULT 'UTC',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS availability_rules (
            id TEXT PRIMARY KEY,
            host_id TEXT NOT NULL REFERENCES hosts(id),
            day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
            start_minute INTEGER NOT NULL,
            end_minute INTEGER NOT NULL,
            created_at DATETIME NOT NULL,
            CHECK (start_minute < end_minute)
        )`,
		`CREATE TABLE IF NOT EXISTS availability_overrides (
            id TEXT PRIMARY KEY,
            host_id TEXT NOT NULL REFERENCES hosts(id),
            date TEXT NOT NULL,
            kind TEXT NOT NULL CHECK (kind IN ('available', 'blocked')),
            start_minute INTEGER,
            end_minute INTEGER,
            reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		// Время бронирований хранится в unix-секундах UTC
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            client_id TEXT NOT NULL,
            host_id TEXT NOT NULL REFERENCES hosts(id),
            status TEXT NOT NULL DEFAULT 'pending',
            scheduled_start INTEGER NOT NULL,
            scheduled_end INTEGER NOT NULL,
            duration_minutes INTEGER NOT NULL,
            actual_start INTEGER,
            actual_end INTEGER,
            amount_cents INTEGER NOT NULL,
            platform_fee_cents INTEGER NOT NULL,
            host_payout_cents INTEGER NOT NULL,
            payment_authorization_id TEXT NOT NULL DEFAULT '',
            payment_transfer_id TEXT NOT NULL DEFAULT '',
            cancellation_reason TEXT NOT NULL DEFAULT '',
            cancelled_at INTEGER,
            cancelled_by TEXT NOT NULL DEFAULT '',
            cancellation_fee_cents INTEGER NOT NULL DEFAULT 0,
            client_notes TEXT NOT NULL DEFAULT '',
            host_notes TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS payment_release_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id TEXT NOT NULL,
            authorization_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_rules_host_day ON availability_rules(host_id, day_of_week)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_overrides_unique ON availability_overrides(
            host_id, date, kind, coalesce(start_minute, -1), coalesce(end_minute, -1))`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_host_range ON bookings(host_id, scheduled_start, scheduled_end)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_release_queue_status ON payment_release_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func unixOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
