package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hostbook/internal/models"
)

func (db *DB) ListRules(ctx context.Context, hostID string) ([]models.RecurringRule, error) {
	query := `SELECT id, host_id, day_of_week, start_minute, end_minute, created_at
              FROM availability_rules WHERE host_id = ? ORDER BY day_of_week, start_minute`
	rows, err := db.QueryContext(ctx, query, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []models.RecurringRule{}
	for rows.Next() {
		var r models.RecurringRule
		var start, end int
		if err := rows.Scan(&r.ID, &r.HostID, &r.DayOfWeek, &start, &end, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		r.StartTime, r.EndTime = models.ClockTime(start), models.ClockTime(end)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (db *DB) CreateRule(ctx context.Context, rule *models.RecurringRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO availability_rules (id, host_id, day_of_week, start_minute, end_minute, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		rule.ID, rule.HostID, rule.DayOfWeek, int(rule.StartTime), int(rule.EndTime), rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (db *DB) DeleteRule(ctx context.Context, hostID, ruleID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM availability_rules WHERE id = ? AND host_id = ?`, ruleID, hostID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOverrides returns overrides whose date lies in [from, to] (calendar dates).
func (db *DB) ListOverrides(ctx context.Context, hostID string, from, to time.Time) ([]models.Override, error) {
	query := `SELECT id, host_id, date, kind, start_minute, end_minute, reason, created_at
              FROM availability_overrides
              WHERE host_id = ? AND date BETWEEN ? AND ?
              ORDER BY date, kind, coalesce(start_minute, -1)`
	rows, err := db.QueryContext(ctx, query, hostID, models.DateKey(from), models.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	overrides := []models.Override{}
	for rows.Next() {
		var (
			o          models.Override
			date, kind string
			start, end sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.HostID, &date, &kind, &start, &end, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		o.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse override date %s: %w", date, err)
		}
		o.Kind = models.OverrideKind(kind)
		if start.Valid && end.Valid {
			s, e := models.ClockTime(start.Int64), models.ClockTime(end.Int64)
			o.StartTime, o.EndTime = &s, &e
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (db *DB) CreateOverride(ctx context.Context, o *models.Override) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	var start, end any
	if !o.AllDay() {
		start, end = int(*o.StartTime), int(*o.EndTime)
	}

	query := `INSERT INTO availability_overrides (id, host_id, date, kind, start_minute, end_minute, reason, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		o.ID, o.HostID, models.DateKey(o.Date), string(o.Kind), start, end, o.Reason, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOverride
		}
		return fmt.Errorf("failed to create override: %w", err)
	}
	return nil
}

func (db *DB) DeleteOverride(ctx context.Context, hostID, overrideID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM availability_overrides WHERE id = ? AND host_id = ?`, overrideID, hostID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
