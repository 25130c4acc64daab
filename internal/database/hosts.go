package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/models"
)

// UpsertHost создает хоста или обновляет его профиль
func (db *DB) UpsertHost(ctx context.Context, host *models.Host) error {
	now := time.Now().UTC()
	if host.CreatedAt.IsZero() {
		host.CreatedAt = now
	}
	host.UpdatedAt = now

	query := `INSERT INTO hosts (id, name, hourly_rate_cents, time_zone, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  name = excluded.name,
                  hourly_rate_cents = excluded.hourly_rate_cents,
                  time_zone = excluded.time_zone,
                  updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		host.ID, host.Name, host.HourlyRateCents, host.TimeZone, host.CreatedAt, host.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert host %s: %w", host.ID, err)
	}
	return nil
}

func (db *DB) GetHost(ctx context.Context, id string) (*models.Host, error) {
	var h models.Host
	query := `SELECT id, name, hourly_rate_cents, time_zone, created_at, updated_at FROM hosts WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&h.ID, &h.Name, &h.HourlyRateCents, &h.TimeZone, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}
	return &h, nil
}

func (db *DB) ListHosts(ctx context.Context) ([]*models.Host, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, hourly_rate_cents, time_zone, created_at, updated_at FROM hosts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*models.Host
	for rows.Next() {
		h := &models.Host{}
		if err := rows.Scan(&h.ID, &h.Name, &h.HourlyRateCents, &h.TimeZone, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}
