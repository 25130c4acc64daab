package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/models"
)

const releaseTaskColumns = `id, booking_id, authorization_id, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func scanReleaseTask(row rowScanner) (models.ReleaseTask, error) {
	var t models.ReleaseTask
	err := row.Scan(
		&t.ID, &t.BookingID, &t.AuthorizationID, &t.Status, &t.RetryCount, &t.LastError,
		&t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
	)
	return t, err
}

func (db *DB) CreateReleaseTask(ctx context.Context, task *models.ReleaseTask) error {
	if task.Status == "" {
		task.Status = models.ReleaseTaskPending
	}
	query := `INSERT INTO payment_release_queue (booking_id, authorization_id, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.BookingID,
		task.AuthorizationID,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create release task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) GetReleaseTask(ctx context.Context, id int64) (*models.ReleaseTask, error) {
	row := db.QueryRowContext(ctx, `SELECT `+releaseTaskColumns+` FROM payment_release_queue WHERE id = ?`, id)
	t, err := scanReleaseTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release task: %w", err)
	}
	return &t, nil
}

// GetPendingReleaseTasks возвращает задачи, готовые к повторной попытке
func (db *DB) GetPendingReleaseTasks(ctx context.Context, limit int) ([]models.ReleaseTask, error) {
	query := `SELECT ` + releaseTaskColumns + ` FROM payment_release_queue
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	return db.queryReleaseTasks(ctx, query,
		models.ReleaseTaskPending, models.ReleaseTaskRetry, time.Now().UTC(), limit)
}

func (db *DB) GetFailedReleaseTasks(ctx context.Context) ([]models.ReleaseTask, error) {
	query := `SELECT ` + releaseTaskColumns + ` FROM payment_release_queue
              WHERE status = ? ORDER BY created_at DESC`
	return db.queryReleaseTasks(ctx, query, models.ReleaseTaskFailed)
}

func (db *DB) UpdateReleaseTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	switch status {
	case models.ReleaseTaskRetry:
		query = `UPDATE payment_release_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case models.ReleaseTaskCompleted, models.ReleaseTaskFailed:
		query = `UPDATE payment_release_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE payment_release_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update release task status: %w", err)
	}
	return nil
}

func (db *DB) queryReleaseTasks(ctx context.Context, query string, args ...any) ([]models.ReleaseTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query release tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.ReleaseTask
	for rows.Next() {
		t, err := scanReleaseTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
