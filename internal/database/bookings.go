package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/models"
)

const bookingColumns = `id, client_id, host_id, status, scheduled_start, scheduled_end, duration_minutes,
	actual_start, actual_end, amount_cents, platform_fee_cents, host_payout_cents,
	payment_authorization_id, payment_transfer_id, cancellation_reason, cancelled_at, cancelled_by,
	cancellation_fee_cents, client_notes, host_notes, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                   models.Booking
		status                              string
		start, end, created, updated        int64
		actualStart, actualEnd, cancelledAt sql.NullInt64
	)
	err := row.Scan(
		&b.ID, &b.ClientID, &b.HostID, &status, &start, &end, &b.DurationMinutes,
		&actualStart, &actualEnd, &b.AmountCents, &b.PlatformFeeCents, &b.HostPayoutCents,
		&b.PaymentAuthorizationID, &b.PaymentTransferID, &b.CancellationReason, &cancelledAt, &b.CancelledBy,
		&b.CancellationFeeCents, &b.ClientNotes, &b.HostNotes, &created, &updated, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.ScheduledStart = time.Unix(start, 0).UTC()
	b.ScheduledEnd = time.Unix(end, 0).UTC()
	b.ActualStart = fromUnix(actualStart)
	b.ActualEnd = fromUnix(actualEnd)
	b.CancelledAt = fromUnix(cancelledAt)
	b.CreatedAt = time.Unix(created, 0).UTC()
	b.UpdatedAt = time.Unix(updated, 0).UTC()
	return &b, nil
}

// CreateBookingWithLock перепроверяет пересечение и вставляет бронь в одной транзакции
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var overlapping int
		queryCount := `SELECT COUNT(*) FROM bookings
                       WHERE host_id = ? AND status IN (?, ?, ?)
                       AND scheduled_start < ? AND scheduled_end > ?`
		err := tx.QueryRowContext(ctx, queryCount, booking.HostID,
			models.StatusPending, models.StatusConfirmed, models.StatusInProgress,
			booking.ScheduledEnd.Unix(), booking.ScheduledStart.Unix()).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("failed to check overlap in tx: %w", err)
		}
		if overlapping > 0 {
			return ErrSlotTaken
		}

		queryInsert := `INSERT INTO bookings (` + bookingColumns + `)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, queryInsert,
			booking.ID, booking.ClientID, booking.HostID, string(booking.Status),
			booking.ScheduledStart.Unix(), booking.ScheduledEnd.Unix(), booking.DurationMinutes,
			unixOrNil(booking.ActualStart), unixOrNil(booking.ActualEnd),
			booking.AmountCents, booking.PlatformFeeCents, booking.HostPayoutCents,
			booking.PaymentAuthorizationID, booking.PaymentTransferID, booking.CancellationReason,
			unixOrNil(booking.CancelledAt), booking.CancelledBy, booking.CancellationFeeCents,
			booking.ClientNotes, booking.HostNotes,
			booking.CreatedAt.Unix(), booking.UpdatedAt.Unix(), 1,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}
		booking.Version = 1
		return nil
	})
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingWithVersion пишет изменяемые поля брони, если версия не изменилась с момента чтения
func (db *DB) UpdateBookingWithVersion(ctx context.Context, b *models.Booking, expectedVersion int64) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	query := `UPDATE bookings SET
                status = ?, actual_start = ?, actual_end = ?, payment_transfer_id = ?,
                cancellation_reason = ?, cancelled_at = ?, cancelled_by = ?, cancellation_fee_cents = ?,
                host_notes = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		string(b.Status), unixOrNil(b.ActualStart), unixOrNil(b.ActualEnd), b.PaymentTransferID,
		b.CancellationReason, unixOrNil(b.CancelledAt), b.CancelledBy, b.CancellationFeeCents,
		b.HostNotes, b.UpdatedAt.Unix(), b.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	b.Version = expectedVersion + 1
	return nil
}

// ListOccupyingBookings возвращает занимающие время брони хоста, пересекающие [from, to)
func (db *DB) ListOccupyingBookings(ctx context.Context, hostID string, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE host_id = ? AND status IN (?, ?, ?)
              AND scheduled_start < ? AND scheduled_end > ?
              ORDER BY scheduled_start`
	return db.queryBookings(ctx, query, hostID,
		models.StatusPending, models.StatusConfirmed, models.StatusInProgress,
		to.Unix(), from.Unix())
}

// ListStaleAuthorizations returns pending bookings whose session starts after the authorization hold lapses.
func (db *DB) ListStaleAuthorizations(ctx context.Context, hold time.Duration) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND scheduled_start - created_at > ?
              ORDER BY created_at`
	return db.queryBookings(ctx, query, models.StatusPending, int64(hold/time.Second))
}

func (db *DB) ListBookingsByParticipant(ctx context.Context, actorID string, limit int) ([]*models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE client_id = ? OR host_id = ?
              ORDER BY scheduled_start DESC LIMIT ?`
	return db.queryBookings(ctx, query, actorID, actorID, limit)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
