package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hostbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(id string, start time.Time, minutes int) *models.Booking {
	q := models.PriceBooking(6000, minutes, 1500)
	return &models.Booking{
		ID:                     id,
		ClientID:               "client-1",
		HostID:                 "host-1",
		Status:                 models.StatusPending,
		ScheduledStart:         start,
		ScheduledEnd:           start.Add(time.Duration(minutes) * time.Minute),
		DurationMinutes:        minutes,
		AmountCents:            q.AmountCents,
		PlatformFeeCents:       q.PlatformFeeCents,
		HostPayoutCents:        q.HostPayoutCents,
		PaymentAuthorizationID: "auth-" + id,
	}
}

func TestBookingLifecycleRows(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

	b := newBooking("b1", start, 60)
	require.NoError(t, db.CreateBookingWithLock(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, start.Equal(got.ScheduledStart))
	assert.Equal(t, int64(6000), got.AmountCents)
	assert.Nil(t, got.ActualStart)

	t.Run("OverlapRejected", func(t *testing.T) {
		err := db.CreateBookingWithLock(ctx, newBooking("b2", start.Add(30*time.Minute), 60))
		assert.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("AdjacentAccepted", func(t *testing.T) {
		require.NoError(t, db.CreateBookingWithLock(ctx, newBooking("b3", start.Add(time.Hour), 30)))
	})

	t.Run("VersionedUpdate", func(t *testing.T) {
		got.Status = models.StatusCancelled
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		got.CancelledAt = &now
		got.CancelledBy = "client-1"
		got.CancellationReason = "sick"
		require.NoError(t, db.UpdateBookingWithVersion(ctx, got, 1))
		assert.Equal(t, int64(2), got.Version)

		stale := *got
		stale.Status = models.StatusConfirmed
		assert.ErrorIs(t, db.UpdateBookingWithVersion(ctx, &stale, 1), ErrConcurrentModification)

		reread, err := db.GetBooking(ctx, "b1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, reread.Status)
		require.NotNil(t, reread.CancelledAt)
		assert.True(t, now.Equal(*reread.CancelledAt))
	})

	t.Run("CancelledFreesRange", func(t *testing.T) {
		occupying, err := db.ListOccupyingBookings(ctx, "host-1", start, start.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, occupying, 1)
		assert.Equal(t, "b3", occupying[0].ID)

		require.NoError(t, db.CreateBookingWithLock(ctx, newBooking("b4", start, 60)))
	})

	t.Run("ByParticipant", func(t *testing.T) {
		mine, err := db.ListBookingsByParticipant(ctx, "client-1", 10)
		require.NoError(t, err)
		assert.Len(t, mine, 3)
	})

	_, err = db.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStaleAuthorizations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	soon := newBooking("soon", created.Add(3*24*time.Hour), 60)
	soon.CreatedAt = created
	far := newBooking("far", created.Add(10*24*time.Hour), 60)
	far.CreatedAt = created
	require.NoError(t, db.CreateBookingWithLock(ctx, soon))
	require.NoError(t, db.CreateBookingWithLock(ctx, far))

	stale, err := db.ListStaleAuthorizations(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "far", stale[0].ID)
}

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.UpsertHost(ctx, &models.Host{ID: "host-1", Name: "Anna", HourlyRateCents: 6000, TimeZone: "UTC"}))

	start := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- db.CreateBookingWithLock(ctx, newBooking(fmt.Sprintf("b%d", id), start, 60))
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, successCount, "Only one booking should win the range")

	occupying, err := db.ListOccupyingBookings(ctx, "host-1", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, occupying, 1)
}

func TestReleaseQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.ReleaseTask{BookingID: "b1", AuthorizationID: "auth-1"}
	require.NoError(t, db.CreateReleaseTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.ReleaseTaskPending, task.Status)

	pending, err := db.GetPendingReleaseTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "auth-1", pending[0].AuthorizationID)

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, db.UpdateReleaseTaskStatus(ctx, task.ID, models.ReleaseTaskRetry, "gateway down", &future))

	pending, err = db.GetPendingReleaseTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "task is not due yet")

	got, err := db.GetReleaseTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "gateway down", *got.LastError)

	require.NoError(t, db.UpdateReleaseTaskStatus(ctx, task.ID, models.ReleaseTaskFailed, "gave up", nil))
	failed, err := db.GetFailedReleaseTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)
}
