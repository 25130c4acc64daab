package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hostbook/internal/domain"
	"hostbook/internal/events"
	"hostbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)

	b := f.create(t, wednesday(10, 0), 60)

	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, wednesday(11, 0), b.ScheduledEnd)
	assert.Equal(t, int64(6000), b.AmountCents)
	assert.Equal(t, int64(900), b.PlatformFeeCents)
	assert.Equal(t, int64(5100), b.HostPayoutCents)
	assert.Equal(t, int64(1), b.Version)
	assert.NotEmpty(t, b.PaymentAuthorizationID)
	assert.Equal(t, "authorized", f.gateway.State(b.PaymentAuthorizationID))
	assert.Equal(t, []string{events.EventBookingCreated}, f.notifier.Events())

	stored, err := f.db.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	// pending занимает слот
	assert.NotContains(t, f.starts(t, 60), wednesday(10, 0))
	assert.NotContains(t, f.starts(t, 60), wednesday(10, 30))
	assert.Contains(t, f.starts(t, 60), wednesday(11, 0))
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateBookingRequest
		kind domain.ErrorKind
	}{
		{"duration below minimum", CreateBookingRequest{ClientID: clientID, HostID: hostID, ScheduledStart: wednesday(10, 0), DurationMinutes: 20}, domain.KindValidation},
		{"duration above maximum", CreateBookingRequest{ClientID: clientID, HostID: hostID, ScheduledStart: wednesday(10, 0), DurationMinutes: 241}, domain.KindValidation},
		{"off grid", CreateBookingRequest{ClientID: clientID, HostID: hostID, ScheduledStart: wednesday(10, 15), DurationMinutes: 60}, domain.KindValidation},
		{"in the past", CreateBookingRequest{ClientID: clientID, HostID: hostID, ScheduledStart: time.Date(2029, 12, 26, 10, 0, 0, 0, time.UTC), DurationMinutes: 60}, domain.KindValidation},
		{"host books self", CreateBookingRequest{ClientID: hostID, HostID: hostID, ScheduledStart: wednesday(10, 0), DurationMinutes: 60}, domain.KindValidation},
		{"unknown host", CreateBookingRequest{ClientID: clientID, HostID: "nobody", ScheduledStart: wednesday(10, 0), DurationMinutes: 60}, domain.KindNotFound},
		{"anonymous", CreateBookingRequest{HostID: hostID, ScheduledStart: wednesday(10, 0), DurationMinutes: 60}, domain.KindAuthorization},
		{"outside availability", CreateBookingRequest{ClientID: clientID, HostID: hostID, ScheduledStart: wednesday(18, 0), DurationMinutes: 60}, domain.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.bookings.CreateBooking(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.kind, domain.KindOf(err))
		})
	}
}

func TestCreateBookingDurationBoundaries(t *testing.T) {
	f := newFixture(t)

	short := f.create(t, wednesday(9, 0), 30)
	assert.Equal(t, 30, short.DurationMinutes)

	long := f.create(t, wednesday(10, 0), 240)
	assert.Equal(t, wednesday(14, 0), long.ScheduledEnd)
}

// Два одновременных запроса на один слот: один pending, второй BOOKING_CONFLICT.
func TestConcurrentCreateSameSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   []*models.Booking
		conflicts []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			b, err := f.bookings.CreateBooking(ctx, CreateBookingRequest{
				ClientID: client, HostID: hostID, ScheduledStart: wednesday(14, 0), DurationMinutes: 60,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				conflicts = append(conflicts, err)
				return
			}
			created = append(created, b)
		}([]string{"client-a", "client-b"}[i])
	}
	wg.Wait()

	require.Len(t, created, 1)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.StatusPending, created[0].Status)

	var de *domain.Error
	require.True(t, errors.As(conflicts[0], &de))
	assert.Equal(t, domain.KindConflict, de.Kind)
	assert.Equal(t, domain.CodeBookingConflict, de.Code)
}

func TestCreateBookingAuthorizationDeclined(t *testing.T) {
	f := newFixture(t)
	f.gateway.SetFailures(errors.New("card declined"), nil, nil)

	_, err := f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		ClientID: clientID, HostID: hostID, ScheduledStart: wednesday(10, 0), DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindPayment, domain.KindOf(err))

	assert.Contains(t, f.starts(t, 60), wednesday(10, 0))
	assert.Empty(t, f.notifier.Events())
}

// Отклонение освобождает слот и авторизацию.
func TestDeclineRestoresSlot(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)

	declined := f.transition(t, b.ID, hostID, models.TransitionDecline)
	assert.Equal(t, models.StatusCancelled, declined.Status)
	assert.Equal(t, hostID, declined.CancelledBy)
	assert.Zero(t, declined.CancellationFeeCents)
	assert.Equal(t, "released", f.gateway.State(b.PaymentAuthorizationID))
	assert.Equal(t, 0, f.queue.Len())

	assert.Contains(t, f.starts(t, 60), wednesday(10, 0))
	assert.Equal(t, []string{events.EventBookingCreated, events.EventBookingDeclined}, f.notifier.Events())
}

func TestCancelReleaseFailureIsQueued(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)
	f.gateway.SetFailures(nil, nil, errors.New("processor unavailable"))

	cancelled := f.transition(t, b.ID, clientID, models.TransitionCancel)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, queuedRelease{b.ID, b.PaymentAuthorizationID}, f.queue.tasks[0])
	assert.Contains(t, f.starts(t, 60), wednesday(10, 0))
}

func TestClientCancellationFee(t *testing.T) {
	f := newFixture(t)
	early := f.create(t, wednesday(10, 0), 60)
	late := f.create(t, wednesday(12, 0), 60)

	// больше 24 часов до начала
	b := f.transition(t, early.ID, clientID, models.TransitionCancel)
	assert.Zero(t, b.CancellationFeeCents)

	f.clock.Set(wednesday(0, 0))
	b = f.transition(t, late.ID, clientID, models.TransitionCancel)
	assert.Equal(t, int64(3000), b.CancellationFeeCents)
}

func TestStartWindow(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)
	f.transition(t, b.ID, hostID, models.TransitionConfirm)

	f.clock.Set(wednesday(9, 20))
	_, err := f.bookings.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: hostID, Transition: models.TransitionStart,
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindState, domain.KindOf(err))

	f.clock.Set(wednesday(9, 50))
	started := f.transition(t, b.ID, clientID, models.TransitionStart)
	assert.Equal(t, models.StatusInProgress, started.Status)
	require.NotNil(t, started.ActualStart)
}

func TestCompleteCapturesPayment(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)
	f.transition(t, b.ID, hostID, models.TransitionConfirm)
	f.clock.Set(wednesday(10, 0))
	f.transition(t, b.ID, hostID, models.TransitionStart)

	f.gateway.SetFailures(nil, errors.New("timeout"), nil)
	_, err := f.bookings.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: hostID, Transition: models.TransitionComplete,
	})
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, domain.KindPayment, de.Kind)
	assert.True(t, de.Retryable)

	stored, err := f.db.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	f.gateway.SetFailures(nil, nil, nil)
	f.clock.Set(wednesday(11, 0))
	completed := f.transition(t, b.ID, hostID, models.TransitionComplete)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.NotEmpty(t, completed.PaymentTransferID)
	assert.Equal(t, "captured", f.gateway.State(b.PaymentAuthorizationID))
}

func TestTransitionIdempotent(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)

	first := f.transition(t, b.ID, hostID, models.TransitionConfirm)
	second := f.transition(t, b.ID, hostID, models.TransitionConfirm)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, models.StatusConfirmed, second.Status)

	f.transition(t, b.ID, clientID, models.TransitionCancel)
	again := f.transition(t, b.ID, hostID, models.TransitionCancel)
	assert.Equal(t, models.StatusCancelled, again.Status)

	// подтвердить отмененную нельзя
	_, err := f.bookings.Transition(context.Background(), TransitionRequest{
		BookingID: b.ID, ActorID: hostID, Transition: models.TransitionConfirm,
	})
	assert.Equal(t, domain.KindState, domain.KindOf(err))
}

func TestTransitionRoles(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)
	ctx := context.Background()

	_, err := f.bookings.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: clientID, Transition: models.TransitionConfirm})
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	_, err = f.bookings.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: "stranger", Transition: models.TransitionCancel})
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	_, err = f.bookings.Transition(ctx, TransitionRequest{BookingID: "missing", ActorID: hostID, Transition: models.TransitionConfirm})
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = f.bookings.Transition(ctx, TransitionRequest{BookingID: b.ID, ActorID: hostID, Transition: "teleport"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	disputed := f.transition(t, b.ID, clientID, models.TransitionDispute)
	assert.Equal(t, models.StatusDisputed, disputed.Status)
}

func TestGetAndListBookings(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, wednesday(10, 0), 60)
	ctx := context.Background()

	got, err := f.bookings.GetBooking(ctx, hostID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.bookings.GetBooking(ctx, "stranger", b.ID)
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))

	list, err := f.bookings.ListBookings(ctx, clientID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStaleAuthorizations(t *testing.T) {
	f := newFixture(t)
	f.create(t, wednesday(10, 0), 60)
	far := f.create(t, time.Date(2030, 1, 9, 10, 0, 0, 0, time.UTC), 60)

	stale, err := f.bookings.StaleAuthorizations(context.Background())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, far.ID, stale[0].BookingID)
	assert.Equal(t, far.CreatedAt.Add(7*24*time.Hour), stale[0].HoldExpiresAt)
}
