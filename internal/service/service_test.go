package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hostbook/internal/config"
	"hostbook/internal/database"
	"hostbook/internal/lock"
	"hostbook/internal/models"
	"hostbook/internal/payment"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	hostID   = "host-1"
	clientID = "client-1"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type queuedRelease struct {
	bookingID, authorizationID string
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queuedRelease
}

func (q *recordingQueue) EnqueueRelease(_ context.Context, bookingID, authorizationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, queuedRelease{bookingID, authorizationID})
	return nil
}

func (q *recordingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Emit(_ context.Context, eventType string, _ *models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	db           *database.DB
	clock        *fixedClock
	gateway      *payment.SandboxGateway
	queue        *recordingQueue
	notifier     *recordingNotifier
	bookings     *BookingService
	availability *AvailabilityService
}

// wednesday is 2030-01-02; the fixture clock starts the day before.
func wednesday(h, m int) time.Time {
	return time.Date(2030, 1, 2, h, m, 0, 0, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "hostbook.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.UpsertHost(ctx, &models.Host{
		ID: hostID, Name: "Anna", HourlyRateCents: 6000, TimeZone: "UTC",
	}))

	f := &fixture{
		db:       db,
		clock:    &fixedClock{now: time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)},
		gateway:  payment.NewSandboxGateway(),
		queue:    &recordingQueue{},
		notifier: &recordingNotifier{},
	}

	cfg := config.BookingConfig{
		PlatformFeeBps:          1500,
		CancellationFeeBps:      5000,
		CancellationWindowHours: 24,
		StartEarlyMinutes:       30,
		AuthorizationHoldDays:   7,
	}
	locker := lock.NewMemoryLocker(5 * time.Second)
	payments := payment.NewCoordinator(f.gateway, time.Second, &logger)

	f.bookings = NewBookingService(db, locker, payments, f.queue, f.notifier, f.clock, cfg, &logger)
	f.availability = NewAvailabilityService(db, locker, f.clock, cfg, &logger)

	// Среда 09:00-17:00
	require.NoError(t, f.availability.CreateRule(ctx, hostID, &models.RecurringRule{
		HostID: hostID, DayOfWeek: 2, StartTime: 9 * 60, EndTime: 17 * 60,
	}))
	return f
}

func (f *fixture) create(t *testing.T, start time.Time, minutes int) *models.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		ClientID: clientID, HostID: hostID, ScheduledStart: start, DurationMinutes: minutes,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) transition(t *testing.T, id, actor string, tr models.Transition) *models.Booking {
	t.Helper()
	b, err := f.bookings.Transition(context.Background(), TransitionRequest{
		BookingID: id, ActorID: actor, Transition: tr,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) starts(t *testing.T, minutes int) []time.Time {
	t.Helper()
	day := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	view, err := f.availability.GetAvailability(context.Background(), hostID, day, day, minutes)
	require.NoError(t, err)
	require.Len(t, view.Days, 1)
	out := make([]time.Time, 0, len(view.Days[0].Slots))
	for _, s := range view.Days[0].Slots {
		out = append(out, s.Start)
	}
	return out
}
