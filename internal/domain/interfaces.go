package domain

import (
	"context"
	"time"

	"hostbook/internal/models"
)

// Repository is the storage surface used by the booking and availability services.
type Repository interface {
	GetHost(ctx context.Context, id string) (*models.Host, error)
	UpsertHost(ctx context.Context, host *models.Host) error

	ListRules(ctx context.Context, hostID string) ([]models.RecurringRule, error)
	CreateRule(ctx context.Context, rule *models.RecurringRule) error
	DeleteRule(ctx context.Context, hostID, ruleID string) error

	ListOverrides(ctx context.Context, hostID string, from, to time.Time) ([]models.Override, error)
	CreateOverride(ctx context.Context, override *models.Override) error
	DeleteOverride(ctx context.Context, hostID, overrideID string) error

	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListOccupyingBookings(ctx context.Context, hostID string, from, to time.Time) ([]*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	UpdateBookingWithVersion(ctx context.Context, booking *models.Booking, expectedVersion int64) error
	ListStaleAuthorizations(ctx context.Context, hold time.Duration) ([]*models.Booking, error)
	ListBookingsByParticipant(ctx context.Context, actorID string, limit int) ([]*models.Booking, error)
}

// PaymentGateway is the third-party processor.
type PaymentGateway interface {
	Authorize(ctx context.Context, amountCents int64, payer, payee string) (string, error)
	Capture(ctx context.Context, authorizationID string) (string, error)
	Release(ctx context.Context, authorizationID string) error
}

// NotificationDispatcher emits booking events; delivery is somebody else's job.
type NotificationDispatcher interface {
	Emit(ctx context.Context, eventType string, booking *models.Booking) error
}

type Clock interface {
	Now() time.Time
}

// Locker grants exclusive access to a key until the returned unlock func is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ReleaseQueue accepts authorization releases that failed inline.
type ReleaseQueue interface {
	EnqueueRelease(ctx context.Context, bookingID, authorizationID string) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
