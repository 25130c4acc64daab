package models

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusDisputed   BookingStatus = "disputed"
)

// OccupyingStatuses consume calendar time. Pending bookings hold the slot exactly like confirmed ones.
var OccupyingStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}

type OverrideKind string

const (
	OverrideAvailable OverrideKind = "available"
	OverrideBlocked   OverrideKind = "blocked"
)

const (
	// SlotGranularityMinutes шаг сетки начала слотов
	SlotGranularityMinutes = 30

	MinDurationMinutes = 30
	MaxDurationMinutes = 240

	// MinutesPerDay граница "24:00" для интервалов на весь день
	MinutesPerDay = 24 * 60

	DefaultPlatformFeeBps          = 1500
	DefaultCancellationFeeBps      = 5000
	DefaultCancellationWindowHours = 24
	DefaultStartEarlyMinutes       = 30

	// DefaultAuthorizationHoldDays срок жизни авторизации у платежного провайдера
	DefaultAuthorizationHoldDays = 7
)

const (
	ReleaseTaskPending   = "pending"
	ReleaseTaskRetry     = "retry"
	ReleaseTaskCompleted = "completed"
	ReleaseTaskFailed    = "failed"
)
