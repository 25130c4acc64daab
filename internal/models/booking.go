package models

import "time"

type Booking struct {
	ID                     string        `json:"id"`
	ClientID               string        `json:"client_id"`
	HostID                 string        `json:"host_id"`
	Status                 BookingStatus `json:"status"`
	ScheduledStart         time.Time     `json:"scheduled_start"`
	ScheduledEnd           time.Time     `json:"scheduled_end"`
	DurationMinutes        int           `json:"duration_minutes"`
	ActualStart            *time.Time    `json:"actual_start,omitempty"`
	ActualEnd              *time.Time    `json:"actual_end,omitempty"`
	AmountCents            int64         `json:"amount_cents"`
	PlatformFeeCents       int64         `json:"platform_fee_cents"`
	HostPayoutCents        int64         `json:"host_payout_cents"`
	PaymentAuthorizationID string        `json:"payment_authorization_id"`
	PaymentTransferID      string        `json:"payment_transfer_id,omitempty"`
	CancellationReason     string        `json:"cancellation_reason,omitempty"`
	CancelledAt            *time.Time    `json:"cancelled_at,omitempty"`
	CancelledBy            string        `json:"cancelled_by,omitempty"`
	CancellationFeeCents   int64         `json:"cancellation_fee_cents"`
	ClientNotes            string        `json:"client_notes,omitempty"`
	HostNotes              string        `json:"host_notes,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
	Version                int64         `json:"version"`
}

// Occupies reports whether the booking consumes calendar time.
func (b *Booking) Occupies() bool {
	return b.Status.Occupies()
}

// Overlaps reports whether [start, end) intersects the booking's scheduled range.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.ScheduledStart.Before(end) && start.Before(b.ScheduledEnd)
}

// Role returns the part the actor plays in this booking, or "" when the actor is not a party.
func (b *Booking) Role(actorID string) ActorRole {
	switch actorID {
	case "":
		return ""
	case b.HostID:
		return RoleHost
	case b.ClientID:
		return RoleClient
	default:
		return ""
	}
}

// StaleAuthorization is a pending booking whose authorization hold may lapse before the session starts.
type StaleAuthorization struct {
	BookingID              string    `json:"booking_id"`
	HostID                 string    `json:"host_id"`
	PaymentAuthorizationID string    `json:"payment_authorization_id"`
	CreatedAt              time.Time `json:"created_at"`
	ScheduledStart         time.Time `json:"scheduled_start"`
	HoldExpiresAt          time.Time `json:"hold_expires_at"`
}
