package models

import "time"

// ReleaseTask represents a queued payment-authorization release that failed inline.
type ReleaseTask struct {
	ID              int64      `json:"id"`
	BookingID       string     `json:"booking_id"`
	AuthorizationID string     `json:"authorization_id"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	LastError       *string    `json:"last_error"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at"`
	NextRetryAt     *time.Time `json:"next_retry_at"`
}
