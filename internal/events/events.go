package events

import (
	"encoding/json"
	"sync"
	"time"

	"hostbook/internal/models"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingDeclined  = "booking.declined"
	EventBookingCancelled = "booking.cancelled"
	EventBookingStarted   = "booking.started"
	EventBookingCompleted = "booking.completed"
	EventBookingDisputed  = "booking.disputed"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID            string    `json:"booking_id"`
	HostID               string    `json:"host_id"`
	ClientID             string    `json:"client_id"`
	Status               string    `json:"status"`
	ScheduledStart       time.Time `json:"scheduled_start"`
	ScheduledEnd         time.Time `json:"scheduled_end"`
	AmountCents          int64     `json:"amount_cents"`
	CancellationFeeCents int64     `json:"cancellation_fee_cents,omitempty"`
	CancelledBy          string    `json:"cancelled_by,omitempty"`
	Reason               string    `json:"reason,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func NewBookingPayload(b *models.Booking, occurredAt time.Time) BookingEventPayload {
	return BookingEventPayload{
		BookingID:            b.ID,
		HostID:               b.HostID,
		ClientID:             b.ClientID,
		Status:               string(b.Status),
		ScheduledStart:       b.ScheduledStart,
		ScheduledEnd:         b.ScheduledEnd,
		AmountCents:          b.AmountCents,
		CancellationFeeCents: b.CancellationFeeCents,
		CancelledBy:          b.CancelledBy,
		Reason:               b.CancellationReason,
		OccurredAt:           occurredAt,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first handler error.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
