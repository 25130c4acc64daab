package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hostbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "hostbook:booking-events"

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Dispatcher fans booking events out to the in-process bus and, when configured, a Redis channel.
type Dispatcher struct {
	bus     *EventBus
	redis   *redis.Client
	channel string
	logger  *zerolog.Logger
}

func NewDispatcher(bus *EventBus, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, channel: DefaultChannel, logger: logger}
}

// UseRedis publishes every event to channel in addition to the bus.
func (d *Dispatcher) UseRedis(client *redis.Client, channel string) {
	d.redis = client
	if channel != "" {
		d.channel = channel
	}
}

func (d *Dispatcher) Emit(ctx context.Context, eventType string, booking *models.Booking) error {
	raw, err := json.Marshal(NewBookingPayload(booking, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	var firstErr error
	if d.bus != nil {
		if err := d.bus.Publish(&Event{Type: eventType, Payload: raw}); err != nil {
			firstErr = err
		}
	}

	if d.redis != nil {
		msg, err := json.Marshal(envelope{Type: eventType, Payload: raw})
		if err == nil {
			err = d.redis.Publish(ctx, d.channel, msg).Err()
		}
		if err != nil {
			d.logger.Warn().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("Failed to publish event to redis")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
