package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hostbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2, countAll int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return errors.New("handler failed") })
	bus.Subscribe(AllEvents, func(_ *Event) error { countAll++; return nil })

	err := bus.Publish(&Event{Type: "event"})
	assert.Error(t, err)
	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
	assert.Equal(t, 1, countAll)

	assert.NoError(t, bus.Publish(&Event{Type: "other"}))
	assert.Equal(t, 2, countAll)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "unknown"}))
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("unknown", nil))
}

func testBooking() *models.Booking {
	start := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:             "b1",
		HostID:         "host-1",
		ClientID:       "client-1",
		Status:         models.StatusCancelled,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
		AmountCents:    6000,
		CancelledBy:    "client-1",
	}
}

func TestDispatcherBus(t *testing.T) {
	bus := NewEventBus()
	logger := zerolog.Nop()
	d := NewDispatcher(bus, &logger)

	var got BookingEventPayload
	bus.Subscribe(EventBookingCancelled, func(e *Event) error {
		return json.Unmarshal(e.Payload, &got)
	})

	require.NoError(t, d.Emit(context.Background(), EventBookingCancelled, testBooking()))
	assert.Equal(t, "b1", got.BookingID)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, "client-1", got.CancelledBy)
}

func TestDispatcherRedis(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "test:events")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	logger := zerolog.Nop()
	d := NewDispatcher(nil, &logger)
	d.UseRedis(client, "test:events")

	require.NoError(t, d.Emit(ctx, EventBookingCreated, testBooking()))

	select {
	case msg := <-sub.Channel():
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, EventBookingCreated, env.Type)

		var payload BookingEventPayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "host-1", payload.HostID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not published to redis")
	}
}
