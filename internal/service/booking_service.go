package service

import (
	"context"
	"errors"
	"time"

	"hostbook/internal/calendar"
	"hostbook/internal/config"
	"hostbook/internal/database"
	"hostbook/internal/domain"
	"hostbook/internal/events"
	"hostbook/internal/lock"
	"hostbook/internal/metrics"
	"hostbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type CreateBookingRequest struct {
	ClientID        string
	HostID          string
	ScheduledStart  time.Time
	DurationMinutes int
	ClientNotes     string
}

type TransitionRequest struct {
	BookingID  string
	ActorID    string
	Transition models.Transition
	Reason     string
	HostNotes  string
}

var transitionEvents = map[models.Transition]string{
	models.TransitionConfirm:  events.EventBookingConfirmed,
	models.TransitionDecline:  events.EventBookingDeclined,
	models.TransitionCancel:   events.EventBookingCancelled,
	models.TransitionStart:    events.EventBookingStarted,
	models.TransitionComplete: events.EventBookingCompleted,
	models.TransitionDispute:  events.EventBookingDisputed,
}

// BookingService is the only writer of booking rows. Creation is serialized per host,
// lifecycle transitions per booking.
type BookingService struct {
	repo     domain.Repository
	locker   domain.Locker
	payments domain.PaymentGateway
	releases domain.ReleaseQueue
	notifier domain.NotificationDispatcher
	clock    domain.Clock
	cfg      config.BookingConfig
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locker domain.Locker,
	payments domain.PaymentGateway,
	releases domain.ReleaseQueue,
	notifier domain.NotificationDispatcher,
	clock domain.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *BookingService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if cfg.StartEarlyMinutes == 0 {
		cfg.StartEarlyMinutes = models.DefaultStartEarlyMinutes
	}
	if cfg.CancellationWindowHours == 0 {
		cfg.CancellationWindowHours = models.DefaultCancellationWindowHours
	}
	if cfg.AuthorizationHoldDays == 0 {
		cfg.AuthorizationHoldDays = models.DefaultAuthorizationHoldDays
	}
	return &BookingService{
		repo:     repo,
		locker:   locker,
		payments: payments,
		releases: releases,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateBooking reserves a slot in pending status with an authorization hold on the client's payment method.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if req.ClientID == "" {
		return nil, domain.Forbidden("actor id is required")
	}
	if err := models.ValidateDuration(req.DurationMinutes); err != nil {
		return nil, domain.Validation("%v", err)
	}
	if req.ScheduledStart.IsZero() {
		return nil, domain.Validation("scheduled_start is required")
	}

	host, loc, err := loadHost(ctx, s.repo, req.HostID)
	if err != nil {
		return nil, err
	}
	if req.ClientID == host.ID {
		return nil, domain.Validation("a host cannot book their own time")
	}

	start := req.ScheduledStart.UTC()
	local := start.In(loc)
	if local.Minute()%models.SlotGranularityMinutes != 0 || local.Second() != 0 || local.Nanosecond() != 0 {
		return nil, domain.Validation("scheduled_start must be on the %d-minute grid", models.SlotGranularityMinutes)
	}

	now := s.clock.Now()
	if start.Before(now.Add(s.cfg.MinLead())) {
		return nil, domain.Validation("scheduled_start must be at least %d minutes from now", s.cfg.MinLeadMinutes)
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	quote := models.PriceBooking(host.HourlyRateCents, req.DurationMinutes, s.cfg.PlatformFeeBps)

	booking := &models.Booking{
		ID:               uuid.NewString(),
		ClientID:         req.ClientID,
		HostID:           host.ID,
		Status:           models.StatusPending,
		ScheduledStart:   start,
		ScheduledEnd:     start.Add(duration),
		DurationMinutes:  req.DurationMinutes,
		AmountCents:      quote.AmountCents,
		PlatformFeeCents: quote.PlatformFeeCents,
		HostPayoutCents:  quote.HostPayoutCents,
		ClientNotes:      req.ClientNotes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.reserve(ctx, booking, loc, now); err != nil {
		return nil, err
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("host_id", booking.HostID).
		Str("client_id", booking.ClientID).
		Time("scheduled_start", booking.ScheduledStart).
		Int64("amount_cents", booking.AmountCents).
		Msg("Booking created")
	s.emit(ctx, events.EventBookingCreated, booking)
	return booking, nil
}

// reserve re-validates the slot, authorizes and persists while holding the host lock.
func (s *BookingService) reserve(ctx context.Context, booking *models.Booking, loc *time.Location, now time.Time) error {
	unlock, err := acquire(ctx, s.locker, lock.HostKey(booking.HostID))
	if err != nil {
		return err
	}
	defer unlock()

	day := booking.ScheduledStart.In(loc)
	view, occupying, err := loadCalendar(ctx, s.repo, booking.HostID, loc, day, day)
	if err != nil {
		return err
	}
	duration := booking.ScheduledEnd.Sub(booking.ScheduledStart)
	open := view[models.DateKey(day)]
	if !calendar.IsBookable(booking.ScheduledStart, open, occupying, duration, now, s.cfg.MinLead(), loc) {
		metrics.IncBookingConflict()
		return domain.Conflict(domain.CodeBookingConflict, nil, "slot %s is not available", booking.ScheduledStart.Format(time.RFC3339))
	}

	authID, err := s.payments.Authorize(ctx, booking.AmountCents, booking.ClientID, booking.HostID)
	if err != nil {
		return domain.Payment(err, false, "payment authorization failed")
	}
	booking.PaymentAuthorizationID = authID

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		s.releaseAuthorization(ctx, booking)
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncBookingConflict()
			return domain.Conflict(domain.CodeBookingConflict, err, "slot %s is not available", booking.ScheduledStart.Format(time.RFC3339))
		}
		return err
	}
	return nil
}

// Transition applies a lifecycle operation. Repeating an operation whose target state is already reached
// returns the booking unchanged.
func (s *BookingService) Transition(ctx context.Context, req TransitionRequest) (*models.Booking, error) {
	booking, result, err := s.transition(ctx, req)
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.ObserveTransition(string(req.Transition), result)
	return booking, err
}

func (s *BookingService) transition(ctx context.Context, req TransitionRequest) (*models.Booking, string, error) {
	rule, ok := models.RuleFor(req.Transition)
	if !ok {
		return nil, "", domain.Validation("unknown transition %q", req.Transition)
	}
	if req.ActorID == "" {
		return nil, "", domain.Forbidden("actor id is required")
	}

	unlock, err := acquire(ctx, s.locker, lock.BookingKey(req.BookingID))
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, "", err
	}

	role := booking.Role(req.ActorID)
	if role == "" {
		return nil, "", domain.Forbidden("actor is not a participant of booking %s", booking.ID)
	}
	if !rule.Permits(role) {
		return nil, "", domain.Forbidden("%s may not %s a booking", role, req.Transition)
	}

	if booking.Status == rule.To {
		return booking, "noop", nil
	}
	if !rule.Allows(booking.Status) {
		return nil, "", domain.State("cannot %s a booking in status %s", req.Transition, booking.Status)
	}

	now := s.clock.Now()
	expectedVersion := booking.Version

	switch req.Transition {
	case models.TransitionStart:
		// Сессию можно начать не раньше, чем за StartEarly до начала
		opensAt := booking.ScheduledStart.Add(-s.cfg.StartEarly())
		if now.Before(opensAt) {
			return nil, "", domain.State("session can be started from %s", opensAt.Format(time.RFC3339))
		}
		booking.ActualStart = &now

	case models.TransitionComplete:
		transferID, err := s.payments.Capture(ctx, booking.PaymentAuthorizationID)
		if err != nil {
			return nil, "", domain.Payment(err, true, "payment capture failed, retry completion")
		}
		booking.PaymentTransferID = transferID
		booking.ActualEnd = &now

	case models.TransitionCancel, models.TransitionDecline:
		booking.CancelledAt = &now
		booking.CancelledBy = req.ActorID
		booking.CancellationReason = req.Reason
		if req.Transition == models.TransitionCancel && role == models.RoleClient &&
			booking.ScheduledStart.Sub(now) < s.cfg.CancellationWindow() {
			booking.CancellationFeeCents = models.ApplyBps(booking.AmountCents, s.cfg.CancellationFeeBps)
		}
	}

	if role == models.RoleHost && req.HostNotes != "" {
		booking.HostNotes = req.HostNotes
	}
	booking.Status = rule.To
	booking.UpdatedAt = now

	if err := s.repo.UpdateBookingWithVersion(ctx, booking, expectedVersion); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			if booking.PaymentTransferID != "" && req.Transition == models.TransitionComplete {
				s.logger.Error().
					Str("booking_id", booking.ID).
					Str("transfer_id", booking.PaymentTransferID).
					Msg("Captured payment but booking write lost the version race")
			}
			return nil, "", domain.Conflict("", err, "booking %s was modified concurrently", booking.ID)
		}
		return nil, "", err
	}

	if req.Transition == models.TransitionCancel || req.Transition == models.TransitionDecline {
		s.releaseAuthorization(ctx, booking)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("transition", string(req.Transition)).
		Str("actor_role", string(role)).
		Str("status", string(booking.Status)).
		Msg("Booking transitioned")
	s.emit(ctx, transitionEvents[req.Transition], booking)
	return booking, "ok", nil
}

// GetBooking returns a booking to one of its participants.
func (s *BookingService) GetBooking(ctx context.Context, actorID, bookingID string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Role(actorID) == "" {
		return nil, domain.Forbidden("actor is not a participant of booking %s", bookingID)
	}
	return booking, nil
}

// ListBookings returns the actor's bookings as client or host, latest first.
func (s *BookingService) ListBookings(ctx context.Context, actorID string, limit int) ([]*models.Booking, error) {
	if actorID == "" {
		return nil, domain.Forbidden("actor id is required")
	}
	return s.repo.ListBookingsByParticipant(ctx, actorID, limit)
}

// StaleAuthorizations lists pending bookings whose hold lapses before the session starts.
// Nothing here acts on them.
func (s *BookingService) StaleAuthorizations(ctx context.Context) ([]models.StaleAuthorization, error) {
	hold := s.cfg.AuthorizationHold()
	bookings, err := s.repo.ListStaleAuthorizations(ctx, hold)
	if err != nil {
		return nil, err
	}
	stale := make([]models.StaleAuthorization, 0, len(bookings))
	for _, b := range bookings {
		stale = append(stale, models.StaleAuthorization{
			BookingID:              b.ID,
			HostID:                 b.HostID,
			PaymentAuthorizationID: b.PaymentAuthorizationID,
			CreatedAt:              b.CreatedAt,
			ScheduledStart:         b.ScheduledStart,
			HoldExpiresAt:          b.CreatedAt.Add(hold),
		})
	}
	return stale, nil
}

func (s *BookingService) loadBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, domain.NotFound("booking %s not found", bookingID)
		}
		return nil, err
	}
	return booking, nil
}

// releaseAuthorization frees the hold; a failure is counted and queued, never returned.
func (s *BookingService) releaseAuthorization(ctx context.Context, booking *models.Booking) {
	if booking.PaymentAuthorizationID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)

	err := s.payments.Release(ctx, booking.PaymentAuthorizationID)
	if err == nil {
		return
	}

	metrics.IncReleaseFailure()
	s.logger.Error().
		Err(err).
		Str("booking_id", booking.ID).
		Str("authorization_id", booking.PaymentAuthorizationID).
		Msg("Payment release failed, queued for retry")

	if s.releases == nil {
		return
	}
	if qErr := s.releases.EnqueueRelease(ctx, booking.ID, booking.PaymentAuthorizationID); qErr != nil {
		s.logger.Error().
			Err(qErr).
			Str("booking_id", booking.ID).
			Str("authorization_id", booking.PaymentAuthorizationID).
			Msg("Failed to enqueue payment release")
	}
}

func (s *BookingService) emit(ctx context.Context, eventType string, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(ctx, eventType, booking); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", eventType).
			Str("booking_id", booking.ID).
			Msg("Failed to emit booking event")
	}
}
