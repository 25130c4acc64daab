package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hostbook/internal/calendar"
	"hostbook/internal/config"
	"hostbook/internal/database"
	"hostbook/internal/domain"
	"hostbook/internal/lock"
	"hostbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DaySlots is one date of the availability answer.
type DaySlots struct {
	Date  string               `json:"date"`
	Slots []calendar.TimeRange `json:"slots"`
}

type HostAvailability struct {
	HostID          string     `json:"host_id"`
	TimeZone        string     `json:"time_zone"`
	DurationMinutes int        `json:"duration_minutes"`
	Days            []DaySlots `json:"days"`
}

// AvailabilityService answers slot queries and owns writes of rules and overrides.
type AvailabilityService struct {
	repo   domain.Repository
	locker domain.Locker
	clock  domain.Clock
	cfg    config.BookingConfig
	logger *zerolog.Logger
}

func NewAvailabilityService(
	repo domain.Repository,
	locker domain.Locker,
	clock domain.Clock,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) *AvailabilityService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if cfg.MaxAvailabilityRangeDays <= 0 {
		cfg.MaxAvailabilityRangeDays = 62
	}
	if cfg.DefaultSlotDurationMinute <= 0 {
		cfg.DefaultSlotDurationMinute = models.SlotGranularityMinutes
	}
	return &AvailabilityService{repo: repo, locker: locker, clock: clock, cfg: cfg, logger: logger}
}

// GetAvailability returns bookable slots of the given duration for every date in [startDate, endDate].
// Dates are calendar dates in the host time zone. The answer is recomputed on every call.
func (s *AvailabilityService) GetAvailability(
	ctx context.Context,
	hostID string,
	startDate, endDate time.Time,
	durationMinutes int,
) (*HostAvailability, error) {
	if durationMinutes == 0 {
		durationMinutes = s.cfg.DefaultSlotDurationMinute
	}
	if err := models.ValidateDuration(durationMinutes); err != nil {
		return nil, domain.Validation("%v", err)
	}
	if endDate.Before(startDate) {
		return nil, domain.Validation("end_date must not be before start_date")
	}
	if days := int(endDate.Sub(startDate).Hours()/24) + 1; days > s.cfg.MaxAvailabilityRangeDays {
		return nil, domain.Validation("date range must not exceed %d days", s.cfg.MaxAvailabilityRangeDays)
	}

	host, loc, err := s.loadHost(ctx, hostID)
	if err != nil {
		return nil, err
	}

	view, occupying, err := loadCalendar(ctx, s.repo, hostID, loc, startDate, endDate)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	now := s.clock.Now()

	result := &HostAvailability{
		HostID:          host.ID,
		TimeZone:        loc.String(),
		DurationMinutes: durationMinutes,
		Days:            make([]DaySlots, 0),
	}
	for _, key := range view.Dates(startDate, endDate, loc) {
		result.Days = append(result.Days, DaySlots{
			Date:  key,
			Slots: calendar.Slots(view[key], occupying, duration, now, s.cfg.MinLead(), loc),
		})
	}
	return result, nil
}

func (s *AvailabilityService) ListRules(ctx context.Context, actorID, hostID string) ([]models.RecurringRule, error) {
	if err := requireHost(actorID, hostID); err != nil {
		return nil, err
	}
	if _, _, err := s.loadHost(ctx, hostID); err != nil {
		return nil, err
	}
	return s.repo.ListRules(ctx, hostID)
}

// CreateRule adds a weekly window. Windows on the same weekday must not overlap.
func (s *AvailabilityService) CreateRule(ctx context.Context, actorID string, rule *models.RecurringRule) error {
	if err := requireHost(actorID, rule.HostID); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return domain.Validation("%v", err)
	}
	if _, _, err := s.loadHost(ctx, rule.HostID); err != nil {
		return err
	}

	unlock, err := s.lockHost(ctx, rule.HostID)
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := s.repo.ListRules(ctx, rule.HostID)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.DayOfWeek == rule.DayOfWeek && r.StartTime < rule.EndTime && rule.StartTime < r.EndTime {
			return domain.Conflict("", nil, "rule overlaps %s-%s on the same day", r.StartTime, r.EndTime)
		}
	}

	rule.ID = uuid.NewString()
	rule.CreatedAt = s.clock.Now()
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return err
	}

	s.logger.Info().
		Str("host_id", rule.HostID).
		Str("rule_id", rule.ID).
		Int("day_of_week", rule.DayOfWeek).
		Msg("Availability rule created")
	return nil
}

func (s *AvailabilityService) DeleteRule(ctx context.Context, actorID, hostID, ruleID string) error {
	if err := requireHost(actorID, hostID); err != nil {
		return err
	}
	unlock, err := s.lockHost(ctx, hostID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.DeleteRule(ctx, hostID, ruleID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return domain.NotFound("rule %s not found", ruleID)
		}
		return err
	}
	return nil
}

func (s *AvailabilityService) ListOverrides(ctx context.Context, actorID, hostID string, from, to time.Time) ([]models.Override, error) {
	if err := requireHost(actorID, hostID); err != nil {
		return nil, err
	}
	if _, _, err := s.loadHost(ctx, hostID); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, domain.Validation("to must not be before from")
	}
	return s.repo.ListOverrides(ctx, hostID, from, to)
}

func (s *AvailabilityService) CreateOverride(ctx context.Context, actorID string, override *models.Override) error {
	if err := requireHost(actorID, override.HostID); err != nil {
		return err
	}
	if err := override.Validate(); err != nil {
		return domain.Validation("%v", err)
	}
	if _, _, err := s.loadHost(ctx, override.HostID); err != nil {
		return err
	}

	unlock, err := s.lockHost(ctx, override.HostID)
	if err != nil {
		return err
	}
	defer unlock()

	override.ID = uuid.NewString()
	override.CreatedAt = s.clock.Now()
	if err := s.repo.CreateOverride(ctx, override); err != nil {
		if errors.Is(err, database.ErrDuplicateOverride) {
			return domain.Conflict("", err, "override already exists for %s", models.DateKey(override.Date))
		}
		return err
	}

	s.logger.Info().
		Str("host_id", override.HostID).
		Str("override_id", override.ID).
		Str("date", models.DateKey(override.Date)).
		Str("kind", string(override.Kind)).
		Msg("Availability override created")
	return nil
}

func (s *AvailabilityService) DeleteOverride(ctx context.Context, actorID, hostID, overrideID string) error {
	if err := requireHost(actorID, hostID); err != nil {
		return err
	}
	unlock, err := s.lockHost(ctx, hostID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.DeleteOverride(ctx, hostID, overrideID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return domain.NotFound("override %s not found", overrideID)
		}
		return err
	}
	return nil
}

func (s *AvailabilityService) loadHost(ctx context.Context, hostID string) (*models.Host, *time.Location, error) {
	return loadHost(ctx, s.repo, hostID)
}

func (s *AvailabilityService) lockHost(ctx context.Context, hostID string) (func(), error) {
	return acquire(ctx, s.locker, lock.HostKey(hostID))
}

func requireHost(actorID, hostID string) error {
	if actorID == "" || actorID != hostID {
		return domain.Forbidden("only the host may manage availability")
	}
	return nil
}

func loadHost(ctx context.Context, repo domain.Repository, hostID string) (*models.Host, *time.Location, error) {
	host, err := repo.GetHost(ctx, hostID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, domain.NotFound("host %s not found", hostID)
		}
		return nil, nil, err
	}
	loc, err := host.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("host %s time zone: %w", hostID, err)
	}
	return host, loc, nil
}

// loadCalendar resolves open intervals for the local dates [startDate, endDate] and the occupying ranges inside them.
func loadCalendar(
	ctx context.Context,
	repo domain.Repository,
	hostID string,
	loc *time.Location,
	startDate, endDate time.Time,
) (calendar.HostCalendar, []calendar.TimeRange, error) {
	rules, err := repo.ListRules(ctx, hostID)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := repo.ListOverrides(ctx, hostID, startDate, endDate)
	if err != nil {
		return nil, nil, err
	}
	view, err := calendar.Resolve(rules, overrides, loc, startDate, endDate)
	if err != nil {
		return nil, nil, err
	}

	from := dayStart(startDate, loc)
	to := dayStart(endDate, loc).AddDate(0, 0, 1)
	bookings, err := repo.ListOccupyingBookings(ctx, hostID, from, to)
	if err != nil {
		return nil, nil, err
	}
	occupying := make([]calendar.TimeRange, 0, len(bookings))
	for _, b := range bookings {
		occupying = append(occupying, calendar.TimeRange{Start: b.ScheduledStart, End: b.ScheduledEnd})
	}
	return view, occupying, nil
}

func dayStart(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// acquire takes a lock and maps a wait timeout onto a retryable conflict.
func acquire(ctx context.Context, locker domain.Locker, key string) (func(), error) {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, domain.Conflict(domain.CodeBookingConflict, err, "resource is busy, retry later")
		}
		return nil, err
	}
	return unlock, nil
}
