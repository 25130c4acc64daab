package models

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBooking(t *testing.T) {
	t.Run("WholeHours", func(t *testing.T) {
		q := PriceBooking(6000, 120, 1500)
		assert.Equal(t, int64(12000), q.AmountCents)
		assert.Equal(t, int64(1800), q.PlatformFeeCents)
		assert.Equal(t, int64(10200), q.HostPayoutCents)
	})

	t.Run("HalfUpOnAmount", func(t *testing.T) {
		// 3333 * 30 / 60 = 1666.5 -> 1667
		q := PriceBooking(3333, 30, 0)
		assert.Equal(t, int64(1667), q.AmountCents)
		assert.Equal(t, int64(0), q.PlatformFeeCents)
		assert.Equal(t, int64(1667), q.HostPayoutCents)
	})

	t.Run("HalfUpOnFee", func(t *testing.T) {
		// 1010 * 0.15 = 151.5 -> 152
		q := PriceBooking(1010, 60, 1500)
		assert.Equal(t, int64(1010), q.AmountCents)
		assert.Equal(t, int64(152), q.PlatformFeeCents)
		assert.Equal(t, q.AmountCents-q.PlatformFeeCents, q.HostPayoutCents)
	})
}

func TestValidateDuration(t *testing.T) {
	for _, ok := range []int{30, 60, 90, 240} {
		assert.NoError(t, ValidateDuration(ok), "duration %d", ok)
	}
	for _, bad := range []int{0, 20, 45, 241, 270} {
		assert.Error(t, ValidateDuration(bad), "duration %d", bad)
	}
}

func TestTransitionRules(t *testing.T) {
	confirm, ok := RuleFor(TransitionConfirm)
	require.True(t, ok)
	assert.True(t, confirm.Allows(StatusPending))
	assert.False(t, confirm.Allows(StatusConfirmed))
	assert.True(t, confirm.Permits(RoleHost))
	assert.False(t, confirm.Permits(RoleClient))

	cancel, _ := RuleFor(TransitionCancel)
	assert.True(t, cancel.Allows(StatusPending))
	assert.True(t, cancel.Allows(StatusConfirmed))
	assert.False(t, cancel.Allows(StatusInProgress))
	assert.True(t, cancel.Permits(RoleClient))

	dispute, _ := RuleFor(TransitionDispute)
	assert.True(t, dispute.Allows(StatusInProgress))
	assert.False(t, dispute.Allows(StatusCompleted))

	for _, s := range []BookingStatus{StatusCompleted, StatusCancelled, StatusDisputed} {
		assert.True(t, s.IsTerminal(), "%s", s)
		assert.False(t, s.Occupies(), "%s", s)
	}
	for _, s := range []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress} {
		assert.False(t, s.IsTerminal(), "%s", s)
		assert.True(t, s.Occupies(), "%s", s)
	}

	_, err := ParseBookingStatus("rescheduled")
	assert.Error(t, err)
}

func TestClockTime(t *testing.T) {
	c, err := ParseClockTime("09:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(570), c)
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClockTime("24:00")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(MinutesPerDay), end)

	for _, bad := range []string{"9:30", "24:30", "12:60", "noon", ""} {
		_, err := ParseClockTime(bad)
		assert.Error(t, err, bad)
	}

	loc, _ := time.LoadLocation("Europe/Berlin")
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 3, 6, 0, 0, 0, 0, loc), end.On(day, loc))
}

func TestRuleAndOverrideValidate(t *testing.T) {
	nine, five := ClockTime(9*60), ClockTime(17*60)

	assert.NoError(t, (&RecurringRule{DayOfWeek: 2, StartTime: nine, EndTime: five}).Validate())
	assert.Error(t, (&RecurringRule{DayOfWeek: 7, StartTime: nine, EndTime: five}).Validate())
	assert.Error(t, (&RecurringRule{DayOfWeek: 1, StartTime: five, EndTime: nine}).Validate())

	date := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	allDay := &Override{Kind: OverrideBlocked, Date: date}
	assert.NoError(t, allDay.Validate())
	start, end := allDay.Window()
	assert.Equal(t, ClockTime(0), start)
	assert.Equal(t, ClockTime(MinutesPerDay), end)

	assert.Error(t, (&Override{Kind: "maybe", Date: date}).Validate())
	assert.Error(t, (&Override{Kind: OverrideAvailable, Date: date, StartTime: &nine}).Validate())
}

func TestWeekdayIndex(t *testing.T) {
	monday := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, WeekdayIndex(monday))
	assert.Equal(t, 2, WeekdayIndex(monday.AddDate(0, 0, 2)))
	assert.Equal(t, 6, WeekdayIndex(monday.AddDate(0, 0, 6)))
}
