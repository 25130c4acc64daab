package models

import "fmt"

// Quote is the money breakdown of a booking.
type Quote struct {
	AmountCents      int64
	PlatformFeeCents int64
	HostPayoutCents  int64
}

// PriceBooking computes amount, platform fee and payout. All rounding is half-up on whole cents.
func PriceBooking(hourlyRateCents int64, durationMinutes int, feeBps int) Quote {
	amount := roundHalfUp(hourlyRateCents*int64(durationMinutes), 60)
	fee := ApplyBps(amount, feeBps)
	return Quote{
		AmountCents:      amount,
		PlatformFeeCents: fee,
		HostPayoutCents:  amount - fee,
	}
}

// ApplyBps returns round(amount * bps / 10000).
func ApplyBps(amountCents int64, bps int) int64 {
	return roundHalfUp(amountCents*int64(bps), 10000)
}

func roundHalfUp(num, den int64) int64 {
	if num < 0 {
		return -roundHalfUp(-num, den)
	}
	return (num + den/2) / den
}

// ValidateDuration checks the 30..240 minute range on the 30 minute grid.
func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return fmt.Errorf("duration_minutes must be between %d and %d, got %d", MinDurationMinutes, MaxDurationMinutes, minutes)
	}
	if minutes%SlotGranularityMinutes != 0 {
		return fmt.Errorf("duration_minutes must be a multiple of %d, got %d", SlotGranularityMinutes, minutes)
	}
	return nil
}
