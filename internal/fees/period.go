package fees

import "time"

// ResolvePeriod picks the pricing window for the calendar day of now.
// Precedence is early_bird, regular, late. Missing deadlines are read as
// "still open" so an incomplete configuration never closes registration;
// when neither regular nor late has a deadline, regular stays open as long
// as it has fees.
func ResolvePeriod(now time.Time, s Schedule) Period {
	today := NewDate(now.Date())

	eb := s.EarlyBird
	if eb.Enabled && onOrBefore(today, eb.Deadline) && eb.Seats.Available() {
		return PeriodEarlyBird
	}
	if s.Regular.Deadline.Set() && !today.After(s.Regular.Deadline.Time) {
		return PeriodRegular
	}
	if s.Late.Deadline.Set() && !today.After(s.Late.Deadline.Time) {
		return PeriodLate
	}
	if !s.Regular.Deadline.Set() && !s.Late.Deadline.Set() && len(s.Regular.Fees) > 0 {
		return PeriodRegular
	}
	return PeriodClosed
}

func onOrBefore(day, deadline Date) bool {
	if !deadline.Set() {
		return true
	}
	return !day.After(deadline.Time)
}
