package licensing

import (
	"time"

	"github.com/HoangDuong1310/licensegate/internal/models"
)

// ExpirationOf computes the expiration timestamp for a plan duration
// anchored at the given instant. It returns nil for LIFETIME.
//
// Hour, day and week durations are fixed-length additions. Month,
// quarter and year durations shift the calendar month field in UTC and
// keep the day-of-month; when the target month is shorter the date
// overflows into the following month (Jan 31 + 1 month lands in early
// March, it is not clamped to Feb 28).
func ExpirationOf(durationType models.DurationType, durationValue int, anchor time.Time) *time.Time {
	anchor = anchor.UTC()

	var expires time.Time
	switch durationType {
	case models.DurationLifetime:
		return nil
	case models.DurationHour:
		expires = anchor.Add(time.Duration(durationValue) * time.Hour)
	case models.DurationDay:
		expires = anchor.Add(time.Duration(durationValue) * 24 * time.Hour)
	case models.DurationWeek:
		expires = anchor.Add(time.Duration(durationValue) * 7 * 24 * time.Hour)
	case models.DurationMonth:
		expires = anchor.AddDate(0, durationValue, 0)
	case models.DurationQuarter:
		expires = anchor.AddDate(0, 3*durationValue, 0)
	case models.DurationYear:
		expires = anchor.AddDate(0, 12*durationValue, 0)
	default:
		return nil
	}
	return &expires
}
