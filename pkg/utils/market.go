package utils

import (
	"fmt"
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// ExpiryWeekday is the weekday NIFTY weekly options expire on.
const ExpiryWeekday = time.Thursday

// ExpiryOnOrAfter returns the first expiry weekday on or after t, keeping t's
// clock time and location.
func ExpiryOnOrAfter(t time.Time) time.Time {
	offset := (int(ExpiryWeekday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}

// ParseDate parses YYYY-MM-DD as midnight IST.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, IndiaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// DaysBetween returns the fractional number of calendar days from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}
