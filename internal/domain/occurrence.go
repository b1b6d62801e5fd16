package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationHour is the local hour at which birthday notifications fire.
const NotificationHour = 9

// LoadTimezone resolves an IANA timezone name.
func LoadTimezone(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: timezone is required", ErrValidation)
	}
	// time.LoadLocation maps "" and "UTC" to UTC and "Local" to the host zone.
	if trimmed == "Local" {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrValidation, name)
	}

	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrValidation, name)
	}
	return loc, nil
}

// NextOccurrence returns the first instant strictly after now at which the
// anniversary of birthday is 09:00:00 in timezone. The result is in UTC.
//
// February 29 falls back to February 28 in non-leap years.
func NextOccurrence(birthday time.Time, timezone string, now time.Time) (time.Time, error) {
	if birthday.IsZero() {
		return time.Time{}, fmt.Errorf("%w: birthday is required", ErrValidation)
	}
	loc, err := LoadTimezone(timezone)
	if err != nil {
		return time.Time{}, err
	}

	year := now.In(loc).Year()
	next := anniversaryAt(birthday, year, loc)
	if !next.After(now) {
		next = anniversaryAt(birthday, year+1, loc)
	}

	return next.UTC(), nil
}

func anniversaryAt(birthday time.Time, year int, loc *time.Location) time.Time {
	month, day := birthday.Month(), birthday.Day()
	if month == time.February && day == 29 && !isLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, NotificationHour, 0, 0, 0, loc)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
