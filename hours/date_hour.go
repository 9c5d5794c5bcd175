package hours

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

var location *time.Location = time.Local

// SetTimezone sets the location used for calendar dates, "Local" keeps the system zone.
func SetTimezone(timezone string) error {
	if timezone == "" || timezone == "Local" {
		location = time.Local
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %v", timezone, err)
	}
	location = loc
	return nil
}

func Location() *time.Location {
	return location
}

// Date returns the local calendar date of t as YYYY-MM-DD.
func Date(t time.Time) string {
	return t.In(location).Format(DateLayout)
}

// AddDays moves a calendar date by n days. Works on dates, not durations,
// so days with 23 or 25 hours are handled.
func AddDays(date string, n int) string {
	t, err := time.ParseInLocation(DateLayout, date, location)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(DateLayout)
}

func Yesterday(t time.Time) string {
	return AddDays(Date(t), -1)
}

// NextAt returns the next local time at hour:minute strictly after t.
func NextAt(t time.Time, hour, minute int) time.Time {
	t = t.In(location)
	next := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, location)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, hour, minute, 0, 0, location)
	}
	return next
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

type DateHour struct {
	Date string
	Hour uint8
}

func (dh DateHour) String() string {
	return fmt.Sprintf("%s %02d", dh.Date, dh.Hour)
}

// FromTime returns the local date and hour of t.
func FromTime(t time.Time) DateHour {
	if t.IsZero() {
		return DateHour{}
	}
	t = t.In(location)
	return DateHour{
		Date: t.Format(DateLayout),
		Hour: uint8(t.Hour()),
	}
}
