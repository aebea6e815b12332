// Package localtime converts between naive wall-clock values and absolute
// instants. A DateTime has no attached offset; it only gains meaning when a
// Codec interprets it in a concrete timezone. All instants handed to the rest
// of the program are UTC.
package localtime

import (
	"fmt"
	"time"
)

// DateTime is a wall-clock value with no attached timezone.
type DateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Date returns the calendar-date portion of the value.
func (dt DateTime) Date() Date {
	return Date{Year: dt.Year, Month: dt.Month, Day: dt.Day}
}

// String formats the value as "2006-01-02 15:04".
func (dt DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute)
}

// ParseDateTime parses a "2006-01-02 15:04" wall-clock string.
func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		return DateTime{}, fmt.Errorf("parse local datetime %q: %w", s, err)
	}
	return DateTime{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}, nil
}

// Date is a calendar date with no time-of-day and no timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "2006-01-02" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String formats the date as "2006-01-02".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// At attaches a time-of-day to the date.
func (d Date) At(hour, minute int) DateTime {
	return DateTime{Year: d.Year, Month: d.Month, Day: d.Day, Hour: hour, Minute: minute}
}

// ref returns the date at a fixed reference hour (noon, UTC) for date
// arithmetic. Using noon keeps day-stepping stable across DST transitions,
// where a calendar day can be 23 or 25 hours long in local time.
func (d Date) ref() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

// Weekday returns the day of the week (Sunday = 0).
func (d Date) Weekday() time.Weekday {
	return d.ref().Weekday()
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	t := d.ref().AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DaysUntil returns the number of calendar days from d to other.
// Negative when other is earlier.
func (d Date) DaysUntil(other Date) int {
	return int(other.ref().Sub(d.ref()) / (24 * time.Hour))
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.ref().After(other.ref())
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.ref().Before(other.ref())
}

// Codec converts between DateTime values and absolute instants using one
// timezone. The zone is injected rather than read from ambient global state
// so that tests can supply deterministic zones.
type Codec struct {
	loc *time.Location
}

// NewCodec creates a codec for the given zone. A nil location means the
// process-local timezone.
func NewCodec(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.Local
	}
	return &Codec{loc: loc}
}

// Location returns the codec's timezone.
func (c *Codec) Location() *time.Location {
	return c.loc
}

// ToInstant interprets a wall-clock value in the codec's zone and returns the
// corresponding UTC instant. The offset is resolved for the specific date, so
// values on either side of a DST transition convert correctly.
//
// Wall-clock values inside a DST-skipped hour do not exist in the zone;
// time.Date resolves them to the zone's canonical mapping and the round-trip
// law does not hold for them. This is unsupported input, not silently fixed.
func (c *Codec) ToInstant(dt DateTime) time.Time {
	return time.Date(dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, 0, 0, c.loc).UTC()
}

// ToLocal converts an instant to the wall-clock value in the codec's zone.
// Seconds and finer are dropped.
func (c *Codec) ToLocal(t time.Time) DateTime {
	lt := t.In(c.loc)
	return DateTime{
		Year:   lt.Year(),
		Month:  lt.Month(),
		Day:    lt.Day(),
		Hour:   lt.Hour(),
		Minute: lt.Minute(),
	}
}
