package recur

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/calweave/calweave/internal/localtime"
)

// rruleWeekdays maps Go weekdays (Sunday = 0) to RFC 5545 weekdays.
var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ToRRule renders an active rule as an RFC 5545 weekly RRULE anchored at the
// given start instant. Used by the ICS export path; the enumerator itself
// never consults it.
func ToRRule(r Rule, anchorStart time.Time) (*rrule.RRule, error) {
	if !r.Active() {
		return nil, fmt.Errorf("recur: cannot render inert rule as RRULE")
	}

	stride := r.StrideWeeks
	if stride < 1 {
		return nil, fmt.Errorf("recur: stride must be at least 1, got %d", stride)
	}

	days := make([]rrule.Weekday, 0, len(r.Weekdays))
	for _, d := range r.Weekdays {
		days = append(days, rruleWeekdays[d])
	}

	// UNTIL is inclusive of instants up to the last local date's end of day.
	u := *r.Until
	until := time.Date(u.Year, u.Month, u.Day, 23, 59, 59, 0, anchorStart.Location())

	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  stride,
		Byweekday: days,
		Until:     until,
		Dtstart:   anchorStart,
	})
}

// FromRRule parses an RRULE string (as found in extraction hints or shared
// ICS data) into a Rule. Only weekly rules are representable; anything else
// is an error. A missing UNTIL yields an inert rule.
func FromRRule(s string) (Rule, error) {
	r, err := rrule.StrToRRule(s)
	if err != nil {
		return Rule{}, fmt.Errorf("recur: parse rrule %q: %w", s, err)
	}

	opts := r.OrigOptions
	if opts.Freq != rrule.WEEKLY {
		return Rule{}, fmt.Errorf("recur: only weekly rules are supported, got %q", s)
	}

	out := Rule{StrideWeeks: opts.Interval}
	if out.StrideWeeks < 1 {
		out.StrideWeeks = 1
	}

	for _, wd := range opts.Byweekday {
		// rrule weekdays count Monday = 0.
		out.Weekdays = append(out.Weekdays, time.Weekday((wd.Day()+1)%7))
	}

	if !opts.Until.IsZero() {
		u := opts.Until
		out.Until = &localtime.Date{Year: u.Year(), Month: u.Month(), Day: u.Day()}
	}

	return out, nil
}
