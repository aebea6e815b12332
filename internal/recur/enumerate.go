package recur

import (
	"errors"
	"fmt"

	"github.com/calweave/calweave/internal/event"
)

// ErrNoMatchingOccurrences is returned when an active rule yields no
// occurrence dates at all (for example an until date before an anchor whose
// weekday is not in the set). Submitting nothing silently would look like
// success, so this is surfaced as an input error.
var ErrNoMatchingOccurrences = errors.New("recur: rule matches no occurrence dates")

// Enumerate produces the ordered occurrences for an anchor draft under a
// rule. An inert rule yields exactly the anchor. An active rule walks forward
// one calendar day at a time from the anchor's date through the until date
// (inclusive), keeping dates whose weekday is in the set and whose
// whole-weeks distance from the anchor is a multiple of the stride. Every
// occurrence keeps the anchor's time-of-day and duration; only the date
// changes.
//
// The walk itself is pure date arithmetic at a fixed reference hour, so an
// occurrence's true start instant never influences which date is tested (see
// localtime.Date).
func Enumerate(anchor event.Draft, rule Rule) ([]event.Draft, error) {
	if !rule.Active() {
		return []event.Draft{anchor}, nil
	}
	if rule.StrideWeeks < 1 {
		return nil, fmt.Errorf("recur: stride must be at least 1, got %d", rule.StrideWeeks)
	}

	anchorDate := anchor.StartLocal.Date()

	// The end date trails the start date by a fixed number of days taken from
	// the anchor, so overnight spans keep their offset on every occurrence.
	endDelta := anchorDate.DaysUntil(anchor.EndLocal.Date())

	var out []event.Draft
	for d := anchorDate; !d.After(*rule.Until); d = d.AddDays(1) {
		if !rule.onWeekday(d.Weekday()) {
			continue
		}
		if rule.StrideWeeks > 1 {
			// Whole weeks elapsed since the anchor date. Tying the cadence to
			// the anchor rather than week-of-year keeps "every N weeks"
			// stable across year boundaries.
			weeks := anchorDate.DaysUntil(d) / 7
			if weeks%rule.StrideWeeks != 0 {
				continue
			}
		}
		out = append(out, anchor.OnDate(d, endDelta))
	}

	if len(out) == 0 {
		// An until date earlier than the anchor leaves the walk empty, but the
		// anchor itself still counts if its weekday matches.
		if rule.onWeekday(anchorDate.Weekday()) {
			return []event.Draft{anchor}, nil
		}
		return nil, ErrNoMatchingOccurrences
	}

	return out, nil
}
