// Package recur expands an anchor event and a weekly recurrence rule into
// concrete dated occurrences.
package recur

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/calweave/calweave/internal/localtime"
)

// Rule describes weekly recurrence: occurrences fall on the given weekdays,
// every StrideWeeks weeks counted from the anchor's week, up to and including
// the Until date.
type Rule struct {
	// Weekdays are the days of the week occurrences fall on (Sunday = 0).
	Weekdays []time.Weekday

	// StrideWeeks is the cadence multiplier: 1 means every matching week,
	// N means every Nth matching week counted from the anchor's week.
	StrideWeeks int

	// Until is the last local date (inclusive) an occurrence may start on.
	Until *localtime.Date
}

// Active reports whether the rule produces recurrence. A rule needs both a
// non-empty weekday set and an until date; otherwise it is inert and only the
// anchor occurrence exists.
func (r Rule) Active() bool {
	return len(r.Weekdays) > 0 && r.Until != nil
}

// onWeekday reports whether wd is in the rule's weekday set.
func (r Rule) onWeekday(wd time.Weekday) bool {
	for _, d := range r.Weekdays {
		if d == wd {
			return true
		}
	}
	return false
}

// String renders the rule for logs and CLI output, e.g.
// "Mon,Wed every 2 weeks until 2024-01-21".
func (r Rule) String() string {
	if !r.Active() {
		return "none"
	}

	days := append([]time.Weekday(nil), r.Weekdays...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}

	var b strings.Builder
	b.WriteString(strings.Join(names, ","))
	if r.StrideWeeks > 1 {
		fmt.Fprintf(&b, " every %d weeks", r.StrideWeeks)
	}
	b.WriteString(" until ")
	b.WriteString(r.Until.String())
	return b.String()
}
